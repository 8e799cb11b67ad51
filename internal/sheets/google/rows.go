package google

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vickym250/jnschool/internal/core"
	ports "github.com/vickym250/jnschool/internal/sheets"
)

var collectionHeader = []any{
	"Key", "Recorded At", "Event", "Reg No", "Roll No", "Name", "Class", "Session", "Month",
	"Admission Fee", "Tuition", "Transport", "Total", "Amount in Words", "Status",
}

var overviewHeader = []any{
	"Class", "Roll No", "Reg No", "Name", "Tuition", "Transport", "Due", "Paid", "Status",
}

// lastColumn is the column letter of the final register field.
const lastColumn = "O"

func collectionRow(e ports.CollectionEntry) []any {
	return []any{
		e.Key,
		e.RecordedAt.Format(time.RFC3339),
		e.Event,
		e.RegistrationNumber,
		e.RollNumber,
		e.Name,
		e.ClassName,
		e.Session,
		e.Month,
		rupees(e.AdmissionFee),
		rupees(e.Tuition),
		rupees(e.Transport),
		rupees(e.Total),
		e.AmountInWords,
		e.Status,
	}
}

// rupees renders amounts as numbers so the sheet can sum them.
func rupees(m core.Money) any {
	f, _ := m.Decimal().Float64()
	return f
}

// overviewRows lays out an overview with a title line, the header and one
// row per student grouped by class.
func overviewRows(ov core.MonthOverview) [][]any {
	rows := make([]core.OverviewRow, len(ov.Rows))
	copy(rows, ov.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return classLess(rows[i].ClassName, rows[j].ClassName) })

	out := make([][]any, 0, len(rows)+4)
	out = append(out,
		[]any{fmt.Sprintf("%s %s", ov.Month, ov.Session), "Paid", ov.Paid, "Partial", ov.Partial, "Pending", ov.Pending},
		[]any{"Collected", rupees(ov.Collected), "Outstanding", rupees(ov.Outstanding)},
		overviewHeader,
	)
	for _, r := range rows {
		out = append(out, []any{
			r.ClassName,
			r.RollNumber,
			r.RegistrationNumber,
			r.Name,
			r.Tuition.String(),
			r.Transport.String(),
			rupees(r.State.Total),
			rupees(r.State.Paid),
			r.State.Status.String(),
		})
	}
	return out
}

// classLess orders numeric class names numerically and puts them before
// named classes such as "Nursery".
func classLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// parseKeys collects the non-empty keys of column A, skipping the header.
func parseKeys(values [][]any) map[string]struct{} {
	keys := make(map[string]struct{}, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || (i == 0 && v == collectionHeader[0]) {
			continue
		}
		keys[v] = struct{}{}
	}
	return keys
}

// sessionSheetName returns "<session> <base>" unless base already starts
// with a session.
func sessionSheetName(base, session string) string {
	base = strings.TrimSpace(base)
	if len(base) > 8 && base[7] == ' ' {
		if _, err := core.ParseSession(base[:7]); err == nil {
			return base
		}
	}
	return session + " " + base
}
