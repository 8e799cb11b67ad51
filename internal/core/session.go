package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a position in the fiscal year, April first.
type Month int

const (
	April Month = iota
	May
	June
	July
	August
	September
	October
	November
	December
	January
	February
	March
)

// MonthsPerSession is the number of entries in every fee ledger.
const MonthsPerSession = 12

var monthNames = [MonthsPerSession]string{
	"April", "May", "June", "July", "August", "September",
	"October", "November", "December", "January", "February", "March",
}

// FiscalMonths lists the months of a session in ledger order.
func FiscalMonths() []Month {
	out := make([]Month, MonthsPerSession)
	for i := range out {
		out[i] = Month(i)
	}
	return out
}

func (m Month) Valid() bool {
	return m >= April && m <= March
}

func (m Month) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Month(%d)", int(m))
	}
	return monthNames[m]
}

// ParseMonth resolves a month name, ignoring case and surrounding spaces.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for i, name := range monthNames {
		if strings.EqualFold(name, s) {
			return Month(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMonth, s)
}

// MonthOf maps a calendar month to its fiscal position.
func MonthOf(t time.Month) Month {
	return Month((int(t) + 8) % 12)
}

func (m Month) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrUnknownMonth
	}
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseSession validates a session label of the form "2025-26" and returns
// the starting year. The two-digit suffix must be the following year.
func ParseSession(s string) (int, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || len(start) != 4 || len(end) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSession, s)
	}
	year, err := strconv.Atoi(start)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSession, s)
	}
	suffix, err := strconv.Atoi(end)
	if err != nil || suffix != (year+1)%100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSession, s)
	}
	return year, nil
}

// SessionStarting formats the session that begins in April of year.
func SessionStarting(year int) string {
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// CurrentSession returns the session that contains now. Sessions start in
// April, so January to March belong to the session of the previous year.
func CurrentSession(now time.Time) string {
	year := now.Year()
	if now.Month() < time.April {
		year--
	}
	return SessionStarting(year)
}

// NextSession returns the session following s.
func NextSession(s string) (string, error) {
	year, err := ParseSession(s)
	if err != nil {
		return "", err
	}
	return SessionStarting(year + 1), nil
}

// PaidMonthsLabel describes how many months a lump sum covers at the given
// monthly rate, counting from April: "Paid: April to June", "Partial" when
// it covers less than one month, and "" when there is nothing to describe.
func PaidMonthsLabel(amount, monthly Money) string {
	if amount.Paise <= 0 || monthly.Paise <= 0 {
		return ""
	}
	count := amount.Paise / monthly.Paise
	if count == 0 {
		return "Partial"
	}
	if count > MonthsPerSession {
		count = MonthsPerSession
	}
	return fmt.Sprintf("Paid: %s to %s", April, Month(count-1))
}
