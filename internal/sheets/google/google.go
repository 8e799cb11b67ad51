package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	ports "github.com/vickym250/jnschool/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultKeysTTL = 5 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	registerBase  string
	overviewBase  string

	mu      sync.Mutex
	sheets  map[string]struct{}
	keys    map[string]map[string]struct{}
	keysAt  map[string]time.Time
	keysTTL time.Duration
}

var _ ports.Register = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials in
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional sheet base names, prefixed with the session at write time:
// GOOGLE_SHEET_NAME (default "Collections") and GOOGLE_OVERVIEW_SHEET_NAME
// (default "Overview").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID,
		envOr("GOOGLE_SHEET_NAME", "Collections"),
		envOr("GOOGLE_OVERVIEW_SHEET_NAME", "Overview")), nil
}

func New(svc *gsheet.Service, spreadsheetID, registerBase, overviewBase string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		registerBase:  registerBase,
		overviewBase:  overviewBase,
		sheets:        map[string]struct{}{},
		keys:          map[string]map[string]struct{}{},
		keysAt:        map[string]time.Time{},
		keysTTL:       defaultKeysTTL,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// newSheetsService authenticates with service account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var opt goption.ClientOption
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		opt = goption.WithCredentialsJSON([]byte(inline))
	case file != "":
		slog.InfoContext(ctx, "Using service account credentials file", "path", file)
		opt = goption.WithCredentialsFile(file)
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx, opt, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// AppendCollection appends e to the register of its session, creating the
// sheet with a header row when missing.
func (c *Client) AppendCollection(ctx context.Context, e ports.CollectionEntry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.Key == "" || e.Session == "" {
		return "", errors.New("collection entry without key or session")
	}
	sheet := sessionSheetName(c.registerBase, e.Session)
	if err := c.ensureSheet(ctx, sheet, collectionHeader); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("'%s'!A:%s", sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{collectionRow(e)}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	c.mu.Lock()
	if keys, ok := c.keys[sheet]; ok {
		keys[e.Key] = struct{}{}
	}
	c.mu.Unlock()

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Collection appended", append(log.NewFields().
		WithComponent(log.ComponentSheets).
		WithOperation(log.OpAppend).
		WithLedgerMonth(e.Session, "").
		ToSlice(),
		"key", e.Key, log.FieldRegisterRef, ref)...)
	return ref, nil
}

// HasCollection checks the key column of the session register. Keys are
// cached for keysTTL and extended by every append from this client.
func (c *Client) HasCollection(ctx context.Context, session, key string) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}
	sheet := sessionSheetName(c.registerBase, session)

	c.mu.Lock()
	keys, ok := c.keys[sheet]
	fresh := ok && time.Since(c.keysAt[sheet]) < c.keysTTL
	c.mu.Unlock()
	if fresh {
		_, found := keys[key]
		return found, nil
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("'%s'!A:A", sheet)).Context(ctx).Do()
	if err != nil {
		if isMissingSheet(err) {
			return false, nil
		}
		return false, fmt.Errorf("read keys of %s: %w", sheet, err)
	}
	keys = parseKeys(resp.Values)

	c.mu.Lock()
	c.keys[sheet] = keys
	c.keysAt[sheet] = time.Now()
	c.mu.Unlock()

	_, found := keys[key]
	return found, nil
}

// WriteOverview clears the overview sheet of the session and writes ov.
func (c *Client) WriteOverview(ctx context.Context, ov core.MonthOverview) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := sessionSheetName(c.overviewBase, ov.Session)
	if err := c.ensureSheet(ctx, sheet, nil); err != nil {
		return err
	}
	all := fmt.Sprintf("'%s'", sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, all, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", sheet),
		&gsheet.ValueRange{Values: overviewRows(ov)}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Overview written", append(log.NewFields().
		WithComponent(log.ComponentSheets).
		WithLedgerMonth(ov.Session, ov.Month.String()).
		ToSlice(),
		"sheet", sheet, "rows", len(ov.Rows))...)
	return nil
}

// ensureSheet adds a sheet titled title when the spreadsheet lacks one and
// writes header into its first row.
func (c *Client) ensureSheet(ctx context.Context, title string, header []any) error {
	c.mu.Lock()
	_, known := c.sheets[title]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			exists = true
			break
		}
	}
	if !exists {
		_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheet.Request{{AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			}}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("add sheet %s: %w", title, err)
		}
		if header != nil {
			_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", title),
				&gsheet.ValueRange{Values: [][]any{header}}).
				ValueInputOption("RAW").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("write header of %s: %w", title, err)
			}
		}
		slog.InfoContext(ctx, "Sheet created", "title", title)
	}

	c.mu.Lock()
	c.sheets[title] = struct{}{}
	c.mu.Unlock()
	return nil
}

// isMissingSheet reports the error Sheets returns for a range on a sheet
// that does not exist yet.
func isMissingSheet(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 400 && strings.Contains(gerr.Message, "Unable to parse range")
}
