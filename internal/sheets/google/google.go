package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finex/internal/log"
	ports "finex/internal/sheets"
)

// header is written to every newly created yearly sheet.
var header = []any{"ID", "Pengguna", "Tanggal", "Tipe", "Kategori", "Catatan", "Jumlah"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the sheet name without year (e.g. "Transaksi"); rows go
	// to "<year> <base>" by transaction date.
	sheetBase string
	logger    *log.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// Ensure interface conformance
var _ ports.LedgerExporter = (*Client)(nil)

// Options configures the Sheets client. One of CredentialsJSON or
// CredentialsFile is required.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Logger          *log.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Transaksi"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := loadCredentials(opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet", spreadsheetID, "sheet_base", base)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		logger:        logger,
		sheetIDs:      make(map[string]int64),
	}, nil
}

func loadCredentials(inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Upsert writes the row into the sheet for the transaction's year,
// overwriting the existing line for the same transaction. Moving a line out
// of another year's sheet is the caller's job.
func (c *Client) Upsert(ctx context.Context, r ports.Row) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, r.Date.Year())
	if _, err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	rowNum, total, err := c.findRow(ctx, sheet, r.Principal, r.TransactionID)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		// row 1 is the header
		rowNum = max(total+1, 2)
	}

	rng := a1(sheet, fmt.Sprintf("A%d:G%d", rowNum, rowNum))
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(r)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}

	c.logger.DebugContext(ctx, "Exported transaction",
		log.FieldTransactionID, r.TransactionID,
		log.FieldPrincipal, r.Principal,
		"range", rng)
	return nil
}

// Delete removes the line for the transaction from the sheet of date's
// year. A missing sheet or line is not an error.
func (c *Client) Delete(ctx context.Context, principal, transactionID string, date time.Time) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if date.IsZero() {
		date = time.Now()
	}
	sheet := yearPrefixedName(c.sheetBase, date.Year())

	sheetID, ok, err := c.lookupSheet(ctx, sheet)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	rowNum, _, err := c.findRow(ctx, sheet, principal, transactionID)
	if err != nil || rowNum == 0 {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowNum - 1),
					EndIndex:   int64(rowNum),
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", rowNum, sheet, err)
	}
	return nil
}

// findRow returns the 1-based row holding the transaction (0 when absent)
// and the number of rows currently in use.
func (c *Client) findRow(ctx context.Context, sheet, principal, id string) (int, int, error) {
	rng := a1(sheet, "A:B")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	return matchRow(resp.Values, principal, id), len(resp.Values), nil
}

// ensureSheet returns the sheet id, creating the sheet with a header row
// when it does not exist yet.
func (c *Client) ensureSheet(ctx context.Context, name string) (int64, error) {
	id, ok, err := c.lookupSheet(ctx, name)
	if err != nil || ok {
		return id, err
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", name, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", name)
	}
	id = resp.Replies[0].AddSheet.Properties.SheetId

	rng := a1(name, "A1:G1")
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("write header to %s: %w", name, err)
	}

	c.mu.Lock()
	c.sheetIDs[name] = id
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Created export sheet", "sheet", name)
	return id, nil
}

func (c *Client) lookupSheet(ctx context.Context, name string) (int64, bool, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[name]
	c.mu.Unlock()
	if ok {
		return id, true, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read spreadsheet: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[name]
	return id, ok, nil
}

// a1 builds an A1 range, quoting the sheet name since yearly names contain
// a space.
func a1(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
