package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/timeparse"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultMaxUploadBytes is the upload ceiling: 5 MiB.
	DefaultMaxUploadBytes = 5 * 1024 * 1024
	// DefaultBatchSize is the staging buffer size between flushes.
	DefaultBatchSize = 1000

	// Bytes sampled from the head of the file for delimiter sniffing.
	sniffSampleSize = 2048
)

// ErrFileTooLarge aborts the import before any row is processed.
var ErrFileTooLarge = errors.New("uploaded file exceeds the size ceiling")

// MissingHeadersError names every required column absent from the header row.
type MissingHeadersError struct {
	Columns []string
}

func (e *MissingHeadersError) Error() string {
	return fmt.Sprintf("missing required header(s): %s", strings.Join(e.Columns, ", "))
}

var requiredHeaders = []string{
	"Symbol",
	"Trade Type",
	"Entry DateTime",
	"Exit DateTime",
	"Entry Price",
	"Exit Price",
	"Trade Quantity",
}

// The commission column is optional and appears under either name.
var commissionHeaders = []string{"Commission (C)", "Commission"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options are the caller-supplied parameters of one import run.
// StartDate and EndDate, when set, form an inclusive filter on the entry
// date; rows outside the range are silently skipped, not counted as
// rejected. StrategyID must reference a strategy of the importing owner.
type Options struct {
	OwnerID    uint
	StrategyID *uint
	StartDate  *time.Time
	EndDate    *time.Time
}

// Summary is the outcome of one import run. Zero insertions, with or
// without rejections, is a reportable outcome, not an error.
type Summary struct {
	Inserted int `json:"rows_inserted"`
	Rejected int `json:"rows_rejected"`
}

// Importer is the CSV ingestion pipeline: delimiter detection, header
// validation, row-by-row parsing, fingerprinting and batched,
// deduplicated, transactional insertion into the trade ledger.
type Importer struct {
	db        *gorm.DB
	log       *zap.Logger
	parser    *timeparse.Parser
	maxBytes  int64
	batchSize int
}

// New creates an importer. Non-positive limits fall back to the defaults.
func New(db *gorm.DB, log *zap.Logger, parser *timeparse.Parser, maxBytes int64, batchSize int) *Importer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		db:        db,
		log:       log,
		parser:    parser,
		maxBytes:  maxBytes,
		batchSize: batchSize,
	}
}

// Import ingests one uploaded file of the given byte size for opts.OwnerID.
//
// Only request-level failures (file too large, missing headers, an
// unexpected database error) are returned; malformed rows are absorbed
// into Summary.Rejected and duplicate fingerprints are silently excluded.
// The whole run commits atomically: on error no row of this run persists.
func (imp *Importer) Import(ctx context.Context, r io.Reader, size int64, opts Options) (Summary, error) {
	if size > imp.maxBytes {
		return Summary{}, ErrFileTooLarge
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	delimiter := sniffDelimiter(br)

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // row widths are validated per row

	header, err := reader.Read()
	if err != nil {
		return Summary{}, &MissingHeadersError{Columns: requiredHeaders}
	}
	columns, err := mapHeader(header)
	if err != nil {
		return Summary{}, err
	}

	run := importRun{
		imp:     imp,
		opts:    opts,
		columns: columns,
		width:   len(header),
	}

	err = imp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// Structurally broken row (e.g. bare quote); drop it and go on.
				run.summary.Rejected++
				continue
			}
			if err := run.processRow(tx, row); err != nil {
				return err
			}
		}
		return run.flush(tx)
	})
	if err != nil {
		return Summary{}, err
	}

	imp.log.Info("CSV import finished",
		zap.Uint("owner_id", opts.OwnerID),
		zap.Int("rows_inserted", run.summary.Inserted),
		zap.Int("rows_rejected", run.summary.Rejected))
	return run.summary, nil
}

// importRun carries the per-request state of one import.
type importRun struct {
	imp     *Importer
	opts    Options
	columns map[string]int
	width   int

	buffer  []*models.Trade
	staged  map[string]struct{} // fingerprints staged in this run
	summary Summary
}

// field extracts and trims a named column from the row, or def when absent.
func (run *importRun) field(row []string, name, def string) string {
	idx, ok := run.columns[name]
	if !ok || idx >= len(row) {
		return def
	}
	return strings.TrimSpace(row[idx])
}

// processRow validates one data row and stages it for insertion. Invalid
// rows increment the rejected counter; a row outside the caller's date
// filter is skipped without counting. Only database errors abort the run.
func (run *importRun) processRow(tx *gorm.DB, row []string) error {
	if len(row) < run.width {
		run.summary.Rejected++
		return nil
	}

	parser := run.imp.parser

	symbol := strings.ToUpper(run.field(row, "Symbol", ""))
	dir, dirOK := journal.ParseDirection(run.field(row, "Trade Type", ""))
	entry, entryOK := parser.Parse(run.field(row, "Entry DateTime", ""))
	exit, exitOK := parser.Parse(run.field(row, "Exit DateTime", ""))

	if symbol == "" || !dirOK || !entryOK || !exitOK {
		run.summary.Rejected++
		return nil
	}

	if outOfRange(entry, run.opts.StartDate, run.opts.EndDate) {
		return nil
	}

	entryPrice, err1 := decimal.NewFromString(run.field(row, "Entry Price", ""))
	exitPrice, err2 := decimal.NewFromString(run.field(row, "Exit Price", ""))
	quantity, err3 := decimal.NewFromString(run.field(row, "Trade Quantity", ""))
	commission, err4 := decimal.NewFromString(run.commissionField(row))
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		run.summary.Rejected++
		return nil
	}

	hash := journal.Fingerprint(run.opts.OwnerID, run.opts.StrategyID,
		symbol, entry, exit, entryPrice, exitPrice, quantity, dir)

	trade, err := journal.NewTrade(journal.TradeParams{
		OwnerID:    run.opts.OwnerID,
		StrategyID: run.opts.StrategyID,
		Symbol:     symbol,
		Direction:  dir,
		Entry:      &entry,
		Exit:       &exit,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   quantity,
		Commission: commission,
		ImportHash: hash,
	})
	if err != nil {
		run.summary.Rejected++
		return nil
	}

	if run.staged == nil {
		run.staged = make(map[string]struct{})
	}
	if _, dup := run.staged[hash]; dup {
		// Same logical row earlier in this file; drop silently.
		return nil
	}
	run.staged[hash] = struct{}{}
	run.buffer = append(run.buffer, trade)

	if len(run.buffer) >= run.imp.batchSize {
		return run.flush(tx)
	}
	return nil
}

func (run *importRun) commissionField(row []string) string {
	for _, name := range commissionHeaders {
		if v := run.field(row, name, ""); v != "" {
			return v
		}
	}
	return "0"
}

// flush inserts the staged rows whose fingerprint is not already present
// for this owner. A unique-constraint conflict raised by a concurrent
// writer is folded into the duplicate case, never surfaced as a failure.
// The buffer is cleared whether or not every row was inserted.
func (run *importRun) flush(tx *gorm.DB) error {
	if len(run.buffer) == 0 {
		return nil
	}
	defer func() { run.buffer = run.buffer[:0] }()

	hashes := make([]string, len(run.buffer))
	for i, t := range run.buffer {
		hashes[i] = t.ImportHash
	}

	var existing []string
	err := tx.Model(&models.Trade{}).
		Where("user_id = ? AND import_hash IN ?", run.opts.OwnerID, hashes).
		Pluck("import_hash", &existing).Error
	if err != nil {
		return fmt.Errorf("failed to query existing fingerprints: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, h := range existing {
		known[h] = struct{}{}
	}

	var toInsert []*models.Trade
	for _, t := range run.buffer {
		if _, dup := known[t.ImportHash]; !dup {
			toInsert = append(toInsert, t)
		}
	}
	if len(toInsert) == 0 {
		return nil
	}

	err = tx.Create(&toInsert).Error
	if err == nil {
		run.summary.Inserted += len(toInsert)
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to insert trades: %w", err)
	}

	// A concurrent import won the race for at least one fingerprint.
	// Retry row by row, treating each conflict as "already present".
	for _, t := range toInsert {
		switch err := tx.Create(t).Error; {
		case err == nil:
			run.summary.Inserted++
		case errors.Is(err, gorm.ErrDuplicatedKey):
			run.imp.log.Debug("Skipping concurrently inserted trade",
				zap.Uint("owner_id", run.opts.OwnerID),
				zap.String("import_hash", t.ImportHash))
		default:
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}
	return nil
}

// outOfRange applies the caller's inclusive entry-date filter,
// comparing calendar days only.
func outOfRange(entry time.Time, start, end *time.Time) bool {
	day := dateOnly(entry)
	if start != nil && day.Before(dateOnly(*start)) {
		return true
	}
	if end != nil && day.After(dateOnly(*end)) {
		return true
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mapHeader builds the column index and verifies every required column
// is present, reporting all missing ones at once.
func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}

	var missing []string
	for _, name := range requiredHeaders {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingHeadersError{Columns: missing}
	}
	return columns, nil
}

// sniffDelimiter samples the head of the file and picks the most frequent
// candidate among tab, comma and semicolon, defaulting to tab. Candidates
// inside double-quoted fields do not count; a quoted header like
// "Price, Entry" must not tip a tab-separated file towards comma.
func sniffDelimiter(br *bufio.Reader) rune {
	sample, _ := br.Peek(sniffSampleSize)
	if line := bytes.IndexByte(sample, '\n'); line >= 0 {
		// Prefer deciding on the header line alone when we have one.
		sample = sample[:line]
	}

	counts := make(map[byte]int)
	inQuotes := false
	for _, b := range sample {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case '\t', ',', ';':
			if !inQuotes {
				counts[b]++
			}
		}
	}

	best := '\t'
	bestCount := 0
	for _, c := range []byte{'\t', ',', ';'} {
		if counts[c] > bestCount {
			best = rune(c)
			bestCount = counts[c]
		}
	}
	return best
}
