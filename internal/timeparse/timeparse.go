package timeparse

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Layouts tried, in order, after the epoch and ISO-8601 attempts.
// First successful layout wins.
var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Markers some broker exports wrap around timestamp fields.
var decorativeMarkers = []string{"BP", "EP"}

// Parser normalizes loosely formatted datetime strings from CSV files and
// user input into instants in a single target timezone. Inputs that carry
// no offset are assumed to be in the target timezone, not UTC.
type Parser struct {
	loc *time.Location
	log *zap.Logger
}

// New creates a Parser bound to the given location. A nil location falls
// back to the process-local timezone, a nil logger to a no-op logger.
func New(loc *time.Location, log *zap.Logger) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{loc: loc, log: log}
}

// Location returns the target timezone all parsed instants are normalized to.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Coerce converts an already-structured instant into the target timezone.
func (p *Parser) Coerce(t time.Time) time.Time {
	return t.In(p.loc)
}

// Parse attempts to interpret value as a datetime. The boolean reports
// whether parsing succeeded; an empty or whitespace-only value is a miss,
// not an error. Failures are logged, never returned.
//
// Attempts, in order:
//  1. Unix epoch (magnitudes above 1e12 are milliseconds; non-finite and
//     implausibly large values are misses)
//  2. ISO-8601, tolerating a trailing 'Z' and a 'T' or space separator
//  3. the fixed layout list (with/without fractional seconds, date-only)
func (p *Parser) Parse(value string) (time.Time, bool) {
	s := clean(value)
	if s == "" {
		return time.Time{}, false
	}

	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		if t, ok := p.fromEpoch(epoch); ok {
			return t, true
		}
		p.log.Warn("Numeric datetime is not a plausible epoch", zap.String("value", s))
		return time.Time{}, false
	}

	if t, ok := p.parseISO(s); ok {
		return t.In(p.loc), true
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, true
		}
	}

	p.log.Warn("Could not parse datetime with any known format", zap.String("value", s))
	return time.Time{}, false
}

// maxEpochSeconds caps plausible timestamps at roughly the year 5000;
// anything further out is a data error, not a date.
const maxEpochSeconds = 1e11

// fromEpoch converts a numeric Unix timestamp, in seconds or milliseconds.
// NaN, infinities and out-of-range magnitudes are misses, never instants.
func (p *Parser) fromEpoch(epoch float64) (time.Time, bool) {
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return time.Time{}, false
	}
	if math.Abs(epoch) > 1e12 {
		epoch /= 1000.0
	}
	if math.Abs(epoch) > maxEpochSeconds {
		return time.Time{}, false
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).In(p.loc), true
}

// parseISO handles ISO-8601 inputs. Offset-carrying forms, whether 'T' or
// space separated, keep their instant; the naive 'T'-separated form is
// anchored in the target timezone.
func (p *Parser) parseISO(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, p.loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// clean strips decorative broker markers and collapses internal whitespace.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for _, marker := range decorativeMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	return strings.Join(strings.Fields(s), " ")
}
