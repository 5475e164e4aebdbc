// Package numbering provides the document number format and the domain
// contracts for period-scoped number allocation.
//
// A document number has the fixed-width shape PREFIX-YYYY-MM-NNNN,
// e.g. KTA-2025-07-0001. The format is part of the storage contract and
// must not change.
package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"docnum/internal/core/apperror"
)

const (
	// MaxSequence is the capacity of one period (four-digit field).
	MaxSequence = 9999

	// MaxPrefixLen bounds the literal prefix.
	MaxPrefixLen = 16
)

var (
	numberPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]{0,15})-(\d{4})-(\d{2})-(\d{4})$`)
	prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,15}$`)
)

// Period is the (year, month) partition that scopes a sequence space.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, apperror.NewValidation("period must look like YYYY-MM").
			WithDetail("period", s)
	}
	return PeriodOf(t), nil
}

// Valid reports whether the period can be encoded in a document number.
func (p Period) Valid() bool {
	return p.Year >= 0 && p.Year <= 9999 && p.Month >= 1 && p.Month <= 12
}

// String returns "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Number is a parsed document number.
type Number struct {
	Prefix   string
	Year     int
	Month    int
	Sequence int
}

// Period returns the partition the number belongs to.
func (n Number) Period() Period {
	return Period{Year: n.Year, Month: n.Month}
}

// String formats the number in its wire form.
func (n Number) String() string {
	return Format(n.Prefix, n.Year, n.Month, n.Sequence)
}

// Format renders PREFIX-YYYY-MM-NNNN. It performs no range checks;
// callers that accept outside input should run Validate on the result.
func Format(prefix string, year, month, sequence int) string {
	return fmt.Sprintf("%s-%04d-%02d-%04d", prefix, year, month, sequence)
}

// PeriodPrefix returns the literal "PREFIX-YYYY-MM-" shared by every number
// of the period. Storage layers use it as a LIKE prefix.
func PeriodPrefix(prefix string, p Period) string {
	return fmt.Sprintf("%s-%04d-%02d-", prefix, p.Year, p.Month)
}

// ValidPrefix reports whether prefix can be used in a document number.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

// MatchesShape reports whether s has the fixed-width layout only,
// without checking month or sequence ranges.
func MatchesShape(s string) bool {
	return numberPattern.MatchString(s)
}

// Parse decodes s. It returns false for anything Validate rejects.
// Month must be 01..12 and sequence 0001..9999: the allocator never
// emits anything else, so such rows are defects for the auditor.
func Parse(s string) (Number, bool) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return Number{}, false
	}

	// Groups are fixed-width digits, Atoi cannot fail.
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	seq, _ := strconv.Atoi(m[4])

	if month < 1 || month > 12 || seq < 1 || seq > MaxSequence {
		return Number{}, false
	}

	return Number{Prefix: m[1], Year: year, Month: month, Sequence: seq}, true
}

// Validate reports whether s is a well-formed document number.
func Validate(s string) bool {
	_, ok := Parse(s)
	return ok
}

// MustValidate returns a validation error for malformed input.
func MustValidate(s string) error {
	if !Validate(s) {
		return apperror.NewInvalidNumber(s)
	}
	return nil
}

// Codec is the format bound to one literal prefix.
type Codec struct {
	prefix string
}

// NewCodec creates a Codec for prefix.
func NewCodec(prefix string) (Codec, error) {
	if !ValidPrefix(prefix) {
		return Codec{}, apperror.NewValidation("invalid document number prefix").
			WithDetail("prefix", prefix)
	}
	return Codec{prefix: prefix}, nil
}

// Prefix returns the bound prefix.
func (c Codec) Prefix() string { return c.prefix }

// Parse decodes s and requires the bound prefix.
func (c Codec) Parse(s string) (Number, bool) {
	n, ok := Parse(s)
	if !ok || n.Prefix != c.prefix {
		return Number{}, false
	}
	return n, true
}

// Validate reports whether s is a well-formed number with the bound prefix.
func (c Codec) Validate(s string) bool {
	_, ok := c.Parse(s)
	return ok
}

// Format renders a number of the bound prefix.
func (c Codec) Format(p Period, sequence int) string {
	return Format(c.prefix, p.Year, p.Month, sequence)
}

// Canonical derives a record's number from its identity and creation time:
// PREFIX-{year(createdAt)}-{month(createdAt)}-{id:04}.
// The result depends only on immutable record fields, which is what the
// repairer relies on to avoid racing with live allocations.
func (c Codec) Canonical(id int64, createdAt time.Time) (string, error) {
	if id < 1 || id > MaxSequence {
		return "", apperror.NewValidation("record id does not fit the sequence field").
			WithDetail("id", id)
	}
	p := PeriodOf(createdAt)
	if !p.Valid() {
		return "", apperror.NewValidation("creation time outside encodable range").
			WithDetail("created_at", createdAt)
	}
	return c.Format(p, int(id)), nil
}
