package workflow

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"github.com/shopspring/decimal"
)

// ErrEmptySlid marks a row whose SLID normalizes to nothing. Such rows are
// still written (and counted) as invalid entries rather than silently dropped.
var ErrEmptySlid = errors.New("row has no usable slid")

// NormalizedRow is the canonical shape of one audit row. Raw always retains
// the original, un-normalized values; normalization is non-destructive to the
// audit trail.
type NormalizedRow struct {
	Slid             string
	InterviewDate    *time.Time
	EvaluationScore  *decimal.Decimal
	CustomerFeedback string
	Raw              models.RawRow
}

// acceptedDateFormats is the fixed set of date layouts the audit families are
// known to export. Unparsable dates stay nil, never fatal.
var acceptedDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2-Jan-2006",
	"2 Jan 2006",
}

// columnAliases maps canonical fields to the header spellings each audit
// family is known to use. Matching is case- and separator-insensitive.
var columnAliases = map[models.AuditType]map[string][]string{
	models.AuditTypeDvoc: {
		"slid":     {"SLID", "Subscriber Line ID", "Line ID"},
		"date":     {"Interview Date", "Date"},
		"score":    {"Evaluation Score", "Score"},
		"feedback": {"Customer Feedback", "Feedback"},
	},
	models.AuditTypeReachSupervisors: {
		"slid":     {"SLID", "Subscriber Line", "Supervisor SLID"},
		"date":     {"Call Date", "Interview Date", "Date"},
		"score":    {"Score", "Supervisor Score", "Evaluation"},
		"feedback": {"Feedback", "Comments", "Remark"},
	},
}

// NormalizeSlid trims whitespace, uppercases and strips non-alphanumeric
// separators. The result is the join key for candidate matching.
func NormalizeSlid(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeRow turns one raw row into its canonical record shape. On an
// empty normalized SLID it returns the partial row together with ErrEmptySlid
// so the caller can record the failure without losing the snapshot.
func NormalizeRow(raw models.RawRow, auditType models.AuditType) (*NormalizedRow, error) {
	aliases := columnAliases[auditType]

	row := &NormalizedRow{Raw: raw}
	row.Slid = NormalizeSlid(lookupCell(raw, aliases["slid"]))
	row.CustomerFeedback = strings.TrimSpace(lookupCell(raw, aliases["feedback"]))

	if dateStr := strings.TrimSpace(lookupCell(raw, aliases["date"])); dateStr != "" {
		for _, layout := range acceptedDateFormats {
			if parsed, err := time.Parse(layout, dateStr); err == nil {
				utc := parsed.UTC()
				row.InterviewDate = &utc
				break
			}
		}
	}

	if scoreStr := strings.TrimSpace(lookupCell(raw, aliases["score"])); scoreStr != "" {
		scoreStr = strings.TrimSuffix(scoreStr, "%")
		if score, err := decimal.NewFromString(scoreStr); err == nil {
			row.EvaluationScore = &score
		}
	}

	if row.Slid == "" {
		return row, ErrEmptySlid
	}
	return row, nil
}

func lookupCell(raw models.RawRow, headers []string) string {
	for _, cell := range raw {
		key := normalizeHeader(cell.Key)
		for _, header := range headers {
			if key == normalizeHeader(header) {
				return cell.Value
			}
		}
	}
	return ""
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
