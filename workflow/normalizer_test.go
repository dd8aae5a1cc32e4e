package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qaudit_backend/models"
)

func TestNormalizeSlid(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  sl-1042 ", "SL1042"},
		{"SL1042", "SL1042"},
		{"sl 10.42", "SL1042"},
		{"SL_10-42", "SL1042"},
		{"   ", ""},
		{"---", ""},
	}
	for _, c := range cases {
		if got := NormalizeSlid(c.in); got != c.want {
			t.Errorf("NormalizeSlid(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeRow_Dvoc(t *testing.T) {
	raw := models.RawRow{
		{Key: "SLID", Value: " sl-1042 "},
		{Key: "Interview Date", Value: "2026-03-15"},
		{Key: "Evaluation Score", Value: "87.5%"},
		{Key: "Customer Feedback", Value: "  line keeps dropping  "},
	}

	row, err := NormalizeRow(raw, models.AuditTypeDvoc)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row.Slid != "SL1042" {
		t.Errorf("slid = %q, want SL1042", row.Slid)
	}
	if row.CustomerFeedback != "line keeps dropping" {
		t.Errorf("feedback = %q", row.CustomerFeedback)
	}
	if row.InterviewDate == nil {
		t.Fatal("interview date not parsed")
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !row.InterviewDate.Equal(want) {
		t.Errorf("interview date = %v, want %v", row.InterviewDate, want)
	}
	if row.EvaluationScore == nil || row.EvaluationScore.String() != "87.5" {
		t.Errorf("score = %v, want 87.5", row.EvaluationScore)
	}
}

func TestNormalizeRow_ReachSupervisorsAliases(t *testing.T) {
	// ReachSupervisors exports use different header spellings; matching is
	// case- and separator-insensitive.
	raw := models.RawRow{
		{Key: "supervisor_slid", Value: "sl7"},
		{Key: "CALL DATE", Value: "02/01/2026"},
		{Key: "Supervisor Score", Value: "91"},
		{Key: "Remark", Value: "escalated"},
	}

	row, err := NormalizeRow(raw, models.AuditTypeReachSupervisors)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row.Slid != "SL7" {
		t.Errorf("slid = %q, want SL7", row.Slid)
	}
	if row.InterviewDate == nil {
		t.Fatal("call date not parsed")
	}
	if got := row.InterviewDate.Format("2006-01-02"); got != "2026-01-02" {
		t.Errorf("call date = %s, want 2026-01-02", got)
	}
	if row.CustomerFeedback != "escalated" {
		t.Errorf("feedback = %q", row.CustomerFeedback)
	}
}

func TestNormalizeRow_EmptySlidKeepsSnapshot(t *testing.T) {
	raw := models.RawRow{
		{Key: "SLID", Value: " -- "},
		{Key: "Customer Feedback", Value: "no line id on form"},
	}

	row, err := NormalizeRow(raw, models.AuditTypeDvoc)
	if !errors.Is(err, ErrEmptySlid) {
		t.Fatalf("err = %v, want ErrEmptySlid", err)
	}
	if row == nil {
		t.Fatal("partial row must be returned with ErrEmptySlid")
	}
	if row.CustomerFeedback != "no line id on form" {
		t.Errorf("partial row lost feedback: %q", row.CustomerFeedback)
	}
	if len(row.Raw) != len(raw) {
		t.Errorf("raw snapshot lost cells: %d != %d", len(row.Raw), len(raw))
	}
}

func TestNormalizeRow_UnparsableDateAndScoreAreNil(t *testing.T) {
	raw := models.RawRow{
		{Key: "SLID", Value: "SL1"},
		{Key: "Date", Value: "next tuesday"},
		{Key: "Score", Value: "n/a"},
	}

	row, err := NormalizeRow(raw, models.AuditTypeDvoc)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row.InterviewDate != nil {
		t.Errorf("unparsable date should stay nil, got %v", row.InterviewDate)
	}
	if row.EvaluationScore != nil {
		t.Errorf("unparsable score should stay nil, got %v", row.EvaluationScore)
	}
}
