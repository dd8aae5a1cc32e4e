package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestReadAuditFileRows_Csv(t *testing.T) {
	csvContent := strings.Join([]string{
		"",
		"SLID,Interview Date,Score,Feedback",
		"SL-1,2026-03-01,90,ok",
		",,,",
		"SL-2,2026-03-02,85,\"slow, very slow\"",
		"SL-3,2026-03-03",
	}, "\n")

	rows, err := ReadAuditFileRows(strings.NewReader(csvContent), "audit.csv")
	if err != nil {
		t.Fatalf("ReadAuditFileRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want 3 (empty rows dropped)", len(rows))
	}

	if v, _ := rows[0].Get("SLID"); v != "SL-1" {
		t.Errorf("row 0 SLID = %q", v)
	}
	if v, _ := rows[1].Get("Feedback"); v != "slow, very slow" {
		t.Errorf("quoted field = %q", v)
	}
	// Short row is padded to the full header.
	if v, ok := rows[2].Get("Feedback"); !ok || v != "" {
		t.Errorf("short row must carry empty Feedback, got %q (ok=%v)", v, ok)
	}
	if len(rows[2]) != 4 {
		t.Errorf("padded row length = %d, want 4", len(rows[2]))
	}
}

func TestReadAuditFileRows_BlankHeaderCellsGetPlaceholders(t *testing.T) {
	csvContent := "SLID,,Score\nSL-1,x,90\n"

	rows, err := ReadAuditFileRows(strings.NewReader(csvContent), "audit.csv")
	if err != nil {
		t.Fatalf("ReadAuditFileRows failed: %v", err)
	}
	if v, ok := rows[0].Get("Column2"); !ok || v != "x" {
		t.Errorf("blank header must become Column2, got %q (ok=%v)", v, ok)
	}
}

func TestReadAuditFileRows_UnsupportedExtension(t *testing.T) {
	_, err := ReadAuditFileRows(strings.NewReader("x"), "audit.pdf")
	if !errors.Is(err, ErrUnreadableAuditFile) {
		t.Fatalf("err = %v, want ErrUnreadableAuditFile", err)
	}
}

func TestReadAuditFileRows_EmptyCsvIsBatchFatal(t *testing.T) {
	_, err := ReadAuditFileRows(strings.NewReader("\n\n"), "audit.csv")
	if !errors.Is(err, ErrUnreadableAuditFile) {
		t.Fatalf("err = %v, want ErrUnreadableAuditFile", err)
	}
}
