package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestRawRow_JSONRoundTripPreservesOrder(t *testing.T) {
	row := RawRow{
		{Key: "Zulu", Value: "1"},
		{Key: "Alpha", Value: "2"},
		{Key: "Mike", Value: ""},
	}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"Zulu":"1","Alpha":"2","Mike":""}` {
		t.Errorf("marshal lost column order: %s", b)
	}

	var back RawRow
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(back) != len(row) {
		t.Fatalf("round trip lost cells: %d != %d", len(back), len(row))
	}
	for i := range row {
		if back[i] != row[i] {
			t.Errorf("cell %d = %+v, want %+v", i, back[i], row[i])
		}
	}
}

func TestRawRow_UnmarshalScalarCoercion(t *testing.T) {
	// Hand-edited or upstream JSON may carry numbers and booleans; they are
	// kept as their literal text.
	var row RawRow
	if err := json.Unmarshal([]byte(`{"Score":87.5,"Flag":true,"Empty":null}`), &row); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, _ := row.Get("Score"); v != "87.5" {
		t.Errorf("Score = %q, want 87.5", v)
	}
	if v, _ := row.Get("Flag"); v != "true" {
		t.Errorf("Flag = %q, want true", v)
	}
	if v, ok := row.Get("Empty"); !ok || v != "" {
		t.Errorf("Empty = %q (ok=%v), want empty string", v, ok)
	}
}

func TestRawRow_ContentHash(t *testing.T) {
	a := RawRow{{Key: "SLID", Value: "SL1"}, {Key: "Score", Value: "90"}}
	same := RawRow{{Key: "SLID", Value: "SL1"}, {Key: "Score", Value: "90"}}
	changed := RawRow{{Key: "SLID", Value: "SL1"}, {Key: "Score", Value: "91"}}
	reordered := RawRow{{Key: "Score", Value: "90"}, {Key: "SLID", Value: "SL1"}}

	if a.ContentHash() != same.ContentHash() {
		t.Error("identical rows must hash equal")
	}
	if a.ContentHash() == changed.ContentHash() {
		t.Error("changed cell value must change the hash")
	}
	if a.ContentHash() == reordered.ContentHash() {
		t.Error("column order is part of row identity")
	}
}

func TestRawRow_StoredAsPlainText(t *testing.T) {
	// A MySQL JSON column normalizes documents on insert: keys re-sorted,
	// duplicate keys dropped. The snapshot would come back re-ordered and its
	// recomputed content hash would no longer match the stored row_hash.
	field, ok := reflect.TypeOf(AuditRecord{}).FieldByName("RawRowData")
	if !ok {
		t.Fatal("AuditRecord has no RawRowData field")
	}
	tag := field.Tag.Get("gorm")
	if strings.Contains(tag, "type:json") {
		t.Fatalf("raw_row_data must not use a JSON column type, tag = %q", tag)
	}
	if !strings.Contains(tag, "type:longtext") {
		t.Fatalf("raw_row_data must be stored as longtext, tag = %q", tag)
	}
}

func TestRawRow_ContentHashKeyValueBoundary(t *testing.T) {
	// {"ab": "c"} and {"a": "bc"} must not collide.
	a := RawRow{{Key: "ab", Value: "c"}}
	b := RawRow{{Key: "a", Value: "bc"}}
	if a.ContentHash() == b.ContentHash() {
		t.Error("hash must separate key and value bytes")
	}
}
