package models

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// RawCell is one column of an uploaded audit row, kept exactly as parsed.
type RawCell struct {
	Key   string
	Value string
}

// RawRow is the opaque snapshot of one uploaded row. It preserves column
// order (column order carries meaning for human review) and the original,
// un-normalized values. Stored as longtext, not a JSON column: MySQL
// normalizes JSON documents on insert (keys sorted, duplicates dropped),
// which would destroy the column order and break hash verification.
type RawRow []RawCell

func (r RawRow) Get(key string) (string, bool) {
	for _, cell := range r {
		if cell.Key == key {
			return cell.Value, true
		}
	}
	return "", false
}

// ContentHash identifies a row by its content, independent of row position.
// Used as part of the (audit_id, slid, row_hash) uniqueness key.
func (r RawRow) ContentHash() string {
	h := sha256.New()
	for _, cell := range r {
		h.Write([]byte(cell.Key))
		h.Write([]byte{0})
		h.Write([]byte(cell.Value))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalJSON emits a JSON object whose member order follows the row's
// column order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cell := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cell.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(cell.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object member by member so insertion order
// survives the round trip (encoding/json maps would lose it).
func (r *RawRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("raw row must be a JSON object")
	}

	row := RawRow{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("raw row key must be a string")
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprintf("%t", v)
		case nil:
			value = ""
		default:
			return fmt.Errorf("raw row value for %q must be scalar", key)
		}
		row = append(row, RawCell{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = row
	return nil
}

func (r RawRow) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RawRow) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = RawRow{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into RawRow", value)
	}
}
