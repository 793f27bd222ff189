package sync

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Document is a generic column-keyed row snapshot. Change capture has to work
// uniformly for any tracked table, so payloads are dynamically typed rather
// than specialized per entity. Keys are database column names.
type Document map[string]any

// Value implements driver.Valuer, storing the document as JSON
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *Document) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into Document", value)
	}
}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// unwrap peels pointer indirection off a column value. GORM map scans hand
// back columns as *interface{}, so readers see the pointer, not the value.
func unwrap(raw any) any {
	for {
		switch v := raw.(type) {
		case *any:
			if v == nil {
				return nil
			}
			raw = *v
		case *string:
			if v == nil {
				return nil
			}
			raw = *v
		case *int64:
			if v == nil {
				return nil
			}
			raw = *v
		case *[]byte:
			if v == nil {
				return nil
			}
			raw = *v
		default:
			return raw
		}
	}
}

// UUID reads a UUID-valued column from the document. Missing, null, or
// malformed values return uuid.Nil and false.
func (d Document) UUID(key string) (uuid.UUID, bool) {
	raw, ok := d[key]
	if !ok {
		return uuid.Nil, false
	}
	raw = unwrap(raw)
	if raw == nil {
		return uuid.Nil, false
	}
	switch v := raw.(type) {
	case uuid.UUID:
		return v, true
	case *uuid.UUID:
		if v == nil {
			return uuid.Nil, false
		}
		return *v, true
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	default:
		return uuid.Nil, false
	}
}

// Int reads an integer-valued column, tolerating the numeric types JSON
// round-trips produce.
func (d Document) Int(key string) (int64, bool) {
	raw, ok := d[key]
	if !ok {
		return 0, false
	}
	raw = unwrap(raw)
	if raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
