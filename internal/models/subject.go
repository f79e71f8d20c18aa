package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Subject is a catalog entry. Name is the unique key; subjects are never
// mutated by enrollment workflows.
type Subject struct {
	Name          string      `db:"name" json:"name"`
	Credits       int         `db:"credits" json:"credits"`
	Prerequisites StringSlice `db:"prerequisites" json:"prerequisites"`
	Semester      int         `db:"semester" json:"semester"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Semester int
	Search   string
	Page     int
	PageSize int
}

// StringSlice stores a list of strings in a JSONB column.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
