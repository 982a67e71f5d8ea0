// Package jsonutil provides JSON helpers for JSONB columns and export payloads.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// MustJSON marshals v for storage in a JSONB column. A nil value becomes an
// empty object. The domain types stored this way always marshal; a failure is
// a programming error and panics.
func MustJSON(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("jsonutil: marshal %T: %v", v, err))
	}
	return b
}

// ParseJSON unmarshals a JSONB column value into target. Empty input leaves
// target at its zero value, matching a column that defaulted to '{}'.
func ParseJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// MustMarshalIndent marshals v pretty-printed, for export documents meant to
// be read and edited by hand. Panics on marshal failure like MustJSON.
func MustMarshalIndent(v any) []byte {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("jsonutil: marshal %T: %v", v, err))
	}
	return b
}
