package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID is an identifier that may arrive as a JSON string or number.
// It always encodes as a string.
type FlexID string

// UnmarshalJSON accepts "5", 5 and null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}
