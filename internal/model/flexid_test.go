package model

import (
	"encoding/json"
	"testing"
)

func TestFlexID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexID
		wantErr bool
	}{
		{"string", `"abc"`, "abc", false},
		{"number", `5`, "5", false},
		{"large number", `12345678901`, "12345678901", false},
		{"trimmed", `" 7 "`, "7", false},
		{"null", `null`, "", false},
		{"object", `{}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexID
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
