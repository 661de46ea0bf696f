package generation

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence no newline", "```json{\"a\":1}```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"upper-case tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
		{"leading fence only", "```json\n{\"a\":1}", `{"a":1}`},
		{"trailing fence only", "{\"a\":1}\n```", `{"a":1}`},
		{"array", "```json\n[1,2]\n```", `[1,2]`},
		{"fence inside fence", "```json\n```{\"a\":1}\n```", `{"a":1}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`{"message":"Hi"}`,
		"```json\n{\"message\":\"Hi\"}\n```",
		"```\n{\"message\":\"Hi\"}\n```",
		"not json at all",
		"```json\n```{\"a\":1}\n```",
		"``` ```json\n{\"a\":1}\n``` ```",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeVariantsParseIdentically(t *testing.T) {
	payload := `{"message":"Hi! Tell me about REST.","questionType":"introduction","difficulty":"easy","expectsResponse":true}`
	variants := []string{
		payload,
		"```json\n" + payload + "\n```",
		"```\n" + payload + "\n```",
	}

	var want map[string]any
	if err := json.Unmarshal([]byte(payload), &want); err != nil {
		t.Fatal(err)
	}

	for _, v := range variants {
		var got map[string]any
		if err := json.Unmarshal([]byte(Normalize(v)), &got); err != nil {
			t.Fatalf("variant %q did not parse: %v", v, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("variant %q parsed to %v, want %v", v, got, want)
		}
	}
}
