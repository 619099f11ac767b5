package outfmt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestWithQuery(t *testing.T) {
	if GetQuery(context.Background()) != "" {
		t.Error("GetQuery should return empty string by default")
	}
	ctx := WithQuery(context.Background(), ".name")
	if GetQuery(ctx) != ".name" {
		t.Error("GetQuery should return the query set with WithQuery")
	}
}

func TestWriteJSONFiltered(t *testing.T) {
	data := map[string]string{"name": "test", "id": "123"}

	var buf bytes.Buffer
	if err := WriteJSONFiltered(&buf, data, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"id\"") {
		t.Errorf("expected indented output, got: %s", buf.String())
	}

	buf.Reset()
	if err := WriteJSONFiltered(&buf, data, ".name", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != `"test"` {
		t.Errorf("expected filtered output, got: %s", buf.String())
	}
}

func TestWriteJSONFiltered_InvalidQuery(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSONFiltered(&buf, map[string]string{"name": "test"}, "invalid[[[", false); err == nil {
		t.Error("expected error for invalid query")
	}
}

func TestWriteJSONFiltered_Compact(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"name": "test", "nested": map[string]int{"a": 1}}
	if err := WriteJSONFiltered(&buf, data, "", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "\n") {
		t.Errorf("compact output should be a single line, got: %s", out)
	}
	if !strings.Contains(out, `"name":"test"`) {
		t.Errorf("expected compact JSON, got: %s", out)
	}
}

func TestApplyQuery(t *testing.T) {
	data := []map[string]string{{"name": "alice"}, {"name": "bob"}}

	result, err := ApplyQuery(data, ".[1].name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "bob" {
		t.Errorf("expected 'bob', got %v", result)
	}

	unchanged, err := ApplyQuery(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := unchanged.([]map[string]string); !ok {
		t.Errorf("empty query should return the input, got %T", unchanged)
	}
}

func TestApplyQuery_RawMessageUnchanged(t *testing.T) {
	raw := json.RawMessage(`{"it":"literal","items":"canonical"}`)
	original := append([]byte(nil), raw...)

	result, err := ApplyQuery(raw, `.["it"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "literal" {
		t.Fatalf("expected literal lookup result, got %v", result)
	}
	if !bytes.Equal(raw, original) {
		t.Fatalf("raw JSON payload was mutated: got %s want %s", raw, original)
	}
}
