package iocontext

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetIO_Default(t *testing.T) {
	streams := GetIO(context.Background())
	if streams.Out != os.Stdout || streams.ErrOut != os.Stderr || streams.In != os.Stdin {
		t.Error("expected standard streams when none are set")
	}
}

func TestWithIO(t *testing.T) {
	out := &bytes.Buffer{}
	streams := &IO{Out: out, ErrOut: &bytes.Buffer{}, In: strings.NewReader("")}
	ctx := WithIO(context.Background(), streams)
	if GetIO(ctx) != streams {
		t.Error("expected the injected streams")
	}
}

func TestReadSource(t *testing.T) {
	streams := &IO{In: strings.NewReader(`{"from":"stdin"}`)}
	data, err := streams.ReadSource("-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"from":"stdin"}` {
		t.Errorf("got %q", data)
	}

	path := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err = streams.ReadSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"from":"file"}` {
		t.Errorf("got %q", data)
	}

	if _, err := streams.ReadSource(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
