package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/outfmt"
)

// newTestCommand returns a command whose context carries buffered streams.
func newTestCommand(mode outfmt.Mode, query string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	ctx := iocontext.WithIO(context.Background(), &iocontext.IO{Out: &out, ErrOut: &errOut, In: strings.NewReader("")})
	ctx = outfmt.WithMode(ctx, mode)
	if query != "" {
		ctx = outfmt.WithQuery(ctx, query)
	}
	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(ctx)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func TestIsJSON(t *testing.T) {
	cmd, _, _ := newTestCommand(outfmt.JSON, "")
	if !isJSON(cmd) {
		t.Error("expected JSON mode")
	}
	cmd, _, _ = newTestCommand(outfmt.Text, "")
	if isJSON(cmd) {
		t.Error("expected text mode")
	}
}

func TestPrintJSON_AppliesQuery(t *testing.T) {
	cmd, out, _ := newTestCommand(outfmt.JSON, ".status")
	if err := printJSON(cmd, map[string]any{"status": 200, "data": "x"}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	if strings.TrimSpace(out.String()) != "200" {
		t.Errorf("expected filtered output, got %q", out.String())
	}
}

func TestRunE_TextError(t *testing.T) {
	cmd, _, errOut := newTestCommand(outfmt.Text, "")
	run := RunE(func(*cobra.Command, []string) error {
		return errors.New("boom")
	})

	err := run(cmd, nil)
	var handled *handledError
	if !errors.As(err, &handled) {
		t.Fatalf("expected handledError, got %T", err)
	}
	if err.Error() != "boom" {
		t.Errorf("handled error should keep the message, got %q", err.Error())
	}
	if handled.ExitCode() != exitGeneric {
		t.Errorf("exit code = %d, want %d", handled.ExitCode(), exitGeneric)
	}
	if !strings.Contains(errOut.String(), "Error: boom") {
		t.Errorf("expected message on stderr, got %q", errOut.String())
	}
}

func TestRunE_JSONError(t *testing.T) {
	cmd, out, errOut := newTestCommand(outfmt.JSON, "")
	run := RunE(func(*cobra.Command, []string) error {
		return httpErr(404)
	})

	err := run(cmd, nil)
	if ExitCode(err) != exitNotFound {
		t.Errorf("exit code = %d, want %d", ExitCode(err), exitNotFound)
	}
	if out.Len() != 0 {
		t.Errorf("errors should not go to stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), `"code": "not_found"`) {
		t.Errorf("expected structured error on stderr, got %q", errOut.String())
	}
}

func TestRunE_Success(t *testing.T) {
	cmd, _, errOut := newTestCommand(outfmt.Text, "")
	run := RunE(func(*cobra.Command, []string) error { return nil })
	if err := run(cmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errOut.Len() != 0 {
		t.Errorf("expected no stderr output, got %q", errOut.String())
	}
}
