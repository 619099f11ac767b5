package cmd

import (
	"os"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/acto-dev/ajax/internal/config"
)

func TestMain(m *testing.M) {
	// Keep AJAX_OUTPUT from the shell out of the tests.
	_ = os.Setenv("AJAX_OUTPUT", "text")

	cleanup := config.SetOpenKeyring(func(cfg keyring.Config) (keyring.Keyring, error) {
		return keyring.NewArrayKeyring(nil), nil
	})
	retryWaitMin, retryWaitMax = time.Millisecond, 5*time.Millisecond

	code := m.Run()
	cleanup()
	os.Exit(code)
}
