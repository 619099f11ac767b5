package cmd

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"version"}))
	})
	assert.Equal(t, "ajax version dev", strings.TrimSpace(output))
}

func TestVersionCommand_JSON(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"version", "-o", "json"}))
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &payload))
	assert.Equal(t, "dev", payload["version"])
	assert.Nil(t, payload["update"], "update should be null without --check")
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))

	stderr, err := runForError(t, "version", "extra")
	require.Error(t, err)
	assert.Equal(t, exitUsage, ExitCode(err))
	assert.Contains(t, stderr, "unknown command")
}
