package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func small(dir string) []string {
	return []string{
		"--count", "1000",
		"--lazy-count", "10000",
		"--iterations", "10",
		"--factory-cost", "0s",
		"--log-level", "error",
		"--record", dir,
	}
}

func TestRunThenHistory(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, append([]string{"run"}, small(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "1. REFERENCE COUNTING DEMONSTRATION")
	assert.Contains(t, out, "Memory Management Analysis Complete")

	_, err = execute(t, small(dir)...)
	require.NoError(t, err)

	out, err = execute(t, "history", "--record", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Regexp(t, `(?m)^2\s+NEW`, out)
	assert.Regexp(t, `(?m)^1\s+NEW`, out)

	out, err = execute(t, "history", "--record", dir, "--limit", "1", "--json", "--log-level", "error")
	require.NoError(t, err)
	assert.Regexp(t, `"id":\s*"2"`, out)
	assert.Contains(t, out, "Object 'test' destroyed", "recorded reports keep their narration")
	assert.NotRegexp(t, `"id":\s*"1"`, out)
}

func TestHistoryNeedsRecord(t *testing.T) {
	_, err := execute(t, "history", "--log-level", "error")
	assert.ErrorContains(t, err, "--record")
}

func TestPublishNeedsRecord(t *testing.T) {
	_, err := execute(t, "run", "--publish", "localhost:9092", "--log-level", "error")
	assert.ErrorContains(t, err, "publishing needs --record")
}

func TestRejectsUnknownKafkaClient(t *testing.T) {
	_, err := execute(t, "run", "--kafka-client", "franz", "--log-level", "error")
	assert.ErrorContains(t, err, "unknown kafka client")
}
