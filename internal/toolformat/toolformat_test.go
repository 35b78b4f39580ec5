package toolformat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatFallsBackToToolNameWhenUnregistered(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, "SomeTool", r.Format("SomeTool", []byte(`{}`)))
}

func TestFormatUsesRegisteredFormatter(t *testing.T) {
	r := NewRegistry()
	r.Register("Greet", func(input json.RawMessage) string { return "hello" })
	require.Equal(t, "hello", r.Format("Greet", []byte(`{}`)))
}

func TestFormatFallsBackWhenFormatterReturnsEmpty(t *testing.T) {
	r := NewRegistry()
	r.Register("Noisy", func(input json.RawMessage) string { return "" })
	require.Equal(t, "Noisy", r.Format("Noisy", []byte(`{}`)))
}

func TestDefaultRegistryBash(t *testing.T) {
	r := NewDefaultRegistry()
	out := r.Format("Bash", []byte(`{"command":"go test ./..."}`))
	require.Equal(t, "go test ./...", out)
}

func TestDefaultRegistryRead(t *testing.T) {
	r := NewDefaultRegistry()
	out := r.Format("Read", []byte(`{"file_path":"main.go"}`))
	require.Equal(t, "reading main.go", out)
}

func TestDefaultRegistryGrepQuotesPattern(t *testing.T) {
	r := NewDefaultRegistry()
	out := r.Format("Grep", []byte(`{"pattern":"TODO"}`))
	require.Equal(t, `searching for "TODO"`, out)
}

func TestDefaultRegistryMalformedInputFallsBack(t *testing.T) {
	r := NewDefaultRegistry()
	out := r.Format("Write", []byte(`not json`))
	require.Equal(t, "Write", out)
}

func TestDefaultRegistryMissingFieldFallsBack(t *testing.T) {
	r := NewDefaultRegistry()
	out := r.Format("Edit", []byte(`{"other":"x"}`))
	require.Equal(t, "Edit", out)
}

func TestRegisterOverwritesPreviousFormatter(t *testing.T) {
	r := NewRegistry()
	r.Register("X", func(input json.RawMessage) string { return "first" })
	r.Register("X", func(input json.RawMessage) string { return "second" })
	require.Equal(t, "second", r.Format("X", nil))
}
