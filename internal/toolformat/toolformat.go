// Package toolformat is a pluggable registry of per-tool display
// formatters, keyed by tool name. The dispatcher falls back to a
// generic rendering for any tool name with no registered formatter.
package toolformat

import (
	"encoding/json"
	"fmt"
)

// Func renders a tool_use's raw input into a short, human-readable
// one-liner for the content stream's tool marker.
type Func func(input json.RawMessage) string

// Registry maps tool name to its display formatter.
type Registry struct {
	formatters map[string]Func
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Func)}
}

// Register installs fn as the formatter for toolName, overwriting any
// previous registration.
func (r *Registry) Register(toolName string, fn Func) {
	r.formatters[toolName] = fn
}

// Format renders input via the registered formatter for toolName, or
// a generic "name" fallback when none is registered.
func (r *Registry) Format(toolName string, input json.RawMessage) string {
	if fn, ok := r.formatters[toolName]; ok {
		if s := fn(input); s != "" {
			return s
		}
	}
	return toolName
}

// NewDefaultRegistry registers formatters for the handful of tool
// names common across code-assistant CLIs, matching the shapes their
// stream-json protocols actually emit.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("Bash", fieldFormatter("command", "%s"))
	r.Register("Read", fieldFormatter("file_path", "reading %s"))
	r.Register("Write", fieldFormatter("file_path", "writing %s"))
	r.Register("Edit", fieldFormatter("file_path", "editing %s"))
	r.Register("Grep", fieldFormatter("pattern", "searching for %q"))
	r.Register("Glob", fieldFormatter("pattern", "listing %s"))
	return r
}

func fieldFormatter(field, format string) Func {
	return func(input json.RawMessage) string {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(input, &m); err != nil {
			return ""
		}
		raw, ok := m[field]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return fmt.Sprintf(format, s)
	}
}
