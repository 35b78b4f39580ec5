// Package assistant wraps the spawned code-assistant CLI child
// process: a subprocess that consumes newline-delimited JSON prompts
// on stdin and produces a newline-delimited JSON event stream on
// stdout. The CLI binary itself and its own auth are external
// concerns; this package only knows the wire shape.
package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// EventType discriminates the assistant's stdout event union.
type EventType string

const (
	EventSystem    EventType = "system"
	EventAssistant EventType = "assistant"
	EventToolUse   EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventResult    EventType = "result"
)

// ContentBlock is one entry of an assistant message's content array.
type ContentBlock struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Event is the decoded form of one stdout line. Only the fields
// relevant to Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// system
	Subtype            string `json:"subtype,omitempty"`
	AssistantSessionID string `json:"session_id,omitempty"`

	// assistant
	Message *struct {
		Content []ContentBlock `json:"content"`
	} `json:"message,omitempty"`

	// top-level tool_use (some assistant protocol versions emit this
	// instead of nesting it in an assistant message)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// result
	DurationMS   int64   `json:"duration_ms,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// Prompt is one stdin message. Content is either a plain string or a
// content-block array (for image attachments).
type Prompt struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ImageBlock is one element of a multi-part prompt's content array.
type ImageBlock struct {
	Type   string      `json:"type"`
	Source ImageSource `json:"source,omitempty"`
	Text   string      `json:"text,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// Process owns a running assistant subprocess.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr io.ReadCloser
	enc    *json.Encoder

	log zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Spawner constructs the exec.Cmd for a session, injecting the
// resume token when resuming a previously-seen assistant session. The
// default here matches common `<cli> --output-format stream-json
// --resume <id>` conventions and is overridable by callers that wrap
// a different CLI.
type Spawner func(ctx context.Context, workingDir string, resumeSessionID string) *exec.Cmd

// DefaultSpawner builds argv for a CLI named by binary, matching the
// convention `<binary> --print --input-format stream-json
// --output-format stream-json --verbose [--resume <id>]`.
func DefaultSpawner(binary string) Spawner {
	return func(ctx context.Context, workingDir, resumeSessionID string) *exec.Cmd {
		args := []string{"--print", "--input-format", "stream-json", "--output-format", "stream-json", "--verbose"}
		if resumeSessionID != "" {
			args = append(args, "--resume", resumeSessionID)
		}
		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Dir = workingDir
		return cmd
	}
}

// Start spawns the process.
func Start(ctx context.Context, spawn Spawner, workingDir, resumeSessionID string, log zerolog.Logger) (*Process, error) {
	cmd := spawn(ctx, workingDir, resumeSessionID)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("assistant: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("assistant: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("assistant: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("assistant: start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	// Tool output (diffs, file dumps) can produce very long lines.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	go drainStderr(stderr, log)

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: scanner,
		stderr: stderr,
		enc:    json.NewEncoder(stdin),
		log:    log,
	}, nil
}

func drainStderr(r io.Reader, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().Str("component", "assistant_stderr").Msg(scanner.Text())
	}
}

// Send writes one prompt as a newline-delimited JSON message.
func (p *Process) Send(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("assistant: process closed")
	}
	return p.enc.Encode(Prompt{Role: "user", Content: text})
}

// SendBlocks writes a multi-part prompt (text plus image blocks).
func (p *Process) SendBlocks(blocks []ImageBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("assistant: process closed")
	}
	return p.enc.Encode(Prompt{Role: "user", Content: blocks})
}

// Events returns a channel of decoded events; it closes when stdout
// hits EOF (the process exited) or a read error occurs. Malformed
// lines are logged and skipped on a best-effort basis.
func (p *Process) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for p.stdout.Scan() {
			line := p.stdout.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				p.log.Debug().Err(err).Msg("assistant: malformed event line, skipping")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Wait blocks until the process exits and returns its error, if any.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Close closes stdin, signalling the CLI to wind down. It does not
// wait for the process to exit and does not kill it; Kill does that.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.stdin.Close(); err != nil {
		p.log.Debug().Err(err).Msg("assistant: error closing stdin")
	}
	if p.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		select {
		case <-done:
		default:
			// best effort only; callers race this against their own
			// timeout and kill via cmd.Process.Kill() if needed.
		}
	}
	return nil
}

// Kill forcibly terminates the process.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
