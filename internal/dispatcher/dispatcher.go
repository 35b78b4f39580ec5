// Package dispatcher implements the Stream Dispatcher: it reads the
// assistant process's decoded event stream and turns it into the
// typed Ops the executors understand, batching text deltas behind a
// debounce timer so a token-by-token stream doesn't turn into a
// post-edit-per-token flood.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/threadbridge/internal/assistant"
	"github.com/local/threadbridge/internal/executor"
	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/toolformat"
)

// DefaultFlushInterval is how often buffered assistant text is handed
// to the content executor when the stream itself doesn't provide a
// natural break (a tool call, or the turn ending).
const DefaultFlushInterval = 400 * time.Millisecond

// Dispatcher wires one session's assistant event stream to its
// executors.
type Dispatcher struct {
	Content     *executor.ContentExecutor
	Tasks       *executor.TaskListExecutor
	Interactive *executor.InteractiveExecutor
	Subagent    *executor.SubagentExecutor
	Header      *executor.SessionHeaderExecutor
	ToolFormat  *toolformat.Registry

	FlushInterval time.Duration
	log           zerolog.Logger

	textBuf strings.Builder
}

// New builds a Dispatcher from a session's executor set.
func New(content *executor.ContentExecutor, tasks *executor.TaskListExecutor, interactive *executor.InteractiveExecutor,
	subagent *executor.SubagentExecutor, header *executor.SessionHeaderExecutor, toolFmt *toolformat.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Content: content, Tasks: tasks, Interactive: interactive, Subagent: subagent, Header: header,
		ToolFormat: toolFmt, FlushInterval: DefaultFlushInterval, log: log,
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan assistant.Event) {
	ticker := time.NewTicker(d.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.flushText(ctx)
				return
			}
			d.handleEvent(ctx, ev)
		case <-ticker.C:
			d.flushText(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev assistant.Event) {
	switch ev.Type {
	case assistant.EventSystem:
		if ev.Subtype == "init" {
			d.exec(ctx, d.Header, op.Op{Kind: op.KindSessionStarted, AssistantSessionID: ev.AssistantSessionID})
		}
	case assistant.EventAssistant:
		if ev.Message == nil {
			return
		}
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				d.textBuf.WriteString(block.Text)
			case "tool_use":
				d.flushText(ctx)
				d.routeToolUse(ctx, block)
			}
		}
	case assistant.EventToolUse:
		d.flushText(ctx)
		d.routeToolUse(ctx, assistant.ContentBlock{ID: ev.ID, Name: ev.Name, Input: ev.Input})
	case assistant.EventToolResult:
		d.routeToolResult(ctx, ev)
	case assistant.EventResult:
		d.flushText(ctx)
	}
}

func (d *Dispatcher) flushText(ctx context.Context) {
	if d.textBuf.Len() == 0 {
		return
	}
	text := d.textBuf.String()
	d.textBuf.Reset()
	d.exec(ctx, d.Content, op.Op{Kind: op.KindAddContent, Text: text})
}

func (d *Dispatcher) routeToolUse(ctx context.Context, block assistant.ContentBlock) {
	switch block.Name {
	case "TodoWrite":
		tasks, err := parseTodoWrite(block.Input)
		if err != nil {
			d.log.Debug().Err(err).Msg("dispatcher: malformed TodoWrite input")
			return
		}
		action := op.TaskListUpdate
		if allComplete(tasks) {
			action = op.TaskListComplete
		}
		d.exec(ctx, d.Tasks, op.Op{Kind: op.KindTaskList, TaskAction: action, Tasks: tasks})
	case "Task":
		name, _ := jsonStringField(block.Input, "description")
		d.exec(ctx, d.Subagent, op.Op{Kind: op.KindSubagentStart, SubagentID: block.ID, SubagentName: name})
	case "ExitPlanMode":
		plan, _ := jsonStringField(block.Input, "plan")
		d.exec(ctx, d.Interactive, op.Op{Kind: op.KindPlanApproval, Plan: plan})
	default:
		label := block.Name
		if d.ToolFormat != nil {
			label = d.ToolFormat.Format(block.Name, block.Input)
		}
		d.textBuf.WriteString(fmt.Sprintf("\n  ↳ %s\n", label))
	}
}

func (d *Dispatcher) routeToolResult(ctx context.Context, ev assistant.Event) {
	mark := "✓"
	if ev.IsError {
		mark = "❌"
	}
	d.textBuf.WriteString(fmt.Sprintf("  ↳ %s\n", mark))
	d.flushText(ctx)
}

// exec runs an executor's Execute, logging failures instead of
// propagating them: one bad post call shouldn't tear down the whole
// stream, since the assistant process keeps running regardless.
func (d *Dispatcher) exec(ctx context.Context, ex executor.Executor, o op.Op) {
	if ex == nil {
		return
	}
	if err := ex.Execute(ctx, o); err != nil {
		d.log.Error().Err(err).Int("op_kind", int(o.Kind)).Msg("dispatcher: executor failed")
	}
}

func parseTodoWrite(raw json.RawMessage) ([]op.TaskItem, error) {
	var payload struct {
		Todos []op.TaskItem `json:"todos"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload.Todos, nil
}

func allComplete(tasks []op.TaskItem) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != op.TaskCompleted {
			return false
		}
	}
	return true
}

func jsonStringField(raw json.RawMessage, field string) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	v, ok := m[field]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", err
	}
	return s, nil
}
