// Package runner implements session.Runner: it is the orchestration
// layer that spawns/resumes the assistant process for a turn, wires a
// session's executors and dispatcher together the first time it sees
// that session, and feeds resolved interactives back in as the next
// queued prompt.
package runner

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/threadbridge/internal/assistant"
	"github.com/local/threadbridge/internal/dispatcher"
	"github.com/local/threadbridge/internal/executor"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/reaction"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/sticky"
	"github.com/local/threadbridge/internal/threadlog"
	"github.com/local/threadbridge/internal/toolformat"
	"github.com/local/threadbridge/internal/tracker"
)

// bundle is everything a live session needs beyond the Session struct
// itself, built once on first Run and reused across turns.
type bundle struct {
	dispatch *dispatcher.Dispatcher
	execs    reaction.Executors
	tlog     *threadlog.Logger
}

// Runner ties the assistant process, dispatcher and executors together
// for every session a platform's gateway submits work for.
type Runner struct {
	Tracker    *tracker.Tracker
	Sticky     *sticky.Manager
	Publisher  platform.Publisher
	Formatter  platform.Formatter
	Limits     platform.Limits
	ToolFormat *toolformat.Registry
	Spawner    assistant.Spawner
	WorkingDir string
	LogDir     string
	Manager    *session.Manager
	Log        zerolog.Logger

	mu      sync.Mutex
	bundles map[string]*bundle
}

// New builds a Runner. Manager is set after construction (via
// SetManager) because the Manager and Runner reference each other.
func New(tr *tracker.Tracker, sm *sticky.Manager, pub platform.Publisher, fmtr platform.Formatter, limits platform.Limits,
	toolFmt *toolformat.Registry, spawner assistant.Spawner, workingDir, logDir string, log zerolog.Logger) *Runner {
	return &Runner{
		Tracker: tr, Sticky: sm, Publisher: pub, Formatter: fmtr, Limits: limits,
		ToolFormat: toolFmt, Spawner: spawner, WorkingDir: workingDir, LogDir: logDir,
		Log: log, bundles: make(map[string]*bundle),
	}
}

// SetManager wires the Session Manager this Runner's resolved
// interactives re-submit prompts through.
func (r *Runner) SetManager(mgr *session.Manager) { r.Manager = mgr }

func (r *Runner) bundleFor(sess *session.Session) (*bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bundles[sess.SessionID]; ok {
		return b, nil
	}

	deps := executor.Deps{Publisher: r.Publisher, Formatter: r.Formatter, Limits: r.Limits}
	content := executor.NewContentExecutor(sess, r.Tracker, deps)
	tasks := executor.NewTaskListExecutor(sess, r.Tracker, r.Sticky, deps)
	interactive := executor.NewInteractiveExecutor(sess, r.Tracker, deps, r)
	subagent := executor.NewSubagentExecutor(sess, r.Tracker, deps)
	header := executor.NewSessionHeaderExecutor(sess, r.Tracker, deps)

	var tlog *threadlog.Logger
	if r.LogDir != "" {
		l, err := threadlog.Open(r.LogDir, sess.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("runner: open thread log: %w", err)
		}
		tlog = l
	}

	b := &bundle{
		dispatch: dispatcher.New(content, tasks, interactive, subagent, header, r.ToolFormat, r.Log),
		execs: reaction.Executors{
			TaskList: tasks, Interactive: interactive, Content: content, Subagent: subagent, Header: header,
		},
		tlog: tlog,
	}
	r.bundles[sess.SessionID] = b
	return b, nil
}

// Executors returns the reactable executor set for a live session, for
// the reaction router's lookup function.
func (r *Runner) Executors(sessionID string) (reaction.Executors, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[sessionID]
	if !ok {
		return reaction.Executors{}, false
	}
	return b.execs, true
}

// Run spawns a fresh assistant process for one turn (resuming the
// assistant's own conversation history via --resume when available)
// and streams its events through the session's dispatcher until the
// process exits.
func (r *Runner) Run(ctx context.Context, sess *session.Session, prompt string, files []platform.FileRef) {
	b, err := r.bundleFor(sess)
	if err != nil {
		r.Log.Error().Err(err).Str("session_id", sess.SessionID).Msg("runner: failed to build session bundle")
		return
	}

	var resumeID string
	sess.Do(func() { resumeID = sess.AssistantSessionID })

	proc, err := assistant.Start(ctx, r.Spawner, r.WorkingDir, resumeID, r.Log)
	if err != nil {
		r.Log.Error().Err(err).Str("session_id", sess.SessionID).Msg("runner: failed to spawn assistant")
		return
	}
	if b.tlog != nil {
		_ = b.tlog.Append(sess.SessionID, "prompt", prompt)
	}
	if err := r.send(ctx, proc, prompt, files); err != nil {
		r.Log.Error().Err(err).Msg("runner: failed to send prompt")
		proc.Kill()
		return
	}

	b.dispatch.Run(ctx, proc.Events(ctx))
	proc.Close()
}

// send writes prompt to the assistant process, downloading and
// attaching any file references as image blocks. A file that fails to
// download is skipped rather than failing the whole turn.
func (r *Runner) send(ctx context.Context, proc *assistant.Process, prompt string, files []platform.FileRef) error {
	if len(files) == 0 {
		return proc.Send(prompt)
	}
	blocks := []assistant.ImageBlock{{Type: "text", Text: prompt}}
	for _, f := range files {
		data, err := r.Publisher.DownloadFile(ctx, f.ID)
		if err != nil {
			r.Log.Warn().Err(err).Str("file_id", f.ID).Msg("runner: failed to download attachment, skipping")
			continue
		}
		blocks = append(blocks, assistant.ImageBlock{
			Type: "image",
			Source: assistant.ImageSource{
				Type:      "base64",
				MediaType: f.MimeType,
				Data:      base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	return proc.SendBlocks(blocks)
}

// Resolve implements executor.ResolutionSink: an interactive resolving
// becomes the next queued prompt for the session, driven through the
// same Manager.Submit path a user message would take.
func (r *Runner) Resolve(ctx context.Context, sessionID, text string) {
	if r.Manager == nil {
		return
	}
	sess, ok := r.Manager.Get(sessionID)
	if !ok {
		return
	}
	r.Manager.Submit(ctx, sess, text, nil, r)
}

// bugReport is the payload appended to the thread log when a user
// reacts with the bug-report emoji.
type bugReport struct {
	ReportID string `json:"report_id"`
	PostID   string `json:"post_id"`
	Kind     string `json:"post_kind"`
	User     string `json:"user"`
}

// ReportBug implements reaction.BugReporter: it logs a structured
// record of the post the user flagged and acknowledges in-thread. The
// log entry, not a ticket in some external tracker, is the artifact —
// turning that into a filed issue is left to whatever scrapes the
// thread log.
func (r *Runner) ReportBug(ctx context.Context, rec tracker.Record, user string) error {
	reportID := uuid.New().String()

	r.mu.Lock()
	b, ok := r.bundles[rec.SessionID]
	r.mu.Unlock()
	if ok && b.tlog != nil {
		_ = b.tlog.Append(rec.SessionID, "bug_report", bugReport{
			ReportID: reportID, PostID: rec.PostID, Kind: string(rec.Kind), User: user,
		})
	}

	ack := fmt.Sprintf("bug report %s filed against this message, thanks for flagging it", reportID)
	if _, err := r.Publisher.CreatePost(ctx, rec.ThreadID, ack); err != nil {
		return fmt.Errorf("runner: post bug report ack: %w", err)
	}
	return nil
}

// Finalize tears down every executor's open UI and closes the thread
// log. Called once, when the session terminates.
func (r *Runner) Finalize(ctx context.Context, sess *session.Session) {
	r.mu.Lock()
	b, ok := r.bundles[sess.SessionID]
	if ok {
		delete(r.bundles, sess.SessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, ex := range []executor.Executor{b.execs.Content, b.execs.TaskList, b.execs.Interactive, b.execs.Subagent, b.execs.Header} {
		if ex == nil {
			continue
		}
		if err := ex.Finalize(ctx); err != nil {
			r.Log.Warn().Err(err).Msg("runner: executor finalize failed")
		}
	}
	r.Tracker.ClearSession(sess.SessionID)
	if b.tlog != nil {
		_ = b.tlog.Close()
	}
}
