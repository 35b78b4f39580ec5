// Package session implements the Session Manager and the per-thread
// Session data model: the state machine owning the binding between a
// chat thread, its assistant process, and its tracked posts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/sticky"
)

// State is a node in the session lifecycle state machine.
type State int

const (
	StateSpawning State = iota
	StateRunning
	StateIdle
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// PlanApproval is a pending plan-approval interactive.
type PlanApproval struct {
	PostID string
	Plan   string
}

// Question is a pending numbered-question interactive.
type Question struct {
	PostID  string
	Text    string
	Options []string
}

// Permission is a pending tool-permission interactive.
type Permission struct {
	PostID   string
	ToolName string
	Input    string
}

// MessageApproval is a pending non-ACL-user message approval.
type MessageApproval struct {
	PostID         string
	BufferedUser   string
	BufferedText   string
}

// QueuedPrompt is one FIFO-queued turn: the triggering message's text
// plus any file attachments it carried.
type QueuedPrompt struct {
	Text  string
	Files []platform.FileRef
}

// Session is the per-thread runtime state. All mutable fields must
// only be touched from within a closure submitted via Do — this
// serializes every mutation through the session's own single-threaded
// reactor goroutine, which owns all state, instead of guarding each
// field with its own lock.
type Session struct {
	// identity — immutable after construction.
	SessionID    string // platform-id + ":" + thread-id
	PlatformID   string
	ThreadID     string
	StartedBy    string

	AllowedUsers map[string]bool

	AssistantSessionID string

	// runtime
	State        State
	PromptQueue  []QueuedPrompt
	LastActivity time.Time

	// content state
	CurrentPostID      string // empty means no current post
	CurrentPostContent string
	PendingContent     string

	// task state
	TasksPostID         string
	LastTasks           []op.TaskItem
	TasksCompleted      bool
	TasksMinimized      bool
	InProgressTaskStart time.Time // zero means not set

	// pending interactives — at most one of each kind (invariant 1).
	PendingPlanApproval    *PlanApproval
	PendingQuestion        *Question
	PendingPermission      *Permission
	PendingMessageApproval *MessageApproval

	// per-session allow-list populated by "approve-all" on a permission prompt.
	AllowedTools map[string]bool

	// tool-use-id -> executor kind owning that tool's display, so
	// tool_result events route to the right place even when multiple
	// tool_use events are open concurrently.
	ToolUseCorrelation map[string]string

	StickyLock *sticky.Lock

	Cancelled bool

	work chan func()
	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Session and starts its reactor goroutine.
func New(platformID, threadID, startedBy string) *Session {
	s := &Session{
		SessionID:          platformID + ":" + threadID,
		PlatformID:         platformID,
		ThreadID:           threadID,
		StartedBy:          startedBy,
		AllowedUsers:       map[string]bool{startedBy: true},
		AllowedTools:       make(map[string]bool),
		ToolUseCorrelation: make(map[string]string),
		State:              StateSpawning,
		LastActivity:       time.Now(),
		StickyLock:         sticky.NewLock(),
		work:               make(chan func(), 64),
		stop:               make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.stop:
			// drain any already-queued work before exiting so
			// in-flight Do() callers don't block forever.
			for {
				select {
				case fn := <-s.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Do runs fn on the session's reactor goroutine and blocks until it
// completes. Safe to call concurrently from multiple goroutines
// (dispatcher, reaction router, sticky manager) — calls queue in
// arrival order.
func (s *Session) Do(fn func()) {
	done := make(chan struct{})
	select {
	case s.work <- func() { fn(); close(done) }:
		<-done
	case <-s.stop:
	}
}

// Close stops the reactor goroutine after draining queued work.
func (s *Session) Close() {
	select {
	case <-s.stop:
		// already closed
	default:
		close(s.stop)
	}
	s.wg.Wait()
}

// Touch marks recent activity, used by the idle-timeout sweep.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// IsUserAllowed reports whether user may interact with this session:
// started-by or a session-level allowed user. The platform-wide check
// is the caller's responsibility (it doesn't belong to a single
// session).
func (s *Session) IsUserAllowed(user string) bool {
	if user == s.StartedBy {
		return true
	}
	return s.AllowedUsers[user]
}

// EnqueuePrompt appends to the FIFO prompt queue used while Running,
// so a prompt submitted mid-turn waits for the current one to finish.
func (s *Session) EnqueuePrompt(text string, files []platform.FileRef) {
	s.PromptQueue = append(s.PromptQueue, QueuedPrompt{Text: text, Files: files})
}

// DequeuePrompt pops the next queued prompt, if any.
func (s *Session) DequeuePrompt() (QueuedPrompt, bool) {
	if len(s.PromptQueue) == 0 {
		return QueuedPrompt{}, false
	}
	p := s.PromptQueue[0]
	s.PromptQueue = s.PromptQueue[1:]
	return p, true
}

// Context returns context.Background(), which is never cancelled;
// sessions don't carry a long-lived context themselves since their
// lifetime is managed externally by the SessionManager.
func (s *Session) Context() context.Context {
	return context.Background()
}
