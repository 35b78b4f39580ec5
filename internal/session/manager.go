package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/platform"
)

// DefaultIdleTimeout is how long a session may sit idle before the
// reaper considers it for termination. 30 minutes is a reasonable
// default for an interactive coding session; overridable via
// Manager.IdleTimeout.
const DefaultIdleTimeout = 30 * time.Minute

// Runner is the collaborator that actually spawns/resumes the
// assistant process and drives its event stream into executors. The
// Session Manager only owns lifecycle bookkeeping; Runner is
// implemented by the orchestration layer that wires together the
// assistant, dispatcher and executors for a session.
type Runner interface {
	// Run spawns (or resumes) the assistant process for sess, sends
	// prompt, and processes the resulting event stream until that
	// turn is over. Manager.Submit then runs any prompts queued in the
	// meantime through further Run calls, and transitions the session
	// back to Idle once the queue is empty.
	Run(ctx context.Context, sess *Session, prompt string, files []platform.FileRef)

	// Finalize flushes pending content and tears down non-completed
	// sticky posts. Called on Terminating. It does not stop an
	// assistant process that is still running a turn.
	Finalize(ctx context.Context, sess *Session)
}

// Manager is the Session Manager: per-thread lifecycle and the
// registry of live sessions.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	IdleTimeout time.Duration

	idleReaper func(sess *Session)

	stop chan struct{}
	wg   sync.WaitGroup
}

// SetIdleReaper registers the callback the idle sweep invokes for
// each session it finds expired. The orchestration layer sets this
// once at startup, since Manager itself holds no reference to a
// default Runner to terminate against.
func (m *Manager) SetIdleReaper(fn func(sess *Session)) {
	m.mu.Lock()
	m.idleReaper = fn
	m.mu.Unlock()
}

// NewManager creates a Manager and starts its idle-timeout sweep.
func NewManager() *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		IdleTimeout: DefaultIdleTimeout,
		stop:        make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// GetOrCreate returns the existing session for sessionID, or creates
// one started by startedBy.
func (m *Manager) GetOrCreate(platformID, threadID, startedBy string) (sess *Session, created bool) {
	id := platformID + ":" + threadID
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := New(platformID, threadID, startedBy)
	m.sessions[id] = s
	return s, true
}

// Get looks up a live session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// All returns a snapshot of every live session.
func (m *Manager) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// remove drops sessionID from the registry.
func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Submit implements the Spawning/Running/Idle transitions for a new
// user prompt. If the session is already
// Running, prompt is appended to the FIFO queue and Submit returns
// immediately — the goroutine running the current turn runs it next,
// once that turn's Run call returns. Otherwise Submit transitions to
// Running and starts runner.Run in a new goroutine, which keeps
// running queued prompts in FIFO order and flips back to Idle when
// the queue is empty.
func (m *Manager) Submit(ctx context.Context, sess *Session, prompt string, files []platform.FileRef, runner Runner) {
	var shouldStart bool
	sess.Do(func() {
		sess.Touch()
		if sess.State == StateRunning {
			sess.EnqueuePrompt(prompt, files)
			return
		}
		sess.State = StateRunning
		shouldStart = true
	})
	if !shouldStart {
		return
	}
	go func() {
		next := QueuedPrompt{Text: prompt, Files: files}
		for {
			runner.Run(ctx, sess, next.Text, next.Files)
			more := false
			sess.Do(func() {
				sess.Touch()
				if sess.State != StateRunning {
					return
				}
				if next, more = sess.DequeuePrompt(); !more {
					sess.State = StateIdle
				}
			})
			if !more {
				return
			}
		}
	}()
}

// Terminate drives a session through Terminating -> absent: it runs
// runner.Finalize, closes the session's reactor, and removes it from
// the registry. Safe to call more than once; subsequent calls are
// no-ops once the session has left the registry.
func (m *Manager) Terminate(ctx context.Context, sess *Session, runner Runner) {
	m.mu.Lock()
	live := m.sessions[sess.SessionID] == sess
	m.mu.Unlock()
	if !live {
		return
	}
	var alreadyTerminating bool
	sess.Do(func() {
		if sess.State == StateTerminating {
			alreadyTerminating = true
			return
		}
		sess.State = StateTerminating
		sess.Cancelled = true
	})
	if alreadyTerminating {
		return
	}
	runner.Finalize(ctx, sess)
	m.remove(sess.SessionID)
	sess.Close()
}

// Shutdown stops the idle sweep. It does not terminate live sessions
// — callers that want a clean shutdown should Terminate each one
// first.
func (m *Manager) Shutdown() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	for _, sess := range m.All() {
		var expired bool
		sess.Do(func() {
			expired = sess.State == StateIdle && now.Sub(sess.LastActivity) >= m.IdleTimeout
		})
		if expired {
			log.Info().Str("session_id", sess.SessionID).Msg("idle timeout, invoking idle reaper")
			m.mu.Lock()
			reaper := m.idleReaper
			m.mu.Unlock()
			if reaper != nil {
				reaper(sess)
			}
		}
	}
}
