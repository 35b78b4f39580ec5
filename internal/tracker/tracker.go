// Package tracker implements the Post Tracker: the process-wide
// mapping from post-id to the session and metadata that owns it, the
// source of truth the Reaction Router uses to resolve reactions back
// to a session.
package tracker

import (
	"sync"
	"time"
)

// Kind is the category of post a Record represents.
type Kind string

const (
	KindContent         Kind = "content"
	KindTaskList        Kind = "task_list"
	KindSessionHeader    Kind = "session_header"
	KindQuestion        Kind = "question"
	KindPlanApproval    Kind = "plan_approval"
	KindMessageApproval Kind = "message_approval"
	KindPermission      Kind = "permission"
	KindWorktreePrompt  Kind = "worktree_prompt"
	KindUpdatePrompt    Kind = "update_prompt"
	KindSubagent        Kind = "subagent"
	KindLifecycle       Kind = "lifecycle"
	KindBugReport       Kind = "bug_report"
	KindSystem          Kind = "system"
)

// InteractionKind further qualifies a reactable post.
type InteractionKind string

const (
	InteractionQuestion        InteractionKind = "question"
	InteractionPlanApproval    InteractionKind = "plan_approval"
	InteractionActionApproval  InteractionKind = "action_approval"
	InteractionMessageApproval InteractionKind = "message_approval"
	InteractionWorktreeExisting InteractionKind = "worktree_existing"
	InteractionUpdateNow       InteractionKind = "update_now"
	InteractionToggleMinimize  InteractionKind = "toggle_minimize"
	InteractionResume          InteractionKind = "resume"
)

// Record is one tracked post.
type Record struct {
	PostID          string
	ThreadID        string
	SessionID       string
	Kind            Kind
	InteractionKind InteractionKind
	ToolUseID       string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// Tracker is the process-wide post-id -> Record index, with a
// secondary session-id -> post-ids index kept as its exact transpose.
// Register, Unregister, Get and FindSession are O(1) expected;
// GetByKind and ClearSession walk the session's bucket, so they are
// linear in the number of posts that session owns.
type Tracker struct {
	mu        sync.RWMutex
	byPost    map[string]Record
	bySession map[string]map[string]struct{}
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byPost:    make(map[string]Record),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Register records a new post, writing through both indices.
func (t *Tracker) Register(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPost[r.PostID] = r
	bucket, ok := t.bySession[r.SessionID]
	if !ok {
		bucket = make(map[string]struct{})
		t.bySession[r.SessionID] = bucket
	}
	bucket[r.PostID] = struct{}{}
}

// Unregister removes a post from both indices. An empty session
// bucket is removed entirely so ClearSession and FindSession never
// observe a stale empty entry.
func (t *Tracker) Unregister(postID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unregisterLocked(postID)
}

func (t *Tracker) unregisterLocked(postID string) {
	r, ok := t.byPost[postID]
	if !ok {
		return
	}
	delete(t.byPost, postID)
	if bucket, ok := t.bySession[r.SessionID]; ok {
		delete(bucket, postID)
		if len(bucket) == 0 {
			delete(t.bySession, r.SessionID)
		}
	}
}

// Get returns the record for postID, if any.
func (t *Tracker) Get(postID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byPost[postID]
	return r, ok
}

// GetByKind returns the first record for sessionID matching kind, if
// any. Sessions only ever hold one post of most kinds, so "first" is
// unambiguous in practice.
func (t *Tracker) GetByKind(sessionID string, kind Kind) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for postID := range t.bySession[sessionID] {
		if r, ok := t.byPost[postID]; ok && r.Kind == kind {
			return r, true
		}
	}
	return Record{}, false
}

// ClearSession removes every post record owned by sessionID.
func (t *Tracker) ClearSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.bySession[sessionID]
	for postID := range bucket {
		delete(t.byPost, postID)
	}
	delete(t.bySession, sessionID)
}

// FindSession resolves a post id back to its owning session id.
func (t *Tracker) FindSession(postID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byPost[postID]
	if !ok {
		return "", false
	}
	return r.SessionID, true
}
