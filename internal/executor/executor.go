// Package executor implements the five executor kinds: the
// per-Op-Kind handlers that turn a Stream Dispatcher Op into concrete
// platform calls (create/update/delete post, add reaction) and own
// whatever per-post state that requires. Executor is a small interface
// over a discriminated union of concrete types, rather than one god
// object.
package executor

import (
	"context"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
)

// Executor is the common shape every Op handler satisfies. Most Ops
// route to exactly one executor instance per session (content,
// task-list, session-header); interactive Ops (plan approval,
// question, permission, message approval) and subagent Ops may each
// have several concurrently live instances, keyed by post id.
type Executor interface {
	// Execute applies o, issuing whatever platform calls are needed.
	Execute(ctx context.Context, o op.Op) error

	// HandleReaction reacts to a user toggling emoji on one of this
	// executor's posts. Executors that own no reactable post (content)
	// implement this as a no-op.
	HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error

	// Finalize tears down any sticky-but-incomplete UI when the
	// session ends: flushes pending content, minimizes task lists,
	// closes out unanswered interactives and subagent posts, unpins
	// the session header.
	Finalize(ctx context.Context) error
}

// Deps bundles the collaborators every executor needs, so
// constructors stay short.
type Deps struct {
	Publisher platform.Publisher
	Formatter platform.Formatter
	Limits    platform.Limits
}
