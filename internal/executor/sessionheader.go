package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/tracker"
)

// SessionHeaderExecutor posts and pins the banner that marks a thread
// as having an active session, so a user scrolling into a long thread
// can tell at a glance whether anything is still running.
type SessionHeaderExecutor struct {
	sess   *session.Session
	tr     *tracker.Tracker
	deps   Deps
	postID string
}

// NewSessionHeaderExecutor builds the session-header executor.
func NewSessionHeaderExecutor(sess *session.Session, tr *tracker.Tracker, deps Deps) *SessionHeaderExecutor {
	return &SessionHeaderExecutor{sess: sess, tr: tr, deps: deps}
}

func (e *SessionHeaderExecutor) Execute(ctx context.Context, o op.Op) error {
	if o.Kind != op.KindSessionStarted {
		return nil
	}
	e.sess.Do(func() { e.sess.AssistantSessionID = o.AssistantSessionID })
	body := fmt.Sprintf("%s started by %s", e.deps.Formatter.Bold("session"), e.deps.Formatter.UserMention(e.sess.StartedBy))
	post, err := e.deps.Publisher.CreatePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(body))
	if err != nil {
		return fmt.Errorf("session header executor: create post: %w", err)
	}
	e.postID = post.ID
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID, Kind: tracker.KindSessionHeader,
	})
	if err := e.deps.Publisher.PinPost(ctx, post.ID); err != nil {
		log.Debug().Err(err).Msg("session header executor: pin failed")
	}
	return nil
}

func (e *SessionHeaderExecutor) HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error {
	return nil
}

// Finalize unpins the header and marks the session ended.
func (e *SessionHeaderExecutor) Finalize(ctx context.Context) error {
	if e.postID == "" {
		return nil
	}
	if err := e.deps.Publisher.UnpinPost(ctx, e.postID); err != nil {
		log.Debug().Err(err).Msg("session header executor: unpin failed")
	}
	body := fmt.Sprintf("%s ended", e.deps.Formatter.Bold("session"))
	return e.deps.Publisher.UpdatePost(ctx, e.postID, e.deps.Formatter.MarkdownToNative(body))
}
