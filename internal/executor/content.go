package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/breaker"
	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/tracker"
)

// maxFlushIterations bounds the create-new-post loop within a single
// Execute call, guarding against a pathological buffer that keeps
// producing split tails forever.
const maxFlushIterations = 8

// ContentExecutor owns the session's running assistant-text post: it
// appends KindAddContent text to a buffer and decides whether to grow
// the current post in place or close it and start a fresh one at a
// logical breakpoint.
type ContentExecutor struct {
	sess *session.Session
	tr   *tracker.Tracker
	deps Deps
}

// NewContentExecutor builds the content executor for a session.
func NewContentExecutor(sess *session.Session, tr *tracker.Tracker, deps Deps) *ContentExecutor {
	return &ContentExecutor{sess: sess, tr: tr, deps: deps}
}

func (e *ContentExecutor) Execute(ctx context.Context, o op.Op) error {
	if o.Kind != op.KindAddContent || o.Text == "" {
		return nil
	}
	e.sess.Do(func() { e.sess.PendingContent += o.Text })
	return e.flush(ctx)
}

// flush drains sess.PendingContent into posted content, splitting into
// additional posts as needed.
func (e *ContentExecutor) flush(ctx context.Context) error {
	for i := 0; i < maxFlushIterations; i++ {
		type action struct {
			body       string
			postID     string
			isNewPost  bool
			closeAfter bool
			morePending bool
		}
		var a action

		e.sess.Do(func() {
			buf := e.sess.CurrentPostContent + e.sess.PendingContent
			if buf == "" {
				return
			}
			a.postID = e.sess.CurrentPostID
			a.isNewPost = e.sess.CurrentPostID == ""

			if a.isNewPost {
				// A fresh post has nothing to split against yet: it goes
				// out whole, subject only to max-length truncation below.
				// Splitting only ever applies to growing an existing post.
				a.body = buf
				e.sess.CurrentPostContent = buf
				e.sess.PendingContent = ""
				return
			}

			res := breaker.Split(buf, e.deps.Limits.SoftThreshold, e.deps.Limits.HardThreshold, e.deps.Limits.MaxLines)
			if res.Split {
				a.body = res.Head
				a.closeAfter = true
				e.sess.CurrentPostContent = ""
				e.sess.PendingContent = res.Tail
				e.sess.CurrentPostID = ""
				a.morePending = res.Tail != ""
			} else {
				a.body = buf
				e.sess.CurrentPostContent = buf
				e.sess.PendingContent = ""
			}
		})

		if a.body == "" {
			return nil
		}

		native := e.deps.Formatter.MarkdownToNative(a.body)
		if a.isNewPost {
			truncated := breaker.Truncate(native, e.deps.Limits.MaxLength)
			post, err := e.deps.Publisher.CreatePost(ctx, e.sess.ThreadID, truncated)
			if err != nil {
				return fmt.Errorf("content executor: create post: %w", err)
			}
			e.tr.Register(tracker.Record{
				PostID:    post.ID,
				ThreadID:  e.sess.ThreadID,
				SessionID: e.sess.SessionID,
				Kind:      tracker.KindContent,
			})
			if !a.closeAfter {
				e.sess.Do(func() { e.sess.CurrentPostID = post.ID })
			}
		} else {
			truncated := breaker.Truncate(native, e.deps.Limits.MaxLength)
			if err := e.deps.Publisher.UpdatePost(ctx, a.postID, truncated); err != nil {
				if errors.Is(err, platform.ErrPostGone) {
					// The post vanished out from under us (user deleted
					// it, or a platform hiccup). Drop the id and let the
					// next iteration start a fresh one for this content.
					log.Warn().Str("post_id", a.postID).Msg("content post gone, recreating")
					e.sess.Do(func() { e.sess.CurrentPostID = "" })
					continue
				}
				return fmt.Errorf("content executor: update post: %w", err)
			}
		}

		if !a.closeAfter || !a.morePending {
			return nil
		}
	}
	log.Warn().Str("session_id", e.sess.SessionID).Msg("content executor: flush iteration limit reached")
	return nil
}

// HandleReaction is a no-op: content posts carry no interactive
// reactions of their own.
func (e *ContentExecutor) HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error {
	return nil
}

// Finalize flushes any remaining buffered text so a session never
// ends with unposted content sitting in PendingContent.
func (e *ContentExecutor) Finalize(ctx context.Context) error {
	return e.flush(ctx)
}
