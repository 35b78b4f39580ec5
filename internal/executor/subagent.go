package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/tracker"
)

// SubagentExecutor renders the Task tool's nested subagent runs as
// their own collapsed posts, one per subagent-id, since several can
// be in flight concurrently.
type SubagentExecutor struct {
	sess *session.Session
	tr   *tracker.Tracker
	deps Deps

	mu    sync.Mutex
	posts map[string]string // subagent-id -> post-id
}

// NewSubagentExecutor builds the subagent executor for a session.
func NewSubagentExecutor(sess *session.Session, tr *tracker.Tracker, deps Deps) *SubagentExecutor {
	return &SubagentExecutor{sess: sess, tr: tr, deps: deps, posts: make(map[string]string)}
}

func (e *SubagentExecutor) Execute(ctx context.Context, o op.Op) error {
	switch o.Kind {
	case op.KindSubagentStart:
		return e.start(ctx, o)
	case op.KindSubagentUpdate:
		return e.update(ctx, o)
	default:
		return nil
	}
}

func (e *SubagentExecutor) start(ctx context.Context, o op.Op) error {
	body := e.deps.Formatter.Bold(fmt.Sprintf("subagent: %s", o.SubagentName)) + "\nstarting…"
	post, err := e.deps.Publisher.CreatePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(body))
	if err != nil {
		return fmt.Errorf("subagent executor: create post: %w", err)
	}
	e.mu.Lock()
	e.posts[o.SubagentID] = post.ID
	e.mu.Unlock()
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID,
		Kind: tracker.KindSubagent, Metadata: map[string]string{"subagent_id": o.SubagentID},
	})
	return nil
}

func (e *SubagentExecutor) update(ctx context.Context, o op.Op) error {
	e.mu.Lock()
	postID, ok := e.posts[o.SubagentID]
	e.mu.Unlock()
	if !ok {
		return e.start(ctx, o)
	}
	body := e.deps.Formatter.Bold(fmt.Sprintf("subagent: %s", o.SubagentName)) + "\n" + o.Text
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(body))
}

func (e *SubagentExecutor) HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error {
	return nil
}

// Finalize marks any subagent posts still open as interrupted.
func (e *SubagentExecutor) Finalize(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.posts))
	for _, postID := range e.posts {
		ids = append(ids, postID)
	}
	e.mu.Unlock()
	for _, postID := range ids {
		_ = e.deps.Publisher.UpdatePost(ctx, postID, "subagent run interrupted")
	}
	return nil
}
