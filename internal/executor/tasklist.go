package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/sticky"
	"github.com/local/threadbridge/internal/tracker"
)

// EmojiToggleMinimize is the reaction that collapses/expands the
// task list down to a single summary line.
const EmojiToggleMinimize = "eye"

// TaskListExecutor owns the session's sticky task-list post: it
// renders TodoWrite updates as a checklist in a pinned post. The post
// is moved back to the bottom of the thread only when a
// TaskListBumpToBottom op arrives; new content posted after the list
// does not by itself move it.
type TaskListExecutor struct {
	sess   *session.Session
	tr     *tracker.Tracker
	sticky *sticky.Manager
	deps   Deps
}

// NewTaskListExecutor builds the task-list executor for a session.
func NewTaskListExecutor(sess *session.Session, tr *tracker.Tracker, sm *sticky.Manager, deps Deps) *TaskListExecutor {
	return &TaskListExecutor{sess: sess, tr: tr, sticky: sm, deps: deps}
}

func (e *TaskListExecutor) Execute(ctx context.Context, o op.Op) error {
	if o.Kind != op.KindTaskList {
		return nil
	}

	switch o.TaskAction {
	case op.TaskListUpdate:
		return e.render(ctx, o)
	case op.TaskListComplete:
		return e.complete(ctx, o)
	case op.TaskListBumpToBottom:
		return e.bump(ctx)
	case op.TaskListToggleMinimize:
		return e.toggleMinimize(ctx)
	default:
		return nil
	}
}

func (e *TaskListExecutor) render(ctx context.Context, o op.Op) error {
	var postID, body string
	var isNew bool
	e.sess.Do(func() {
		e.sess.LastTasks = o.Tasks
		body = renderTasks(o.Tasks, e.sess.TasksCompleted, e.sess.TasksMinimized, e.deps.Formatter)
		postID = e.sess.TasksPostID
		isNew = postID == ""
	})

	native := e.deps.Formatter.MarkdownToNative(body)
	if isNew {
		post, err := e.deps.Publisher.CreateInteractivePost(ctx, e.sess.ThreadID, native, []string{EmojiToggleMinimize})
		if err != nil {
			return fmt.Errorf("task list executor: create post: %w", err)
		}
		e.sess.Do(func() { e.sess.TasksPostID = post.ID })
		e.tr.Register(tracker.Record{
			PostID:          post.ID,
			ThreadID:        e.sess.ThreadID,
			SessionID:       e.sess.SessionID,
			Kind:            tracker.KindTaskList,
			InteractionKind: tracker.InteractionToggleMinimize,
		})
		if err := e.deps.Publisher.PinPost(ctx, post.ID); err != nil {
			log.Debug().Err(err).Str("post_id", post.ID).Msg("task list executor: pin failed")
		}
		return nil
	}
	if err := e.deps.Publisher.UpdatePost(ctx, postID, native); err != nil {
		return fmt.Errorf("task list executor: update post: %w", err)
	}
	return nil
}

// complete marks the task list finished and tears down its post: the
// checklist has served its purpose and leaving it pinned at the bottom
// of the thread with a stale toggle reaction just clutters the view.
func (e *TaskListExecutor) complete(ctx context.Context, o op.Op) error {
	var postID string
	e.sess.Do(func() {
		e.sess.TasksCompleted = true
		e.sess.LastTasks = o.Tasks
		postID = e.sess.TasksPostID
	})
	if postID == "" {
		return nil
	}
	if err := e.deps.Publisher.RemoveReaction(ctx, postID, EmojiToggleMinimize); err != nil {
		log.Debug().Err(err).Str("post_id", postID).Msg("task list executor: remove reaction failed")
	}
	if err := e.deps.Publisher.UnpinPost(ctx, postID); err != nil {
		log.Debug().Err(err).Str("post_id", postID).Msg("task list executor: unpin failed")
	}
	if err := e.deps.Publisher.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("task list executor: delete completed post: %w", err)
	}
	e.tr.Unregister(postID)
	e.sess.Do(func() { e.sess.TasksPostID = "" })
	return nil
}

func (e *TaskListExecutor) bump(ctx context.Context) error {
	return e.sess.StickyLock.WithLock(ctx, func() error {
		var oldID, threadID string
		e.sess.Do(func() {
			oldID = e.sess.TasksPostID
			threadID = e.sess.ThreadID
		})
		newID, err := e.sticky.BumpTaskList(ctx, e.sess.SessionID, threadID, oldID, e.currentBody(), []string{EmojiToggleMinimize})
		if err != nil {
			return err
		}
		e.sess.Do(func() { e.sess.TasksPostID = newID })
		return nil
	})
}

func (e *TaskListExecutor) toggleMinimize(ctx context.Context) error {
	var postID, body string
	e.sess.Do(func() {
		e.sess.TasksMinimized = !e.sess.TasksMinimized
		body = renderTasks(e.sess.LastTasks, e.sess.TasksCompleted, e.sess.TasksMinimized, e.deps.Formatter)
		postID = e.sess.TasksPostID
	})
	if postID == "" {
		return nil
	}
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(body))
}

func (e *TaskListExecutor) currentBody() string {
	var body string
	e.sess.Do(func() {
		body = renderTasks(e.sess.LastTasks, e.sess.TasksCompleted, e.sess.TasksMinimized, e.deps.Formatter)
	})
	return e.deps.Formatter.MarkdownToNative(body)
}

func (e *TaskListExecutor) HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error {
	if emoji != EmojiToggleMinimize || action != platform.ReactionAdded {
		return nil
	}
	return e.toggleMinimize(ctx)
}

// Finalize minimizes a still-open task list when its session ends, so
// an abandoned run doesn't leave a sprawling checklist as the last
// word in the thread.
func (e *TaskListExecutor) Finalize(ctx context.Context) error {
	var postID string
	var minimized bool
	e.sess.Do(func() {
		postID = e.sess.TasksPostID
		minimized = e.sess.TasksMinimized
	})
	if postID == "" || minimized {
		return nil
	}
	return e.toggleMinimize(ctx)
}

func renderTasks(tasks []op.TaskItem, completed, minimized bool, f platform.Formatter) string {
	if minimized {
		return summaryLine(tasks, completed, f)
	}
	var b strings.Builder
	b.WriteString(f.Bold("Tasks"))
	b.WriteString("\n")
	for _, t := range tasks {
		label := t.Content
		if t.Status == op.TaskInProgress && t.ActiveForm != "" {
			label = t.ActiveForm
		}
		switch t.Status {
		case op.TaskCompleted:
			b.WriteString("- [x] ")
			b.WriteString(f.Strikethrough(label))
		case op.TaskInProgress:
			b.WriteString("- [ ] ")
			b.WriteString(f.Bold(label))
		default:
			b.WriteString("- [ ] ")
			b.WriteString(label)
		}
		b.WriteString("\n")
	}
	if completed {
		b.WriteString("\n")
		b.WriteString(f.Italic("all tasks complete"))
	}
	return b.String()
}

func summaryLine(tasks []op.TaskItem, completed bool, f platform.Formatter) string {
	done := 0
	for _, t := range tasks {
		if t.Status == op.TaskCompleted {
			done++
		}
	}
	status := fmt.Sprintf("%d/%d tasks complete", done, len(tasks))
	if completed {
		status = "all tasks complete"
	}
	return f.Italic(status)
}
