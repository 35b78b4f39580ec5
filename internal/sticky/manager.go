package sticky

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/tracker"
)

// Manager performs the "bump" mutations: deleting and recreating a
// sticky post so it lands at the bottom of the thread. Manager takes
// no lock itself: callers that hold the owning session's StickyLock
// around a bump keep two such bumps from interleaving their
// delete/create pairs. Plain content flushes do not take that lock.
type Manager struct {
	tracker *tracker.Tracker
	pub     platform.Publisher
}

// NewManager builds a sticky Manager bound to the process-wide post
// tracker and a platform's publish capability.
func NewManager(tr *tracker.Tracker, pub platform.Publisher) *Manager {
	return &Manager{tracker: tr, pub: pub}
}

// BumpTaskList deletes the session's current task-list post (if any)
// and recreates it at the bottom of the thread with body, re-adding
// reactions (the minimize toggle) and pinning the new post. Updates
// the tracker and returns the new post id; the caller stores it in
// sess.TasksPostID. Must be called with sess.StickyLock
// held by the caller (executors call this from within WithLock so the
// delete/create pair is atomic with respect to other sticky mutations
// on the same session).
func (m *Manager) BumpTaskList(ctx context.Context, sessionID, threadID string, oldPostID, body string, reactions []string) (string, error) {
	return m.bump(ctx, sessionID, threadID, oldPostID, body, tracker.KindTaskList, tracker.InteractionToggleMinimize, reactions)
}

// BumpPlanApproval deletes and recreates the session's pending
// plan-approval post at the bottom of the thread, re-adding the
// approve/reject reactions.
func (m *Manager) BumpPlanApproval(ctx context.Context, sessionID, threadID string, oldPostID, body string, reactions []string) (string, error) {
	if oldPostID != "" {
		if err := m.pub.DeletePost(ctx, oldPostID); err != nil {
			return "", fmt.Errorf("sticky: delete old plan approval post: %w", err)
		}
		m.tracker.Unregister(oldPostID)
	}
	post, err := m.pub.CreateInteractivePost(ctx, threadID, body, reactions)
	if err != nil {
		return "", fmt.Errorf("sticky: recreate plan approval post: %w", err)
	}
	m.tracker.Register(tracker.Record{
		PostID:          post.ID,
		ThreadID:        threadID,
		SessionID:       sessionID,
		Kind:            tracker.KindPlanApproval,
		InteractionKind: tracker.InteractionPlanApproval,
	})
	return post.ID, nil
}

// BumpAndRepurposeTaskPost implements the content executor's
// task-list-post-repurposing flow: when the task list completes while
// it is still the most recent sticky post, its post is
// deleted and the executor's next content chunk becomes a fresh
// regular content post in its place, rather than leaving a finished
// task list stuck at the bottom with nothing after it. The caller is
// responsible for creating the replacement content post; this method
// only tears down the task list side.
func (m *Manager) BumpAndRepurposeTaskPost(ctx context.Context, taskPostID string) error {
	if taskPostID == "" {
		return nil
	}
	if err := m.pub.DeletePost(ctx, taskPostID); err != nil {
		return fmt.Errorf("sticky: delete repurposed task post: %w", err)
	}
	m.tracker.Unregister(taskPostID)
	return nil
}

func (m *Manager) bump(ctx context.Context, sessionID, threadID, oldPostID, body string, kind tracker.Kind, ik tracker.InteractionKind, reactions []string) (string, error) {
	if oldPostID != "" {
		if err := m.pub.UnpinPost(ctx, oldPostID); err != nil {
			log.Debug().Err(err).Str("post_id", oldPostID).Msg("sticky: unpin old post failed")
		}
		if err := m.pub.DeletePost(ctx, oldPostID); err != nil {
			return "", fmt.Errorf("sticky: delete old %s post: %w", kind, err)
		}
		m.tracker.Unregister(oldPostID)
	}
	post, err := m.pub.CreateInteractivePost(ctx, threadID, body, reactions)
	if err != nil {
		return "", fmt.Errorf("sticky: recreate %s post: %w", kind, err)
	}
	if err := m.pub.PinPost(ctx, post.ID); err != nil {
		log.Debug().Err(err).Str("post_id", post.ID).Msg("sticky: pin new post failed")
	}
	m.tracker.Register(tracker.Record{
		PostID:          post.ID,
		ThreadID:        threadID,
		SessionID:       sessionID,
		Kind:            kind,
		InteractionKind: ik,
	})
	return post.ID, nil
}
