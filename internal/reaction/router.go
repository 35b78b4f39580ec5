// Package reaction resolves an inbound (post-id, emoji, user, action)
// tuple back to the session and executor that owns the post, using
// the Post Tracker as its sole source of truth.
package reaction

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/local/threadbridge/internal/executor"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/tracker"
)

// Executors bundles the reactable executors for one session. Content
// and the subagent/header executors implement HandleReaction as a
// no-op, but are included so the router can route uniformly without a
// type switch on kind outside of this package.
type Executors struct {
	TaskList    executor.Executor
	Interactive executor.Executor
	Content     executor.Executor
	Subagent    executor.Executor
	Header      executor.Executor
}

func (e Executors) forKind(k tracker.Kind) executor.Executor {
	switch k {
	case tracker.KindTaskList:
		return e.TaskList
	case tracker.KindPlanApproval, tracker.KindQuestion, tracker.KindPermission, tracker.KindMessageApproval:
		return e.Interactive
	case tracker.KindContent:
		return e.Content
	case tracker.KindSubagent:
		return e.Subagent
	case tracker.KindSessionHeader:
		return e.Header
	default:
		return nil
	}
}

// EmojiBugReport is the reaction a user adds to any bot post to file a
// bug report against the session that owns it. Unlike the other
// reaction vocabulary, it applies regardless of the post's kind.
const EmojiBugReport = "bug"

// BugReporter records a bug report filed against a tracked post.
type BugReporter interface {
	ReportBug(ctx context.Context, rec tracker.Record, user string) error
}

// Router dispatches reaction events to the session that owns the
// reacted-to post.
type Router struct {
	tr   *tracker.Tracker
	ing  platform.Ingester
	bugs BugReporter
	log  zerolog.Logger

	lookup func(sessionID string) (Executors, bool)
}

// New builds a Router. lookup resolves a session id to its live
// executor set; the caller (the process's session registry) owns that
// mapping so the router itself stays stateless. bugs may be nil, in
// which case the bug-report reaction is ignored.
func New(tr *tracker.Tracker, ing platform.Ingester, lookup func(sessionID string) (Executors, bool), bugs BugReporter, log zerolog.Logger) *Router {
	return &Router{tr: tr, ing: ing, lookup: lookup, bugs: bugs, log: log}
}

// Run consumes reaction events until the channel closes or ctx ends.
func (r *Router) Run(ctx context.Context, events <-chan platform.ReactionEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) handle(ctx context.Context, ev platform.ReactionEvent) {
	if !r.ing.IsUserAllowed(ev.User) {
		r.log.Debug().Str("user", ev.User).Msg("reaction router: user not platform-allowed, dropping")
		return
	}
	rec, ok := r.tr.Get(ev.PostID)
	if !ok {
		return
	}

	if ev.Emoji == EmojiBugReport && ev.Action == platform.ReactionAdded {
		if r.bugs == nil {
			return
		}
		if err := r.bugs.ReportBug(ctx, rec, ev.User); err != nil {
			r.log.Error().Err(err).Str("post_id", ev.PostID).Msg("reaction router: bug report failed")
		}
		return
	}

	execs, ok := r.lookup(rec.SessionID)
	if !ok {
		return
	}
	ex := execs.forKind(rec.Kind)
	if ex == nil {
		return
	}
	if err := ex.HandleReaction(ctx, ev.PostID, ev.Emoji, ev.User, ev.Action); err != nil {
		r.log.Error().Err(err).Str("post_id", ev.PostID).Msg("reaction router: handler failed")
	}
}
