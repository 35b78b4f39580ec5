package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/threadbridge/internal/op"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/tracker"
)

// Reaction vocabulary for the interactive executor's posts.
const (
	EmojiApprove    = "thumbsup"
	EmojiReject     = "thumbsdown"
	EmojiApproveAll = "white_check_mark"
	EmojiAccept     = "ballot_box_with_check"
	EmojiDecline    = "x"
	EmojiInvite     = "heavy_plus_sign"
)

var numberEmoji = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// ResolutionSink receives the text an interactive resolves to, so the
// runner can feed it back to the assistant process as the next
// prompt. Interactive resolution and re-driving the assistant are
// different concerns; this is the seam between them.
type ResolutionSink interface {
	Resolve(ctx context.Context, sessionID, text string)
}

// InteractiveExecutor handles the four prompt-and-wait Op kinds that
// share one invariant: at most one pending instance of each per
// session, resolved by a single reaction from an allowed user.
type InteractiveExecutor struct {
	sess *session.Session
	tr   *tracker.Tracker
	deps Deps
	sink ResolutionSink
}

// NewInteractiveExecutor builds the interactive executor for a session.
func NewInteractiveExecutor(sess *session.Session, tr *tracker.Tracker, deps Deps, sink ResolutionSink) *InteractiveExecutor {
	return &InteractiveExecutor{sess: sess, tr: tr, deps: deps, sink: sink}
}

func (e *InteractiveExecutor) Execute(ctx context.Context, o op.Op) error {
	switch o.Kind {
	case op.KindPlanApproval:
		return e.createPlanApproval(ctx, o)
	case op.KindQuestion:
		return e.createQuestion(ctx, o)
	case op.KindPermission:
		return e.createPermission(ctx, o)
	case op.KindMessageApproval:
		return e.createMessageApproval(ctx, o)
	default:
		return nil
	}
}

func (e *InteractiveExecutor) createPlanApproval(ctx context.Context, o op.Op) error {
	body := e.deps.Formatter.Bold("Plan") + "\n" + o.Plan
	post, err := e.deps.Publisher.CreateInteractivePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(body),
		[]string{EmojiApprove, EmojiReject})
	if err != nil {
		return fmt.Errorf("interactive executor: create plan approval: %w", err)
	}
	e.sess.Do(func() {
		e.sess.PendingPlanApproval = &session.PlanApproval{PostID: post.ID, Plan: o.Plan}
	})
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID,
		Kind: tracker.KindPlanApproval, InteractionKind: tracker.InteractionPlanApproval,
	})
	return nil
}

func (e *InteractiveExecutor) createQuestion(ctx context.Context, o op.Op) error {
	var b strings.Builder
	b.WriteString(o.Question)
	b.WriteString("\n")
	reactions := make([]string, 0, len(o.Options))
	for i, opt := range o.Options {
		if i >= len(numberEmoji) {
			break
		}
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt))
		reactions = append(reactions, numberEmoji[i])
	}
	post, err := e.deps.Publisher.CreateInteractivePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(b.String()), reactions)
	if err != nil {
		return fmt.Errorf("interactive executor: create question: %w", err)
	}
	e.sess.Do(func() {
		e.sess.PendingQuestion = &session.Question{PostID: post.ID, Text: o.Question, Options: o.Options}
	})
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID,
		Kind: tracker.KindQuestion, InteractionKind: tracker.InteractionQuestion,
	})
	return nil
}

func (e *InteractiveExecutor) createPermission(ctx context.Context, o op.Op) error {
	body := fmt.Sprintf("%s wants to run %s\n%s",
		e.deps.Formatter.Bold("permission needed"),
		e.deps.Formatter.Code(o.PermissionToolName),
		e.deps.Formatter.CodeBlock("", o.PermissionInput))
	post, err := e.deps.Publisher.CreateInteractivePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(body),
		[]string{EmojiApprove, EmojiApproveAll, EmojiReject})
	if err != nil {
		return fmt.Errorf("interactive executor: create permission: %w", err)
	}
	e.sess.Do(func() {
		e.sess.PendingPermission = &session.Permission{PostID: post.ID, ToolName: o.PermissionToolName, Input: o.PermissionInput}
	})
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID,
		Kind: tracker.KindPermission, InteractionKind: tracker.InteractionActionApproval,
		ToolUseID: o.ToolUseID,
	})
	return nil
}

func (e *InteractiveExecutor) createMessageApproval(ctx context.Context, o op.Op) error {
	body := fmt.Sprintf("%s from a user not on this thread's allow-list:\n%s",
		e.deps.Formatter.Bold("message pending approval"), o.Text)
	post, err := e.deps.Publisher.CreateInteractivePost(ctx, e.sess.ThreadID, e.deps.Formatter.MarkdownToNative(body),
		[]string{EmojiAccept, EmojiInvite, EmojiDecline})
	if err != nil {
		return fmt.Errorf("interactive executor: create message approval: %w", err)
	}
	e.sess.Do(func() {
		e.sess.PendingMessageApproval = &session.MessageApproval{PostID: post.ID, BufferedUser: o.FromUser, BufferedText: o.Text}
	})
	e.tr.Register(tracker.Record{
		PostID: post.ID, ThreadID: e.sess.ThreadID, SessionID: e.sess.SessionID,
		Kind: tracker.KindMessageApproval, InteractionKind: tracker.InteractionMessageApproval,
	})
	return nil
}

func (e *InteractiveExecutor) HandleReaction(ctx context.Context, postID, emoji, user string, action platform.ReactionAction) error {
	if action != platform.ReactionAdded {
		return nil
	}
	rec, ok := e.tr.Get(postID)
	if !ok {
		return nil
	}
	switch rec.Kind {
	case tracker.KindPlanApproval:
		return e.resolvePlanApproval(ctx, postID, emoji, user)
	case tracker.KindQuestion:
		return e.resolveQuestion(ctx, postID, emoji, user)
	case tracker.KindPermission:
		return e.resolvePermission(ctx, postID, emoji, user)
	case tracker.KindMessageApproval:
		return e.resolveMessageApproval(ctx, postID, emoji, user)
	default:
		return nil
	}
}

func (e *InteractiveExecutor) resolvePlanApproval(ctx context.Context, postID, emoji, user string) error {
	if emoji != EmojiApprove && emoji != EmojiReject {
		return nil
	}
	var match bool
	e.sess.Do(func() {
		if e.sess.PendingPlanApproval != nil && e.sess.PendingPlanApproval.PostID == postID && e.sess.IsUserAllowed(user) {
			match = true
			e.sess.PendingPlanApproval = nil
		}
	})
	if !match {
		return nil
	}
	e.tr.Unregister(postID)
	if emoji == EmojiApprove {
		e.sink.Resolve(ctx, e.sess.SessionID, "The plan is approved. Proceed.")
	} else {
		e.sink.Resolve(ctx, e.sess.SessionID, "The plan is rejected. Please revise your approach.")
	}
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(
		e.deps.Formatter.Bold("Plan")+" — "+resolutionLabel(emoji == EmojiApprove)))
}

func (e *InteractiveExecutor) resolveQuestion(ctx context.Context, postID, emoji, user string) error {
	idx := -1
	for i, name := range numberEmoji {
		if name == emoji {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var match bool
	var options []string
	e.sess.Do(func() {
		q := e.sess.PendingQuestion
		if q != nil && q.PostID == postID && idx < len(q.Options) && e.sess.IsUserAllowed(user) {
			match = true
			options = q.Options
			e.sess.PendingQuestion = nil
		}
	})
	if !match {
		return nil
	}
	e.tr.Unregister(postID)
	chosen := options[idx]
	e.sink.Resolve(ctx, e.sess.SessionID, fmt.Sprintf("%d. %s", idx+1, chosen))
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(
		"answered: "+chosen))
}

func (e *InteractiveExecutor) resolvePermission(ctx context.Context, postID, emoji, user string) error {
	if emoji != EmojiApprove && emoji != EmojiApproveAll && emoji != EmojiReject {
		return nil
	}
	var match bool
	var toolName string
	e.sess.Do(func() {
		p := e.sess.PendingPermission
		if p != nil && p.PostID == postID && e.sess.IsUserAllowed(user) {
			match = true
			toolName = p.ToolName
			e.sess.PendingPermission = nil
			if emoji == EmojiApproveAll {
				e.sess.AllowedTools[toolName] = true
			}
		}
	})
	if !match {
		return nil
	}
	e.tr.Unregister(postID)
	if emoji == EmojiReject {
		e.sink.Resolve(ctx, e.sess.SessionID, fmt.Sprintf("Permission to run %s was denied.", toolName))
	} else {
		e.sink.Resolve(ctx, e.sess.SessionID, fmt.Sprintf("Permission to run %s was granted.", toolName))
	}
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(
		e.deps.Formatter.Code(toolName)+" — "+resolutionLabel(emoji != EmojiReject)))
}

func (e *InteractiveExecutor) resolveMessageApproval(ctx context.Context, postID, emoji, user string) error {
	if emoji != EmojiAccept && emoji != EmojiDecline && emoji != EmojiInvite {
		return nil
	}
	var match bool
	var text, fromUser string
	e.sess.Do(func() {
		ma := e.sess.PendingMessageApproval
		if ma != nil && ma.PostID == postID && e.sess.IsUserAllowed(user) {
			match = true
			text = ma.BufferedText
			fromUser = ma.BufferedUser
			e.sess.PendingMessageApproval = nil
			if emoji == EmojiInvite && fromUser != "" {
				e.sess.AllowedUsers[fromUser] = true
			}
		}
	})
	if !match {
		return nil
	}
	e.tr.Unregister(postID)
	label := "rejected"
	if emoji == EmojiAccept {
		e.sink.Resolve(ctx, e.sess.SessionID, text)
		label = "approved"
	} else if emoji == EmojiInvite {
		e.sink.Resolve(ctx, e.sess.SessionID, text)
		label = "sender invited, approved"
	}
	return e.deps.Publisher.UpdatePost(ctx, postID, e.deps.Formatter.MarkdownToNative(
		"message — "+label))
}

func resolutionLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

// Finalize auto-rejects every interactive still pending when the
// session ends, so a thread never carries a reaction prompt nobody
// can answer any more.
func (e *InteractiveExecutor) Finalize(ctx context.Context) error {
	var plan, question, perm, msg string
	e.sess.Do(func() {
		if e.sess.PendingPlanApproval != nil {
			plan = e.sess.PendingPlanApproval.PostID
			e.sess.PendingPlanApproval = nil
		}
		if e.sess.PendingQuestion != nil {
			question = e.sess.PendingQuestion.PostID
			e.sess.PendingQuestion = nil
		}
		if e.sess.PendingPermission != nil {
			perm = e.sess.PendingPermission.PostID
			e.sess.PendingPermission = nil
		}
		if e.sess.PendingMessageApproval != nil {
			msg = e.sess.PendingMessageApproval.PostID
			e.sess.PendingMessageApproval = nil
		}
	})
	for _, postID := range []string{plan, question, perm, msg} {
		if postID == "" {
			continue
		}
		e.tr.Unregister(postID)
		if err := e.deps.Publisher.UpdatePost(ctx, postID, "session ended — no longer active"); err != nil {
			log.Debug().Err(err).Str("post_id", postID).Msg("interactive executor: finalize update failed")
		}
	}
	return nil
}
