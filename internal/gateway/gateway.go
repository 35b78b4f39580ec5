// Package gateway classifies inbound platform messages (a mention
// starting a session, a reply continuing one, or a bang command),
// checks the ACL, and routes allowed messages into the Session
// Manager.
package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/session"
)

const (
	cmdNew    = "!new"
	cmdCancel = "!cancel"
	cmdStop   = "!stop"
	cmdHelp   = "!help"
	cmdInvite = "!invite"
	cmdKick   = "!kick"
)

const helpText = `!new          end this thread's session so the next mention starts a fresh one
!cancel       end the session running in this thread
!stop         same as !cancel
!invite @user let @user interact with this thread's session
!kick @user   revoke @user's access to this thread's session
!help         show this message

Mention the bot to start a session; reply in the thread to continue it.
React with :bug: on any of the bot's posts to file a bug report against it.`

// perUserRate and perUserBurst bound how often a single user can
// trigger new work through the gateway; this is a per-user token
// bucket, not a global one, so one chatty user can't starve another.
const perUserRate = rate.Limit(1.0 / 3.0) // one message every 3s, sustained
const perUserBurst = 5

// Gateway binds one platform's ingested message stream to the Session
// Manager.
type Gateway struct {
	PlatformID string
	Manager    *session.Manager
	Runner     session.Runner
	Ingester   platform.Ingester
	Publisher  platform.Publisher
	Formatter  platform.Formatter
	log        zerolog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New builds a Gateway for a single configured platform.
func New(platformID string, mgr *session.Manager, runner session.Runner, ing platform.Ingester, pub platform.Publisher, fmtr platform.Formatter, log zerolog.Logger) *Gateway {
	return &Gateway{
		PlatformID: platformID, Manager: mgr, Runner: runner, Ingester: ing,
		Publisher: pub, Formatter: fmtr, log: log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow reports whether user is still within their inbound rate
// budget, creating a fresh limiter for users seen for the first time.
func (g *Gateway) allow(user string) bool {
	g.limitersMu.Lock()
	defer g.limitersMu.Unlock()
	lim, ok := g.limiters[user]
	if !ok {
		lim = rate.NewLimiter(perUserRate, perUserBurst)
		g.limiters[user] = lim
	}
	return lim.Allow()
}

// Run consumes message events until the channel closes or ctx ends.
func (g *Gateway) Run(ctx context.Context, events <-chan platform.MessageEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handle(ctx context.Context, ev platform.MessageEvent) {
	if ev.IsBot {
		return
	}

	threadID := ev.ThreadID
	if threadID == "" {
		threadID = ev.PostID
	}
	sessionID := g.PlatformID + ":" + threadID

	if !g.allow(ev.User) {
		g.log.Debug().Str("user", ev.User).Msg("gateway: user over rate budget, dropping message")
		return
	}

	text := strings.TrimSpace(ev.Text)
	switch {
	case text == cmdCancel || text == cmdStop:
		if sess, ok := g.Manager.Get(sessionID); ok {
			g.Manager.Terminate(ctx, sess, g.Runner)
		}
		return
	case text == cmdNew:
		if sess, ok := g.Manager.Get(sessionID); ok {
			g.Manager.Terminate(ctx, sess, g.Runner)
		}
		// The next mention starts a fresh session.
		return
	case text == cmdHelp:
		body := helpText
		if g.Formatter != nil {
			body = g.Formatter.CodeBlock("", helpText)
		}
		if g.Publisher != nil {
			if _, err := g.Publisher.CreatePost(ctx, threadID, body); err != nil {
				g.log.Warn().Err(err).Msg("gateway: failed to post help text")
			}
		}
		return
	case strings.HasPrefix(text, cmdInvite+" "):
		g.handleACL(sessionID, ev.User, strings.TrimPrefix(text, cmdInvite+" "), true)
		return
	case strings.HasPrefix(text, cmdKick+" "):
		g.handleACL(sessionID, ev.User, strings.TrimPrefix(text, cmdKick+" "), false)
		return
	}

	existing, hadSession := g.Manager.Get(sessionID)

	// A session only starts on an explicit mention; once started, any
	// reply in the thread continues it without needing another mention.
	if !hadSession && !ev.IsMention {
		return
	}

	if !g.Ingester.IsUserAllowed(ev.User) {
		g.log.Debug().Str("user", ev.User).Msg("gateway: user not platform-allowed, dropping message")
		return
	}
	if hadSession && !existing.IsUserAllowed(ev.User) {
		g.log.Debug().Str("user", ev.User).Str("session_id", sessionID).Msg("gateway: user not session-allowed, dropping message")
		return
	}

	sess, _ := g.Manager.GetOrCreate(g.PlatformID, threadID, ev.User)
	g.Manager.Submit(ctx, sess, ev.Text, ev.Files, g.Runner)
}

// handleACL grants or revokes a user's access to the session running in
// sessionID. Only a user already allowed on the session may invite or
// kick another; the command is a no-op against a thread with no
// session or a target with no name.
func (g *Gateway) handleACL(sessionID, actor, arg string, invite bool) {
	target := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(arg), "@"))
	if target == "" {
		return
	}
	sess, ok := g.Manager.Get(sessionID)
	if !ok {
		return
	}
	if !sess.IsUserAllowed(actor) {
		g.log.Debug().Str("user", actor).Str("session_id", sessionID).Msg("gateway: acl command from disallowed user, dropping")
		return
	}
	sess.Do(func() {
		if invite {
			sess.AllowedUsers[target] = true
		} else {
			delete(sess.AllowedUsers, target)
		}
	})
}
