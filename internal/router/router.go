package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

const (
	MsgInsufficientPermission = "⚠️ Insufficient permission"
	MsgDisallowed             = "⚠️ Message contains a disallowed operation"
	MsgInternalError          = "❌ Something went wrong processing your message, please try again later"

	hiddenContent = "[hidden]"

	commandAuditBytes = 200
	replyAuditBytes   = 500
	logPreviewBytes   = 100
)

// Contact is the sender of an inbound message as the transport reports it.
type Contact struct {
	ID         string
	Nickname   string
	RemarkName string
}

// DisplayName prefers the remark name, then the nickname, then the id.
func (c Contact) DisplayName() string {
	if c.RemarkName != "" {
		return c.RemarkName
	}
	if c.Nickname != "" {
		return c.Nickname
	}
	return c.ID
}

// Router authorizes inbound messages and sends them either to a command
// handler or to the dispatcher.
type Router struct {
	store    Store
	dispatch Dispatcher
	cfg      *config.Config
	blocked  []*regexp.Regexp
	commands []command
	logger   *slog.Logger
}

func New(st Store, d Dispatcher, cfg *config.Config, logger *slog.Logger) *Router {
	r := &Router{
		store:    st,
		dispatch: d,
		cfg:      cfg,
		logger:   logger,
	}
	for _, p := range cfg.Security.BlockedPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			logger.Warn("skipping invalid blocked pattern", "pattern", p, "error", err)
			continue
		}
		r.blocked = append(r.blocked, re)
	}
	r.commands = r.commandTable()
	return r
}

// Handle processes one inbound message. The boolean is false when the
// sender gets no reply at all.
func (r *Router) Handle(ctx context.Context, c Contact, text string) (string, bool) {
	name := c.DisplayName()
	if r.cfg.Logging.LogMessageContent {
		r.logger.Info("message received", "identity", c.ID, "name", name, "text", clip(text, logPreviewBytes))
	} else {
		r.logger.Info("message received", "identity", c.ID, "name", name)
	}
	r.audit(c.ID, name, store.DirectionIn, text, len(text))

	r.register(c)

	t := r.resolveTier(c.ID)
	if t == tier.Blocked {
		r.logger.Warn("dropping message from blocked identity", "identity", c.ID, "name", name)
		return "", false
	}
	if !t.AtLeast(tier.Normal) {
		if r.cfg.Permissions.NotifyUnauthorized {
			return r.cfg.Permissions.UnauthorizedMessage, true
		}
		return "", false
	}

	rate, err := r.store.CheckAndIncrement(c.ID, r.cfg.RateLimit.MaxPerMinute, r.cfg.RateLimit.MaxPerDay)
	if err != nil {
		r.logger.Error("rate limit check", "identity", c.ID, "error", err)
	} else if !rate.Allowed {
		return "⚠️ " + rate.Reason, true
	}

	if strings.HasPrefix(text, "/") {
		if reply, ok := r.runCommand(ctx, c, t, text); ok {
			r.audit(c.ID, name, store.DirectionOut, reply, commandAuditBytes)
			return reply, true
		}
	}

	if r.disallowed(text, t) {
		r.logger.Warn("blocked by security filter", "identity", c.ID, "name", name)
		return MsgDisallowed, true
	}

	friend, err := r.store.GetFriend(c.ID)
	if err != nil || friend == nil {
		r.logger.Error("load friend", "identity", c.ID, "error", err)
		return MsgInternalError, true
	}
	if c.ID == r.cfg.AdminID {
		friend.Tier = tier.Admin
	}

	reply := r.dispatch.Execute(ctx, friend, text)
	r.audit(c.ID, name, store.DirectionOut, reply, replyAuditBytes)
	r.logger.Info("reply sent", "identity", c.ID, "name", name, "bytes", len(reply))
	return reply, true
}

// resolveTier gives the configured admin Admin, otherwise the stored tier,
// falling back to the default tier for unknown identities.
func (r *Router) resolveTier(id string) tier.Tier {
	if id == r.cfg.AdminID {
		return tier.Admin
	}
	f, err := r.store.GetFriend(id)
	if err != nil {
		r.logger.Warn("lookup tier", "identity", id, "error", err)
	}
	if f == nil {
		return r.cfg.DefaultTier()
	}
	return f.Tier
}

// register records a first-time sender at the default tier and keeps
// display metadata of known senders current.
func (r *Router) register(c Contact) {
	existing, err := r.store.GetFriend(c.ID)
	if err != nil {
		r.logger.Warn("lookup friend", "identity", c.ID, "error", err)
		return
	}

	var remark *string
	if c.RemarkName != "" {
		remark = &c.RemarkName
	}

	if existing != nil {
		if existing.Nickname == c.Nickname && existing.RemarkName == c.RemarkName {
			return
		}
		if err := r.store.UpsertFriend(store.FriendUpdate{ID: c.ID, Nickname: &c.Nickname, RemarkName: remark}); err != nil {
			r.logger.Warn("refresh friend", "identity", c.ID, "error", err)
		}
		return
	}

	t := r.cfg.DefaultTier()
	if c.ID == r.cfg.AdminID {
		t = tier.Admin
	}
	if err := r.store.UpsertFriend(store.FriendUpdate{ID: c.ID, Nickname: &c.Nickname, RemarkName: remark, Tier: &t}); err != nil {
		r.logger.Warn("register friend", "identity", c.ID, "error", err)
		return
	}
	r.logger.Info("new friend registered", "identity", c.ID, "name", c.DisplayName(), "tier", t.String())
}

// disallowed reports whether text matches a blocked pattern. Admins are
// never filtered.
func (r *Router) disallowed(text string, t tier.Tier) bool {
	if t == tier.Admin {
		return false
	}
	for _, re := range r.blocked {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (r *Router) audit(id, name string, dir store.Direction, text string, max int) {
	msg := hiddenContent
	if r.cfg.Logging.LogMessageContent {
		msg = clip(text, max)
	}
	if err := r.store.AppendAudit(id, name, dir, msg, ""); err != nil {
		r.logger.Warn("append audit", "identity", id, "error", err)
	}
}

// clip returns the longest prefix of s within max bytes that ends on a
// rune boundary.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
