package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

const (
	logsLimit = 20

	msgQueryFailed      = "❌ Query failed"
	msgListFailed       = "❌ Failed to list containers"
	msgMultipleMatches  = "Multiple matches, please be more specific"
	msgFriendMustSpeak  = "the friend needs to send a message first"
	msgSessionCleared   = "✅ Session cleared, next message starts a new context"
	msgNoRunningProcess = "No running process"
)

type handlerFunc func(ctx context.Context, c Contact, t tier.Tier, args string) string

type command struct {
	name        string
	min         tier.Tier
	description string
	run         handlerFunc
}

// commandTable lists the commands in the order /help shows them.
func (r *Router) commandTable() []command {
	return []command{
		{"/help", tier.Normal, "Show available commands", r.cmdHelp},
		{"/status", tier.Normal, "Show your status and container info", r.cmdStatus},
		{"/clear", tier.Normal, "Clear conversation history", r.cmdClear},

		{"/allow", tier.Admin, "Authorize a friend: /allow <name> [trusted|normal|admin]", r.cmdAllow},
		{"/block", tier.Admin, "Block a friend: /block <name>", r.cmdBlock},
		{"/list", tier.Admin, "List all friends", r.cmdList},
		{"/logs", tier.Admin, "View logs: /logs [name]", r.cmdLogs},
		{"/kill", tier.Admin, "Kill a friend's process: /kill <name>", r.cmdKill},
		{"/containers", tier.Admin, "Show all containers", r.cmdContainers},
		{"/restart", tier.Admin, "Restart a container: /restart <name>", r.cmdRestart},
		{"/destroy", tier.Admin, "Destroy a container (data kept): /destroy <name>", r.cmdDestroy},
		{"/rebuild", tier.Admin, "Rebuild a container: /rebuild <name>", r.cmdRebuild},
		{"/stopall", tier.Admin, "Stop all containers", r.cmdStopAll},
	}
}

// runCommand executes text as a command. It reports false when the first
// word is not a known command so the text can go to the agent instead.
func (r *Router) runCommand(ctx context.Context, c Contact, t tier.Tier, text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	name := strings.ToLower(fields[0])
	args := strings.Join(fields[1:], " ")

	for _, cmd := range r.commands {
		if cmd.name != name {
			continue
		}
		if !t.AtLeast(cmd.min) {
			return MsgInsufficientPermission, true
		}
		r.logger.Info("command", "identity", c.ID, "command", name)
		return cmd.run(ctx, c, t, args), true
	}
	return "", false
}

func (r *Router) cmdHelp(_ context.Context, _ Contact, t tier.Tier, _ string) string {
	lines := []string{"📖 Available commands:\n"}
	for _, cmd := range r.commands {
		if t.AtLeast(cmd.min) {
			lines = append(lines, cmd.name+" - "+cmd.description)
		}
	}
	lines = append(lines, "\nSend a plain text message to chat with Claude")
	return strings.Join(lines, "\n")
}

func (r *Router) cmdStatus(ctx context.Context, c Contact, _ tier.Tier, _ string) string {
	friend, err := r.store.GetFriend(c.ID)
	if err != nil {
		r.logger.Warn("status: load friend", "identity", c.ID, "error", err)
	}
	sess, err := r.store.GetActiveSession(c.ID)
	if err != nil {
		r.logger.Warn("status: load session", "identity", c.ID, "error", err)
	}
	status := r.dispatch.ContainerStatus(ctx, c.ID)

	return formatStatus(friend, sess, status)
}

func (r *Router) cmdClear(ctx context.Context, c Contact, _ tier.Tier, _ string) string {
	if err := r.dispatch.ClearSession(ctx, c.ID, false); err != nil {
		r.logger.Warn("clear session", "identity", c.ID, "error", err)
	}
	return msgSessionCleared
}

func (r *Router) cmdAllow(_ context.Context, _ Contact, _ tier.Tier, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "Usage: /allow <name> [trusted|normal|admin]"
	}
	search := fields[0]
	level := "trusted"
	if len(fields) > 1 {
		level = fields[1]
	}

	t := tier.Parse(level)
	if t != tier.Trusted && t != tier.Normal && t != tier.Admin {
		return "❌ Invalid permission level, choose from: trusted, normal, admin"
	}

	matches, err := r.store.FindFriends(search)
	if err != nil {
		r.logger.Error("find friends", "search", search, "error", err)
		return msgQueryFailed
	}
	switch len(matches) {
	case 0:
		return fmt.Sprintf("❌ Not found %q, %s", search, msgFriendMustSpeak)
	case 1:
	default:
		names := make([]string, 0, len(matches))
		for _, f := range matches {
			names = append(names, fmt.Sprintf("%s(%s)", f.DisplayName(), f.ID))
		}
		return "Multiple matches:\n" + strings.Join(names, "\n") + "\nPlease be more specific"
	}

	friend := matches[0]
	if err := r.store.SetTier(friend.ID, t); err != nil {
		r.logger.Error("set tier", "identity", friend.ID, "error", err)
		return msgQueryFailed
	}
	r.logger.Info("tier changed", "identity", friend.ID, "tier", t.String())
	return fmt.Sprintf("✅ %s → %s", friend.DisplayName(), t)
}

// findOne resolves a name fragment to exactly one friend. When it cannot,
// the returned string is the reply explaining why.
func (r *Router) findOne(search string) (*store.Friend, string) {
	search = strings.TrimSpace(search)
	matches, err := r.store.FindFriends(search)
	if err != nil {
		r.logger.Error("find friends", "search", search, "error", err)
		return nil, msgQueryFailed
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Sprintf("❌ Not found %q", search)
	case 1:
		return matches[0], ""
	}
	return nil, msgMultipleMatches
}

func (r *Router) cmdBlock(ctx context.Context, _ Contact, _ tier.Tier, args string) string {
	if args == "" {
		return "Usage: /block <name>"
	}
	friend, reply := r.findOne(args)
	if friend == nil {
		return reply
	}
	if err := r.store.SetTier(friend.ID, tier.Blocked); err != nil {
		r.logger.Error("set tier", "identity", friend.ID, "error", err)
		return msgQueryFailed
	}
	if _, err := r.dispatch.DestroyContainer(ctx, friend.ID); err != nil {
		r.logger.Warn("destroy container", "identity", friend.ID, "error", err)
	}
	r.logger.Info("friend blocked", "identity", friend.ID)
	return fmt.Sprintf("🚫 Blocked %s, container destroyed", friend.DisplayName())
}

func (r *Router) cmdList(_ context.Context, _ Contact, _ tier.Tier, _ string) string {
	friends, err := r.store.ListFriends()
	if err != nil {
		r.logger.Error("list friends", "error", err)
		return msgQueryFailed
	}
	return formatFriends(friends)
}

func (r *Router) cmdLogs(_ context.Context, _ Contact, _ tier.Tier, args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		entries, err := r.store.RecentAudit(logsLimit)
		if err != nil {
			r.logger.Error("recent audit", "error", err)
			return msgQueryFailed
		}
		return formatLogs(entries)
	}

	matches, err := r.store.FindFriends(args)
	if err != nil {
		r.logger.Error("find friends", "search", args, "error", err)
		return msgQueryFailed
	}
	if len(matches) == 0 {
		return fmt.Sprintf("❌ Not found %q", args)
	}
	entries, err := r.store.AuditByIdentity(matches[0].ID, logsLimit)
	if err != nil {
		r.logger.Error("audit by identity", "identity", matches[0].ID, "error", err)
		return msgQueryFailed
	}
	return formatLogs(entries)
}

func (r *Router) cmdKill(ctx context.Context, _ Contact, _ tier.Tier, args string) string {
	if args == "" {
		return "Usage: /kill <name>"
	}
	friend, reply := r.findOne(args)
	if friend == nil {
		return reply
	}
	if !r.dispatch.KillProcess(ctx, friend.ID) {
		return msgNoRunningProcess
	}
	return fmt.Sprintf("✅ Killed %s's process", friend.DisplayName())
}

func (r *Router) cmdContainers(ctx context.Context, _ Contact, _ tier.Tier, _ string) string {
	containers, err := r.dispatch.ListContainers(ctx)
	if err != nil {
		r.logger.Error("list containers", "error", err)
		return msgListFailed
	}
	return formatContainers(containers, r.friendName)
}

// friendName looks up the display name for an identity, or "" if unknown.
func (r *Router) friendName(id string) string {
	if id == "" {
		return ""
	}
	f, err := r.store.GetFriend(id)
	if err != nil || f == nil {
		return ""
	}
	return f.DisplayName()
}

func (r *Router) cmdRestart(ctx context.Context, _ Contact, _ tier.Tier, args string) string {
	if args == "" {
		return "Usage: /restart <name>"
	}
	friend, reply := r.findOne(args)
	if friend == nil {
		return reply
	}
	if _, err := r.dispatch.StopContainer(ctx, friend.ID); err != nil {
		r.logger.Warn("stop container", "identity", friend.ID, "error", err)
	}
	if err := r.dispatch.ClearSession(ctx, friend.ID, false); err != nil {
		r.logger.Warn("clear session", "identity", friend.ID, "error", err)
	}
	return fmt.Sprintf("🔄 Restarted %s's container (starts on next message)", friend.DisplayName())
}

func (r *Router) cmdDestroy(ctx context.Context, _ Contact, _ tier.Tier, args string) string {
	if args == "" {
		return "Usage: /destroy <name>"
	}
	friend, reply := r.findOne(args)
	if friend == nil {
		return reply
	}
	if _, err := r.dispatch.DestroyContainer(ctx, friend.ID); err != nil {
		r.logger.Warn("destroy container", "identity", friend.ID, "error", err)
	}
	return fmt.Sprintf("🗑️ Destroyed %s's container (data kept, rebuilt on next message)", friend.DisplayName())
}

func (r *Router) cmdRebuild(ctx context.Context, _ Contact, _ tier.Tier, args string) string {
	if args == "" {
		return "Usage: /rebuild <name>"
	}
	friend, reply := r.findOne(args)
	if friend == nil {
		return reply
	}
	t := friend.Tier
	if friend.ID == r.cfg.AdminID {
		t = tier.Admin
	}
	if err := r.dispatch.RebuildContainer(ctx, friend.ID, t); err != nil {
		r.logger.Error("rebuild container", "identity", friend.ID, "error", err)
		return fmt.Sprintf("❌ Failed to rebuild %s's container", friend.DisplayName())
	}
	return fmt.Sprintf("🔨 Rebuilt %s's container", friend.DisplayName())
}

func (r *Router) cmdStopAll(ctx context.Context, _ Contact, _ tier.Tier, _ string) string {
	n, err := r.dispatch.StopAll(ctx)
	if err != nil {
		r.logger.Error("stop all", "error", err)
		return msgListFailed
	}
	return fmt.Sprintf("⏹️ Stopped all %d containers", n)
}
