package router

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/executor"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

const logMessageBytes = 60

func formatStatus(f *store.Friend, sess *store.Session, st executor.Status) string {
	name, level := "unknown", "none"
	if f != nil {
		name = f.DisplayName()
		level = f.Tier.String()
	}
	session := "none"
	if sess != nil {
		session = fmt.Sprintf("active (%d messages)", sess.MessageCount)
	}
	state := "⏹️ stopped"
	if st.Running {
		state = "✅ running"
	}

	lines := []string{
		"📊 Current status:\n",
		"👤 " + name,
		"🔑 Permission: " + level,
		"💬 Session: " + session,
		"",
		"🐳 Container: " + st.Name,
		"   State: " + state,
	}
	if s := st.Stats; s != nil {
		lines = append(lines,
			fmt.Sprintf("   CPU: %.1f%%", s.CPUPercent),
			fmt.Sprintf("   Memory: %s / %s", formatBytes(s.MemoryUsage), formatBytes(s.MemoryLimit)),
			fmt.Sprintf("   Processes: %d", s.Pids),
		)
	}
	if st.Disk != "" {
		lines = append(lines, "   Disk: "+st.Disk)
	}
	return strings.Join(lines, "\n")
}

func formatBytes(b uint64) string {
	return units.BytesSize(float64(b))
}

var tierGroups = []struct {
	tier  tier.Tier
	icon  string
	label string
}{
	{tier.Admin, "👑", "ADMIN"},
	{tier.Trusted, "⭐", "TRUSTED"},
	{tier.Normal, "👤", "NORMAL"},
	{tier.Blocked, "🚫", "BLOCKED"},
	{tier.Unknown, "⏳", "PENDING"},
}

// formatFriends groups friends by tier, most privileged first.
func formatFriends(friends []*store.Friend) string {
	if len(friends) == 0 {
		return "No friends yet"
	}

	lines := []string{"👥 Friends:\n"}
	for _, g := range tierGroups {
		var names []string
		for _, f := range friends {
			if f.Tier == g.tier {
				names = append(names, "  "+f.DisplayName())
			}
		}
		if len(names) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s:", g.icon, g.label))
		lines = append(lines, names...)
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func formatLogs(entries []*store.AuditEntry) string {
	if len(entries) == 0 {
		return "No logs yet"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		icon := "📤"
		if e.Direction == store.DirectionIn {
			icon = "📩"
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s: %s",
			icon, e.Timestamp.Format("15:04:05"), e.Nickname, clip(e.Message, logMessageBytes)))
	}
	return strings.Join(lines, "\n")
}

// formatContainers renders managed containers. nameOf maps an identity to
// a display name, returning "" when unknown.
func formatContainers(containers []docker.ContainerInfo, nameOf func(string) string) string {
	if len(containers) == 0 {
		return "🐳 No containers"
	}
	lines := []string{"🐳 Containers:\n"}
	for _, c := range containers {
		icon := "⏹️"
		if c.Running() {
			icon = "✅"
		}
		name := nameOf(c.Identity)
		if name == "" {
			name = c.Identity
		}
		if name == "" {
			name = "unknown"
		}
		t := c.Tier
		if t == "" {
			t = "?"
		}
		lines = append(lines,
			fmt.Sprintf("%s %s [%s]", icon, name, t),
			fmt.Sprintf("   %s: %s", c.Name, c.Status),
		)
	}
	return strings.Join(lines, "\n")
}
