package executor

import (
	"fmt"
	"strings"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
)

const (
	toolNoteRestricted = "- WARNING: This user is limited to Q&A only. Do not execute any code, shell commands, or file operations"
	toolNoteAllowed    = "- This user can request code execution and file operations"
)

// BuildPrompt renders the system prompt that tells the agent who it is
// talking to and what it may do.
func BuildPrompt(f *store.Friend, toolsAllowed bool) string {
	note := toolNoteAllowed
	if !toolsAllowed {
		note = toolNoteRestricted
	}

	var b strings.Builder
	b.WriteString("Current user identity:\n")
	fmt.Fprintf(&b, "- WeChat ID: %s\n", f.ID)
	fmt.Fprintf(&b, "- Nickname: %s\n", f.DisplayName())
	fmt.Fprintf(&b, "- Permission level: %s (%s)\n", f.Tier, f.Tier.Description())
	b.WriteString("\nEnvironment:\n")
	b.WriteString("- You are running in this user's dedicated Docker container\n")
	fmt.Fprintf(&b, "- Working directory: %s (persistent storage)\n", docker.WorkspaceMount)
	b.WriteString("- Container is fully isolated from other users\n")
	b.WriteString(note + "\n")
	b.WriteString("- Keep responses concise, suitable for WeChat reading")
	return b.String()
}
