package bundle

import (
	"fmt"
	"sort"
	"strings"
)

// RenderMarkdown produces the human-readable Markdown report egress
// artifact . It is non-authoritative: a reader wanting proof
// must verify the JSON bundle via Verify, not trust this prose.
func RenderMarkdown(b *Bundle, result VerifyResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Claim %s\n\n", b.Claim.ClaimID)
	fmt.Fprintf(&sb, "- Status: **%s**\n", b.Claim.Status)
	fmt.Fprintf(&sb, "- Events: %d\n", b.Claim.EventCount)
	fmt.Fprintf(&sb, "- Exported: %s\n", b.Meta.ExportedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "- Verification: **%s**", result.Verdict)
	if result.Reason != "" {
		fmt.Fprintf(&sb, " (%s)", result.Reason)
	}
	sb.WriteString("\n\n> This report is a convenience rendering. It carries no cryptographic\n> weight of its own; verify the accompanying JSON bundle to confirm\n> these claims independently.\n\n")

	sb.WriteString("## Timeline\n\n")
	for _, ev := range b.Events {
		fmt.Fprintf(&sb, "### %d. %s\n", ev.SequenceNumber, ev.EventType)
		fmt.Fprintf(&sb, "- Recorded: %s\n", ev.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		if editor, ok := b.Editors[ev.CreatedBy.String()]; ok {
			fmt.Fprintf(&sb, "- Editor: %s\n", editor.Username)
		}
		fmt.Fprintf(&sb, "- Event hash: `%s`\n", ev.EventHash)
		for _, key := range sortedKeys(ev.Payload) {
			fmt.Fprintf(&sb, "  - %s: %v\n", key, ev.Payload[key])
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
