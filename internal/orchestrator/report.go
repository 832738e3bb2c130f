package orchestrator

import (
	"fmt"
	"strings"

	"pr-review-hub/internal/reviewer"
)

// formatReport renders the markdown comment posted back to the origin PR.
func formatReport(result *reviewer.Result) string {
	var b strings.Builder
	b.WriteString("## 🤖 AI Code Review\n\n")
	b.WriteString(result.Summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**Score: %d/100**\n", result.Score)

	if len(result.Comments) > 0 {
		b.WriteString("\n### Issues Found:\n\n")
		for _, c := range result.Comments {
			fmt.Fprintf(&b, "- **%s**: `%s`:%d - %s\n",
				strings.ToUpper(string(c.Severity)), c.FilePath, c.LineNumber, c.Body)
		}
	}
	return b.String()
}
