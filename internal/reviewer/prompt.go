package reviewer

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert code reviewer. Provide constructive, actionable feedback."

// reviewRules is the fixed rule-set document embedded in every review prompt.
const reviewRules = `
1. Correctness:
   - Verify logic against the stated intent of the change
   - Check boundary conditions and off-by-one errors
   - Watch for nil/null dereferences and unchecked type assertions
   - Verify concurrent access to shared state is synchronized

2. Security:
   - Never interpolate user input into SQL queries or shell commands
   - Validate and sanitize all external input
   - Never log or expose secrets, tokens or credentials
   - Check authentication and authorization on new endpoints

3. Error Handling:
   - Errors must be handled or explicitly propagated, never dropped
   - Error messages should carry enough context to diagnose
   - External calls (network, disk) need timeouts and failure paths
   - Avoid panics in library code

4. Performance:
   - Avoid N+1 query patterns and redundant round trips
   - Use batch operations where the API allows it
   - Watch for unbounded memory growth (caches, buffers, goroutines)
   - Do not optimize prematurely at the cost of clarity

5. Code Style:
   - Use meaningful variable and function names
   - Keep functions focused and concise
   - Avoid deep nesting (max 3-4 levels)
   - Use constants instead of magic numbers
   - Public API should carry documentation

6. Tests:
   - New behavior should come with tests
   - Tests should cover failure paths, not only the happy path
`

const resultFormat = `{
    "score": <overall score from 0-100>,
    "summary": "<brief summary of the review, highlighting main issues>",
    "comments": [
        {
            "file_path": "<relative file path>",
            "line_number": <line number or approximate>,
            "comment": "<specific feedback or issue description>",
            "severity": "<critical|high|medium|low|info>",
            "rule": "<which rule was violated or best practice>",
            "rule_category": "<correctness|security|performance|style|documentation|best_practice|error|other>"
        }
    ]
}`

// truncateDiff caps the diff at maxLines, appending a notice when cut.
func truncateDiff(diff string, maxLines int) string {
	lines := strings.Split(diff, "\n")
	if len(lines) <= maxLines {
		return diff
	}
	truncated := strings.Join(lines[:maxLines], "\n")
	return truncated + fmt.Sprintf("\n\n[NOTE: Diff truncated at %d lines for review]", maxLines)
}

// buildPrompt assembles the deterministic review instruction for one diff.
func buildPrompt(repoFullName, diff string, maxDiffLines int) string {
	diff = truncateDiff(diff, maxDiffLines)

	var b strings.Builder
	b.WriteString("Review the following code diff and provide constructive feedback.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n\n", repoFullName)
	b.WriteString("Code Diff:\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n\n")
	b.WriteString("Review Rules:\n")
	b.WriteString(reviewRules)
	b.WriteString("\nPlease respond in the following JSON format:\n")
	b.WriteString(resultFormat)
	b.WriteString(`

Scoring Guidelines:
- 90-100: Excellent code, follows all best practices
- 80-89: Good code with minor issues
- 70-79: Decent code with some issues
- 60-69: Code needs improvements
- Below 60: Significant issues present
- Subtract 10 points for each critical issue
- Subtract 5 points for each high severity issue
- Subtract 2 points for each medium severity issue

Focus on actionable, specific feedback. Be constructive and helpful.
`)
	return b.String()
}
