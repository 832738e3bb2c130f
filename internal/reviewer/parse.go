package reviewer

import (
	"encoding/json"
	"fmt"
	"strings"

	"pr-review-hub/internal/domain"
)

// Result is the structured verdict of one review call.
type Result struct {
	Score    int             `json:"score"`
	Summary  string          `json:"summary"`
	Comments []ResultComment `json:"comments"`
}

// ResultComment is one located piece of feedback inside a Result.
type ResultComment struct {
	FilePath     string          `json:"file_path"`
	LineNumber   int             `json:"line_number"`
	Body         string          `json:"comment"`
	Severity     domain.Severity `json:"severity"`
	Rule         string          `json:"rule"`
	RuleCategory string          `json:"rule_category"`
}

func failureResult(reason string) *Result {
	return &Result{Score: 0, Summary: reason, Comments: []ResultComment{}}
}

// cleanMarkdown removes markdown code block wrappers from JSON strings.
// Commonly needed when parsing LLM responses that wrap output in fencing.
func cleanMarkdown(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced {...} object in s, tolerant
// of surrounding prose. String literals and escapes are respected so braces
// inside comment text do not break the scan.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

type rawComment struct {
	FilePath     *string `json:"file_path"`
	LineNumber   *int    `json:"line_number"`
	Comment      *string `json:"comment"`
	Severity     *string `json:"severity"`
	Rule         *string `json:"rule"`
	RuleCategory *string `json:"rule_category"`
}

type rawResult struct {
	Score    *int         `json:"score"`
	Summary  *string      `json:"summary"`
	Comments []rawComment `json:"comments"`
}

// parseResult extracts the structured verdict from a raw LLM response.
// Missing keys get defensive defaults; an unparseable response becomes a
// zero-score result instead of an error so the pipeline stays uniform.
func parseResult(raw string) *Result {
	jsonStr, ok := extractJSONObject(cleanMarkdown(raw))
	if !ok {
		return failureResult("Failed to parse AI review: no JSON object in response")
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return failureResult(fmt.Sprintf("Failed to parse AI review: %v", err))
	}

	result := &Result{
		Score:    0,
		Summary:  "No summary provided",
		Comments: []ResultComment{},
	}
	if parsed.Score != nil {
		result.Score = clampScore(*parsed.Score)
	}
	if parsed.Summary != nil {
		result.Summary = *parsed.Summary
	}

	for _, rc := range parsed.Comments {
		c := ResultComment{
			FilePath:     "Unknown",
			LineNumber:   0,
			Severity:     domain.SeverityMedium,
			RuleCategory: "generic",
		}
		if rc.FilePath != nil && *rc.FilePath != "" {
			c.FilePath = *rc.FilePath
		}
		if rc.LineNumber != nil {
			c.LineNumber = *rc.LineNumber
		}
		if rc.Comment != nil {
			c.Body = *rc.Comment
		}
		if rc.Severity != nil && domain.ValidSeverity(domain.Severity(*rc.Severity)) {
			c.Severity = domain.Severity(*rc.Severity)
		}
		if rc.Rule != nil {
			c.Rule = *rc.Rule
		}
		if rc.RuleCategory != nil && *rc.RuleCategory != "" {
			c.RuleCategory = *rc.RuleCategory
		}
		result.Comments = append(result.Comments, c)
	}
	return result
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
