package reviewer

import (
	"strings"
	"testing"

	"pr-review-hub/internal/domain"
)

func TestParseResultFullResponse(t *testing.T) {
	raw := `{
        "score": 85,
        "summary": "Good code with minor issues",
        "comments": [
            {
                "file_path": "main.go",
                "line_number": 42,
                "comment": "Unchecked error return",
                "severity": "high",
                "rule": "Errors must be handled",
                "rule_category": "error"
            }
        ]
    }`
	result := parseResult(raw)
	if result.Score != 85 {
		t.Errorf("score = %d, want 85", result.Score)
	}
	if result.Summary != "Good code with minor issues" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(result.Comments))
	}
	c := result.Comments[0]
	if c.FilePath != "main.go" || c.LineNumber != 42 || c.Severity != domain.SeverityHigh {
		t.Errorf("unexpected comment: %+v", c)
	}
}

func TestParseResultToleratesSurroundingProse(t *testing.T) {
	raw := "Sure! Here is my review:\n\n```json\n" +
		`{"score": 70, "summary": "ok", "comments": []}` +
		"\n```\n\nLet me know if you need anything else."
	result := parseResult(raw)
	if result.Score != 70 || result.Summary != "ok" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestParseResultBracesInsideStrings(t *testing.T) {
	raw := `{"score": 60, "summary": "uses map[string]struct{} oddly", "comments": [
        {"comment": "replace {magic} literal", "severity": "low"}
    ]}`
	result := parseResult(raw)
	if result.Score != 60 {
		t.Errorf("score = %d, want 60", result.Score)
	}
	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(result.Comments))
	}
}

func TestParseResultDefensiveDefaults(t *testing.T) {
	result := parseResult(`{"comments": [{}]}`)
	if result.Score != 0 {
		t.Errorf("missing score should default to 0, got %d", result.Score)
	}
	if result.Summary != "No summary provided" {
		t.Errorf("unexpected default summary: %q", result.Summary)
	}
	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(result.Comments))
	}
	c := result.Comments[0]
	if c.Severity != domain.SeverityMedium {
		t.Errorf("default severity = %s, want medium", c.Severity)
	}
	if c.FilePath != "Unknown" {
		t.Errorf("default file path = %q, want Unknown", c.FilePath)
	}
	if c.LineNumber != 0 {
		t.Errorf("default line number = %d, want 0", c.LineNumber)
	}
	if c.RuleCategory != "generic" {
		t.Errorf("default rule category = %q, want generic", c.RuleCategory)
	}
}

func TestParseResultInvalidSeverityFallsBack(t *testing.T) {
	result := parseResult(`{"score": 50, "comments": [{"severity": "catastrophic"}]}`)
	if result.Comments[0].Severity != domain.SeverityMedium {
		t.Errorf("invalid severity should fall back to medium, got %s", result.Comments[0].Severity)
	}
}

func TestParseResultGarbageBecomesZeroScore(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not review this PR.",
		"{ broken json",
		"[1, 2, 3]",
	} {
		result := parseResult(raw)
		if result == nil {
			t.Fatalf("parseResult(%q) returned nil", raw)
		}
		if result.Score != 0 {
			t.Errorf("parseResult(%q).Score = %d, want 0", raw, result.Score)
		}
		if len(result.Comments) != 0 {
			t.Errorf("parseResult(%q) produced comments: %v", raw, result.Comments)
		}
		if !strings.Contains(result.Summary, "Failed to parse") {
			t.Errorf("parseResult(%q) summary should explain the failure: %q", raw, result.Summary)
		}
	}
}

func TestParseResultClampsScore(t *testing.T) {
	if got := parseResult(`{"score": 150}`).Score; got != 100 {
		t.Errorf("score 150 should clamp to 100, got %d", got)
	}
	if got := parseResult(`{"score": -5}`).Score; got != 0 {
		t.Errorf("score -5 should clamp to 0, got %d", got)
	}
}

func TestExtractJSONObjectFirstBalanced(t *testing.T) {
	s := `noise {"a": {"b": 1}} trailing {"c": 2}`
	got, ok := extractJSONObject(s)
	if !ok {
		t.Fatal("expected a JSON object")
	}
	if got != `{"a": {"b": 1}}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestTruncateDiff(t *testing.T) {
	diff := strings.Repeat("line\n", 100)
	got := truncateDiff(diff, 10)
	if !strings.Contains(got, "truncated at 10 lines") {
		t.Errorf("expected truncation notice, got tail %q", got[len(got)-60:])
	}
	lines := strings.Split(got, "\n")
	// 10 diff lines plus the notice block
	if len(lines) > 13 {
		t.Errorf("truncated diff too long: %d lines", len(lines))
	}

	short := "a\nb\nc"
	if truncateDiff(short, 10) != short {
		t.Error("short diff should pass through untouched")
	}
}
