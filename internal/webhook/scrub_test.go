package webhook

import (
	"strings"
	"testing"
)

func TestScrubPayloadRemovesSecrets(t *testing.T) {
	body := []byte(`{
        "zen": "Keep it logically awesome.",
        "hook": {"id": 1, "config": {"secret": "super-secret", "url": "https://hub.example/webhook/github", "content_type": "json"}},
        "repository": {"full_name": "acme/rockets"}
    }`)
	cleaned := string(scrubPayload(body))
	if strings.Contains(cleaned, "super-secret") {
		t.Error("webhook secret survived scrubbing")
	}
	if !strings.Contains(cleaned, "acme/rockets") {
		t.Error("scrubbing must keep unrelated fields")
	}
	if !strings.Contains(cleaned, "content_type") {
		t.Error("scrubbing must keep sibling config fields")
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := truncateForLog([]byte("abcdef"), 3); got != "abc..." {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := truncateForLog([]byte("ab"), 3); got != "ab" {
		t.Errorf("short input should pass through: %q", got)
	}
}
