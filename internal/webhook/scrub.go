package webhook

import (
	"github.com/tidwall/sjson"
)

// secretPaths are payload fields that may carry credentials. GitHub's ping
// event echoes the webhook config, shared secret included.
var secretPaths = []string{
	"hook.config.secret",
	"hook.config.url",
	"installation.access_token",
	"repository.clone_url_with_token",
}

// scrubPayload removes credential-bearing fields before a payload is logged.
func scrubPayload(body []byte) []byte {
	for _, path := range secretPaths {
		if cleaned, err := sjson.DeleteBytes(body, path); err == nil {
			body = cleaned
		}
	}
	return body
}

func truncateForLog(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
