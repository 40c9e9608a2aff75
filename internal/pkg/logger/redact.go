package logger

import (
	"net/url"
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(`https?://[^\s,\]"]+`)

// RedactURL reduces a URL to its host so paths and query strings never reach the logs.
// "https://news.test/a?id=7" → "news.test"
func RedactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Hostname()
}

// RedactID masks an identifier, keeping the first four characters.
// "9f3c2a71-..." → "9f3c***"
func RedactID(id string) string {
	if len(id) > 4 {
		return id[:4] + "***"
	}
	return "***"
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "user") || strings.Contains(key, "device") {
		return RedactID(val)
	}
	return urlRegex.ReplaceAllStringFunc(val, RedactURL)
}
