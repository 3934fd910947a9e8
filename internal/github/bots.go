package github

import "strings"

// Automation accounts excluded from reviewer and commenter lists.
var knownBots = map[string]struct{}{
	"dependabot":     {},
	"github-actions": {},
	"codecov":        {},
	"renovate":       {},
	"greenkeeper":    {},
	"snyk-bot":       {},
	"graphite-app":   {},
}

func isBot(login, userType string) bool {
	if login == "" || userType == "Bot" {
		return true
	}
	if strings.HasSuffix(login, "[bot]") {
		return true
	}
	_, known := knownBots[login]
	return known
}
