package report

import "slices"

// Apply filters merged PRs by the configured criteria. It is pure and
// order-preserving. A PR passes when its label set intersects the label
// filter (or the filter is empty) and its author is in the username
// filter (or that filter is empty). Matching is exact string equality.
func Apply(prs []PullRequest, criteria FilterCriteria) []PullRequest {
	if criteria.Empty() {
		return prs
	}

	filtered := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		if !matchesLabels(pr, criteria.Labels) {
			continue
		}
		if !matchesAuthor(pr, criteria.Usernames) {
			continue
		}
		filtered = append(filtered, pr)
	}
	return filtered
}

func matchesLabels(pr PullRequest, labels []string) bool {
	if len(labels) == 0 {
		return true
	}
	for _, want := range labels {
		if slices.Contains(pr.Labels, want) {
			return true
		}
	}
	return false
}

func matchesAuthor(pr PullRequest, usernames []string) bool {
	if len(usernames) == 0 {
		return true
	}
	return slices.Contains(usernames, pr.Author.Login)
}
