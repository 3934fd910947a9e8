package report

import (
	"fmt"
	"time"
)

// Identity is a GitHub user as shown in the report. Name falls back to
// Login when the profile has no display name.
type Identity struct {
	Login string
	Name  string
	URL   string
}

// DisplayName returns the best human-readable name for the identity.
func (id Identity) DisplayName() string {
	if id.Name != "" {
		return id.Name
	}
	return id.Login
}

// PullRequest is one merged or open change fetched within a run. It is
// immutable after fetching except for Summary, which the summarizer fills
// in afterwards.
type PullRequest struct {
	Number     int
	Title      string
	URL        string
	Repository string // "owner/name"
	Body       string
	Author     Identity
	CreatedAt  time.Time
	MergedAt   *time.Time
	Labels     []string   // source order
	Reviewers  []Identity // approved, non-bot, source order
	Commenters []Identity // non-bot, non-author, source order
	Files      []string   // changed paths, complete (display truncation is a rendering concern)
	Summary    string
}

// EventKind classifies one piece of review activity on a tracked user's PR.
type EventKind string

const (
	KindComment          EventKind = "comment"
	KindApproval         EventKind = "approval"
	KindChangesRequested EventKind = "changes-requested"
	KindReviewComment    EventKind = "review-comment"
)

// ReviewActivityEvent is a comment or review on a PR authored by the
// tracked user. Bot-authored and self-authored events are filtered out
// before construction, never stored.
type ReviewActivityEvent struct {
	Kind       EventKind
	Actor      Identity
	OccurredAt time.Time
	PRNumber   int
	PRTitle    string
	PRURL      string
	Body       string
}

// Window is a half-open UTC interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and normalizes a window to UTC.
func NewWindow(start, end time.Time) (Window, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return Window{}, fmt.Errorf("window start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// FilterCriteria restricts merged PRs by label and author. An empty
// slice means no filter on that axis.
type FilterCriteria struct {
	Labels    []string
	Usernames []string
}

// Empty reports whether no filtering is configured at all.
func (c FilterCriteria) Empty() bool {
	return len(c.Labels) == 0 && len(c.Usernames) == 0
}
