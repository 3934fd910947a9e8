package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const (
	maxFilesShown  = 15
	maxLabelsShown = 6
	maxBodyWidth   = 150
)

// Report is the assembled output document, built once per run and handed
// immutably to the renderer.
type Report struct {
	Window       Window
	Repositories []string
	Criteria     FilterCriteria
	GeneratedAt  time.Time
	Notes        []string
	Sections     []Section
	Stats        Stats
}

// Section is one ordered group of rendered entries. Compact sections fold
// their entries into the heading block; otherwise each entry is its own
// block, which matters for chunking.
type Section struct {
	Heading string
	Lead    string
	Entries []string
	Compact bool
}

// Stats are computed over the post-filter, pre-truncation entry set.
// FilesChanged is the sum of per-entry file counts; cross-PR dedup of
// paths is possible but not done since each path is scoped to one diff.
type Stats struct {
	TotalPRs      int
	UniqueAuthors int
	FilesChanged  int
}

// Options adjusts how merged entries are rendered.
type Options struct {
	ComponentLabelPrefix string
	SkipLabels           []string // hidden from rendering only, still filterable
}

// Assemble merges summarized PRs and review activity into an ordered
// report. Merged entries are sorted by merge time descending, ties broken
// by number descending. Tracked-user sections are omitted entirely when
// empty.
func Assemble(merged []PullRequest, awaiting []PullRequest, activity []ReviewActivityEvent,
	window Window, repos []string, criteria FilterCriteria, now time.Time, notes []string, opts Options) *Report {

	rep := &Report{
		Window:       window,
		Repositories: repos,
		Criteria:     criteria,
		GeneratedAt:  now.UTC(),
		Notes:        notes,
	}

	if len(awaiting) > 0 {
		entries := make([]string, 0, len(awaiting))
		for _, pr := range awaiting {
			entries = append(entries, renderAwaitingEntry(pr))
		}
		rep.Sections = append(rep.Sections, Section{
			Heading: fmt.Sprintf("## PRs Awaiting Your Review (%d)", len(awaiting)),
			Entries: entries,
			Compact: true,
		})
	}

	if len(activity) > 0 {
		sorted := make([]ReviewActivityEvent, len(activity))
		copy(sorted, activity)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
		})
		entries := make([]string, 0, len(sorted))
		for _, ev := range sorted {
			entries = append(entries, renderActivityEntry(ev))
		}
		rep.Sections = append(rep.Sections, Section{
			Heading: fmt.Sprintf("## Recent Activity on Your PRs (%d)", len(sorted)),
			Entries: entries,
			Compact: true,
		})
	}

	if len(merged) > 0 {
		sorted := make([]PullRequest, len(merged))
		copy(sorted, merged)
		sort.SliceStable(sorted, func(i, j int) bool {
			ti, tj := mergeTime(sorted[i]), mergeTime(sorted[j])
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return sorted[i].Number > sorted[j].Number
		})

		entries := make([]string, 0, len(sorted))
		authors := make(map[string]struct{})
		files := 0
		for _, pr := range sorted {
			entries = append(entries, renderMergedEntry(pr, opts))
			authors[pr.Author.Login] = struct{}{}
			files += len(pr.Files)
		}

		rep.Sections = append(rep.Sections, Section{
			Heading: fmt.Sprintf("## Merged PRs (%d total)", len(sorted)),
			Lead:    "**Filters:** " + criteria.describe(),
			Entries: entries,
		})
		rep.Stats = Stats{
			TotalPRs:      len(sorted),
			UniqueAuthors: len(authors),
			FilesChanged:  files,
		}
	}

	return rep
}

// Empty reports whether the report carries no entries at all.
func (r *Report) Empty() bool {
	return len(r.Sections) == 0
}

func mergeTime(pr PullRequest) time.Time {
	if pr.MergedAt != nil {
		return *pr.MergedAt
	}
	return pr.CreatedAt
}

func (c FilterCriteria) describe() string {
	labels := "None"
	if len(c.Labels) > 0 {
		labels = strings.Join(c.Labels, ", ")
	}
	usernames := "None"
	if len(c.Usernames) > 0 {
		usernames = strings.Join(c.Usernames, ", ")
	}
	return fmt.Sprintf("Labels: %s | Usernames: %s", labels, usernames)
}

func renderAwaitingEntry(pr PullRequest) string {
	return fmt.Sprintf("- [PR #%d: %s](%s) by **%s** (%s)",
		pr.Number, pr.Title, pr.URL, pr.Author.Login, pr.CreatedAt.UTC().Format("2006-01-02"))
}

func renderActivityEntry(ev ReviewActivityEvent) string {
	var indicator string
	switch ev.Kind {
	case KindApproval:
		indicator = "Approved"
	case KindChangesRequested:
		indicator = "Changes Requested"
	case KindReviewComment:
		indicator = "Review"
	default:
		indicator = "Comment"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- **%s** on [PR #%d: %s](%s)\n", indicator, ev.PRNumber, ev.PRTitle, ev.PRURL)
	fmt.Fprintf(&b, "  - By **%s** at %s UTC", ev.Actor.Login, ev.OccurredAt.UTC().Format("2006-01-02 15:04"))
	if body := oneline(ev.Body); body != "" {
		fmt.Fprintf(&b, "\n  - \"%s\"", runewidth.Truncate(body, maxBodyWidth, "..."))
	}
	return b.String()
}

func renderMergedEntry(pr PullRequest, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## [PR #%d: %s](%s)\n\n", pr.Number, pr.Title, pr.URL)
	fmt.Fprintf(&b, "**Opened:** %s UTC by %s\n\n", pr.CreatedAt.UTC().Format("2006-01-02 15:04"), identityLink(pr.Author))
	if pr.MergedAt != nil {
		fmt.Fprintf(&b, "**Merged:** %s UTC\n\n", pr.MergedAt.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "**Author:** %s\n\n", identityLink(pr.Author))

	var components, labels []string
	for _, name := range pr.Labels {
		if skipLabel(name, opts.SkipLabels) {
			continue
		}
		labels = append(labels, name)
		if opts.ComponentLabelPrefix != "" && strings.HasPrefix(name, opts.ComponentLabelPrefix) {
			components = append(components, name)
		}
	}
	if len(components) > 0 {
		fmt.Fprintf(&b, "**Components:** %s\n\n", strings.Join(components, ", "))
	}
	if len(labels) > 0 {
		shown := labels
		if len(shown) > maxLabelsShown {
			shown = shown[:maxLabelsShown]
		}
		text := strings.Join(shown, ", ")
		if rest := len(labels) - maxLabelsShown; rest > 0 {
			text += fmt.Sprintf(", and %d more", rest)
		}
		fmt.Fprintf(&b, "**Labels:** %s\n\n", text)
	}

	fmt.Fprintf(&b, "**Reviewers:** %s\n\n", identityList(pr.Reviewers))
	fmt.Fprintf(&b, "**Commenters:** %s\n\n", identityList(pr.Commenters))

	summary := pr.Summary
	if summary == "" {
		summary = "_Summary unavailable._"
	}
	b.WriteString(summary)
	b.WriteString("\n\n### Changed Files\n")

	shown := pr.Files
	if len(shown) > maxFilesShown {
		shown = shown[:maxFilesShown]
	}
	for _, path := range shown {
		fmt.Fprintf(&b, "\n- [`%s`](https://github.com/%s/blob/main/%s)", path, pr.Repository, path)
	}
	if rest := len(pr.Files) - maxFilesShown; rest > 0 {
		fmt.Fprintf(&b, "\n- ... and %d more files", rest)
	}

	return b.String()
}

func identityLink(id Identity) string {
	if id.URL == "" {
		return id.DisplayName()
	}
	return fmt.Sprintf("[%s](%s)", id.DisplayName(), id.URL)
}

func identityList(ids []Identity) string {
	if len(ids) == 0 {
		return "None"
	}
	links := make([]string, 0, len(ids))
	for _, id := range ids {
		links = append(links, identityLink(id))
	}
	return strings.Join(links, ", ")
}

func skipLabel(name string, skip []string) bool {
	for _, s := range skip {
		if name == s || (strings.HasSuffix(s, "*") && strings.HasPrefix(name, strings.TrimSuffix(s, "*"))) {
			return true
		}
	}
	return false
}

func oneline(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
