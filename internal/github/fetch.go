package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v69/github"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github-summary/internal/report"
)

const (
	pageSize       = 100
	maxActorBody   = 300
	dateFormat     = "2006-01-02"
	timestampQuery = "2006-01-02T15:04:05Z"
)

// FetchError marks a repository whose fetch failed. The caller skips
// that repository, notes it in the report and continues with the rest.
type FetchError struct {
	Repo string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Repo, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is everything fetched for one repository.
type Result struct {
	Merged         []report.PullRequest
	AwaitingReview []report.PullRequest
	ActivityOnMine []report.ReviewActivityEvent
}

// Fetch returns the merged PRs in the window plus, when trackedUser is
// set, the open PRs awaiting that user's review and the recent review
// activity on that user's own PRs.
func (c *Client) Fetch(ctx context.Context, repo string, window report.Window, trackedUser string) (*Result, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}

	merged, err := c.fetchMerged(ctx, owner, name, window)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}

	result := &Result{Merged: merged}
	if trackedUser == "" {
		return result, nil
	}

	awaiting, err := c.fetchAwaitingReview(ctx, owner, name, trackedUser)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}
	result.AwaitingReview = awaiting

	activity, err := c.fetchActivity(ctx, owner, name, window, trackedUser)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}
	result.ActivityOnMine = activity
	return result, nil
}

// fetchMerged picks the cheap list path for normal volume, or partitions
// the window into per-day search queries when a single query for the
// whole window would exceed the per-query result cap.
func (c *Client) fetchMerged(ctx context.Context, owner, name string, window report.Window) ([]report.PullRequest, error) {
	total, err := c.countMerged(ctx, owner, name, window)
	if err != nil {
		return nil, err
	}

	var prs []report.PullRequest
	if total > c.highVolumeThreshold {
		c.log.Info("high-volume repository, partitioning window by day",
			zap.String("repo", owner+"/"+name), zap.Int("total", total))
		prs, err = c.searchMergedByDay(ctx, owner, name, window)
	} else {
		prs, err = c.listMerged(ctx, owner, name, window)
	}
	if err != nil {
		return nil, err
	}

	for i := range prs {
		if err := c.enrich(ctx, &prs[i], owner, name); err != nil {
			return nil, err
		}
	}
	return prs, nil
}

// countMerged probes how many PRs merged in the window without fetching
// them, using a single minimal search page.
func (c *Client) countMerged(ctx context.Context, owner, name string, window report.Window) (int, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr is:merged merged:%s..%s",
		owner, name, window.Start.Format(dateFormat), window.End.Format(dateFormat))
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 1}}

	var result *github.IssuesSearchResult
	err := c.paced(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Search.Issues(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return 0, fmt.Errorf("counting merged PRs: %w", err)
	}
	return result.GetTotal(), nil
}

// listMerged pages through closed PRs newest-updated first and keeps the
// ones merged in the window. Once the newest item on a page was last
// updated before the window start, all further pages are older and are
// skipped.
func (c *Client) listMerged(ctx context.Context, owner, name string, window report.Window) ([]report.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var merged []report.PullRequest
	for {
		var prs []*github.PullRequest
		var next int
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			prs, resp, err = c.gh.PullRequests.List(ctx, owner, name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing closed PRs: %w", err)
		}
		if len(prs) == 0 {
			break
		}

		stop := prs[0].GetUpdatedAt().Time.Before(window.Start)
		for _, pr := range prs {
			mergedAt := pr.GetMergedAt().Time
			if pr.MergedAt == nil || !window.Contains(mergedAt) {
				continue
			}
			merged = append(merged, toPullRequest(pr, owner+"/"+name))
		}
		if stop || next == 0 {
			break
		}
		opts.Page = next
	}
	return merged, nil
}

// searchMergedByDay issues one bounded search per UTC day of the window,
// merging the partitions with deduplication by PR number. Partial edge
// days are clamped to the window, and the precise half-open check runs
// against the PR's real merge timestamp since the search date filter is
// day-granular and inclusive on both sides.
func (c *Client) searchMergedByDay(ctx context.Context, owner, name string, window report.Window) ([]report.PullRequest, error) {
	seen := make(map[int]struct{})
	var merged []report.PullRequest

	for _, day := range dayWindows(window) {
		query := fmt.Sprintf("repo:%s/%s is:pr is:merged merged:%s",
			owner, name, day.Start.Format(dateFormat))
		opts := &github.SearchOptions{
			Sort:        "updated",
			Order:       "desc",
			ListOptions: github.ListOptions{PerPage: pageSize},
		}

		for {
			var result *github.IssuesSearchResult
			var next int
			err := c.paced(ctx, func() (*github.Response, error) {
				var resp *github.Response
				var err error
				result, resp, err = c.gh.Search.Issues(ctx, query, opts)
				if resp != nil {
					next = resp.NextPage
				}
				return resp, err
			})
			if err != nil {
				return nil, fmt.Errorf("searching merged PRs for %s: %w", day.Start.Format(dateFormat), err)
			}

			for _, issue := range result.Issues {
				number := issue.GetNumber()
				if _, dup := seen[number]; dup {
					continue
				}
				seen[number] = struct{}{}

				var pr *github.PullRequest
				err := c.paced(ctx, func() (*github.Response, error) {
					var resp *github.Response
					var err error
					pr, resp, err = c.gh.PullRequests.Get(ctx, owner, name, number)
					return resp, err
				})
				if err != nil {
					return nil, fmt.Errorf("fetching PR #%d: %w", number, err)
				}
				if pr.MergedAt == nil || !window.Contains(pr.GetMergedAt().Time) {
					continue
				}
				merged = append(merged, toPullRequest(pr, owner+"/"+name))
			}
			if next == 0 {
				break
			}
			opts.Page = next
		}
	}
	return merged, nil
}

// dayWindows partitions a window into UTC-day sub-windows. The first and
// last partitions use the narrower of the day boundary and the window
// edge.
func dayWindows(w report.Window) []report.Window {
	var days []report.Window
	for cur := w.Start.UTC().Truncate(24 * time.Hour); cur.Before(w.End); cur = cur.Add(24 * time.Hour) {
		start, end := cur, cur.Add(24*time.Hour)
		if start.Before(w.Start) {
			start = w.Start
		}
		if w.End.Before(end) {
			end = w.End
		}
		days = append(days, report.Window{Start: start, End: end})
	}
	return days
}

// enrich fills in the changed files, approving reviewers and commenters
// of one PR. The file list stays complete here; display truncation is
// the report's concern since the statistics need the real count.
func (c *Client) enrich(ctx context.Context, pr *report.PullRequest, owner, name string) error {
	fileOpts := &github.ListOptions{PerPage: pageSize}
	for {
		var files []*github.CommitFile
		var next int
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			files, resp, err = c.gh.PullRequests.ListFiles(ctx, owner, name, pr.Number, fileOpts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return fmt.Errorf("listing files of PR #%d: %w", pr.Number, err)
		}
		for _, f := range files {
			pr.Files = append(pr.Files, f.GetFilename())
		}
		if next == 0 {
			break
		}
		fileOpts.Page = next
	}

	reviews, err := c.listReviews(ctx, owner, name, pr.Number)
	if err != nil {
		return err
	}
	seenReviewer := make(map[string]struct{})
	for _, r := range reviews {
		login := r.GetUser().GetLogin()
		if r.GetState() != "APPROVED" || isBot(login, r.GetUser().GetType()) {
			continue
		}
		if _, dup := seenReviewer[login]; dup {
			continue
		}
		seenReviewer[login] = struct{}{}
		pr.Reviewers = append(pr.Reviewers, c.userInfo(ctx, login))
	}

	comments, err := c.listIssueComments(ctx, owner, name, pr.Number)
	if err != nil {
		return err
	}
	seenCommenter := make(map[string]struct{})
	for _, cm := range comments {
		login := cm.GetUser().GetLogin()
		if isBot(login, cm.GetUser().GetType()) || login == pr.Author.Login {
			continue
		}
		if _, dup := seenCommenter[login]; dup {
			continue
		}
		seenCommenter[login] = struct{}{}
		pr.Commenters = append(pr.Commenters, c.userInfo(ctx, login))
	}

	pr.Author = c.userInfo(ctx, pr.Author.Login)
	return nil
}

// fetchAwaitingReview returns the open PRs where the tracked user's
// review is requested. The label and username filters deliberately do
// not apply here.
func (c *Client) fetchAwaitingReview(ctx context.Context, owner, name, user string) ([]report.PullRequest, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr is:open user-review-requested:%s", owner, name, user)
	issues, err := c.searchAllIssues(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching PRs awaiting review: %w", err)
	}

	prs := make([]report.PullRequest, 0, len(issues))
	for _, issue := range issues {
		prs = append(prs, report.PullRequest{
			Number:     issue.GetNumber(),
			Title:      issue.GetTitle(),
			URL:        issue.GetHTMLURL(),
			Repository: owner + "/" + name,
			Author:     report.Identity{Login: issue.GetUser().GetLogin()},
			CreatedAt:  issue.GetCreatedAt().Time,
			Labels:     labelNames(issue.Labels),
		})
	}
	return prs, nil
}

// fetchActivity collects review and comment events in the window on PRs
// authored by the tracked user. Bot and self events are dropped here,
// before construction.
func (c *Client) fetchActivity(ctx context.Context, owner, name string, window report.Window, user string) ([]report.ReviewActivityEvent, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr author:%s updated:>=%s",
		owner, name, user, window.Start.Format(dateFormat))
	issues, err := c.searchAllIssues(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching own PRs: %w", err)
	}

	var events []report.ReviewActivityEvent
	for _, issue := range issues {
		number := issue.GetNumber()
		title := issue.GetTitle()
		url := issue.GetHTMLURL()

		reviews, err := c.listReviews(ctx, owner, name, number)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews {
			login := r.GetUser().GetLogin()
			at := r.GetSubmittedAt().Time
			if isBot(login, r.GetUser().GetType()) || login == user || !window.Contains(at) {
				continue
			}
			var kind report.EventKind
			switch r.GetState() {
			case "APPROVED":
				kind = report.KindApproval
			case "CHANGES_REQUESTED":
				kind = report.KindChangesRequested
			case "COMMENTED":
				if r.GetBody() == "" {
					continue
				}
				kind = report.KindReviewComment
			default:
				continue
			}
			events = append(events, report.ReviewActivityEvent{
				Kind:       kind,
				Actor:      report.Identity{Login: login},
				OccurredAt: at,
				PRNumber:   number,
				PRTitle:    title,
				PRURL:      url,
				Body:       runewidth.Truncate(r.GetBody(), maxActorBody, "..."),
			})
		}

		comments, err := c.listIssueComments(ctx, owner, name, number)
		if err != nil {
			return nil, err
		}
		for _, cm := range comments {
			login := cm.GetUser().GetLogin()
			at := cm.GetCreatedAt().Time
			if isBot(login, cm.GetUser().GetType()) || login == user || !window.Contains(at) {
				continue
			}
			events = append(events, report.ReviewActivityEvent{
				Kind:       report.KindComment,
				Actor:      report.Identity{Login: login},
				OccurredAt: at,
				PRNumber:   number,
				PRTitle:    title,
				PRURL:      url,
				Body:       runewidth.Truncate(cm.GetBody(), maxActorBody, "..."),
			})
		}
	}
	return events, nil
}

func (c *Client) searchAllIssues(ctx context.Context, query string) ([]*github.Issue, error) {
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	var all []*github.Issue
	for {
		var result *github.IssuesSearchResult
		var next int
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			result, resp, err = c.gh.Search.Issues(ctx, query, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, result.Issues...)
		if next == 0 {
			break
		}
		opts.Page = next
	}
	return all, nil
}

func (c *Client) listReviews(ctx context.Context, owner, name string, number int) ([]*github.PullRequestReview, error) {
	opts := &github.ListOptions{PerPage: pageSize}
	var all []*github.PullRequestReview
	for {
		var reviews []*github.PullRequestReview
		var next int
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			reviews, resp, err = c.gh.PullRequests.ListReviews(ctx, owner, name, number, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing reviews of PR #%d: %w", number, err)
		}
		all = append(all, reviews...)
		if next == 0 {
			break
		}
		opts.Page = next
	}
	return all, nil
}

func (c *Client) listIssueComments(ctx context.Context, owner, name string, number int) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	var all []*github.IssueComment
	for {
		var comments []*github.IssueComment
		var next int
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			comments, resp, err = c.gh.Issues.ListComments(ctx, owner, name, number, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing comments of PR #%d: %w", number, err)
		}
		all = append(all, comments...)
		if next == 0 {
			break
		}
		opts.Page = next
	}
	return all, nil
}

func toPullRequest(pr *github.PullRequest, repo string) report.PullRequest {
	out := report.PullRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		URL:        pr.GetHTMLURL(),
		Repository: repo,
		Body:       pr.GetBody(),
		Author:     report.Identity{Login: pr.GetUser().GetLogin()},
		CreatedAt:  pr.GetCreatedAt().Time,
		Labels:     labelNames(pr.Labels),
	}
	if pr.MergedAt != nil {
		t := pr.GetMergedAt().Time
		out.MergedAt = &t
	}
	return out
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}
