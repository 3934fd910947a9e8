package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github-summary/internal/report"
)

var fetchNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler, threshold int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		Token:               "test-token",
		BaseURL:             srv.URL,
		HighVolumeThreshold: threshold,
		MaxRetries:          0,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func searchResult(total int, items ...map[string]any) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{"total_count": total, "items": items}
}

func fakePull(number int, login string, created, merged time.Time) map[string]any {
	p := map[string]any{
		"number":     number,
		"title":      fmt.Sprintf("Change %d", number),
		"html_url":   fmt.Sprintf("https://github.com/org/repo/pull/%d", number),
		"body":       "a change",
		"user":       map[string]any{"login": login},
		"created_at": created.Format(time.RFC3339),
		"updated_at": merged.Format(time.RFC3339),
		"labels":     []map[string]any{},
	}
	if !merged.IsZero() {
		p["merged_at"] = merged.Format(time.RFC3339)
	}
	return p
}

// detailMux serves the per-PR detail endpoints (files, reviews,
// comments, user lookups) with empty defaults so merged-PR tests can
// focus on the listing paths.
func detailMux(t *testing.T, mux *http.ServeMux) {
	mux.HandleFunc("/repos/org/repo/pulls/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files"), strings.HasSuffix(r.URL.Path, "/reviews"):
			writeJSON(t, w, []map[string]any{})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/repos/org/repo/issues/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{})
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		login := strings.TrimPrefix(r.URL.Path, "/users/")
		writeJSON(t, w, map[string]any{
			"login":    login,
			"name":     strings.ToUpper(login[:1]) + login[1:],
			"html_url": "https://github.com/" + login,
		})
	})
}

func TestFetchKeepsOnlyPRsMergedInWindow(t *testing.T) {
	window, err := report.NewWindow(fetchNow.Add(-24*time.Hour), fetchNow)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, searchResult(3))
	})
	mux.HandleFunc("/repos/org/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			fakePull(1, "alice", fetchNow.Add(-3*time.Hour), fetchNow.Add(-time.Hour)),
			fakePull(2, "alice", fetchNow.Add(-8*time.Hour), fetchNow.Add(-5*time.Hour)),
			fakePull(3, "bob", fetchNow.Add(-40*time.Hour), fetchNow.Add(-30*time.Hour)),
		})
	})
	detailMux(t, mux)

	c := newTestClient(t, mux, 700)
	res, err := c.Fetch(context.Background(), "org/repo", window, "")
	require.NoError(t, err)

	require.Len(t, res.Merged, 2)
	assert.Equal(t, 1, res.Merged[0].Number)
	assert.Equal(t, 2, res.Merged[1].Number)
	for _, pr := range res.Merged {
		require.NotNil(t, pr.MergedAt)
		assert.True(t, window.Contains(*pr.MergedAt), "PR #%d merged outside window", pr.Number)
	}
}

func TestListMergedStopsPagingPastWindowStart(t *testing.T) {
	window, err := report.NewWindow(fetchNow.Add(-24*time.Hour), fetchNow)
	require.NoError(t, err)

	var mu sync.Mutex
	pagesServed := map[string]int{}

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, searchResult(2))
	})
	mux.HandleFunc("/repos/org/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		mu.Lock()
		pagesServed[page]++
		mu.Unlock()

		switch page {
		case "1":
			w.Header().Set("Link", `</repos/org/repo/pulls?page=2>; rel="next"`)
			writeJSON(t, w, []map[string]any{
				fakePull(1, "alice", fetchNow.Add(-4*time.Hour), fetchNow.Add(-2*time.Hour)),
			})
		case "2":
			// Every item here predates the window start, so page 3
			// must never be requested.
			w.Header().Set("Link", `</repos/org/repo/pulls?page=3>; rel="next"`)
			writeJSON(t, w, []map[string]any{
				fakePull(2, "alice", fetchNow.Add(-60*time.Hour), fetchNow.Add(-48*time.Hour)),
			})
		default:
			t.Errorf("page %s should not have been requested", page)
			writeJSON(t, w, []map[string]any{})
		}
	})
	detailMux(t, mux)

	c := newTestClient(t, mux, 700)
	res, err := c.Fetch(context.Background(), "org/repo", window, "")
	require.NoError(t, err)

	require.Len(t, res.Merged, 1)
	assert.Equal(t, 1, res.Merged[0].Number)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"1": 1, "2": 1}, pagesServed)
}

func TestListMergedEarlyExitSkipsNextPage(t *testing.T) {
	window, err := report.NewWindow(fetchNow.Add(-24*time.Hour), fetchNow)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, searchResult(0))
	})
	mux.HandleFunc("/repos/org/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page != "" && page != "1" {
			t.Errorf("pagination did not early-exit: requested page %s", page)
		}
		w.Header().Set("Link", `</repos/org/repo/pulls?page=2>; rel="next"`)
		// The whole page predates the window start.
		writeJSON(t, w, []map[string]any{
			fakePull(9, "alice", fetchNow.Add(-80*time.Hour), fetchNow.Add(-70*time.Hour)),
		})
	})
	detailMux(t, mux)

	c := newTestClient(t, mux, 700)
	res, err := c.Fetch(context.Background(), "org/repo", window, "")
	require.NoError(t, err)
	assert.Empty(t, res.Merged)
}

func TestFetchHighVolumePartitionsByDayAndDeduplicates(t *testing.T) {
	start := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	window, err := report.NewWindow(start, start.Add(72*time.Hour))
	require.NoError(t, err)

	mergedAt := map[int]time.Time{
		1: start.Add(6 * time.Hour),
		2: start.Add(23 * time.Hour), // boundary seam, returned for two days
		3: start.Add(30 * time.Hour),
		4: start.Add(60 * time.Hour),
	}

	issueFor := func(n int) map[string]any {
		return map[string]any{
			"number":   n,
			"title":    fmt.Sprintf("Change %d", n),
			"html_url": fmt.Sprintf("https://github.com/org/repo/pull/%d", n),
			"user":     map[string]any{"login": "alice"},
		}
	}

	var mu sync.Mutex
	detailFetches := map[int]int{}

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, ".."): // whole-window probe
			writeJSON(t, w, searchResult(999))
		case strings.Contains(q, "merged:2026-08-27"):
			writeJSON(t, w, searchResult(2, issueFor(1), issueFor(2)))
		case strings.Contains(q, "merged:2026-08-28"):
			writeJSON(t, w, searchResult(2, issueFor(2), issueFor(3)))
		case strings.Contains(q, "merged:2026-08-29"):
			writeJSON(t, w, searchResult(1, issueFor(4)))
		default:
			t.Errorf("unexpected search query %q", q)
			writeJSON(t, w, searchResult(0))
		}
	})
	mux.HandleFunc("/repos/org/repo/pulls/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/files") || strings.HasSuffix(r.URL.Path, "/reviews") {
			writeJSON(t, w, []map[string]any{})
			return
		}
		var n int
		_, err := fmt.Sscanf(r.URL.Path, "/repos/org/repo/pulls/%d", &n)
		require.NoError(t, err)
		mu.Lock()
		detailFetches[n]++
		mu.Unlock()
		writeJSON(t, w, fakePull(n, "alice", mergedAt[n].Add(-2*time.Hour), mergedAt[n]))
	})
	mux.HandleFunc("/repos/org/repo/issues/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{})
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"login": "alice"})
	})

	c := newTestClient(t, mux, 100)
	res, err := c.Fetch(context.Background(), "org/repo", window, "")
	require.NoError(t, err)

	gotNumbers := map[int]int{}
	for _, pr := range res.Merged {
		gotNumbers[pr.Number]++
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1}, gotNumbers, "partition seams must not duplicate PRs")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, detailFetches[2], "duplicate seam PR fetched more than once")
}

func TestFetchTrackedUserSections(t *testing.T) {
	window, err := report.NewWindow(fetchNow.Add(-24*time.Hour), fetchNow)
	require.NoError(t, err)

	inWindow := fetchNow.Add(-2 * time.Hour).Format(time.RFC3339)
	outOfWindow := fetchNow.Add(-48 * time.Hour).Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "is:merged"):
			writeJSON(t, w, searchResult(0))
		case strings.Contains(q, "user-review-requested:me"):
			writeJSON(t, w, searchResult(1, map[string]any{
				"number":     7,
				"title":      "Please review",
				"html_url":   "https://github.com/org/repo/pull/7",
				"user":       map[string]any{"login": "bob"},
				"created_at": inWindow,
				"labels":     []map[string]any{{"name": "bug"}},
			}))
		case strings.Contains(q, "author:me"):
			writeJSON(t, w, searchResult(1, map[string]any{
				"number":   8,
				"title":    "My change",
				"html_url": "https://github.com/org/repo/pull/8",
				"user":     map[string]any{"login": "me"},
			}))
		default:
			t.Errorf("unexpected search query %q", q)
			writeJSON(t, w, searchResult(0))
		}
	})
	mux.HandleFunc("/repos/org/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{})
	})
	mux.HandleFunc("/repos/org/repo/pulls/8/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"user": map[string]any{"login": "carol"}, "state": "APPROVED", "submitted_at": inWindow},
			{"user": map[string]any{"login": "dave"}, "state": "COMMENTED", "body": "nit: rename", "submitted_at": inWindow},
			{"user": map[string]any{"login": "erin"}, "state": "COMMENTED", "body": "", "submitted_at": inWindow},
			{"user": map[string]any{"login": "ci[bot]"}, "state": "APPROVED", "submitted_at": inWindow},
			{"user": map[string]any{"login": "me"}, "state": "CHANGES_REQUESTED", "submitted_at": inWindow},
			{"user": map[string]any{"login": "fred"}, "state": "APPROVED", "submitted_at": outOfWindow},
		})
	})
	mux.HandleFunc("/repos/org/repo/issues/8/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"user": map[string]any{"login": "frank"}, "body": "looks good", "created_at": inWindow},
			{"user": map[string]any{"login": "dependabot"}, "body": "bump", "created_at": inWindow},
			{"user": map[string]any{"login": "me"}, "body": "thanks", "created_at": inWindow},
		})
	})

	c := newTestClient(t, mux, 700)
	res, err := c.Fetch(context.Background(), "org/repo", window, "me")
	require.NoError(t, err)

	require.Len(t, res.AwaitingReview, 1)
	assert.Equal(t, 7, res.AwaitingReview[0].Number)
	assert.Equal(t, "bob", res.AwaitingReview[0].Author.Login)
	assert.Equal(t, []string{"bug"}, res.AwaitingReview[0].Labels)

	kinds := map[report.EventKind][]string{}
	for _, ev := range res.ActivityOnMine {
		kinds[ev.Kind] = append(kinds[ev.Kind], ev.Actor.Login)
	}
	assert.Equal(t, []string{"carol"}, kinds[report.KindApproval])
	assert.Equal(t, []string{"dave"}, kinds[report.KindReviewComment])
	assert.Equal(t, []string{"frank"}, kinds[report.KindComment])
	assert.Empty(t, kinds[report.KindChangesRequested], "self events must be excluded")
}

func TestFetchFailureWrapsRepository(t *testing.T) {
	window, err := report.NewWindow(fetchNow.Add(-24*time.Hour), fetchNow)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := newTestClient(t, mux, 700)
	_, err = c.Fetch(context.Background(), "org/repo", window, "")
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "org/repo", fe.Repo)
}

func TestDayWindowsClampToWindowEdges(t *testing.T) {
	start := time.Date(2026, 8, 27, 6, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)
	w, err := report.NewWindow(start, end)
	require.NoError(t, err)

	days := dayWindows(w)
	require.Len(t, days, 3)
	assert.Equal(t, start, days[0].Start)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), days[0].End)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), days[2].Start)
	assert.Equal(t, end, days[2].End)
}

func TestIsBot(t *testing.T) {
	assert.True(t, isBot("dependabot", "User"))
	assert.True(t, isBot("release-automation[bot]", "User"))
	assert.True(t, isBot("someone", "Bot"))
	assert.True(t, isBot("", "User"))
	assert.False(t, isBot("alice", "User"))
}

func TestFetchErrorUnwraps(t *testing.T) {
	cause := errors.New("cause")
	fe := &FetchError{Repo: "org/repo", Err: cause}
	assert.ErrorIs(t, fe, cause)
	assert.Contains(t, fe.Error(), "org/repo")
}
