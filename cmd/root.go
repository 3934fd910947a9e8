package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	naturaldate "github.com/tj/go-naturaldate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github-summary/internal/config"
	"github-summary/internal/deliver"
	"github-summary/internal/github"
	"github-summary/internal/logger"
	"github-summary/internal/report"
	"github-summary/internal/summary"
)

var (
	configFlag         string
	reposFlag          []string
	labelsFlag         []string
	usernamesFlag      []string
	timeRangeFlag      string
	githubUsernameFlag string
	fileFlags          []string
	slackFlags         []string
	emailFlags         []string
	sinceFlag          string
	untilFlag          string
)

var rootCmd = &cobra.Command{
	Use:          "github-summary",
	Short:        "Summarize merged PR activity and deliver it to files, Slack and email",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "path to YAML config file")
	rootCmd.Flags().StringSliceVar(&reposFlag, "repos", nil, "repositories to report on (owner/name)")
	rootCmd.Flags().StringSliceVar(&labelsFlag, "labels", nil, "only include PRs carrying at least one of these labels")
	rootCmd.Flags().StringSliceVar(&usernamesFlag, "usernames", nil, "only include PRs authored by one of these users")
	rootCmd.Flags().StringVar(&timeRangeFlag, "time-range", "", `report window, e.g. "24h" or "7d"`)
	rootCmd.Flags().StringVar(&githubUsernameFlag, "github-username", "", "tracked user for the awaiting-review and activity sections")
	rootCmd.Flags().StringArrayVar(&fileFlags, "file", nil, "output file path (repeatable)")
	rootCmd.Flags().StringArrayVar(&slackFlags, "slack", nil, "Slack webhook URL (repeatable)")
	rootCmd.Flags().StringArrayVar(&emailFlags, "email", nil, "email recipient (repeatable)")
	rootCmd.Flags().StringVar(&sinceFlag, "since", "", `window start, e.g. "2026-08-29" or "yesterday" (overrides --time-range)`)
	rootCmd.Flags().StringVar(&untilFlag, "until", "", `window end, e.g. "2026-08-30" or "today" (default: now)`)
}

func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	// Load .env file without overriding existing env vars.
	// Precedence: real env vars > .env file values.
	_ = godotenv.Load()

	cfg, err := config.New(configFlag)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	now := time.Now().UTC()
	window, err := resolveWindow(cfg, now)
	if err != nil {
		return err
	}
	log.Info("starting summary generation",
		zap.Time("since", window.Start), zap.Time("until", window.End),
		zap.Strings("repos", cfg.Repos))

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RunTimeout)
	defer cancel()

	client, err := github.NewClient(ctx, github.Config{
		Token:               cfg.GitHub.Token,
		BaseURL:             cfg.GitHub.BaseURL,
		HighVolumeThreshold: cfg.GitHub.HighVolumeThreshold,
		RateLimitMargin:     cfg.GitHub.RateLimitMargin,
		MaxRetries:          cfg.GitHub.MaxRetries,
	}, log)
	if err != nil {
		return err
	}

	results, notes := fetchAll(ctx, client, cfg, window, log)

	var merged, awaiting []report.PullRequest
	var activity []report.ReviewActivityEvent
	for _, res := range results {
		if res == nil {
			continue
		}
		merged = append(merged, res.Merged...)
		awaiting = append(awaiting, res.AwaitingReview...)
		activity = append(activity, res.ActivityOnMine...)
	}

	criteria := report.FilterCriteria{Labels: cfg.Labels, Usernames: cfg.Usernames}
	merged = report.Apply(merged, criteria)
	log.Info("fetched matching PRs",
		zap.Int("merged", len(merged)), zap.Int("awaiting_review", len(awaiting)),
		zap.Int("activity", len(activity)))

	failedSummaries := 0
	if len(merged) > 0 {
		pool := summary.NewPool(summary.New(summary.Config{
			APIKey:     cfg.SummaryAPIKey(),
			BaseURL:    cfg.Summary.BaseURL,
			Model:      cfg.Summary.Model,
			MaxTokens:  cfg.Summary.MaxTokens,
			MaxRetries: cfg.Summary.MaxRetries,
		}, log), cfg.Summary.Concurrency, cfg.Summary.RequestsPerSecond, log)
		failedSummaries = pool.SummarizeAll(ctx, merged)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		notes = append(notes, "run timed out before all work completed; this report may be partial")
	}

	rep := report.Assemble(merged, awaiting, activity, window, cfg.Repos, criteria, now, notes, report.Options{
		ComponentLabelPrefix: cfg.ComponentLabelPrefix,
		SkipLabels:           cfg.SkipLabels,
	})

	// Delivery gets its own context: a fetch timeout should not stop the
	// partial report from going out.
	deliverCtx, deliverCancel := context.WithTimeout(context.Background(), time.Minute)
	defer deliverCancel()

	targets := buildTargets(cfg, log)
	succeeded := deliver.DeliverAll(deliverCtx, log, targets, rep)
	if succeeded == 0 {
		return fmt.Errorf("no delivery target succeeded (%d attempted)", len(targets))
	}

	if failedSummaries > 0 || len(notes) > 0 {
		log.Warn("summary generation complete with warnings",
			zap.Int("failed_summaries", failedSummaries), zap.Strings("notes", notes))
	} else {
		log.Info("summary generation complete")
	}
	return nil
}

// fetchAll fetches every repository with bounded concurrency. A failing
// repository becomes a report note, never a run failure.
func fetchAll(ctx context.Context, client *github.Client, cfg *config.Config, window report.Window, log *zap.Logger) ([]*github.Result, []string) {
	results := make([]*github.Result, len(cfg.Repos))
	var mu sync.Mutex
	var notes []string

	g := new(errgroup.Group)
	g.SetLimit(cfg.GitHub.FetchConcurrency)
	for i, repo := range cfg.Repos {
		g.Go(func() error {
			res, err := client.Fetch(ctx, repo, window, cfg.GitHubUsername)
			if err != nil {
				log.Error("skipping repository", zap.String("repo", repo), zap.Error(err))
				mu.Lock()
				notes = append(notes, fmt.Sprintf("repository %s was skipped: %v", repo, err))
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	return results, notes
}

func applyFlags(cfg *config.Config) {
	if len(reposFlag) > 0 {
		cfg.Repos = reposFlag
	}
	if len(labelsFlag) > 0 {
		cfg.Labels = labelsFlag
	}
	if len(usernamesFlag) > 0 {
		cfg.Usernames = usernamesFlag
	}
	if timeRangeFlag != "" {
		cfg.TimeRange = timeRangeFlag
	}
	if githubUsernameFlag != "" {
		cfg.GitHubUsername = githubUsernameFlag
	}
	if len(fileFlags) > 0 {
		cfg.OutputFiles = fileFlags
	}
	if len(slackFlags) > 0 {
		cfg.SlackURLs = slackFlags
	}
	if len(emailFlags) > 0 {
		cfg.EmailAddresses = emailFlags
	}
}

func buildTargets(cfg *config.Config, log *zap.Logger) []deliver.Target {
	var targets []deliver.Target
	for _, path := range cfg.OutputFiles {
		targets = append(targets, &deliver.FileTarget{Path: path})
	}
	for _, url := range cfg.SlackURLs {
		targets = append(targets, deliver.NewWebhookTarget(url, 0, log))
	}
	if len(cfg.EmailAddresses) > 0 {
		targets = append(targets, deliver.NewMailTarget(cfg.SMTP, cfg.EmailAddresses, log))
	}
	return targets
}

const dateFormat = "2006-01-02"

// resolveWindow turns the configured time range, or the --since/--until
// overrides, into the half-open report window. Flag values accept either
// an exact date (YYYY-MM-DD) or a natural language expression such as
// "yesterday" or "2 weeks ago"; dates cover the whole resolved day.
func resolveWindow(cfg *config.Config, now time.Time) (report.Window, error) {
	if sinceFlag == "" && untilFlag == "" {
		d, err := config.ParseTimeRange(cfg.TimeRange)
		if err != nil {
			return report.Window{}, err
		}
		return report.NewWindow(now.Add(-d), now)
	}

	start := now.AddDate(0, 0, -7)
	if sinceFlag != "" {
		t, err := parseDate(sinceFlag, now)
		if err != nil {
			return report.Window{}, fmt.Errorf("invalid --since value %q: %w", sinceFlag, err)
		}
		start = startOfDay(t)
	}

	end := now
	if untilFlag != "" {
		t, err := parseDate(untilFlag, now)
		if err != nil {
			return report.Window{}, fmt.Errorf("invalid --until value %q: %w", untilFlag, err)
		}
		// Half-open window: the end day is covered in full.
		end = startOfDay(t).AddDate(0, 0, 1)
	}

	return report.NewWindow(start, end)
}

// parseDate tries YYYY-MM-DD first, then falls back to natural language
// parsing via go-naturaldate relative to ref.
func parseDate(s string, ref time.Time) (time.Time, error) {
	if t, err := time.ParseInLocation(dateFormat, s, time.UTC); err == nil {
		return t, nil
	}
	return naturaldate.Parse(s, ref)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
