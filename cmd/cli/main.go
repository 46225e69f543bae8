package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-social-relay/internal/aggregator"
	"github.com/kurihiro0119/github-social-relay/internal/app"
	"github.com/kurihiro0119/github-social-relay/internal/config"
	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
	"github.com/kurihiro0119/github-social-relay/internal/eventstore"
	"github.com/kurihiro0119/github-social-relay/internal/hooks"
	"github.com/kurihiro0119/github-social-relay/internal/logging"
	"github.com/kurihiro0119/github-social-relay/pkg/client"
)

var (
	outputJSON  bool
	startDate   string
	endDate     string
	granularity string
	humanize    bool
	limit       int
	historyDay  string
	hookURL     string
	hookOwner   string
	hookRepo    string
)

var rootCmd = &cobra.Command{
	Use:   "social-relay",
	Short: "GitHub to LinkedIn relay operator tool",
	Long: `A CLI tool for operating the GitHub to LinkedIn relay.

It runs the daily summary job on demand, publishes ad-hoc posts, inspects
buffered events and post history, and registers the repository webhook.`,
	SilenceUsage: true,
}

var runDailyCmd = &cobra.Command{
	Use:   "run-daily",
	Short: "Run the daily summary job now",
	Long:  `Sweep missed days and post today's summary, exactly as the scheduler does at the configured time.`,
	Args:  cobra.NoArgs,
	RunE:  runDaily,
}

var postCmd = &cobra.Command{
	Use:   "post [text]",
	Short: "Publish an ad-hoc post",
	Long:  `Publish text through the configured channel, honoring the review gate.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPost,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show buffered and posted event counts",
	Long:  `Display per-day event counts read from the day buckets in DATA_DIR.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent publish attempts",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var archiveCmd = &cobra.Command{
	Use:   "archive [date]",
	Short: "Archive a day bucket by hand",
	Long:  `Mark a day (YYYY-MM-DD, default today) as posted without publishing it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchive,
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the repository webhook",
}

var hookCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the relay webhook on a repository",
	Long:  `Create an active JSON webhook for push, release, repository and organization events, unless one already delivers to the URL.`,
	Args:  cobra.NoArgs,
	RunE:  runHookCreate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running server",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	postCmd.Flags().BoolVar(&humanize, "humanize", false, "rewrite the text with the language model first")

	statsCmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD, default 7 days ago)")
	statsCmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD, default today)")
	statsCmd.Flags().StringVar(&granularity, "granularity", "day", "time granularity (day, week, month)")

	historyCmd.Flags().IntVar(&limit, "limit", 20, "number of attempts to show")
	historyCmd.Flags().StringVar(&historyDay, "day", "", "show only the last successful post for this day (YYYY-MM-DD)")

	hookCreateCmd.Flags().StringVar(&hookURL, "url", "", "public URL of the /webhook endpoint")
	hookCreateCmd.Flags().StringVar(&hookOwner, "owner", "", "repository owner (default GITHUB_REPO_OWNER)")
	hookCreateCmd.Flags().StringVar(&hookRepo, "repo", "", "repository name (default GITHUB_REPO_NAME)")
	_ = hookCreateCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(runDailyCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(hookCreateCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.NewWithWriter(cfg.LogLevel, os.Stderr), nil
}

func loadApp() (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return app.New(cfg, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runDaily(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	if a.Config.RequirePostReview {
		fmt.Printf("Review required: approve the file written to %s\n", a.Config.ReviewDir)
	}
	if err := a.Scheduler.RunDaily(ctx); err != nil {
		return err
	}
	fmt.Println("Daily post job completed")
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	content := strings.Join(args, " ")
	if humanize {
		content = a.Generator.Humanize(ctx, content)
	}

	fmt.Printf("Publishing via %s (%d characters)\n", a.Publisher.Method(), len([]rune(content)))
	if err := a.Publisher.Publish(ctx, "", content, nil); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	fmt.Println("Published")
	return nil
}

func parseRange(now time.Time) (domain.TimeRange, error) {
	timeRange := domain.TimeRange{
		Start:       now.AddDate(0, 0, -7),
		End:         now,
		Granularity: granularity,
	}
	if startDate != "" {
		t, err := time.Parse(domain.DateLayout, startDate)
		if err != nil {
			return timeRange, fmt.Errorf("invalid start date: %w", err)
		}
		timeRange.Start = t
	}
	if endDate != "" {
		t, err := time.Parse(domain.DateLayout, endDate)
		if err != nil {
			return timeRange, fmt.Errorf("invalid end date: %w", err)
		}
		timeRange.End = t
	}
	return timeRange, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	timeRange, err := parseRange(time.Now().UTC())
	if err != nil {
		return err
	}

	store := eventstore.New(cfg.DataDir, logger)
	stats, err := aggregator.NewAggregator(store).Aggregate(context.Background(), timeRange)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputJSON {
		return printJSON(stats)
	}

	fmt.Printf("\nEvent Stats: %s to %s (%s)\n\n", stats.Start, stats.End, stats.Granularity)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Events", "Types", "Posted"})
	for _, day := range stats.Days {
		table.Append([]string{
			day.Date,
			fmt.Sprintf("%d", day.TotalEvents),
			formatTypes(day.EventTypes),
			fmt.Sprintf("%t", day.Archived),
		})
	}
	table.SetFooter([]string{"Total", fmt.Sprintf("%d", stats.TotalEvents), formatTypes(stats.EventTypes), fmt.Sprintf("%d/%d", stats.PostedDays, stats.PostedDays+stats.PendingDays)})
	table.Render()

	return nil
}

func formatTypes(types map[string]int) string {
	keys := make([]string, 0, len(types))
	for k := range types {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, types[k]))
	}
	return strings.Join(parts, " ")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := app.OpenHistory(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("post history is disabled (STORAGE_TYPE=none)")
	}
	defer store.Close()

	var posts []*domain.PostRecord
	if historyDay != "" {
		post, err := store.LastSuccessfulPost(context.Background(), historyDay)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return fmt.Errorf("no successful post recorded for %s", historyDay)
			}
			return fmt.Errorf("failed to get post: %w", err)
		}
		posts = append(posts, post)
	} else {
		posts, err = store.ListPosts(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}
	}

	if outputJSON {
		return printJSON(posts)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Day", "Method", "Events", "Result", "Content"})
	for _, p := range posts {
		result := "ok"
		if !p.Success {
			result = "failed: " + p.Error
		}
		table.Append([]string{
			p.CreatedAt.UTC().Format("2006-01-02 15:04"),
			p.Date,
			p.Method,
			fmt.Sprintf("%d", p.EventCount),
			result,
			truncate(p.Content, 60),
		})
	}
	table.Render()

	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	date := ""
	if len(args) == 1 {
		if _, err := time.Parse(domain.DateLayout, args[0]); err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		date = args[0]
	}

	store := eventstore.New(cfg.DataDir, logger)
	if !store.Archive(date) {
		return fmt.Errorf("nothing to archive for %s", store.ActivePath(date))
	}
	fmt.Printf("Archived %s\n", store.ArchivedPath(date))
	return nil
}

func runHookCreate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GitHubToken == "" || cfg.GitHubWebhookSecret == "" {
		return fmt.Errorf("GITHUB_TOKEN and GITHUB_WEBHOOK_SECRET are required")
	}

	owner := hookOwner
	if owner == "" {
		owner = cfg.GitHubRepoOwner
	}
	repo := hookRepo
	if repo == "" {
		repo = cfg.GitHubRepoName
	}

	registrar := hooks.NewGitHubRegistrar(cfg.GitHubToken, cfg.GitHubWebhookSecret, logger)
	hook, err := registrar.EnsureHook(context.Background(), owner, repo, hookURL)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(hook)
	}

	state := "already registered"
	if hook.Created {
		state = "created"
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Repository", owner + "/" + repo})
	table.Append([]string{"Hook ID", fmt.Sprintf("%d", hook.ID)})
	table.Append([]string{"URL", hook.URL})
	table.Append([]string{"Events", strings.Join(hook.Events, ", ")})
	table.Append([]string{"Active", fmt.Sprintf("%t", hook.Active)})
	table.Append([]string{"State", state})
	table.Render()

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	c := client.NewClient(cfg.APIEndpoint)
	health, err := c.HealthCheck()
	if err != nil {
		return fmt.Errorf("server at %s is not healthy: %w", cfg.APIEndpoint, err)
	}
	stats, err := c.GetStats("")
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputJSON {
		return printJSON(map[string]interface{}{"health": health, "stats": stats})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Server", cfg.APIEndpoint})
	table.Append([]string{"Status", health.Status})
	table.Append([]string{"Daily Post Time", health.DailyPostTime + " UTC"})
	table.Append([]string{"Posting Method", health.PostingMethod})
	table.Append([]string{"Review Required", fmt.Sprintf("%t", health.ReviewRequired)})
	table.Append([]string{"Immediate Post", fmt.Sprintf("%t", health.ImmediatePost)})
	table.Append([]string{"Supported Events", strings.Join(health.SupportedEvents, ", ")})
	table.Append([]string{"Events Today", fmt.Sprintf("%d", stats.TotalEvents)})
	table.Append([]string{"Types Today", formatTypes(stats.EventTypes)})
	table.Render()

	return nil
}
