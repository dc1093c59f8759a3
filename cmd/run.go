package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/cache"
	"github.com/spigell/leads/internal/filtering"
	"github.com/spigell/leads/internal/headhunter"
	"github.com/spigell/leads/internal/hidden"
	"github.com/spigell/leads/internal/jobs"
	"github.com/spigell/leads/internal/logger"
	"github.com/spigell/leads/internal/match"
	"github.com/spigell/leads/internal/pipeline"
	"github.com/spigell/leads/internal/profile"
	"github.com/spigell/leads/internal/report"
	"github.com/spigell/leads/internal/secrets"
)

const (
	PromptHide         = "Hide jobs"
	PromptHideAll      = "Hide all listed jobs"
	PromptSave         = "Save selected jobs"
	PromptDump         = "Dump results to file"
	PromptReportByTier = "Report by tier"
	PromptExit         = "Exit"
	PromptBack         = "back"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptHide, PromptSave, PromptDump, PromptReportByTier, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze job postings against the resume and rank them",
	Run: func(cmd *cobra.Command, _ []string) {
		l := newLogger()
		if err := run(cmd, l); err != nil {
			fatal(l, "run failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("yes", "y", false, "do not ask what to do with the results")
	runCmd.Flags().StringP("jobs-file", "f", "", "JSON file with job postings")
	runCmd.Flags().StringP("output", "o", "", "write ranked results to this JSON file")
	runCmd.Flags().IntP("concurrency", "c", 0, "parallel analyzer calls")

	viper.BindPFlag("source.jobs-file", runCmd.Flags().Lookup("jobs-file"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("analysis.concurrency", runCmd.Flags().Lookup("concurrency"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	l.Info("starting leads", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	l.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if err := config.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	postings, err := loadPostings(ctx, config, l)
	if err != nil {
		return err
	}

	if postings.Len() == 0 {
		l.Info("exiting", zap.String("reason", "no postings found"))
		return nil
	}

	analyzer, err := newAnalyzer(ctx, config.AI, l)
	if err != nil {
		return fmt.Errorf("building analyzer: %w", err)
	}

	in, err := resolveProfiles(ctx, config, analyzer, l)
	if err != nil {
		return err
	}

	hiddenSet, err := hidden.Load(config.HiddenFile)
	if err != nil {
		return errors.WithHint(err, "fix or remove the hidden jobs file; it is never overwritten while unreadable")
	}

	store, release, err := openCacheStore(ctx, config.Cache)
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}
	defer release()

	var (
		outcome *pipeline.Outcome
		stats   cache.Stats
	)
	// The cache is saved and released before any prompt is shown.
	runErr := withRunCache(ctx, store, config.Cache, l, func(c *cache.Cache) error {
		runner := &pipeline.Runner{
			Filters: filtering.New([]filtering.Filter{
				filtering.NewHidden(hiddenSet),
				filtering.NewExcludedCompanies(config.Preferences.ExcludedCompanies),
				filtering.NewLocation(config.Preferences.Locations, config.Preferences.RemoteIndicators),
			}, l),
			Orchestrator: pipeline.NewOrchestrator(c, analyzer, pipeline.Options{
				Concurrency:   config.Analysis.Concurrency,
				RatePerMinute: config.Analysis.RatePerMinute,
				Retry:         config.Analysis.Retry,
			}, l),
			Policy: config.Classifier,
			Logger: l,
		}

		var err error
		outcome, err = runner.Run(ctx, in, postings)
		stats = c.Stats()
		return err
	})
	if outcome == nil {
		return runErr
	}

	counts := match.CountByTier(outcome.Ranked)
	l.Info("run finished", append(logger.CacheFields(stats.Entries, stats.Hits, stats.Misses),
		zap.Int("high", counts[match.TierHigh]),
		zap.Int("medium", counts[match.TierMedium]),
		zap.Int("low", counts[match.TierLow]),
		zap.Int("skipped", len(outcome.Report.Skipped)),
	)...)

	printResults(l, outcome.Ranked)

	if config.Output != "" {
		if err := report.Write(context.WithoutCancel(ctx), config.Output, outcome.Ranked); err != nil {
			l.Error("writing results failed", zap.String("path", config.Output), zap.Error(err))
		} else {
			l.Info("results written", zap.String("path", config.Output))
		}
	}

	if runErr != nil {
		return runErr
	}

	if len(outcome.Ranked) == 0 || cmd.Flag("yes").Value.String() == "true" {
		return nil
	}

	s := &session{
		logger:     l,
		config:     config,
		hidden:     hiddenSet,
		customizer: analyzer,
		results:    outcome.Ranked,
	}
	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := s.handleAction(ctx, action); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

// withRunCache runs fn inside cache.With. Unused entries beyond the configured limits
// are pruned before the save. A failed save or release is logged and does not fail
// the run; the error of fn is returned as is.
func withRunCache(ctx context.Context, store cache.Store, cfg *CacheConfig, l *zap.Logger, fn func(*cache.Cache) error) error {
	opened := false
	var fnErr error

	err := cache.With(ctx, store, cacheOptions(cfg, l), func(c *cache.Cache) error {
		opened = true
		defer func() {
			if cfg.MaxBytes > 0 || cfg.MaxEntries > 0 {
				c.Prune(cache.PruneOptions{MaxBytes: cfg.MaxBytes, MaxEntries: cfg.MaxEntries})
			}
		}()

		fnErr = fn(c)
		return nil
	})
	if !opened {
		return err
	}
	if err != nil {
		l.Error("cache save failed", zap.Error(err), zap.Strings("hints", errors.GetAllHints(err)))
	}

	return fnErr
}

// session holds the results the interactive prompts work on.
type session struct {
	logger     *zap.Logger
	config     *Config
	hidden     *hidden.Set
	customizer pipeline.ResumeCustomizer
	results    []match.Result
}

func (s *session) handleAction(ctx context.Context, action string) error {
	switch action {
	case PromptHide:
		return s.hideInteractive(ctx)
	case PromptSave:
		return s.saveInteractive(ctx)
	case PromptExit:
		s.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptReportByTier:
		pretty, _ := json.MarshalIndent(report.ByTier(s.results), "", "  ")
		s.logger.Info(string(pretty), zap.Int("results count", len(s.results)))
		return nil
	case PromptDump:
		filename, err := report.Dump(s.results)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		s.logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// hideInteractive lets the user pick results to hide. Every pick is saved right away.
func (s *session) hideInteractive(ctx context.Context) error {
	for {
		items := make([]string, 0, len(s.results)+2)
		for i, r := range s.results {
			items = append(items, fmt.Sprintf("%d. [%s %d] %s / %s / %s",
				i+1, r.Tier, r.Assessment.Confidence, r.Posting.Title, r.Posting.Company, r.Posting.URL,
			))
		}
		if len(s.results) > 0 {
			items = append(items, PromptHideAll)
		}

		selectPrompt := promptui.Select{
			Label: "Choose a job to hide and press ENTER",
			Items: append(items, PromptBack),
			Size:  15,
		}

		idx, selected, err := selectPrompt.Run()
		if err != nil {
			return err
		}

		var picked []match.Result
		switch selected {
		case PromptBack:
			return nil
		case PromptHideAll:
			picked = s.results
		default:
			picked = s.results[idx : idx+1]
		}

		fps := make([]string, 0, len(picked))
		for _, r := range picked {
			fps = append(fps, r.Fingerprint)
		}

		added := s.hidden.Add(fps...)
		if err := s.hidden.Save(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("saving hidden jobs: %w", err)
		}
		s.logger.Info("hidden jobs updated", zap.Int("added", added), zap.Int("total", s.hidden.Len()), zap.String("filename", s.hidden.Path()))

		s.results = withoutHidden(s.results, s.hidden)
	}
}

// saveInteractive asks which results to save, by their printed rank, and whether to
// customize the resume for each of them.
func (s *session) saveInteractive(ctx context.Context) error {
	selectionPrompt := promptui.Prompt{
		Label: fmt.Sprintf("Jobs to save out of %d (e.g. 1,3,7-9 or all)", len(s.results)),
	}
	input, err := selectionPrompt.Run()
	if err != nil {
		return err
	}

	picked, err := selectResults(s.results, input)
	if err != nil {
		s.logger.Warn("nothing saved", zap.Error(err))
		return nil
	}
	if len(picked) == 0 {
		s.logger.Info("nothing saved", zap.String("reason", "no valid jobs selected"))
		return nil
	}

	confirm := promptui.Prompt{
		Label:     fmt.Sprintf("Generate customized resumes for %d selected jobs", len(picked)),
		IsConfirm: true,
	}
	_, err = confirm.Run()
	if err != nil && !errors.Is(err, promptui.ErrAbort) {
		return err
	}

	path, err := s.saveSelected(ctx, picked, err == nil)
	if err != nil {
		return err
	}
	s.logger.Info("selected jobs saved", zap.Int("count", len(picked)), zap.String("filename", path))
	return nil
}

func selectResults(results []match.Result, input string) ([]match.Result, error) {
	indexes, err := report.ParseSelection(input, len(results))
	if err != nil {
		return nil, err
	}

	picked := make([]match.Result, 0, len(indexes))
	for _, idx := range indexes {
		picked = append(picked, results[idx])
	}
	return picked, nil
}

// saveSelected writes picked to the saved jobs directory. Resume customization needs the
// resume text, so it is skipped with a warning when the resume cannot be read.
func (s *session) saveSelected(ctx context.Context, picked []match.Result, customize bool) (string, error) {
	saved := make([]report.SavedJob, len(picked))
	for i, r := range picked {
		saved[i].Result = r
	}

	if customize {
		text, _, err := profile.LoadResumeText(s.config.Resume)
		if err != nil {
			s.logger.Warn("skipping resume customization", zap.Error(err))
		} else {
			retry := pipeline.DefaultRetryPolicy()
			if s.config.Analysis != nil {
				retry = s.config.Analysis.Retry
			}
			resumes, err := pipeline.Customize(ctx, s.customizer, text, picked, retry, s.logger)
			if err != nil {
				s.logger.Warn("resume customization interrupted", zap.Error(err))
			}
			for i, resume := range resumes {
				saved[i].CustomizedResume = resume
			}
		}
	}

	return report.SaveSelected(context.WithoutCancel(ctx), s.config.SavedJobsDir, saved)
}

func withoutHidden(results []match.Result, set *hidden.Set) []match.Result {
	kept := make([]match.Result, 0, len(results))
	for _, r := range results {
		if !set.Contains(r.Fingerprint) {
			kept = append(kept, r)
		}
	}
	return kept
}

func printResults(l *zap.Logger, results []match.Result) {
	for i, r := range results {
		fields := []zap.Field{
			zap.Int("rank", i+1),
			zap.String("tier", r.Tier.String()),
			zap.Int("confidence", r.Assessment.Confidence),
			zap.String("title", r.Posting.Title),
			zap.String("company", r.Posting.Company),
			zap.String("url", r.Posting.URL),
		}
		if r.TargetCompany {
			fields = append(fields, zap.Bool("target_company", true))
		}
		l.Info("match", fields...)
	}
}

// loadPostings merges the configured sources and drops duplicates.
func loadPostings(ctx context.Context, config *Config, l *zap.Logger) (*jobs.Postings, error) {
	postings := &jobs.Postings{}
	configured := false

	if config.Source == nil {
		config.Source = &SourceConfig{}
	}

	if path := strings.TrimSpace(config.Source.JobsFile); path != "" {
		configured = true
		fromFile, err := jobs.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading jobs file: %w", err)
		}
		l.Info("loaded postings from file", zap.String("path", path), zap.Int("count", fromFile.Len()))
		postings.Items = append(postings.Items, fromFile.Items...)
	}

	if hh := config.Source.HeadHunter; hh != nil && hh.Enabled {
		configured = true
		fromHH, err := searchHeadHunter(ctx, hh, l)
		if err != nil {
			return nil, err
		}
		postings.Items = append(postings.Items, fromHH.Items...)
	}

	if !configured {
		return nil, errors.WithHint(errors.New("no job source configured"),
			"set source.jobs-file (or --jobs-file) or enable source.headhunter")
	}

	if dropped := postings.Dedupe(); len(dropped) > 0 {
		l.Info("dropped duplicate postings", zap.Int("count", len(dropped)))
	}

	return postings, nil
}

func searchHeadHunter(ctx context.Context, cfg *HeadHunterConfig, l *zap.Logger) (*jobs.Postings, error) {
	if cfg.Search == nil || cfg.Search.Text == "" {
		return nil, errors.New("source.headhunter.search.text is required")
	}

	// The token is optional for search; a configured but unreadable one is an error.
	var token string
	if cfg.TokenFile != "" {
		var err error
		token, err = secrets.Load(secrets.Source{Name: "headhunter token", File: cfg.TokenFile})
		if err != nil {
			return nil, err
		}
	} else {
		token = strings.TrimSpace(os.Getenv("HH_TOKEN"))
	}

	client := headhunter.New(l, token)
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}

	l.Info("starting the search", zap.String("search", cfg.Search.Text))

	postings, err := client.Postings(ctx, cfg.Search, cfg.Details)
	if err != nil {
		return nil, fmt.Errorf("headhunter: %w", err)
	}

	l.Info("getting vacancies", zap.Int("count", postings.Len()))
	return postings, nil
}

func resolveProfiles(ctx context.Context, config *Config, extractor profile.Extractor, l *zap.Logger) (*pipeline.Input, error) {
	if config.Resume == "" {
		return nil, errors.WithHint(errors.New("resume is required"), "set resume to a .txt or .md file")
	}

	store := profile.OpenStore(config.ProfileCache, l)
	resolver := &profile.Resolver{Store: store, Extractor: extractor, Logger: l}

	resume, err := resolver.Resume(ctx, config.Resume)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}

	role, err := resolver.Role(ctx, config.Keywords, config.Preferences)
	if err != nil {
		return nil, fmt.Errorf("role: %w", err)
	}

	if err := store.Save(ctx); err != nil {
		l.Warn("profile cache save failed", zap.Error(err))
	}

	return &pipeline.Input{Resume: resume, Role: role, Preferences: config.Preferences}, nil
}
