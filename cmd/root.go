package cmd

import (
	"log"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/cache"
	"github.com/spigell/leads/internal/headhunter"
	"github.com/spigell/leads/internal/hidden"
	"github.com/spigell/leads/internal/logger"
	"github.com/spigell/leads/internal/match"
	"github.com/spigell/leads/internal/pipeline"
	"github.com/spigell/leads/internal/profile"
	"github.com/spigell/leads/internal/report"
)

const (
	app = "leads"

	backendFile  = "file"
	backendRedis = "redis"
)

type Config struct {
	Resume       string               `mapstructure:"resume"`
	Keywords     []string             `mapstructure:"keywords"`
	Preferences  *profile.Preferences `mapstructure:"preferences"`
	Source       *SourceConfig        `mapstructure:"source"`
	Cache        *CacheConfig         `mapstructure:"cache"`
	HiddenFile   string               `mapstructure:"hidden-file"`
	ProfileCache string               `mapstructure:"profile-cache"`
	Analysis     *AnalysisConfig      `mapstructure:"analysis"`
	Classifier   match.Policy         `mapstructure:"classifier"`
	AI           *AIConfig            `mapstructure:"ai"`
	Output       string               `mapstructure:"output"`
	SavedJobsDir string               `mapstructure:"saved-jobs-dir"`
}

type SourceConfig struct {
	JobsFile   string            `mapstructure:"jobs-file"`
	HeadHunter *HeadHunterConfig `mapstructure:"headhunter"`
}

type HeadHunterConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	TokenFile string                   `mapstructure:"token-file"`
	UserAgent string                   `mapstructure:"user-agent"`
	Details   bool                     `mapstructure:"details"`
	Search    *headhunter.SearchParams `mapstructure:"search"`
}

type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	RedisURL   string        `mapstructure:"redis-url"`
	Namespace  string        `mapstructure:"namespace"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxBytes   int64         `mapstructure:"max-bytes"`
	MaxEntries int           `mapstructure:"max-entries"`
}

type AnalysisConfig struct {
	Concurrency   int                  `mapstructure:"concurrency"`
	RatePerMinute float64              `mapstructure:"rate-per-minute"`
	Retry         pipeline.RetryPolicy `mapstructure:"retry"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "leads ranks job postings against your resume and remembers what it already analyzed",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"ai.gemini.api-key-file":       "GEMINI_API_KEY_FILE",
		"source.headhunter.token-file": "HH_TOKEN_FILE",
		"cache.redis-url":              "LEADS_REDIS_URL",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is leads.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	policy := match.DefaultPolicy()
	retry := pipeline.DefaultRetryPolicy()

	viper.SetDefault("hidden-file", hidden.DefaultPath)
	viper.SetDefault("profile-cache", profile.DefaultStorePath)
	viper.SetDefault("saved-jobs-dir", report.DefaultSavedJobsDir)
	viper.SetDefault("cache.backend", backendFile)
	viper.SetDefault("cache.path", cache.DefaultPath)
	viper.SetDefault("cache.namespace", cache.DefaultRedisNamespace)
	viper.SetDefault("cache.ttl", cache.DefaultTTL)
	viper.SetDefault("analysis.concurrency", 4)
	viper.SetDefault("analysis.retry.max-attempts", retry.MaxAttempts)
	viper.SetDefault("analysis.retry.base-delay", retry.BaseDelay)
	viper.SetDefault("analysis.retry.max-delay", retry.MaxDelay)
	viper.SetDefault("classifier.high-min-confidence", policy.HighMinConfidence)
	viper.SetDefault("classifier.medium-min-confidence", policy.MediumMinConfidence)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-log-length", 500)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Maintenance commands work with defaults alone. The run command needs a config.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && runCmd.CalledAs() == "" {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.Preferences == nil {
		config.Preferences = &profile.Preferences{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{Backend: backendFile, Path: cache.DefaultPath}
	}
	if config.Analysis == nil {
		config.Analysis = &AnalysisConfig{Retry: pipeline.DefaultRetryPolicy()}
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// fatal logs err together with any hints attached to it and exits.
func fatal(l *zap.Logger, msg string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		fields = append(fields, zap.Strings("hints", hints))
	}
	l.Fatal(msg, fields...)
}
