package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/cache"
	"github.com/spigell/leads/internal/logger"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the job analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache size and entry count",
	Run: func(_ *cobra.Command, _ []string) {
		withCache(func(l *zap.Logger, c *cache.Cache) error {
			stats := c.Stats()
			l.Info("cache stats", append(logger.CacheFields(stats.Entries, stats.Hits, stats.Misses),
				zap.Int64("bytes", stats.Bytes),
				zap.String("size", fmt.Sprintf("%.2f MB", float64(stats.Bytes)/(1024*1024))),
				zap.Int("expired_on_load", stats.Expired),
				zap.Bool("degraded", stats.Degraded),
			)...)
			return nil
		})
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the newest cache entries and the most analyzed companies",
	Run: func(cmd *cobra.Command, _ []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		withCache(func(l *zap.Logger, c *cache.Cache) error {
			entries := c.Entries()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			sample := make([]map[string]string, 0, len(entries))
			for _, e := range entries {
				sample = append(sample, map[string]string{
					"title":      e.Origin.Title,
					"company":    e.Origin.Company,
					"match":      e.Result.MatchLevel,
					"confidence": fmt.Sprintf("%d", e.Result.Confidence),
					"analyzed":   e.CreatedAt.Format(time.DateTime),
				})
			}

			pretty, _ := json.MarshalIndent(map[string]any{
				"entries":       sample,
				"top companies": c.TopCompanies(limit),
			}, "", "  ")
			l.Info(string(pretty), zap.Int("entries count", c.Stats().Entries))
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached analysis",
	Run: func(_ *cobra.Command, _ []string) {
		withCache(func(l *zap.Logger, c *cache.Cache) error {
			l.Info("cache cleared", zap.Int("removed", c.Clear()))
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop old entries or shrink the cache to a size limit",
	Run: func(cmd *cobra.Command, _ []string) {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
		maxEntries, _ := cmd.Flags().GetInt("max-entries")

		withCache(func(l *zap.Logger, c *cache.Cache) error {
			removed := c.Prune(cache.PruneOptions{OlderThan: olderThan, MaxBytes: maxBytes, MaxEntries: maxEntries})
			l.Info("cache pruned", zap.Int("removed", removed), zap.Int("left", c.Stats().Entries))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheShowCmd, cacheClearCmd, cachePruneCmd)

	cacheShowCmd.Flags().IntP("limit", "n", 10, "how many entries and companies to show")
	cachePruneCmd.Flags().Duration("older-than", 0, "drop entries analyzed before this long ago")
	cachePruneCmd.Flags().Int64("max-bytes", 0, "drop the oldest entries until the cache fits")
	cachePruneCmd.Flags().Int("max-entries", 0, "keep at most this many entries")
}

// withCache opens the configured cache, runs fn and saves the cache afterwards.
func withCache(fn func(*zap.Logger, *cache.Cache) error) {
	l := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}

	err = func() error {
		store, release, err := openCacheStore(ctx, config.Cache)
		if err != nil {
			return err
		}
		defer release()

		return cache.With(ctx, store, cacheOptions(config.Cache, l), func(c *cache.Cache) error {
			return fn(l, c)
		})
	}()
	if err != nil {
		fatal(l, "cache command failed", err)
	}
}
