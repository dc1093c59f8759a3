package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/hidden"
)

var hiddenCmd = &cobra.Command{
	Use:   "hidden",
	Short: "Manage jobs hidden from future runs",
}

var hiddenListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print hidden job fingerprints",
	Run: func(_ *cobra.Command, _ []string) {
		l, set := loadHidden()
		for _, fp := range set.List() {
			fmt.Println(fp)
		}
		l.Info("hidden jobs", zap.Int("count", set.Len()), zap.String("filename", set.Path()))
	},
}

var hiddenAddCmd = &cobra.Command{
	Use:   "add FINGERPRINT...",
	Short: "Hide jobs by fingerprint",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		l, set := loadHidden()
		added := set.Add(args...)
		if err := set.Save(context.Background()); err != nil {
			l.Fatal("saving hidden jobs", zap.Error(err))
		}
		l.Info("hidden jobs updated", zap.Int("added", added), zap.Int("total", set.Len()))
	},
}

func init() {
	rootCmd.AddCommand(hiddenCmd)
	hiddenCmd.AddCommand(hiddenListCmd, hiddenAddCmd)
}

func loadHidden() (*zap.Logger, *hidden.Set) {
	l := newLogger()

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}

	set, err := hidden.Load(config.HiddenFile)
	if err != nil {
		l.Fatal("loading hidden jobs", zap.Error(err), zap.String("filename", config.HiddenFile))
	}

	return l, set
}
