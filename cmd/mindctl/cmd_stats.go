package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/persistence/postgres"
)

var statsUserID string

// statsCmd prints a user's dashboard stats straight from Postgres, bypassing the cache
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dashboard stats for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsUserID == "" {
			return fmt.Errorf("--user is required")
		}
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		repo := postgres.NewRepository(e.pool)
		service := domain.NewService(repo, repo,
			domain.WithLocation(e.cfg.Location()),
			domain.WithLogger(e.logger),
		)
		stats, err := service.GetStats(ctx, statsUserID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Date string `json:"date"`
			domain.Stats
			LongestCurrentStreak int `json:"longest_current_streak"`
		}{service.Today().String(), stats, stats.LongestCurrentStreak()})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsUserID, "user", "", "user id to report on")
	rootCmd.AddCommand(statsCmd)
}
