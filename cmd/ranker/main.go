package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"starmatch_server/config"
	"starmatch_server/logger"
	"starmatch_server/services"
)

// rankerFactory builds the ranking service the subcommands run against.
type rankerFactory func(ctx context.Context) (*services.RankingService, error)

func main() {
	if err := newRootCmd(dynamoRanker).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dynamoRanker reads interactions and settings from the configured tables.
func dynamoRanker(ctx context.Context) (*services.RankingService, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	log := logger.New("starmatch-ranker", cfg.LogLevel)

	awsCfg, err := services.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	dynamo := &services.DynamoService{Client: dynamodb.NewFromConfig(awsCfg), Log: log}
	return &services.RankingService{
		Store:    services.NewDynamoFlagStore(dynamo, cfg.FlagsTable),
		Settings: services.NewDynamoSettingsProvider(dynamo, cfg.SettingsTable, time.Minute),
		Log:      log,
	}, nil
}

func newRootCmd(build rankerFactory) *cobra.Command {
	var (
		userIDs string
		timeout time.Duration
	)
	rootCmd := &cobra.Command{
		Use:           "ranker",
		Short:         "Batch rankings over recorded swipes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&userIDs, "users", "u", "", "Comma separated user IDs to restrict the ranking to")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for the ranking run")

	withRanker := func(cmd *cobra.Command, fn func(ctx context.Context, rs *services.RankingService) (any, error)) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		rs, err := build(ctx)
		if err != nil {
			return err
		}
		out, err := fn(ctx, rs)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	var maxDays, skip, limit int
	likeabilityCmd := &cobra.Command{
		Use:   "likeability",
		Short: "Rank users by likes received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRanker(cmd, func(ctx context.Context, rs *services.RankingService) (any, error) {
				return rs.RankByLikeability(ctx, splitIDs(userIDs), maxDays, skip, limit)
			})
		},
	}
	likeabilityCmd.Flags().IntVarP(&maxDays, "max-days-active-ago", "d", 0, "Only rank users who swiped within this many days (0 = no filter)")
	likeabilityCmd.Flags().IntVarP(&skip, "skip", "s", 0, "Entries to skip")
	likeabilityCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum entries to return (0 = all)")
	rootCmd.AddCommand(likeabilityCmd)

	var weeks int
	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Rank users by recent swiping activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRanker(cmd, func(ctx context.Context, rs *services.RankingService) (any, error) {
				return rs.RankByActivity(ctx, splitIDs(userIDs), weeks)
			})
		},
	}
	activityCmd.Flags().IntVarP(&weeks, "weeks", "w", 1, "Number of weeks to look back")
	rootCmd.AddCommand(activityCmd)

	return rootCmd
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
