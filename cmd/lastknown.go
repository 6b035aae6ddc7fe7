package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var lastKnownCmd = &cobra.Command{
	Use:   "last-known",
	Short: "Print the last schedule and valve state mirrored to redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, _ := zap.NewProduction()
		logger = l.Sugar().Named("rasp_water_panel")
		defer logger.Sync()

		redisClient, err := newRedisClient(loadConfig())
		if err != nil {
			return fmt.Errorf("creating redis client: %w", err)
		}
		if redisClient == nil {
			return errors.New("REDIS_URL or REDIS_TLS_URL must be set")
		}
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s, err := redisClient.ReadSchedule(ctx)
		switch {
		case errors.Is(err, redis.ErrNotFound):
			fmt.Fprintln(cmd.OutOrStdout(), "schedule: none mirrored")
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "schedule:\n%s\n", s.Describe())
		}

		v, err := redisClient.ReadValve(ctx)
		switch {
		case errors.Is(err, redis.ErrNotFound):
			fmt.Fprintln(cmd.OutOrStdout(), "valve: none mirrored")
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "valve: on=%t period=%d flow=%.1f\n", v.IsOn, v.Period, v.Flow)
		}
		return nil
	},
}
