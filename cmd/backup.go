package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/aws"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/postgres"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type backupArchive interface {
	GetAllRows() ([]applog.Entry, error)
	GetRowsAboveMax(max int) ([]applog.Entry, error)
	DeleteRows(entries []applog.Entry) (int64, error)
}

type backupStore interface {
	BackupFull(ctx context.Context, entries []applog.Entry) error
	BackupRetained(ctx context.Context, entries []applog.Entry) error
}

var (
	_ backupArchive = (*postgres.Client)(nil)
	_ backupStore   = aws.Client{}
)

// backupCmd copies the log archive to the bucket once, then trims it when
// retention is enabled.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the log archive to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, _ := zap.NewProduction()
		logger = l.Sugar().Named("rasp_water_panel")
		defer logger.Sync()

		panelConfig := loadConfig()
		if panelConfig.PostgresURL == "" {
			return errors.New("DATABASE_URL must be set")
		}
		if !panelConfig.S3Config.Enabled() {
			return errors.New("SPACES_BUCKET_NAME and SPACES_AWS credentials must be set")
		}

		postgresClient, err := postgres.NewPostgresClient(panelConfig.PostgresURL)
		if err != nil {
			return fmt.Errorf("creating postgres client: %w", err)
		}
		defer postgresClient.Close()

		awsClient, err := aws.NewClient(panelConfig.S3Config, panelConfig.AppName)
		if err != nil {
			return fmt.Errorf("creating AWS client: %w", err)
		}

		ctx := context.Background()
		if err := runFullBackup(ctx, postgresClient, awsClient); err != nil {
			return err
		}
		if panelConfig.S3Config.RetentionEnabled {
			return runDataRetention(ctx, postgresClient, awsClient, panelConfig.S3Config.MaxRetentionRows)
		}
		return nil
	},
}

func runFullBackup(ctx context.Context, archive backupArchive, store backupStore) error {
	logger.Info("Running full log archive backup")
	rows, err := archive.GetAllRows()
	if err != nil {
		return fmt.Errorf("getting all rows from db: %w", err)
	}
	if err := store.BackupFull(ctx, rows); err != nil {
		return err
	}
	logger.Infof("Full backup to S3 success, number of rows backed up: %d", len(rows))
	return nil
}

// runDataRetention moves every entry beyond the newest maxRows into the
// retention backup and deletes it from the archive. Nothing is deleted
// unless the upload succeeded.
func runDataRetention(ctx context.Context, archive backupArchive, store backupStore, maxRows int) error {
	logger.Info("Running data retention")
	rowsAboveMax, err := archive.GetRowsAboveMax(maxRows)
	if err != nil {
		return fmt.Errorf("getting rows above max: %w", err)
	}
	if len(rowsAboveMax) == 0 {
		logger.Info("Row count is less than or equal to max, no action required")
		return nil
	}

	if err := store.BackupRetained(ctx, rowsAboveMax); err != nil {
		return err
	}

	rowsAffected, err := archive.DeleteRows(rowsAboveMax)
	if err != nil {
		return fmt.Errorf("deleting rows from postgres: %w", err)
	}
	if int(rowsAffected) != len(rowsAboveMax) {
		logger.Warnf("Number of rows deleted '%d' did not match expected number '%d'. This could indicate a data loss situation", rowsAffected, len(rowsAboveMax))
		return nil
	}
	logger.Infof("Number of rows deleted and stored in S3 backup: %d", rowsAffected)
	return nil
}

// scheduleBackups runs the enabled backup jobs on config.BackupPollSpec.
// The returned cron is nil when neither job is enabled.
func scheduleBackups(ctx context.Context, s3Config config.S3Config, archive backupArchive, store backupStore) (*cron.Cron, error) {
	if !s3Config.FullBackupEnabled && !s3Config.RetentionEnabled {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(config.BackupPollSpec, func() {
		if s3Config.FullBackupEnabled {
			if err := runFullBackup(ctx, archive, store); err != nil {
				logger.Errorf("running full backup: %s", err)
			}
		}
		if s3Config.RetentionEnabled {
			if err := runDataRetention(ctx, archive, store, s3Config.MaxRetentionRows); err != nil {
				logger.Errorf("running data retention: %s", err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling backups: %w", err)
	}
	c.Start()
	return c, nil
}

// using viper.GetInt is unsafe because if the env
// var is unset, viper will return 0 resulting in
// all rows being deleted from the database
func parseRetentionRowsConfig(rows string) int {
	if rows == "" {
		return config.DefaultRetentionRows
	}
	rowsInt, err := strconv.Atoi(rows)
	if err != nil || rowsInt <= 0 {
		return config.DefaultRetentionRows
	}
	return rowsInt
}
