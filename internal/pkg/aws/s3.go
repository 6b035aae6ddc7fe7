package aws

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	sConfig "github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	backupPrefix = "backups"
)

// Client keeps JSON-lines copies of the log archive in a bucket: a full
// snapshot, and an append-only file of rows trimmed by retention.
type Client struct {
	S3                     *s3.Client
	Bucket                 string
	FullBackupFileKey      string
	RetentionBackupFileKey string
	FullBackupTmpWritePath string
	RetentionTmpWritePath  string
}

func NewClient(s3Config sConfig.S3Config, appName string) (Client, error) {
	ctx := context.Background()
	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3Config.AccessKeyID, s3Config.SecretAccessKey, "")),
		config.WithRegion(s3Config.Region),
	}
	if s3Config.URL != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: s3Config.URL, SigningRegion: region}, nil
			})))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Client{}, fmt.Errorf("loading aws config: %w", err)
	}

	return Client{
		S3:                     s3.NewFromConfig(cfg),
		Bucket:                 s3Config.Bucket,
		FullBackupFileKey:      fmt.Sprintf("%s/%s/full", backupPrefix, appName),
		RetentionBackupFileKey: fmt.Sprintf("%s/%s/retention", backupPrefix, appName),
		FullBackupTmpWritePath: fmt.Sprintf("%s/%s-full", os.TempDir(), appName),
		RetentionTmpWritePath:  fmt.Sprintf("%s/%s-retention", os.TempDir(), appName),
	}, nil
}

// BackupFull replaces the full snapshot with entries.
func (c Client) BackupFull(ctx context.Context, entries []applog.Entry) error {
	if err := WriteBackupFile(entries, false, c.FullBackupTmpWritePath); err != nil {
		return fmt.Errorf("writing backup tmp file: %w", err)
	}
	if err := c.UploadBackupFile(ctx, c.FullBackupTmpWritePath, c.FullBackupFileKey); err != nil {
		return fmt.Errorf("uploading backup file to S3: %w", err)
	}
	return nil
}

// BackupRetained appends entries to the retention file.
func (c Client) BackupRetained(ctx context.Context, entries []applog.Entry) error {
	if err := c.DownloadOrCreateBackupFile(ctx, c.RetentionTmpWritePath, c.RetentionBackupFileKey); err != nil {
		return fmt.Errorf("downloading or creating backup file: %w", err)
	}
	if err := WriteBackupFile(entries, true, c.RetentionTmpWritePath); err != nil {
		return fmt.Errorf("writing local tmp backup file: %w", err)
	}
	if err := c.UploadBackupFile(ctx, c.RetentionTmpWritePath, c.RetentionBackupFileKey); err != nil {
		return fmt.Errorf("uploading backup file to S3: %w", err)
	}
	return nil
}

func (c Client) UploadBackupFile(ctx context.Context, path, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	uploader := manager.NewUploader(c.S3)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

func (c Client) downloadFileExists(ctx context.Context, key string) (bool, error) {
	paginator := s3.NewListObjectsV2Paginator(c.S3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Bucket),
		Prefix: aws.String(backupPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && *obj.Key == key {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c Client) DownloadOrCreateBackupFile(ctx context.Context, path, key string) error {
	tmpFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer tmpFile.Close()

	exists, err := c.downloadFileExists(ctx, key)
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	if !exists {
		return nil
	}
	downloader := manager.NewDownloader(c.S3)
	_, err = downloader.Download(ctx, tmpFile, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(key),
	})
	return err
}

// WriteBackupFile writes entries to path as JSON lines, appending or
// truncating.
func WriteBackupFile(entries []applog.Entry, append bool, path string) error {
	flags := os.O_CREATE | os.O_WRONLY
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeEntries(file, entries)
}

func writeEntries(w io.Writer, entries []applog.Entry) error {
	datawriter := bufio.NewWriter(w)
	for _, data := range entries {
		j, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := datawriter.WriteString(fmt.Sprintf("%s\n", string(j))); err != nil {
			return err
		}
	}
	return datawriter.Flush()
}
