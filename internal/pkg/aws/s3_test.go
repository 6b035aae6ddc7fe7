package aws

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

func TestWriteEntries(t *testing.T) {
	var buf bytes.Buffer
	err := writeEntries(&buf, []applog.Entry{
		{Date: "2024-05-01 06:00:00", Message: "valve on"},
		{Date: "2024-05-01 06:10:00", Message: "valve off"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"date":"2024-05-01 06:00:00","message":"valve on"}`+"\n"+
			`{"date":"2024-05-01 06:10:00","message":"valve off"}`+"\n",
		buf.String())
}

func TestWriteBackupFileAppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup")
	first := []applog.Entry{{Date: "2024-05-01 06:00:00", Message: "a"}}
	second := []applog.Entry{{Date: "2024-05-02 06:00:00", Message: "b"}}

	require.NoError(t, WriteBackupFile(first, false, path))
	require.NoError(t, WriteBackupFile(second, true, path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(b), "\n"))

	require.NoError(t, WriteBackupFile(second, false, path))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "\n"))
	assert.Contains(t, string(b), `"message":"b"`)
}

func TestNewClientKeys(t *testing.T) {
	c, err := NewClient(config.S3Config{
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Region:          "nyc3",
		URL:             "https://nyc3.digitaloceanspaces.com",
		Bucket:          "garden",
	}, "rasp-water-panel")
	require.NoError(t, err)
	assert.Equal(t, "backups/rasp-water-panel/full", c.FullBackupFileKey)
	assert.Equal(t, "backups/rasp-water-panel/retention", c.RetentionBackupFileKey)
	assert.NotEqual(t, c.FullBackupTmpWritePath, c.RetentionTmpWritePath)
}
