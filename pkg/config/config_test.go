package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

func TestNew_RequiredFieldMissing(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "")
	t.Setenv("LIBRARY_PATH", "/library")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required config")
	assert.Contains(t, err.Error(), "DATABASE_FILE_PATH")
	assert.Contains(t, err.Error(), "database_file_path")
	assert.NotContains(t, err.Error(), "LIBRARY_PATH")
}

func TestNew_AllRequiredFieldsMissing(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "")
	t.Setenv("LIBRARY_PATH", "")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_FILE_PATH (database_file_path)")
	assert.Contains(t, err.Error(), "LIBRARY_PATH (library_path)")
}

func TestNew_WithEnvVar(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "/tmp/test.db")
	t.Setenv("LIBRARY_PATH", "/library")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DatabaseFilePath)
	assert.Equal(t, "/library", cfg.LibraryPath)
}

func TestNew_WithConfigFile(t *testing.T) {
	configPath := writeConfigFile(t, `
database_file_path: /data/yomuyume.db
library_path: /data/library
database_debug: true
ffmpeg_path: /usr/bin/ffmpeg
djxl_path: /usr/bin/djxl
`)
	t.Setenv("CONFIG_FILE", configPath)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/yomuyume.db", cfg.DatabaseFilePath)
	assert.Equal(t, "/data/library", cfg.LibraryPath)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/usr/bin/djxl", cfg.DJXLPath)
	assert.True(t, cfg.DatabaseDebug)
}

func TestNew_EnvVarOverridesConfigFile(t *testing.T) {
	configPath := writeConfigFile(t, `
database_file_path: /data/from-file.db
library_path: /data/library
hash_workers: 2
`)
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("DATABASE_FILE_PATH", "/data/from-env.db")
	t.Setenv("LIBRARY_PATH", "/data/library")
	t.Setenv("HASH_WORKERS", "8")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/from-env.db", cfg.DatabaseFilePath)
	assert.Equal(t, 8, cfg.HashWorkers)
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "/tmp/test.db")
	t.Setenv("LIBRARY_PATH", "/library")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DatabaseConnectRetryCount)
	assert.Equal(t, 2*time.Second, cfg.DatabaseConnectRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.DatabaseBusyTimeout)
	assert.False(t, cfg.DatabaseDebug)
	assert.Equal(t, "/tmp/yomuyume", cfg.TempDir)
	assert.Equal(t, 60*time.Second, cfg.TranscodeTimeout)
	assert.Equal(t, []string{"jxl", "avif", "webp", "png", "jpg", "jpeg", "gif", "bmp", "tiff", "tif"}, cfg.ImageFormats)
	assert.Equal(t, []string{"jxl"}, cfg.JPEGXLFormats)
	assert.Equal(t, []string{"zip", "cbz"}, cfg.ArchiveExtensions)
	assert.Equal(t, []string{"thumbnail", "cover", "_", "folder"}, cfg.ThumbnailNames)
	assert.Equal(t, 0, cfg.HashWorkers)
	assert.Equal(t, 60, cfg.SyncIntervalMinutes)
	assert.Equal(t, 1, cfg.WorkerProcesses)
	assert.Equal(t, 30, cfg.JobRetentionDays)
}

func TestNew_ListFromEnv(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "/tmp/test.db")
	t.Setenv("LIBRARY_PATH", "/library")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")
	t.Setenv("ARCHIVE_EXTENSIONS", "zip,cbz,cb7")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"zip", "cbz", "cb7"}, cfg.ArchiveExtensions)
}

func TestNew_ListFromEnvOverridesFile(t *testing.T) {
	configPath := writeConfigFile(t, `
database_file_path: /data/yomuyume.db
library_path: /data/library
thumbnail_names: [cover]
`)
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("THUMBNAIL_NAMES", " folder , cover,,_ ")
	t.Setenv("IMAGE_FORMATS", "png")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"folder", "cover", "_"}, cfg.ThumbnailNames)
	assert.Equal(t, []string{"png"}, cfg.ImageFormats)
}

func TestEnvValue(t *testing.T) {
	fn := envValue(knownKeys())

	key, value := fn("JPEGXL_FORMATS", "jxl,JXL")
	assert.Equal(t, "jpegxl_formats", key)
	assert.Equal(t, []string{"jxl", "JXL"}, value)

	key, value = fn("HASH_WORKERS", "4")
	assert.Equal(t, "hash_workers", key)
	assert.Equal(t, "4", value)

	key, _ = fn("HOME", "/root")
	assert.Empty(t, key)
}

func TestNew_SyncInterval(t *testing.T) {
	configPath := writeConfigFile(t, `
database_file_path: /data/yomuyume.db
library_path: /data/library
sync_interval_minutes: 30
transcode_timeout: 15s
`)
	t.Setenv("CONFIG_FILE", configPath)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.SyncIntervalMinutes)
	assert.Equal(t, 15*time.Second, cfg.TranscodeTimeout)
}

func TestNew_InvalidValue(t *testing.T) {
	t.Setenv("DATABASE_FILE_PATH", "/tmp/test.db")
	t.Setenv("LIBRARY_PATH", "/library")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")
	t.Setenv("SYNC_INTERVAL_MINUTES", "0")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync_interval_minutes")
}

func TestNewForTest(t *testing.T) {
	var cfg *Config
	require.NotPanics(t, func() { cfg = NewForTest() })
	assert.Equal(t, ":memory:", cfg.DatabaseFilePath)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff", "tif", "webp"}, cfg.NativeImageFormats)
}

func TestKeyName(t *testing.T) {
	typ := reflect.TypeOf(Config{})
	for field, expected := range map[string]string{
		"FFmpegLogPath": "ffmpeg_log_path",
		"DJXLPath":      "djxl_path",
		"JPEGXLFormats": "jpegxl_formats",
		"LibraryPath":   "library_path",
	} {
		f, ok := typ.FieldByName(field)
		require.True(t, ok, field)
		assert.Equal(t, expected, keyName(f))
		assert.Contains(t, knownKeys(), expected)
	}
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "sync_interval_minutes", toSnakeCase("SyncIntervalMinutes"))
	assert.Equal(t, "database_file_path", toSnakeCase("DatabaseFilePath"))
}
