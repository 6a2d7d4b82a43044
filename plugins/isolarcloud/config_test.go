package isolarcloud

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/solarcloud/internal/config"
)

func writeSecret(t *testing.T, dir, name, value string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o600))
	return path
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ConfigFromFile(&config.ISolarCloudConfig{
		AppKeyFile:          writeSecret(t, dir, "app", "app-key"),
		AccessKeyFile:       writeSecret(t, dir, "access", "access-key"),
		BootstrapFile:       filepath.Join(dir, "bootstrap.json"),
		ApplicationID:       " 99 ",
		PlantIDs:            []string{"1"},
		MeasurePoints:       []string{"daily_yield", "83099"},
		PollIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, defaultRegion, cfg.Region)
	assert.Equal(t, regionEndpoints[defaultRegion], cfg.BaseURL)
	assert.Equal(t, "2", cfg.CloudID)
	assert.Equal(t, "99", cfg.ApplicationID)
	assert.Equal(t, "app-key", cfg.AppKey)
	assert.Equal(t, "access-key", cfg.AccessKey)
	assert.Equal(t, defaultLang, cfg.Lang)
	assert.Equal(t, defaultStatePath, cfg.StatePath)
	assert.Equal(t, time.Minute, cfg.PollInterval)
}

func TestConfigFromFileRejects(t *testing.T) {
	dir := t.TempDir()
	base := config.ISolarCloudConfig{
		AppKeyFile:    writeSecret(t, dir, "app", "app-key"),
		AccessKeyFile: writeSecret(t, dir, "access", "access-key"),
	}

	unknownRegion := base
	unknownRegion.Region = "mars"
	_, err := ConfigFromFile(&unknownRegion)
	require.Error(t, err)

	badPoint := base
	badPoint.MeasurePoints = []string{"bogus_metric"}
	_, err = ConfigFromFile(&badPoint)
	require.True(t, IsBadRequest(err))

	missingKey := base
	missingKey.AppKeyFile = filepath.Join(dir, "missing")
	_, err = ConfigFromFile(&missingKey)
	require.Error(t, err)

	_, err = ConfigFromFile(nil)
	require.Error(t, err)
}

func TestConfigFromFileBaseURLOverride(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ConfigFromFile(&config.ISolarCloudConfig{
		Region:        "australia",
		BaseURL:       "http://127.0.0.1:9999",
		AppKeyFile:    writeSecret(t, dir, "app", "a"),
		AccessKeyFile: writeSecret(t, dir, "access", "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/", cfg.BaseURL)
	assert.Equal(t, "7", cfg.CloudID)
	assert.Equal(t, defaultPollInterval, cfg.PollInterval)
}
