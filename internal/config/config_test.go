package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults 测试无配置文件时的默认值
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 1000, cfg.Analyzer.UploadMinMs)
	assert.Equal(t, 5000, cfg.Analyzer.UploadMaxMs)
	assert.Equal(t, 50, cfg.Analyzer.UploadTickMs)
	assert.Equal(t, 60*time.Second, cfg.AI.RequestTimeout())
}

// TestLoad_FileAndEnv 测试配置文件与环境变量覆盖
func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
ai:
  model: gemini-test
  timeout: 5
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("GEMINI_API_KEY", "secret-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gemini-test", cfg.AI.Model)
	assert.Equal(t, "secret-key", cfg.AI.APIKey)
	assert.Equal(t, 5*time.Second, cfg.AI.RequestTimeout())
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestLoad_MissingFile 测试配置文件不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestInitLogger 测试日志初始化
func TestInitLogger(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "warn", Format: "json"})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	logger = InitLogger(&LogConfig{Level: "bogus"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
