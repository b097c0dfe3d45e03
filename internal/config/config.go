package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	AI       AIConfig       `mapstructure:"ai"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
	DataDir  string         `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`           // debug, release
	AuthToken     string `mapstructure:"auth_token"`     // 为空时不启用认证
	MaxUploadMB   int64  `mapstructure:"max_upload_mb"`  // 单文件上传上限
	MaxWorkspaces int    `mapstructure:"max_workspaces"` // 同时存在的工作区上限
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Path     string `mapstructure:"path"` // sqlite 文件路径
}

// AIConfig 模型网关配置
type AIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // seconds - 单次请求超时
}

// AnalyzerConfig 分析编排器配置（上传模拟、补丁模拟）
type AnalyzerConfig struct {
	UploadMinMs  int    `mapstructure:"upload_min_ms"`
	UploadMaxMs  int    `mapstructure:"upload_max_ms"`
	UploadTickMs int    `mapstructure:"upload_tick_ms"`
	PatchDelayMs int    `mapstructure:"patch_delay_ms"` // 模拟重新编译耗时
	StagingDir   string `mapstructure:"staging_dir"`    // 上传文件暂存目录
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

// WatcherConfig 投递目录监控配置
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// RequestTimeout 模型请求超时
func (c AIConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 500)
	v.SetDefault("server.max_workspaces", 256)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/secaudit.db")

	v.SetDefault("ai.model", "gemini-3.1-pro-preview")
	v.SetDefault("ai.timeout", 60)

	v.SetDefault("analyzer.upload_min_ms", 1000)
	v.SetDefault("analyzer.upload_max_ms", 5000)
	v.SetDefault("analyzer.upload_tick_ms", 50)
	v.SetDefault("analyzer.patch_delay_ms", 2000)
	v.SetDefault("analyzer.staging_dir", "./data/staging")

	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.queue", "secaudit.reports")

	v.SetDefault("watcher.dir", "./inbound")
	v.SetDefault("watcher.pattern", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("data_dir", "./data")
}

// Load 加载配置文件，path 为空时仅使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 环境变量覆盖（支持嵌套配置）
	v.AutomaticEnv()

	// 模型凭据
	v.BindEnv("ai.api_key", "GEMINI_API_KEY")
	v.BindEnv("ai.model", "GEMINI_MODEL")

	// RabbitMQ
	v.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	v.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	v.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	v.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASS")
	v.BindEnv("database.db_name", "MYSQL_DB")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
