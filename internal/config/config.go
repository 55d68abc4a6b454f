package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/semmidev/sqlkeep/internal/domain"
)

type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Databases []DatabaseConfig `mapstructure:"databases"`
	Backup    BackupConfig     `mapstructure:"backup"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"`
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`

	ExcludedTables []string          `mapstructure:"excluded_tables"`
	TableModes     map[string]string `mapstructure:"table_modes"`
}

type BackupConfig struct {
	LocalPath        string         `mapstructure:"local_path"`
	CacheTime        int            `mapstructure:"cache_time"`
	MaxBackupCount   int            `mapstructure:"max_backup_count"`
	MaxBackupAgeDays int            `mapstructure:"max_backup_age_days"`
	Compress         bool           `mapstructure:"compress"`
	CompressionLevel int            `mapstructure:"compression_level"`
	RemoveDefiners   bool           `mapstructure:"remove_definers"`
	CleanupSchedule  string         `mapstructure:"cleanup_schedule"`
	Cache            CacheConfig    `mapstructure:"cache"`
	FTP              FTPConfig      `mapstructure:"ftp"`
	UploadTargets    []UploadTarget `mapstructure:"upload_targets"`
}

type CacheConfig struct {
	Type          string `mapstructure:"type"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type FTPConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Port           int    `mapstructure:"port"`
	RemoteBasePath string `mapstructure:"remote_base_path"`
	UseTLS         bool   `mapstructure:"use_tls"`
	PassiveMode    bool   `mapstructure:"passive_mode"`
	Timeout        int    `mapstructure:"timeout"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`

	// Local mirror
	Path string `mapstructure:"path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SQLKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "sqlkeep")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backup.local_path", "./backups")
	v.SetDefault("backup.cache_time", 300)
	v.SetDefault("backup.max_backup_count", 10)
	v.SetDefault("backup.max_backup_age_days", 30)
	v.SetDefault("backup.compress", false)
	v.SetDefault("backup.compression_level", 9)
	v.SetDefault("backup.remove_definers", false)
	v.SetDefault("backup.cleanup_schedule", "0 0 3 * * *")
	v.SetDefault("backup.cache.type", "memory")
	v.SetDefault("backup.ftp.port", 21)
	v.SetDefault("backup.ftp.passive_mode", true)
	v.SetDefault("backup.ftp.timeout", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return domain.ErrConfig.New("at least one database configuration is required")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	seen := make(map[string]bool)

	for i, db := range c.Databases {
		if db.Name == "" {
			return domain.ErrConfig.New("database[%d]: name is required", i)
		}
		if seen[db.Name] {
			return domain.ErrConfig.New("database[%d]: duplicate name %q", i, db.Name)
		}
		seen[db.Name] = true
		if strings.ContainsAny(db.Name, `/\`) {
			return domain.ErrConfig.New("database[%d]: name must not contain path separators", i)
		}
		if db.Host == "" {
			return domain.ErrConfig.New("database[%d]: host is required", i)
		}
		if db.Database == "" {
			return domain.ErrConfig.New("database[%d]: database is required", i)
		}
		if db.Enabled && db.Schedule == "" {
			return domain.ErrConfig.New("database[%d]: schedule is required when enabled", i)
		}
		if db.Schedule != "" {
			if _, err := parser.Parse(db.Schedule); err != nil {
				return domain.ErrConfig.New("database[%d]: invalid schedule %q: %v", i, db.Schedule, err)
			}
		}
		if _, err := db.Modes(); err != nil {
			return domain.ErrConfig.New("database[%d]: %v", i, err)
		}
	}

	if c.Backup.LocalPath == "" {
		return domain.ErrConfig.New("backup.local_path is required")
	}
	if c.Backup.MaxBackupCount < 0 || c.Backup.MaxBackupAgeDays < 0 || c.Backup.CacheTime < 0 {
		return domain.ErrConfig.New("backup retention and cache limits must not be negative")
	}
	if c.Backup.CompressionLevel < -2 || c.Backup.CompressionLevel > 9 {
		return domain.ErrConfig.New("backup.compression_level must be between -2 and 9")
	}
	if _, err := parser.Parse(c.Backup.CleanupSchedule); err != nil {
		return domain.ErrConfig.New("backup.cleanup_schedule %q: %v", c.Backup.CleanupSchedule, err)
	}

	switch c.Backup.Cache.Type {
	case "", "memory":
	case "redis":
		if c.Backup.Cache.RedisAddr == "" {
			return domain.ErrConfig.New("backup.cache.redis_addr is required for the redis cache")
		}
	default:
		return domain.ErrConfig.New("unknown backup.cache.type %q", c.Backup.Cache.Type)
	}

	if c.Backup.FTP.Enabled && c.Backup.FTP.Host == "" {
		return domain.ErrConfig.New("backup.ftp.host is required when ftp is enabled")
	}

	return nil
}

// Modes parses table_modes into typed table modes.
func (d DatabaseConfig) Modes() (map[string]domain.TableMode, error) {
	modes := make(map[string]domain.TableMode, len(d.TableModes))
	for table, raw := range d.TableModes {
		mode, err := domain.ParseTableMode(raw)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		modes[table] = mode
	}
	return modes, nil
}

func (c *Config) GetEnabledDatabases() []DatabaseConfig {
	var enabled []DatabaseConfig
	for _, db := range c.Databases {
		if db.Enabled {
			enabled = append(enabled, db)
		}
	}
	return enabled
}

// GetDatabase looks up a configured database by name, enabled or not.
func (c *Config) GetDatabase(name string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}

func (b BackupConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTime) * time.Second
}

func (f FTPConfig) DialTimeout() time.Duration {
	if f.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.Timeout) * time.Second
}
