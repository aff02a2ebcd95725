package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	gssh "github.com/3cpo-dev/rdeploy/internal/ssh"
	"github.com/3cpo-dev/rdeploy/pkg/api"
)

// ConfigName is the base name searched for when no explicit config path is given.
const ConfigName = "deploy"

// CacheFileName is the digest cache written next to the config file.
const CacheFileName = "hash_cache.yaml"

type Config struct {
	SSH         SSHConfig     `mapstructure:"ssh"`
	Paths       PathsConfig   `mapstructure:"paths"`
	ShutdownCmd string        `mapstructure:"shutdown_cmd"`
	StartupCmd  string        `mapstructure:"startup_cmd"`
	ShowlogCmd  string        `mapstructure:"showlog_cmd"`
	Maven       MavenConfig   `mapstructure:"maven"`
	File        FileConfig    `mapstructure:"file"`
	Log         LogConfig     `mapstructure:"log"`
	History     HistoryConfig `mapstructure:"history"`
	Metrics     MetricsConfig `mapstructure:"metrics"`

	// Dir is the directory of the loaded config file.
	Dir string `mapstructure:"-"`
}

type SSHConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
	KeyPath     string `mapstructure:"key_path"`
	KnownHosts  string `mapstructure:"known_hosts"`
}

type PathsConfig struct {
	LocalApps     string `mapstructure:"local_apps"`
	LocalCfgHome  string `mapstructure:"local_cfg_home"`
	RemoteApps    string `mapstructure:"remote_apps"`
	RemoteCfgHome string `mapstructure:"remote_cfg_home"`
	FileTargetDir string `mapstructure:"file_target_dir"`
}

type MavenConfig struct {
	MavenHome string `mapstructure:"maven_home"`
}

type FileConfig struct {
	Ignore []string `mapstructure:"ignore"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

// LoadConfig reads the configuration. With an empty path it looks for
// deploy.{toml,yaml,yml} in the working directory, then next to the executable.
// DEPLOY_* environment variables override file values, and a secrets.env next to
// the config file may supply DEPLOY_SSH_PASSWORD.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	v := viper.New()
	v.SetEnvPrefix("DEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return cfg, fmt.Errorf("config %s.toml not found in the working directory or next to the executable", ConfigName)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(v.ConfigFileUsed()))
	if err != nil {
		return cfg, fmt.Errorf("config dir: %w", err)
	}

	secrets, _ := LoadSecretsEnv(filepath.Join(dir, SecretsFileName))
	if pw, ok := secrets[PasswordEnv]; ok && os.Getenv(PasswordEnv) == "" {
		v.Set("ssh.password", pw)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Dir = dir
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.username", "")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.timeout_secs", 0)
	v.SetDefault("ssh.key_path", "")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("paths.local_apps", "")
	v.SetDefault("paths.local_cfg_home", "")
	v.SetDefault("paths.remote_apps", "")
	v.SetDefault("paths.remote_cfg_home", "")
	v.SetDefault("paths.file_target_dir", "")
	v.SetDefault("shutdown_cmd", "")
	v.SetDefault("startup_cmd", "")
	v.SetDefault("showlog_cmd", "")
	v.SetDefault("maven.maven_home", "")
	v.SetDefault("file.ignore", []string{})
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "rdeploy")
}

// Validate reports every key the given workflow needs but the config lacks.
func (c Config) Validate(w api.Workflow) error {
	var errs []error
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	switch w {
	case api.WorkflowDeploy, api.WorkflowRestart:
		require("ssh.host", c.SSH.Host)
		require("ssh.username", c.SSH.Username)
		require("paths.local_apps", c.Paths.LocalApps)
		require("paths.local_cfg_home", c.Paths.LocalCfgHome)
		require("paths.remote_apps", c.Paths.RemoteApps)
		require("paths.remote_cfg_home", c.Paths.RemoteCfgHome)
		if c.SSH.Password == "" && c.SSH.KeyPath == "" {
			errs = append(errs, errors.New("ssh.password or ssh.key_path is required"))
		}
	case api.WorkflowFile:
		require("paths.file_target_dir", c.Paths.FileTargetDir)
	}
	return errors.Join(errs...)
}

// CacheFile is where the change detector persists digests.
func (c Config) CacheFile() string { return filepath.Join(c.Dir, CacheFileName) }

// HistoryPath is the SQLite database holding run history.
func (c Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Dir, "history.db")
}

// StageCommands returns the configured stage overrides.
func (c Config) StageCommands() StageCommands {
	return StageCommands{Shutdown: c.ShutdownCmd, Startup: c.StartupCmd, ShowLog: c.ShowlogCmd}
}

// SSHParams builds connection parameters, loading the key and known_hosts when configured.
func (c Config) SSHParams() (gssh.Params, error) {
	p := gssh.Params{
		Host:     c.SSH.Host,
		Port:     c.SSH.Port,
		User:     c.SSH.Username,
		Password: c.SSH.Password,
		Timeout:  time.Duration(c.SSH.TimeoutSecs) * time.Second,
	}
	if c.SSH.KeyPath != "" {
		signer, err := gssh.LoadPrivateKeySigner(c.SSH.KeyPath)
		if err != nil {
			return p, err
		}
		p.Signer = signer
	}
	if c.SSH.KnownHosts != "" {
		kh, err := gssh.LoadKnownHostsCallback(c.SSH.KnownHosts)
		if err != nil {
			return p, fmt.Errorf("load known hosts: %w", err)
		}
		p.KnownHosts = kh
	}
	return p, nil
}
