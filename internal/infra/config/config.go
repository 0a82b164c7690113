package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "config.yaml"

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	N8N       N8NConfig       `mapstructure:"n8n" yaml:"n8n"`
	Download  DownloadConfig  `mapstructure:"download" yaml:"download"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Container ContainerConfig `mapstructure:"container" yaml:"container"`
	Callback  CallbackConfig  `mapstructure:"callback" yaml:"callback"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
}

type PathsConfig struct {
	Root      string `mapstructure:"root" yaml:"root"`
	FilesDir  string `mapstructure:"files_dir" yaml:"files_dir"`
	DockerDir string `mapstructure:"docker_dir" yaml:"docker_dir"`
}

type N8NConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	WebhookPath     string        `mapstructure:"webhook_path" yaml:"webhook_path"`
	TestWebhookPath string        `mapstructure:"test_webhook_path" yaml:"test_webhook_path"`
	Template        string        `mapstructure:"template" yaml:"template"`
	TriggerTimeout  time.Duration `mapstructure:"trigger_timeout" yaml:"trigger_timeout"`
}

type DownloadConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ContainerConfig struct {
	Runtime     string `mapstructure:"runtime" yaml:"runtime"`
	Name        string `mapstructure:"name" yaml:"name"`
	StartScript string `mapstructure:"start_script" yaml:"start_script"`
	StopScript  string `mapstructure:"stop_script" yaml:"stop_script"`
}

type CallbackConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// Load reads path when it exists. The default path is optional so the tool
// runs out of the box inside a project checkout; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit || !os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Support Environment Variables
	v.SetEnvPrefix("SHEETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.files_dir", "n8n-files")
	v.SetDefault("paths.docker_dir", "src/docker-n8n")

	v.SetDefault("n8n.base_url", "http://localhost:5678")
	v.SetDefault("n8n.webhook_path", "/webhook/trigger")
	v.SetDefault("n8n.test_webhook_path", "/webhook-test/trigger")
	v.SetDefault("n8n.template", "default.docx")
	v.SetDefault("n8n.trigger_timeout", 10*time.Second)

	v.SetDefault("download.timeout", 3*time.Second)
	v.SetDefault("download.user_agent", "Mozilla/5.0")

	v.SetDefault("watch.interval", 3*time.Second)
	v.SetDefault("watch.timeout", 5*time.Minute)

	v.SetDefault("container.runtime", "docker")
	v.SetDefault("container.name", "n8n-custom")
	v.SetDefault("container.start_script", "start-n8n.sh")
	v.SetDefault("container.stop_script", "stop-n8n.sh")

	v.SetDefault("callback.listen", "0.0.0.0:5679")

	v.SetDefault("log.path", "sheetflow.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "n8n-files/.sheetflow/runs.db")
}

func (c *Config) validate() error {
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}

	u, err := url.Parse(c.N8N.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("n8n.base_url must be an absolute URL, got %q", c.N8N.BaseURL)
	}

	if _, _, err := net.SplitHostPort(c.Callback.Listen); err != nil {
		return fmt.Errorf("callback.listen: %w", err)
	}

	if c.Download.Timeout <= 0 {
		c.Download.Timeout = 3 * time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 3 * time.Second
	}
	if c.Watch.Timeout <= 0 {
		c.Watch.Timeout = 5 * time.Minute
	}
	if c.N8N.TriggerTimeout <= 0 {
		c.N8N.TriggerTimeout = 10 * time.Second
	}

	if c.Container.Name == "" {
		return errors.New("container.name is required")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite or postgres)", c.Store.Driver)
	}

	return nil
}

// WebhookURL is the production trigger endpoint.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.N8N.BaseURL, "/") + c.N8N.WebhookPath
}

// TestWebhookURL is the editor's "listen for test event" trigger endpoint.
func (c *Config) TestWebhookURL() string {
	return strings.TrimRight(c.N8N.BaseURL, "/") + c.N8N.TestWebhookPath
}

// Layout resolves the shared directory tree under the project root.
func (c *Config) Layout() Layout {
	return Layout{
		Root:      c.Paths.Root,
		FilesDir:  c.ResolvePath(c.Paths.FilesDir),
		DockerDir: c.ResolvePath(c.Paths.DockerDir),
	}
}

// ResolvePath anchors relative paths at paths.root.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

// Layout is the fixed n8n-files/{downloads,sheets,user-data} tree plus the
// container directory holding n8n-data and .env.
type Layout struct {
	Root      string
	FilesDir  string
	DockerDir string
}

func (l Layout) StagingDir() string  { return filepath.Join(l.FilesDir, "downloads") }
func (l Layout) InboxDir() string    { return filepath.Join(l.FilesDir, "sheets") }
func (l Layout) UserDataDir() string { return filepath.Join(l.FilesDir, "user-data") }
func (l Layout) DataDir() string     { return filepath.Join(l.DockerDir, "n8n-data") }
func (l Layout) EnvFile() string     { return filepath.Join(l.DockerDir, ".env") }
