package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	instance   atomic.Pointer[Config]
	once       sync.Once
	configPath string
)

// Provider holds the upstream debrid service settings.
type Provider struct {
	Name      string `json:"name,omitempty"`
	Host      string `json:"host,omitempty"`
	APIKey    string `json:"api_key,omitempty"`    // server-level credential, used when a request carries none
	RateLimit string `json:"rate_limit,omitempty"` // 5/second, 200/minute
	Proxy     string `json:"proxy,omitempty"`
}

// Availability tunes the cached-availability layer.
type Availability struct {
	BatchSize            int    `json:"batch_size,omitempty"`
	RecheckUncachedAfter string `json:"recheck_uncached_after,omitempty"`
	SweepInterval        string `json:"sweep_interval,omitempty"` // duration ("15m") or cron expression
}

type Config struct {
	BindAddress string `json:"bind_address,omitempty"`
	Port        string `json:"port,omitempty"`
	URLBase     string `json:"url_base,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`

	Provider     Provider     `json:"provider,omitempty"`
	Availability Availability `json:"availability,omitempty"`

	Path string `json:"-"` // directory the config file lives in
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

// StoreFile is the bbolt database backing the availability cache.
func (c *Config) StoreFile() string {
	return filepath.Join(c.Path, "availability.db")
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.Path, "logs")
}

// RecheckWindow returns how long a negative availability result stays fresh.
func (a Availability) RecheckWindow() time.Duration {
	d, err := time.ParseDuration(a.RecheckUncachedAfter)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

func (c *Config) loadConfig() error {
	if configPath == "" {
		return fmt.Errorf("config path not set")
	}
	c.Path = configPath
	file, err := os.ReadFile(c.JsonFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("Config file not found, creating a new one at %s\n", c.JsonFile())
			if err := c.createConfig(c.Path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			return c.Save()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, &c); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	c.setDefaults()
	return nil
}

func (c *Config) setDefaults() {
	c.Port = cmp.Or(c.Port, "8181")
	c.LogLevel = cmp.Or(c.LogLevel, "info")

	if c.URLBase == "" {
		c.URLBase = "/"
	}
	if !strings.HasPrefix(c.URLBase, "/") {
		c.URLBase = "/" + c.URLBase
	}
	if !strings.HasSuffix(c.URLBase, "/") {
		c.URLBase += "/"
	}

	c.Provider.Name = cmp.Or(c.Provider.Name, "torbox")
	c.Provider.Host = cmp.Or(c.Provider.Host, "https://api.torbox.app/v1")
	c.Provider.RateLimit = cmp.Or(c.Provider.RateLimit, "5/second")

	if c.Availability.BatchSize <= 0 {
		c.Availability.BatchSize = 100
	}
	c.Availability.RecheckUncachedAfter = cmp.Or(c.Availability.RecheckUncachedAfter, "1h")
	c.Availability.SweepInterval = cmp.Or(c.Availability.SweepInterval, "15m")
}

func ValidateConfig(config *Config) error {
	if !strings.EqualFold(config.Provider.Name, "torbox") {
		return fmt.Errorf("unsupported provider: %s", config.Provider.Name)
	}
	if config.Provider.Host == "" {
		return errors.New("provider host is required")
	}
	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		cfg := &Config{}
		if err := cfg.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
		instance.Store(cfg)
	})
	return instance.Load()
}

func (c *Config) Save() error {
	c.setDefaults()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.JsonFile(), data, 0644); err != nil {
		return err
	}

	instance.Store(c)
	return nil
}

func (c *Config) createConfig(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Path = path
	c.URLBase = "/"
	c.Port = "8181"
	c.LogLevel = "info"
	return nil
}

// Reload forces a reload of the configuration from disk.
func Reload() {
	once = sync.Once{}
}
