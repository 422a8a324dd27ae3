package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads, defaults and env-expands the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse is Load for an in-memory document.
func Parse(data string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	expandEnvVars(&cfg)
	applyDefaults(&cfg, meta)
	expandPaths(&cfg)

	return &cfg, nil
}

// Validate returns every problem found; an empty slice means the config is usable.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.Node.validate()...)
	errs = append(errs, c.Logging.validate()...)
	errs = append(errs, c.Scheduler.validate()...)
	errs = append(errs, c.Queue.validate()...)
	errs = append(errs, c.Transport.validate()...)
	errs = append(errs, c.LLM.validate()...)
	errs = append(errs, c.Telegram.validate()...)
	errs = append(errs, c.SMTP.validate()...)
	errs = append(errs, c.Metrics.validate()...)

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	} else if err := validatePath(c.Store.Path, "store.path"); err != nil {
		errs = append(errs, err)
	}
	for _, dir := range []struct{ name, path string }{
		{"field.repo_dir", c.Field.RepoDir},
		{"field.cache_dir", c.Field.CacheDir},
	} {
		if dir.path == "" {
			continue
		}
		if err := validatePath(dir.path, dir.name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// expandEnvVars resolves ${VAR} references in every secret or location field.
func expandEnvVars(c *Config) {
	for _, p := range []*string{
		&c.Store.Path,
		&c.Store.SeedFile,
		&c.Queue.JournalPath,
		&c.Transport.GAS.URL,
		&c.Transport.Redis.URL,
		&c.Telegram.Token,
		&c.SMTP.Addr,
		&c.SMTP.Username,
		&c.SMTP.Password,
		&c.SMTP.From,
		&c.Facebook.PageID,
		&c.Facebook.AccessToken,
		&c.Field.RepoDir,
		&c.Field.CacheDir,
		&c.Logging.Output,
	} {
		*p = expandEnv(*p)
	}
	for i := range c.LLM.Providers {
		c.LLM.Providers[i].BaseURL = expandEnv(c.LLM.Providers[i].BaseURL)
		c.LLM.Providers[i].APIKey = expandEnv(c.LLM.Providers[i].APIKey)
	}
}

func expandPaths(c *Config) {
	c.Store.Path = expandHome(c.Store.Path)
	c.Store.SeedFile = expandHome(c.Store.SeedFile)
	c.Queue.JournalPath = expandHome(c.Queue.JournalPath)
	c.Field.RepoDir = expandHome(c.Field.RepoDir)
	c.Field.CacheDir = expandHome(c.Field.CacheDir)
}

// expandEnv resolves a whole-value ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}
	return os.Getenv(content)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
