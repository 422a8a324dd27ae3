// Package config loads and validates the ggmhub TOML configuration.
//
// Configuration structure:
//   - [node]: node identity (pc_hub or laptop) and role
//   - [logging]: level, format and output
//   - [store]: local SQLite database
//   - [scheduler]: agent scheduler loop
//   - [queue]: remote command queue loop and dedup journal
//   - [transport]: shared command mailbox (gas, redis or memory)
//   - [llm]: ordered LLM provider candidates
//   - [telegram]: side-channel notifications
//   - [smtp]: outgoing email
//   - [facebook]: page publishing
//   - [metrics]: Prometheus endpoint
//   - [field]: laptop-only settings
//
// String values may reference environment variables with ${VAR} or
// ${VAR:default}, e.g. token = "${TG_BOT_TOKEN}".
package config

import "time"

// Node roles.
const (
	RoleHub   = "hub"
	RoleField = "field"
)

// Well-known node ids used as command source/target.
const (
	NodeHub   = "pc_hub"
	NodeField = "laptop"
)

// Transport kinds.
const (
	TransportGAS    = "gas"
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

// Config is the root of config.toml.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Logging   LoggingConfig   `toml:"logging"`
	Store     StoreConfig     `toml:"store"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Queue     QueueConfig     `toml:"queue"`
	Transport TransportConfig `toml:"transport"`
	LLM       LLMConfig       `toml:"llm"`
	Telegram  TelegramConfig  `toml:"telegram"`
	SMTP      SMTPConfig      `toml:"smtp"`
	Facebook  FacebookConfig  `toml:"facebook"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Field     FieldConfig     `toml:"field"`
}

type NodeConfig struct {
	ID   string `toml:"id"`
	Role string `toml:"role"`
	// Peer is the node id commands are sent to by default.
	Peer string `toml:"peer"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type StoreConfig struct {
	Path string `toml:"path"`
	// SeedFile is an optional YAML file of agent schedules imported on first start.
	SeedFile string `toml:"seed_file"`
}

type SchedulerConfig struct {
	Enabled             bool `toml:"enabled"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	SleepStepMillis     int  `toml:"sleep_step_ms"`
}

func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c SchedulerConfig) SleepStep() time.Duration {
	return time.Duration(c.SleepStepMillis) * time.Millisecond
}

type QueueConfig struct {
	Enabled             bool   `toml:"enabled"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	InitialDelaySeconds int    `toml:"initial_delay_seconds"`
	StopTimeoutSeconds  int    `toml:"stop_timeout_seconds"`
	JournalPath         string `toml:"journal_path"`
}

func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c QueueConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelaySeconds) * time.Second
}

func (c QueueConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

type TransportConfig struct {
	Kind  string      `toml:"kind"`
	GAS   GASConfig   `toml:"gas"`
	Redis RedisConfig `toml:"redis"`
}

// GASConfig points at the Google Apps Script web app fronting the shared sheet.
type GASConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

func (c GASConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RedisConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// LLMConfig lists provider candidates in preference order.
type LLMConfig struct {
	Providers             []LLMProviderConfig `toml:"providers"`
	ProbeTimeoutSeconds   int                 `toml:"probe_timeout_seconds"`
	RequestTimeoutSeconds int                 `toml:"request_timeout_seconds"`
	MaxTokens             int                 `toml:"max_tokens"`
	Temperature           float64             `toml:"temperature"`
}

func (c LLMConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LLMProviderConfig is one OpenAI-compatible endpoint (Ollama exposes the same API).
type LLMProviderConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
}

type SMTPConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
}

type FacebookConfig struct {
	PageID      string `toml:"page_id"`
	AccessToken string `toml:"access_token"`
	GraphURL    string `toml:"graph_url"`
}

// Enabled reports whether page posting is configured.
func (c FacebookConfig) Enabled() bool {
	return c.PageID != "" && c.AccessToken != ""
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type FieldConfig struct {
	RepoDir  string `toml:"repo_dir"`
	CacheDir string `toml:"cache_dir"`
}

// IsHub reports whether this node runs the agent scheduler and hub handlers.
func (c *Config) IsHub() bool {
	return c.Node.Role == RoleHub
}
