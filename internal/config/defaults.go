package config

import "github.com/BurntSushi/toml"

const (
	DefaultPollIntervalSeconds = 60
	DefaultSleepStepMillis     = 1000
	DefaultInitialDelaySeconds = 10
	DefaultStopTimeoutSeconds  = 10
)

// applyDefaults fills zero values. meta tells explicitly-false booleans
// apart from missing ones so loops default to on.
func applyDefaults(c *Config, meta toml.MetaData) {
	if c.Node.Role == "" {
		c.Node.Role = RoleHub
	}
	if c.Node.ID == "" {
		if c.Node.Role == RoleField {
			c.Node.ID = NodeField
		} else {
			c.Node.ID = NodeHub
		}
	}
	if c.Node.Peer == "" {
		if c.Node.ID == NodeField {
			c.Node.Peer = NodeHub
		} else {
			c.Node.Peer = NodeField
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Store.Path == "" {
		c.Store.Path = "~/.ggmhub/hub.db"
	}

	if !meta.IsDefined("scheduler", "enabled") {
		c.Scheduler.Enabled = c.Node.Role == RoleHub
	}
	if c.Scheduler.PollIntervalSeconds == 0 {
		c.Scheduler.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Scheduler.SleepStepMillis == 0 {
		c.Scheduler.SleepStepMillis = DefaultSleepStepMillis
	}

	if !meta.IsDefined("queue", "enabled") {
		c.Queue.Enabled = true
	}
	if c.Queue.PollIntervalSeconds == 0 {
		c.Queue.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Queue.InitialDelaySeconds == 0 {
		c.Queue.InitialDelaySeconds = DefaultInitialDelaySeconds
	}
	if c.Queue.StopTimeoutSeconds == 0 {
		c.Queue.StopTimeoutSeconds = DefaultStopTimeoutSeconds
	}
	if !meta.IsDefined("queue", "journal_path") {
		c.Queue.JournalPath = "~/.ggmhub/processed_commands.jsonl"
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportMemory
	}
	if c.Transport.GAS.TimeoutSeconds == 0 {
		c.Transport.GAS.TimeoutSeconds = 30
	}
	if c.Transport.GAS.MaxRetries == 0 {
		c.Transport.GAS.MaxRetries = 3
	}
	if c.Transport.Redis.Prefix == "" {
		c.Transport.Redis.Prefix = "ggmhub"
	}

	if c.LLM.ProbeTimeoutSeconds == 0 {
		c.LLM.ProbeTimeoutSeconds = 5
	}
	if c.LLM.RequestTimeoutSeconds == 0 {
		c.LLM.RequestTimeoutSeconds = 120
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}

	if c.SMTP.FromName == "" {
		c.SMTP.FromName = "Gardners Ground Maintenance"
	}

	if c.Facebook.GraphURL == "" {
		c.Facebook.GraphURL = "https://graph.facebook.com/v19.0"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9464"
	}
}
