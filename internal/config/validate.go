package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ggmhub/hub/internal/logger"
)

func (n NodeConfig) validate() []error {
	var errs []error
	switch n.Role {
	case RoleHub, RoleField:
	default:
		errs = append(errs, fmt.Errorf("invalid node.role: %s (expected: hub, field)", n.Role))
	}
	if n.ID == "" {
		errs = append(errs, fmt.Errorf("node.id is required"))
	}
	if n.Peer == n.ID {
		errs = append(errs, fmt.Errorf("node.peer must differ from node.id (%s)", n.ID))
	}
	return errs
}

func (l LoggingConfig) validate() []error {
	var errs []error
	if !logger.ValidLevel(l.Level) {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", l.Format))
	}
	if l.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}
	return errs
}

func (s SchedulerConfig) validate() []error {
	var errs []error
	if s.PollIntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("scheduler.poll_interval_seconds must be >= 1"))
	}
	if s.SleepStepMillis < 10 || s.SleepStepMillis > s.PollIntervalSeconds*1000 {
		errs = append(errs, fmt.Errorf("scheduler.sleep_step_ms must be between 10 and the poll interval (got %d)", s.SleepStepMillis))
	}
	return errs
}

func (q QueueConfig) validate() []error {
	var errs []error
	if q.PollIntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("queue.poll_interval_seconds must be >= 1"))
	}
	if q.InitialDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("queue.initial_delay_seconds must be >= 0"))
	}
	if q.StopTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("queue.stop_timeout_seconds must be >= 1"))
	}
	if q.JournalPath != "" {
		if err := validatePath(q.JournalPath, "queue.journal_path"); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (t TransportConfig) validate() []error {
	var errs []error
	switch t.Kind {
	case TransportGAS:
		if err := validateURL(t.GAS.URL, "transport.gas.url"); err != nil {
			errs = append(errs, err)
		}
		if t.GAS.TimeoutSeconds < 1 {
			errs = append(errs, fmt.Errorf("transport.gas.timeout_seconds must be >= 1"))
		}
	case TransportRedis:
		if t.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("transport.redis.url is required when transport.kind is 'redis'"))
		}
	case TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid transport.kind: %s (expected: gas, redis, memory)", t.Kind))
	}
	return errs
}

func (l LLMConfig) validate() []error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range l.Providers {
		field := fmt.Sprintf("llm.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", field, p.Name))
		}
		seen[p.Name] = true
		if err := validateURL(p.BaseURL, field+".base_url"); err != nil {
			errs = append(errs, err)
		}
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", field))
		}
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2 (got %.2f)", l.Temperature))
	}
	return errs
}

func (t TelegramConfig) validate() []error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	if t.Token == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required when telegram is enabled"))
	} else if err := validateTelegramToken(t.Token); err != nil {
		errs = append(errs, err)
	}
	if t.ChatID == 0 {
		errs = append(errs, fmt.Errorf("telegram.chat_id is required when telegram is enabled"))
	}
	return errs
}

func (s SMTPConfig) validate() []error {
	if !s.Enabled {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		errs = append(errs, fmt.Errorf("smtp.addr must be host:port: %w", err))
	}
	if !strings.Contains(s.From, "@") {
		errs = append(errs, fmt.Errorf("smtp.from must be an email address"))
	}
	if s.Username != "" && s.Password == "" {
		errs = append(errs, formatValidationError("smtp.password", "is required when smtp.username is set", ""))
	}
	return errs
}

func (m MetricsConfig) validate() []error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []error{fmt.Errorf("metrics.listen must be host:port: %w", err)}
	}
	return nil
}

func validateURL(raw, fieldName string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", fieldName, raw)
	}
	return nil
}

func validateTelegramToken(token string) error {
	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return formatValidationError("telegram.token", "has invalid format (expected <bot_id>:<token>)", token)
	}

	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}

	if len(secret) < 10 || len(secret) > 50 {
		return fmt.Errorf("telegram token has invalid token length (expected 10-50 characters, got %d)", len(secret))
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}
	return nil
}
