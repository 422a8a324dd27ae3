package config

import "strings"

// maskSecret keeps the first and last 4 characters of a secret.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// maskTelegramToken keeps the bot id visible for diagnostics.
func maskTelegramToken(token string) string {
	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return maskSecret(token)
	}
	return botID + ":" + maskSecret(secret)
}

// Masked returns a copy safe to print: every credential is masked.
func (c *Config) Masked() *Config {
	out := *c
	out.Telegram.Token = maskTelegramToken(c.Telegram.Token)
	out.SMTP.Password = maskSecret(c.SMTP.Password)
	out.Facebook.AccessToken = maskSecret(c.Facebook.AccessToken)
	out.LLM.Providers = make([]LLMProviderConfig, len(c.LLM.Providers))
	for i, p := range c.LLM.Providers {
		p.APIKey = maskSecret(p.APIKey)
		out.LLM.Providers[i] = p
	}
	return &out
}

func formatValidationError(field, message, secret string) error {
	msg := field + ": " + message
	if secret != "" {
		msg += " (value: " + maskSecret(secret) + ")"
	}
	return &ValidationError{Field: field, Message: msg}
}

// ValidationError is a validation failure that may quote a masked value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
