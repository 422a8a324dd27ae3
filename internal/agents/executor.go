package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggmhub/hub/internal/content"
)

// Output is what an executor produced. Draft, when set, is persisted as a
// reviewable artifact after the run succeeds.
type Output struct {
	Title string
	Text  string
	Draft *Draft
}

// Executor runs one agent type.
type Executor interface {
	Execute(ctx context.Context, sch Schedule) (Output, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sch Schedule) (Output, error)

func (f ExecutorFunc) Execute(ctx context.Context, sch Schedule) (Output, error) {
	return f(ctx, sch)
}

// BlogConfig is the config_json of a blog_writer agent.
type BlogConfig struct {
	content.BlogOptions
	Topic string `json:"topic"`
}

// NewsletterConfig is the config_json of a newsletter_writer agent.
type NewsletterConfig struct {
	content.NewsletterOptions
	Template string `json:"template"`
}

// ContentExecutors returns the built-in content agents backed by gen.
func ContentExecutors(gen content.Generator) map[string]Executor {
	return map[string]Executor{
		TypeBlogWriter:       &BlogWriter{Generator: gen, now: time.Now},
		TypeNewsletterWriter: &NewsletterWriter{Generator: gen, now: time.Now},
	}
}

// BlogWriter drafts a blog post. Without a configured topic it writes about
// the current season.
type BlogWriter struct {
	Generator content.Generator
	now       func() time.Time
}

func (w *BlogWriter) Execute(ctx context.Context, sch Schedule) (Output, error) {
	var cfg BlogConfig
	if err := decodeConfig(sch.ConfigJSON, &cfg); err != nil {
		return Output{}, err
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = content.SeasonalTopic(clock(w.now))
	}

	post := w.Generator.GenerateBlogPost(ctx, topic, cfg.BlogOptions)
	if !post.OK() {
		return Output{}, errors.New(post.Error)
	}
	return Output{
		Title: post.Title,
		Text:  post.Content,
		Draft: &Draft{
			Kind:    DraftBlog,
			Title:   post.Title,
			Body:    post.Content,
			Excerpt: post.Excerpt,
			Persona: post.Persona,
		},
	}, nil
}

// NewsletterWriter drafts the monthly newsletter for review.
type NewsletterWriter struct {
	Generator content.Generator
	now       func() time.Time
}

func (w *NewsletterWriter) Execute(ctx context.Context, sch Schedule) (Output, error) {
	var cfg NewsletterConfig
	if err := decodeConfig(sch.ConfigJSON, &cfg); err != nil {
		return Output{}, err
	}
	if cfg.Month == "" {
		cfg.Month = clock(w.now).Format("January 2006")
	}

	letter := w.Generator.GenerateNewsletter(ctx, cfg.Template, cfg.NewsletterOptions)
	if !letter.OK() {
		return Output{}, errors.New(letter.Error)
	}
	return Output{
		Title: letter.Subject,
		Text:  letter.Body,
		Draft: &Draft{
			Kind:     DraftNewsletter,
			Title:    letter.Subject,
			Body:     letter.Body,
			Persona:  cfg.Persona,
			Audience: letter.Audience,
		},
	}, nil
}

func decodeConfig(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}
	return nil
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}
