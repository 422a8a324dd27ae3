// Package content produces marketing copy for the hub: blog posts and
// newsletters written in a company persona by an LLM provider.
//
// Generation never returns a Go error; failures are reported in the
// result's Error field so callers can record them on the run.
package content

import "context"

// Generator is the content collaborator used by agents and commands.
type Generator interface {
	GenerateBlogPost(ctx context.Context, topic string, opts BlogOptions) BlogPost
	GenerateNewsletter(ctx context.Context, template string, opts NewsletterOptions) Newsletter
}

// BlogOptions come from an agent's config JSON or a command payload.
type BlogOptions struct {
	Persona  string   `json:"persona" yaml:"persona"`
	Words    int      `json:"word_count" yaml:"word_count"`
	Audience string   `json:"audience" yaml:"audience"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

type NewsletterOptions struct {
	Persona  string `json:"persona" yaml:"persona"`
	Audience string `json:"audience" yaml:"audience"`
	Month    string `json:"month" yaml:"month"`
}

type BlogPost struct {
	Title   string
	Content string // markdown
	Excerpt string
	Persona string
	Error   string
}

// OK reports whether generation succeeded.
func (p BlogPost) OK() bool { return p.Error == "" }

type Newsletter struct {
	Subject  string
	Body     string // markdown
	Audience string
	Error    string
}

func (n Newsletter) OK() bool { return n.Error == "" }
