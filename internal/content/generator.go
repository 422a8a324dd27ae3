package content

import (
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/ggmhub/hub/internal/llm"
	"github.com/ggmhub/hub/internal/logger"
)

const (
	defaultBlogWords = 600
	blogMaxTokens    = 2048
	letterMaxTokens  = 1500
	excerptRunes     = 200
)

// LLMGenerator writes content with an llm.Provider, usually an
// *llm.Resolver.
type LLMGenerator struct {
	provider    llm.Provider
	temperature float64
	logger      *logger.Logger
	converter   *md.Converter
}

func NewLLMGenerator(provider llm.Provider, temperature float64, log *logger.Logger) *LLMGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &LLMGenerator{
		provider:    provider,
		temperature: temperature,
		logger:      log.Component("content"),
		converter:   newConverter(),
	}
}

func newConverter() *md.Converter {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:    "atx",
		CodeBlockStyle:  "fenced",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	})
	converter.AddRules(md.Rule{
		Filter: []string{"script", "style", "nav", "footer"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			return new("")
		},
	})
	return converter
}

func (g *LLMGenerator) GenerateBlogPost(ctx context.Context, topic string, opts BlogOptions) BlogPost {
	persona := LookupPersona(opts.Persona)
	if strings.TrimSpace(topic) == "" {
		return BlogPost{Persona: persona.Key, Error: "topic is required"}
	}
	words := opts.Words
	if words <= 0 {
		words = defaultBlogWords
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a blog post of about %d words on: %s\n", words, topic)
	if opts.Audience != "" {
		fmt.Fprintf(&prompt, "Audience: %s\n", opts.Audience)
	}
	if len(opts.Keywords) > 0 {
		fmt.Fprintf(&prompt, "Work in these keywords naturally: %s\n", strings.Join(opts.Keywords, ", "))
	}
	prompt.WriteString("Return HTML only: one <h1> title followed by <h2> sections and <p> paragraphs.")

	text, err := g.provider.Generate(ctx, llm.Request{
		Prompt:      prompt.String(),
		System:      systemPrompt(persona),
		MaxTokens:   blogMaxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.logger.WarnCtx(ctx, "blog generation failed",
			logger.Field{Key: "topic", Value: topic},
			logger.Field{Key: "error", Value: err.Error()})
		return BlogPost{Persona: persona.Key, Error: err.Error()}
	}

	title, body, excerpt := g.splitArticle(text)
	if title == "" {
		title = topic
	}
	return BlogPost{
		Title:   title,
		Content: body,
		Excerpt: excerpt,
		Persona: persona.Key,
	}
}

func (g *LLMGenerator) GenerateNewsletter(ctx context.Context, template string, opts NewsletterOptions) Newsletter {
	persona := LookupPersona(opts.Persona)
	audience := opts.Audience
	if audience == "" {
		audience = "all"
	}
	if template == "" {
		template = "monthly"
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a %s email newsletter for our %s customers.\n", template, audience)
	if opts.Month != "" {
		fmt.Fprintf(&prompt, "It is for %s; include timely garden jobs for that month.\n", opts.Month)
	}
	prompt.WriteString("Start with a line 'SUBJECT: <subject line>', then the body as HTML paragraphs.")

	text, err := g.provider.Generate(ctx, llm.Request{
		Prompt:      prompt.String(),
		System:      systemPrompt(persona),
		MaxTokens:   letterMaxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.logger.WarnCtx(ctx, "newsletter generation failed",
			logger.Field{Key: "template", Value: template},
			logger.Field{Key: "error", Value: err.Error()})
		return Newsletter{Audience: audience, Error: err.Error()}
	}

	subject, rest := splitSubject(text)
	body := g.toMarkdown(rest)
	if subject == "" {
		subject = "News from Gardners Ground Maintenance"
	}
	if body == "" {
		return Newsletter{Subject: subject, Audience: audience, Error: "empty newsletter body"}
	}
	return Newsletter{Subject: subject, Body: body, Audience: audience}
}

func systemPrompt(p Persona) string {
	return "You write for Gardners Ground Maintenance, a small garden maintenance company in the UK. " +
		"Write as " + p.Voice + ". Use British English."
}

// splitArticle pulls the title out of the first <h1>, converts the rest to
// markdown and takes the first paragraph as excerpt. Plain-text answers use
// their first line as title.
func (g *LLMGenerator) splitArticle(text string) (title, body, excerpt string) {
	text = stripFences(text)
	if !looksLikeHTML(text) {
		first, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
		title = strings.TrimSpace(strings.TrimLeft(first, "# "))
		title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
		body = strings.TrimSpace(rest)
		return title, body, excerptOf(firstParagraph(body))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return "", strings.TrimSpace(text), ""
	}
	h1 := doc.Find("h1").First()
	title = strings.TrimSpace(h1.Text())
	h1.Remove()
	excerpt = excerptOf(strings.TrimSpace(doc.Find("p").First().Text()))

	html, err := doc.Find("body").Html()
	if err != nil {
		html = text
	}
	return title, g.toMarkdown(html), excerpt
}

func (g *LLMGenerator) toMarkdown(s string) string {
	s = strings.TrimSpace(stripFences(s))
	if !looksLikeHTML(s) {
		return s
	}
	out, err := g.converter.ConvertString(s)
	if err != nil {
		g.logger.Warn("failed to convert HTML to markdown", logger.Field{Key: "error", Value: err.Error()})
		return s
	}
	return strings.TrimSpace(out)
}

func splitSubject(text string) (subject, rest string) {
	text = strings.TrimSpace(stripFences(text))
	first, rest, _ := strings.Cut(text, "\n")
	if after, ok := cutPrefixFold(strings.TrimSpace(first), "subject:"); ok {
		return strings.TrimSpace(after), strings.TrimSpace(rest)
	}
	return "", text
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, s, _ = strings.Cut(s, "\n")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func looksLikeHTML(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "<p>") || strings.Contains(s, "<h1") || strings.Contains(s, "<h2") || strings.Contains(s, "<html")
}

func firstParagraph(s string) string {
	for _, block := range strings.Split(s, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" && !strings.HasPrefix(block, "#") {
			return block
		}
	}
	return ""
}

func excerptOf(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= excerptRunes {
		return s
	}
	cut := string(runes[:excerptRunes])
	if i := strings.LastIndex(cut, " "); i > excerptRunes/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
