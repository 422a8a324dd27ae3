// Package facebook publishes posts to the company's Facebook page through
// the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ggmhub/hub/internal/logger"
)

const (
	DefaultGraphURL = "https://graph.facebook.com/v19.0"
	defaultTimeout  = 30 * time.Second
)

// ErrNotConfigured is returned when the page id or access token is missing.
var ErrNotConfigured = errors.New("facebook page not configured")

type Config struct {
	PageID      string
	AccessToken string
	GraphURL    string
}

// Post is a page post. Tags are rendered as hashtags.
type Post struct {
	Title    string
	Excerpt  string
	ImageURL string
	Tags     []string
	BlogURL  string
}

type Client struct {
	http   *http.Client
	config Config
	logger *logger.Logger
}

type graphResponse struct {
	ID     string      `json:"id"`
	PostID string      `json:"post_id"`
	Error  *graphError `json:"error,omitempty"`
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		http:   &http.Client{Timeout: defaultTimeout},
		config: cfg,
		logger: log.Component("facebook"),
	}
}

func (c *Client) Configured() bool {
	return c.config.PageID != "" && c.config.AccessToken != ""
}

// Publish posts p and returns the Graph id of the new post. Posts with an
// image go to the page's photos edge, the rest to its feed.
func (c *Client) Publish(ctx context.Context, p Post) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	message := p.Message()
	if message == "" && p.ImageURL == "" {
		return "", errors.New("post has no content")
	}

	form := url.Values{}
	form.Set("access_token", c.config.AccessToken)
	edge := "feed"
	if p.ImageURL != "" {
		edge = "photos"
		form.Set("url", p.ImageURL)
		form.Set("caption", message)
	} else {
		form.Set("message", message)
		if p.BlogURL != "" {
			form.Set("link", p.BlogURL)
		}
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.config.GraphURL, url.PathEscape(c.config.PageID), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out graphResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("graph response status=%d: %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("graph error %d (%s): %s", out.Error.Code, out.Error.Type, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph response status=%d", resp.StatusCode)
	}

	id := out.PostID
	if id == "" {
		id = out.ID
	}
	c.logger.InfoCtx(ctx, "page post published",
		logger.Field{Key: "edge", Value: edge},
		logger.Field{Key: "post_id", Value: id})
	return id, nil
}

// Message renders the post text.
func (p Post) Message() string {
	var parts []string
	if t := strings.TrimSpace(p.Title); t != "" {
		parts = append(parts, t)
	}
	if e := strings.TrimSpace(p.Excerpt); e != "" {
		parts = append(parts, e)
	}
	if p.BlogURL != "" {
		parts = append(parts, "Read more: "+p.BlogURL)
	}
	if tags := hashtags(p.Tags); tags != "" {
		parts = append(parts, tags)
	}
	return strings.Join(parts, "\n\n")
}

func hashtags(tags []string) string {
	var out []string
	for _, t := range tags {
		t = strings.Join(strings.Fields(strings.TrimPrefix(strings.TrimSpace(t), "#")), "")
		if t != "" {
			out = append(out, "#"+t)
		}
	}
	return strings.Join(out, " ")
}
