// Package alert delivers trending-post notifications to chat and webhook
// destinations.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
)

const maxListedPosts = 5

// Notification is the data sent to alert destinations.
type Notification struct {
	Title string        `json:"title"`
	Body  string        `json:"body"`
	URL   string        `json:"url"`
	Score float64       `json:"score"`
	Posts []source.Post `json:"posts"`
}

// NewPostNotification builds the alert for one trending post.
func NewPostNotification(p source.Post) *Notification {
	var score float64
	if p.ViralityScore != nil {
		score = *p.ViralityScore
	}
	return &Notification{
		Title: p.Title,
		Body: fmt.Sprintf("r/%s post by u/%s is trending: %d upvotes, %d comments",
			p.Subreddit, p.Author, p.Score, p.NumComments),
		URL:   PostURL(p),
		Score: score,
		Posts: []source.Post{p},
	}
}

// PostURL returns the Reddit comments page of p, falling back to its link.
func PostURL(p source.Post) string {
	if p.Permalink != "" {
		return "https://www.reddit.com" + p.Permalink
	}
	return p.URL
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends n to every notifier and joins their failures.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func listed(n *Notification) []source.Post {
	if len(n.Posts) > maxListedPosts {
		return n.Posts[:maxListedPosts]
	}
	return n.Posts
}

// postJSON sends body and treats any 2xx as delivered.
func postJSON(ctx context.Context, client *http.Client, name, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d", name, resp.StatusCode)
	}
	return nil
}
