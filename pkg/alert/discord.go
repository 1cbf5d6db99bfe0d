package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newHTTPClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, p := range listed(n) {
		links = append(links, fmt.Sprintf("• [%s](%s) r/%s", p.Title, PostURL(p), p.Subreddit))
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🚀 %s", n.Title),
		"url":         n.URL,
		"description": fmt.Sprintf("**Virality:** %.2f\n\n%s\n\n%s", n.Score, n.Body, strings.Join(links, "\n")),
		"color":       0xFF4500,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return postJSON(ctx, d.client, "discord webhook", d.webhookURL, body, nil)
}
