// Package misskey is a minimal client for the Misskey API endpoints the bot
// uses. Misskey endpoints are all POST with a JSON body, even reads.
package misskey

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mrrp-bot/mrrp/internal/apiclient"
	"github.com/mrrp-bot/mrrp/internal/models"
)

// Client handles Misskey HTTP API calls.
type Client struct {
	api *apiclient.Client
}

// Option configures a Client.
type Option func(*apiclient.Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiclient.Client) {
		c.HTTP = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *apiclient.Client) {
		if d > 0 {
			c.HTTP = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *apiclient.Client) {
		c.UserAgent = ua
	}
}

// NewClient constructs a client for the instance at baseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	api := apiclient.New(baseURL, token)
	for _, opt := range opts {
		opt(api)
	}
	return &Client{api: api}
}

type emptyBody struct{}

// I returns the authenticated user.
func (c *Client) I(ctx context.Context) (*models.MisskeyUser, error) {
	var user models.MisskeyUser
	if err := c.api.Do(ctx, http.MethodPost, "/api/i", emptyBody{}, &user); err != nil {
		return nil, fmt.Errorf("misskey identity: %w", err)
	}
	return &user, nil
}

// FlushNotifications deletes every notification of the authenticated user.
func (c *Client) FlushNotifications(ctx context.Context) error {
	if err := c.api.Do(ctx, http.MethodPost, "/api/notifications/flush", emptyBody{}, nil); err != nil {
		return fmt.Errorf("flush notifications: %w", err)
	}
	return nil
}

// CreateNote posts a new note.
func (c *Client) CreateNote(ctx context.Context, note models.NoteRequest) error {
	if strings.TrimSpace(note.Text) == "" {
		return errors.New("note text is required")
	}
	if err := c.api.Do(ctx, http.MethodPost, "/api/notes/create", note, nil); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}
