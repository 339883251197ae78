// Package mastodon is a minimal client for the Mastodon REST API endpoints the
// bot uses: credentials, notifications and statuses.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrrp-bot/mrrp/internal/apiclient"
	"github.com/mrrp-bot/mrrp/internal/models"
)

// ErrEmptyStatus is returned when a status body is blank.
var ErrEmptyStatus = errors.New("status text is required")

// Client handles Mastodon HTTP API calls.
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

// VerifyCredentials returns the authenticated account.
func (c *Client) VerifyCredentials(ctx context.Context) (*models.Account, error) {
	var account models.Account
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &account, nil
}

// Notifications fetches pending notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/notifications", nil, &notifications); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	return notifications, nil
}

// CreateStatus posts a new status.
func (c *Client) CreateStatus(ctx context.Context, req models.StatusRequest) (*models.Status, error) {
	if strings.TrimSpace(req.Status) == "" {
		return nil, ErrEmptyStatus
	}

	var status models.Status
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/statuses", req, &status); err != nil {
		return nil, fmt.Errorf("create status: %w", err)
	}
	return &status, nil
}

// DismissNotification dismisses a single notification.
func (c *Client) DismissNotification(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("notification id is required")
	}
	path := "/api/v1/notifications/" + url.PathEscape(id) + "/dismiss"
	if err := c.api.Do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("dismiss notification %s: %w", id, err)
	}
	return nil
}

// ClearNotifications dismisses every notification.
func (c *Client) ClearNotifications(ctx context.Context) error {
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/notifications/clear", nil, nil); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}
