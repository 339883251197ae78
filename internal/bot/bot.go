// Package bot runs the notification polling loop: fetch mentions from the
// primary instance, flush the Misskey side, and answer each mention in order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mrrp-bot/mrrp/internal/apiclient"
	"github.com/mrrp-bot/mrrp/internal/config"
	"github.com/mrrp-bot/mrrp/internal/db"
	"github.com/mrrp-bot/mrrp/internal/events"
	"github.com/mrrp-bot/mrrp/internal/logging"
	"github.com/mrrp-bot/mrrp/internal/models"
	"github.com/mrrp-bot/mrrp/internal/ratelimit"
	"github.com/mrrp-bot/mrrp/internal/responses"
	"github.com/mrrp-bot/mrrp/internal/util"
	"github.com/rs/zerolog"
)

// Bot errors.
var (
	ErrMissingStatus    = errors.New("mention notification has no status")
	ErrMissingPrimary   = errors.New("primary client is required")
	ErrMissingSecondary = errors.New("misskey client is required")
	ErrMissingGenerator = errors.New("response generator is required")
)

// DefaultMaxBackoff caps the delay between failed iterations under the skip
// policy.
const DefaultMaxBackoff = 5 * time.Minute

// Primary is the Mastodon-compatible instance the bot answers on.
type Primary interface {
	VerifyCredentials(ctx context.Context) (*models.Account, error)
	Notifications(ctx context.Context) ([]models.Notification, error)
	CreateStatus(ctx context.Context, req models.StatusRequest) (*models.Status, error)
	DismissNotification(ctx context.Context, id string) error
}

// Secondary is the Misskey-compatible instance whose queue is flushed.
type Secondary interface {
	I(ctx context.Context) (*models.MisskeyUser, error)
	FlushNotifications(ctx context.Context) error
}

// Ledger remembers which notifications were answered.
type Ledger interface {
	Exists(ctx context.Context, notificationID string) (bool, error)
	Create(ctx context.Context, reply *models.Reply) error
}

// Options configures the loop.
type Options struct {
	// Instance names the primary instance in logs and events.
	Instance string

	// Username is the bot's own account name. Empty means it is taken from
	// the identity check in Start.
	Username string

	PollInterval       time.Duration
	StartupDelay       time.Duration
	OnError            config.ErrorPolicy
	DismissAfterReply  bool
	UseContentFallback bool

	// MaxBackoff caps the skip-policy backoff. Default: 5 minutes.
	MaxBackoff time.Duration
}

// OptionsFromConfig maps the file config onto loop options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Instance:           cfg.Instance,
		Username:           cfg.Username,
		PollInterval:       cfg.PollInterval(),
		StartupDelay:       cfg.StartupDelayDuration(),
		OnError:            cfg.OnError,
		DismissAfterReply:  cfg.DismissAfterReply,
		UseContentFallback: cfg.UseContentFallback,
	}
}

// Deps are the collaborators of the loop. Ledger, Events and Limiter are
// optional.
type Deps struct {
	Primary   Primary
	Secondary Secondary
	Generator *responses.Generator
	Ledger    Ledger
	Events    events.Repository
	Limiter   *ratelimit.Limiter
}

// Stats counts what the loop did.
type Stats struct {
	Polls    int64
	Replies  int64
	Skipped  int64
	Failures int64
}

// Bot is a single sequential polling loop.
type Bot struct {
	opts      Options
	deps      Deps
	logger    zerolog.Logger
	sanitizer *bluemonday.Policy

	username string
	started  bool

	polls    atomic.Int64
	replies  atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a bot. It does not touch the network.
func New(opts Options, deps Deps) (*Bot, error) {
	if deps.Primary == nil {
		return nil, ErrMissingPrimary
	}
	if deps.Secondary == nil {
		return nil, ErrMissingSecondary
	}
	if deps.Generator == nil {
		return nil, ErrMissingGenerator
	}
	switch opts.OnError {
	case "":
		opts.OnError = config.ErrorPolicyFatal
	case config.ErrorPolicyFatal, config.ErrorPolicySkip:
	default:
		return nil, fmt.Errorf("unknown error policy %q", opts.OnError)
	}
	if opts.PollInterval < 0 || opts.StartupDelay < 0 {
		return nil, fmt.Errorf("poll interval and startup delay must not be negative")
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if strings.TrimSpace(opts.Instance) == "" {
		opts.Instance = "primary"
	}

	return &Bot{
		opts:      opts,
		deps:      deps,
		logger:    logging.Component("bot"),
		sanitizer: bluemonday.StrictPolicy(),
		username:  strings.TrimSpace(opts.Username),
		sleep:     sleepContext,
	}, nil
}

// Username returns the account name used to skip self-mentions.
func (b *Bot) Username() string {
	return b.username
}

// Stats returns the loop counters.
func (b *Bot) Stats() Stats {
	return Stats{
		Polls:    b.polls.Load(),
		Replies:  b.replies.Load(),
		Skipped:  b.skipped.Load(),
		Failures: b.failures.Load(),
	}
}

// Start waits out the startup delay and checks both accounts. A failed
// identity check is always fatal.
func (b *Bot) Start(ctx context.Context) error {
	if b.opts.StartupDelay > 0 {
		b.logger.Info().Dur("delay", b.opts.StartupDelay).Msg("waiting before connecting")
		if err := b.sleep(ctx, b.opts.StartupDelay); err != nil {
			return err
		}
	}

	me, err := b.deps.Primary.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verify mastodon account: %w", err)
	}
	user, err := b.deps.Secondary.I(ctx)
	if err != nil {
		return fmt.Errorf("verify misskey account: %w", err)
	}

	if b.username == "" && me != nil {
		b.username = me.Username
	}
	b.started = true

	misskeyName := ""
	if user != nil {
		misskeyName = user.Username
	}
	b.logger.Info().
		Str("instance", b.opts.Instance).
		Str("username", b.username).
		Str("misskey_username", misskeyName).
		Msg("connected to misskey and mastodon")
	b.recordEvent(func() error {
		return events.LogBotStarted(ctx, b.deps.Events, b.opts.Instance, b.username)
	})
	return nil
}

// Run polls until ctx is cancelled or, under the fatal policy, until a
// request fails. Cancellation is a clean stop and returns nil.
func (b *Bot) Run(ctx context.Context) error {
	if !b.started {
		if err := b.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	consecutive := 0
	for {
		err := b.Poll(ctx)
		if ctx.Err() != nil {
			b.stopped(ctx, "cancelled")
			return nil
		}

		delay := b.opts.PollInterval
		if err != nil {
			b.failures.Add(1)
			if b.opts.OnError == config.ErrorPolicyFatal {
				b.recordEvent(func() error {
					return events.LogError(ctx, b.deps.Events, b.opts.Instance, "poll", err)
				})
				b.stopped(ctx, err.Error())
				return err
			}

			consecutive++
			base := b.opts.PollInterval
			if base <= 0 {
				base = time.Second
			}
			if backoff := util.CalculateBackoff(base, b.opts.MaxBackoff, consecutive); backoff > delay {
				delay = backoff
			}
			b.logger.Warn().Err(err).Int("consecutive_failures", consecutive).Dur("retry_in", delay).Msg("poll failed")
			b.recordEvent(func() error {
				return events.LogError(ctx, b.deps.Events, b.opts.Instance, "poll", err)
			})
		} else {
			consecutive = 0
		}

		if err := b.sleep(ctx, delay); err != nil {
			b.stopped(ctx, "cancelled")
			return nil
		}
	}
}

// Poll runs a single iteration: fetch, flush, then answer every mention in
// API order.
func (b *Bot) Poll(ctx context.Context) error {
	b.polls.Add(1)
	b.logger.Debug().Msg("checking notifications")

	notifications, err := b.deps.Primary.Notifications(ctx)
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		return nil
	}

	b.logger.Debug().Int("count", len(notifications)).Msg("flushing misskey notifications")
	if err := b.deps.Secondary.FlushNotifications(ctx); err != nil {
		return err
	}
	b.recordEvent(func() error {
		return events.LogNotificationsFlushed(ctx, b.deps.Events, b.opts.Instance)
	})

	mentions := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.IsMention() {
			mentions = append(mentions, n)
		}
	}
	b.recordEvent(func() error {
		return events.LogNotificationsFetched(ctx, b.deps.Events, b.opts.Instance, len(notifications), len(mentions))
	})
	if len(mentions) == 0 {
		return nil
	}

	b.logger.Info().Int("mentions", len(mentions)).Msg("replying")
	for _, n := range mentions {
		if err := b.handleMention(ctx, n); err != nil {
			if ctx.Err() != nil || b.opts.OnError == config.ErrorPolicyFatal {
				return err
			}
			b.failures.Add(1)
			b.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("skipping mention")
			b.recordEvent(func() error {
				return events.LogReplyFailed(ctx, b.deps.Events, n.ID, n.Account.Acct, err)
			})
		}
	}
	return nil
}

func (b *Bot) handleMention(ctx context.Context, n models.Notification) error {
	logger := b.logger.With().Str("notification_id", n.ID).Str("account", n.Account.Acct).Logger()

	if n.Status == nil {
		return fmt.Errorf("notification %s: %w", n.ID, ErrMissingStatus)
	}
	status := n.Status

	if b.deps.Ledger != nil {
		exists, err := b.deps.Ledger.Exists(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("check reply ledger: %w", err)
		}
		if exists {
			b.skipped.Add(1)
			logger.Debug().Msg("already answered")
			b.recordEvent(func() error {
				return events.LogReplySkipped(ctx, b.deps.Events, n.ID, "already answered")
			})
			return nil
		}
	}

	result := b.deps.Generator.GenerateGuarded(b.triggerText(status))
	if result.Regenerations > 0 {
		logger.Debug().Int("regenerations", result.Regenerations).Bool("capped", result.Capped).Msg("regenerated the meow")
		b.recordEvent(func() error {
			return events.LogReplyRegenerated(ctx, b.deps.Events, n.ID, result.Regenerations, result.Capped)
		})
	}

	body := ComposeReply(n.Account.Acct, BuildPings(status.Mentions, b.username), result.Text)
	req := models.StatusRequest{
		Status:      body,
		InReplyToID: status.ID,
		Visibility:  status.Visibility,
	}

	if err := b.deps.Limiter.Wait(ctx); err != nil {
		return err
	}
	posted, err := b.deps.Primary.CreateStatus(ctx, req)
	if err != nil {
		return fmt.Errorf("reply to %s: %w", status.ID, err)
	}
	b.replies.Add(1)

	replyID := ""
	if posted != nil {
		replyID = posted.ID
	}
	logger.Info().Str("status_id", status.ID).Str("reply_id", replyID).Int("words", result.WordCount).Msg("replied")

	if b.opts.DismissAfterReply {
		err := b.deps.Primary.DismissNotification(ctx, n.ID)
		switch {
		case err == nil:
		case apiclient.IsStatus(err, http.StatusNotFound):
			logger.Debug().Msg("notification already dismissed")
		default:
			logger.Warn().Err(err).Msg("failed to dismiss notification")
		}
	}

	if b.deps.Ledger != nil {
		reply := &models.Reply{
			NotificationID: n.ID,
			StatusID:       status.ID,
			ReplyStatusID:  replyID,
			Account:        n.Account.Acct,
			Visibility:     status.Visibility,
			Text:           body,
			WordCount:      result.WordCount,
			Regenerations:  result.Regenerations,
		}
		if err := b.deps.Ledger.Create(ctx, reply); err != nil && !errors.Is(err, db.ErrReplyExists) {
			logger.Warn().Err(err).Msg("failed to record reply")
		}
	}

	entityID := replyID
	if entityID == "" {
		entityID = status.ID
	}
	b.recordEvent(func() error {
		return events.LogReplySent(ctx, b.deps.Events, entityID, models.ReplySentPayload{
			NotificationID: n.ID,
			ReplyStatusID:  replyID,
			Account:        n.Account.Acct,
			Visibility:     status.Visibility,
			WordCount:      result.WordCount,
			Rule:           result.Rule,
		})
	})
	return nil
}

func (b *Bot) stopped(ctx context.Context, reason string) {
	stats := b.Stats()
	event := b.logger.Info().
		Int64("polls", stats.Polls).
		Int64("replies", stats.Replies).
		Int64("failures", stats.Failures).
		Str("reason", reason)
	if b.deps.Limiter != nil {
		limits := b.deps.Limiter.Stats()
		event = event.Int64("rate_limited", limits.DeniedRequests)
	}
	event.Msg("bot stopped")
	// ctx may already be cancelled; the stop event still gets written.
	b.recordEvent(func() error {
		return events.LogBotStopped(context.WithoutCancel(ctx), b.deps.Events, b.opts.Instance, reason)
	})
}

func (b *Bot) recordEvent(write func() error) {
	if b.deps.Events == nil {
		return
	}
	if err := write(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to record event")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
