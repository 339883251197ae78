package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mrrp-bot/mrrp/internal/apiclient"
	"github.com/mrrp-bot/mrrp/internal/config"
	"github.com/mrrp-bot/mrrp/internal/db"
	"github.com/mrrp-bot/mrrp/internal/models"
	"github.com/mrrp-bot/mrrp/internal/ratelimit"
	"github.com/mrrp-bot/mrrp/internal/responses"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePrimary struct {
	mu sync.Mutex

	me        *models.Account
	verifyErr error

	batches    [][]models.Notification
	fetchErrs  []error
	fetchCalls int
	onFetch    func(call int)

	createErrs map[string]error
	posted     []models.StatusRequest
	dismissed  []string
	dismissErr error
}

func (f *fakePrimary) VerifyCredentials(ctx context.Context) (*models.Account, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.me != nil {
		return f.me, nil
	}
	return &models.Account{ID: "1", Username: "grok"}, nil
}

func (f *fakePrimary) Notifications(ctx context.Context) ([]models.Notification, error) {
	f.mu.Lock()
	call := f.fetchCalls
	f.fetchCalls++
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(call)
	}
	if call < len(f.fetchErrs) && f.fetchErrs[call] != nil {
		return nil, f.fetchErrs[call]
	}
	if call < len(f.batches) {
		return f.batches[call], nil
	}
	return nil, nil
}

func (f *fakePrimary) CreateStatus(ctx context.Context, req models.StatusRequest) (*models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErrs[req.InReplyToID]; err != nil {
		return nil, err
	}
	f.posted = append(f.posted, req)
	return &models.Status{ID: "reply-" + req.InReplyToID, Visibility: req.Visibility}, nil
}

func (f *fakePrimary) DismissNotification(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, id)
	return f.dismissErr
}

type fakeSecondary struct {
	flushCalls int
	flushErr   error
	iErr       error
}

func (f *fakeSecondary) I(ctx context.Context) (*models.MisskeyUser, error) {
	if f.iErr != nil {
		return nil, f.iErr
	}
	return &models.MisskeyUser{ID: "9x", Username: "grok"}, nil
}

func (f *fakeSecondary) FlushNotifications(ctx context.Context) error {
	f.flushCalls++
	return f.flushErr
}

func meowGenerator(t *testing.T) *responses.Generator {
	t.Helper()
	table, err := responses.NewTable([]responses.Rule{
		{Chance: 100, MinWords: 1, MaxWords: 2, Words: []string{"meow"}},
	})
	require.NoError(t, err)
	gen, err := responses.NewGenerator(table, responses.WithSource(responses.NewSeededSource(1)))
	require.NoError(t, err)
	return gen
}

func mention(id, acct, statusID string, visibility models.Visibility, mentions ...models.Mention) models.Notification {
	return models.Notification{
		ID:      id,
		Type:    models.NotificationTypeMention,
		Account: models.Account{Acct: acct},
		Status: &models.Status{
			ID:         statusID,
			Visibility: visibility,
			Mentions:   mentions,
		},
	}
}

var (
	selfMention = models.Mention{Username: "grok", URL: "https://test.com/@grok", Acct: "grok"}
	miaMention  = models.Mention{Username: "mia", URL: "https://cat.social/@mia", Acct: "mia@cat.social"}
)

func newTestBot(t *testing.T, opts Options, deps Deps) *Bot {
	t.Helper()
	if deps.Generator == nil {
		deps.Generator = meowGenerator(t)
	}
	b, err := New(opts, deps)
	require.NoError(t, err)
	return b
}

func TestNewValidatesDeps(t *testing.T) {
	gen := meowGenerator(t)

	_, err := New(Options{}, Deps{Secondary: &fakeSecondary{}, Generator: gen})
	assert.ErrorIs(t, err, ErrMissingPrimary)

	_, err = New(Options{}, Deps{Primary: &fakePrimary{}, Generator: gen})
	assert.ErrorIs(t, err, ErrMissingSecondary)

	_, err = New(Options{}, Deps{Primary: &fakePrimary{}, Secondary: &fakeSecondary{}})
	assert.ErrorIs(t, err, ErrMissingGenerator)

	_, err = New(Options{OnError: "retry"}, Deps{Primary: &fakePrimary{}, Secondary: &fakeSecondary{}, Generator: gen})
	assert.Error(t, err)

	b, err := New(Options{}, Deps{Primary: &fakePrimary{}, Secondary: &fakeSecondary{}, Generator: gen})
	require.NoError(t, err)
	assert.Equal(t, config.ErrorPolicyFatal, b.opts.OnError)
	assert.Equal(t, DefaultMaxBackoff, b.opts.MaxBackoff)
}

func TestPollFlushesOnlyWhenNotificationsExist(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{
		nil,
		{{ID: "n1", Type: models.NotificationTypeFollow, Account: models.Account{Acct: "luna"}}},
	}}
	secondary := &fakeSecondary{}
	b := newTestBot(t, Options{}, Deps{Primary: primary, Secondary: secondary})

	require.NoError(t, b.Poll(context.Background()))
	assert.Equal(t, 0, secondary.flushCalls)

	require.NoError(t, b.Poll(context.Background()))
	assert.Equal(t, 1, secondary.flushCalls)
	assert.Empty(t, primary.posted)
}

func TestPollRepliesInOrderWithVisibility(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{
		mention("n1", "luna@lunar.place", "s1", models.VisibilityPrivate, selfMention, miaMention),
		{ID: "n2", Type: models.NotificationTypeFavourite},
		mention("n3", "mia@cat.social", "s3", models.VisibilityUnlisted, selfMention),
	}}}
	b := newTestBot(t, Options{Username: "grok"}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	require.NoError(t, b.Poll(context.Background()))

	require.Len(t, primary.posted, 2)
	assert.Equal(t, models.StatusRequest{
		Status:      "@luna@lunar.place @mia@cat.social meow",
		InReplyToID: "s1",
		Visibility:  models.VisibilityPrivate,
	}, primary.posted[0])
	assert.Equal(t, models.StatusRequest{
		Status:      "@mia@cat.social meow",
		InReplyToID: "s3",
		Visibility:  models.VisibilityUnlisted,
	}, primary.posted[1])
	assert.Equal(t, int64(2), b.Stats().Replies)
	assert.Empty(t, primary.dismissed)
}

func TestPollDismissesAfterReply(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{
		mention("n1", "luna", "s1", models.VisibilityPublic),
		mention("n2", "mia", "s2", models.VisibilityPublic),
	}}}
	b := newTestBot(t, Options{DismissAfterReply: true}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	require.NoError(t, b.Poll(context.Background()))
	assert.Equal(t, []string{"n1", "n2"}, primary.dismissed)
}

func TestPollDismissFailureDoesNotFailReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		log  string
	}{
		{name: "gone", err: &apiclient.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}, log: "notification already dismissed"},
		{name: "server error", err: &apiclient.APIError{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}, log: "failed to dismiss notification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakePrimary{
				batches:    [][]models.Notification{{mention("n1", "luna", "s1", models.VisibilityPublic)}},
				dismissErr: tt.err,
			}
			b := newTestBot(t, Options{DismissAfterReply: true, OnError: config.ErrorPolicyFatal}, Deps{Primary: primary, Secondary: &fakeSecondary{}})
			var buf bytes.Buffer
			b.logger = zerolog.New(&buf).Level(zerolog.DebugLevel)

			require.NoError(t, b.Poll(context.Background()))
			assert.Len(t, primary.posted, 1)
			assert.Contains(t, buf.String(), tt.log)
			assert.Equal(t, int64(1), b.Stats().Replies)
		})
	}
}

func TestPollSkipsAnsweredNotifications(t *testing.T) {
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	batch := []models.Notification{mention("n1", "luna@lunar.place", "s1", models.VisibilityPublic)}
	primary := &fakePrimary{batches: [][]models.Notification{batch, batch}}
	ledger := db.NewReplyRepository(database)
	eventRepo := db.NewEventRepository(database)
	b := newTestBot(t, Options{Instance: "https://test.com"}, Deps{
		Primary:   primary,
		Secondary: &fakeSecondary{},
		Ledger:    ledger,
		Events:    eventRepo,
	})

	require.NoError(t, b.Poll(context.Background()))
	require.NoError(t, b.Poll(context.Background()))

	require.Len(t, primary.posted, 1)
	assert.Equal(t, int64(1), b.Stats().Skipped)

	reply, err := ledger.GetByNotification(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "@luna@lunar.place meow", reply.Text)
	assert.Equal(t, "reply-s1", reply.ReplyStatusID)
	assert.Equal(t, 1, reply.WordCount)

	sent := models.EventTypeReplySent
	page, err := eventRepo.Query(context.Background(), db.EventQuery{Type: &sent})
	require.NoError(t, err)
	assert.Len(t, page.Events, 1)

	skipped := models.EventTypeReplySkipped
	page, err = eventRepo.Query(context.Background(), db.EventQuery{Type: &skipped})
	require.NoError(t, err)
	assert.Len(t, page.Events, 1)
}

func TestPollFatalOnMissingStatus(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{
		{ID: "n1", Type: models.NotificationTypeMention, Account: models.Account{Acct: "luna"}},
		mention("n2", "mia", "s2", models.VisibilityPublic),
	}}}
	b := newTestBot(t, Options{}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	err := b.Poll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingStatus)
	assert.Empty(t, primary.posted)
}

func TestPollSkipPolicyContinuesPastFailures(t *testing.T) {
	primary := &fakePrimary{
		batches: [][]models.Notification{{
			{ID: "n0", Type: models.NotificationTypeMention, Account: models.Account{Acct: "ghost"}},
			mention("n1", "luna", "s1", models.VisibilityPublic),
			mention("n2", "mia", "s2", models.VisibilityPublic),
		}},
		createErrs: map[string]error{"s1": errors.New("422 unprocessable")},
	}
	b := newTestBot(t, Options{OnError: config.ErrorPolicySkip}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	require.NoError(t, b.Poll(context.Background()))
	require.Len(t, primary.posted, 1)
	assert.Equal(t, "s2", primary.posted[0].InReplyToID)
	assert.Equal(t, int64(2), b.Stats().Failures)
}

func TestPollFatalOnFlushError(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{mention("n1", "luna", "s1", models.VisibilityPublic)}}}
	secondary := &fakeSecondary{flushErr: errors.New("misskey down")}
	b := newTestBot(t, Options{}, Deps{Primary: primary, Secondary: secondary})

	err := b.Poll(context.Background())
	require.Error(t, err)
	assert.EqualError(t, err, "misskey down")
	assert.Empty(t, primary.posted)
}

func TestPollRateLimitedRepliesStayOrdered(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{
		mention("n1", "luna", "s1", models.VisibilityPublic),
		mention("n2", "mia", "s2", models.VisibilityPublic),
		mention("n3", "nova", "s3", models.VisibilityPublic),
	}}}
	limiter := ratelimit.New(ratelimit.Config{PerSecond: 200, Burst: 1})
	b := newTestBot(t, Options{}, Deps{Primary: primary, Secondary: &fakeSecondary{}, Limiter: limiter})

	require.NoError(t, b.Poll(context.Background()))
	require.Len(t, primary.posted, 3)
	for i, id := range []string{"s1", "s2", "s3"} {
		assert.Equal(t, id, primary.posted[i].InReplyToID)
	}
	assert.Equal(t, int64(3), limiter.Stats().TotalRequests)
}

func TestStoppedLogReportsRateLimitedReplies(t *testing.T) {
	primary := &fakePrimary{batches: [][]models.Notification{{
		mention("n1", "luna", "s1", models.VisibilityPublic),
		mention("n2", "mia", "s2", models.VisibilityPublic),
	}}}
	limiter := ratelimit.New(ratelimit.Config{PerSecond: 20, Burst: 1})
	b := newTestBot(t, Options{}, Deps{Primary: primary, Secondary: &fakeSecondary{}, Limiter: limiter})

	var buf bytes.Buffer
	b.logger = zerolog.New(&buf)

	require.NoError(t, b.Poll(context.Background()))
	b.stopped(context.Background(), "cancelled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lastLine(buf.Bytes()), &entry))
	assert.Equal(t, "bot stopped", entry["message"])
	assert.EqualValues(t, 1, entry["rate_limited"])
	assert.EqualValues(t, 2, entry["replies"])
}

func lastLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return lines[len(lines)-1]
}

func TestStartUsesIdentityUsername(t *testing.T) {
	primary := &fakePrimary{me: &models.Account{Username: "mrrp"}}
	b := newTestBot(t, Options{StartupDelay: 5 * time.Second}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, "mrrp", b.Username())
	assert.Equal(t, []time.Duration{5 * time.Second}, slept)
}

func TestStartKeepsConfiguredUsername(t *testing.T) {
	primary := &fakePrimary{me: &models.Account{Username: "mrrp"}}
	b := newTestBot(t, Options{Username: "grok"}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, "grok", b.Username())
}

func TestStartFailsOnIdentityCheck(t *testing.T) {
	b := newTestBot(t, Options{}, Deps{
		Primary:   &fakePrimary{},
		Secondary: &fakeSecondary{iErr: errors.New("401 unauthorized")},
	})

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify misskey account")

	b = newTestBot(t, Options{OnError: config.ErrorPolicySkip}, Deps{
		Primary:   &fakePrimary{verifyErr: errors.New("401 unauthorized")},
		Secondary: &fakeSecondary{},
	})
	err = b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify mastodon account")
}

func TestRunFatalStopsOnFetchError(t *testing.T) {
	primary := &fakePrimary{fetchErrs: []error{errors.New("connection refused")}}
	b := newTestBot(t, Options{PollInterval: time.Second}, Deps{Primary: primary, Secondary: &fakeSecondary{}})
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, primary.fetchCalls)
}

func TestRunSkipPolicyBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primary := &fakePrimary{
		fetchErrs: []error{errors.New("502"), errors.New("502")},
		onFetch: func(call int) {
			if call == 3 {
				cancel()
			}
		},
	}
	b := newTestBot(t, Options{PollInterval: 10 * time.Second, OnError: config.ErrorPolicySkip}, Deps{
		Primary:   primary,
		Secondary: &fakeSecondary{},
	})

	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}

	require.NoError(t, b.Run(ctx))
	require.Len(t, slept, 3)
	assert.GreaterOrEqual(t, slept[0], 10*time.Second)
	assert.Greater(t, slept[1], slept[0])
	assert.Equal(t, 10*time.Second, slept[2])
	assert.Equal(t, int64(2), b.Stats().Failures)
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakePrimary{}
	b := newTestBot(t, Options{PollInterval: time.Hour}, Deps{Primary: primary, Secondary: &fakeSecondary{}})

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		primary.mu.Lock()
		defer primary.mu.Unlock()
		return primary.fetchCalls > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Username = "grok"
	cfg.OnError = config.ErrorPolicySkip

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "https://test.com", opts.Instance)
	assert.Equal(t, "grok", opts.Username)
	assert.Equal(t, 10*time.Second, opts.PollInterval)
	assert.Equal(t, 10*time.Second, opts.StartupDelay)
	assert.Equal(t, config.ErrorPolicySkip, opts.OnError)
}
