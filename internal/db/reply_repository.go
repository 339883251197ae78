package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mrrp-bot/mrrp/internal/models"
)

// Reply repository errors.
var (
	ErrReplyNotFound = errors.New("reply not found")
	ErrReplyExists   = errors.New("notification already answered")
)

// ReplyRepository persists the reply ledger.
type ReplyRepository struct {
	db *DB
}

// NewReplyRepository creates a new ReplyRepository.
func NewReplyRepository(db *DB) *ReplyRepository {
	return &ReplyRepository{db: db}
}

const replyColumns = `id, notification_id, status_id, reply_status_id, account, visibility, text, word_count, regenerations, created_at`

// Create records a reply. Returns ErrReplyExists when the notification already
// has one.
func (r *ReplyRepository) Create(ctx context.Context, reply *models.Reply) error {
	if reply == nil || strings.TrimSpace(reply.NotificationID) == "" {
		return fmt.Errorf("reply notification id is required")
	}
	if strings.TrimSpace(reply.StatusID) == "" {
		return fmt.Errorf("reply status id is required")
	}

	if reply.ID == "" {
		reply.ID = uuid.New().String()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now().UTC()
	} else {
		reply.CreatedAt = reply.CreatedAt.UTC()
	}

	var replyStatusID *string
	if reply.ReplyStatusID != "" {
		replyStatusID = &reply.ReplyStatusID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO replies (`+replyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		reply.ID,
		reply.NotificationID,
		reply.StatusID,
		replyStatusID,
		reply.Account,
		string(reply.Visibility),
		reply.Text,
		reply.WordCount,
		reply.Regenerations,
		reply.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReplyExists
		}
		return fmt.Errorf("failed to insert reply: %w", err)
	}
	return nil
}

// Exists reports whether the notification already has a reply.
func (r *ReplyRepository) Exists(ctx context.Context, notificationID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM replies WHERE notification_id = ?`, notificationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check reply: %w", err)
	}
	return true, nil
}

// GetByNotification returns the reply for a notification.
func (r *ReplyRepository) GetByNotification(ctx context.Context, notificationID string) (*models.Reply, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+replyColumns+` FROM replies WHERE notification_id = ?`, notificationID)
	reply, err := scanReply(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReplyNotFound
	}
	return reply, err
}

// List returns replies newest first.
func (r *ReplyRepository) List(ctx context.Context, q models.ReplyQuery) ([]*models.Reply, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + replyColumns + ` FROM replies WHERE 1=1`
	args := []any{}
	if q.Account != nil {
		query += ` AND account = ?`
		args = append(args, *q.Account)
	}
	if q.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC().Format(timeFormat))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var replies []*models.Reply
	for rows.Next() {
		reply, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replies: %w", err)
	}
	return replies, nil
}

// Count returns the number of recorded replies.
func (r *ReplyRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}
	return n, nil
}

func scanReply(row rowScanner) (*models.Reply, error) {
	var reply models.Reply
	var replyStatusID sql.NullString
	var visibility, createdAt string

	if err := row.Scan(
		&reply.ID,
		&reply.NotificationID,
		&reply.StatusID,
		&replyStatusID,
		&reply.Account,
		&visibility,
		&reply.Text,
		&reply.WordCount,
		&reply.Regenerations,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan reply: %w", err)
	}

	reply.ReplyStatusID = replyStatusID.String
	reply.Visibility = models.Visibility(visibility)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		reply.CreatedAt = t
	}
	return &reply, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
