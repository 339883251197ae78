package models

import "time"

// Reply is a reply the bot posted, kept in the reply ledger.
type Reply struct {
	// ID is the unique identifier for the ledger entry.
	ID string `json:"id" yaml:"id"`

	// NotificationID is the mention notification that triggered the reply.
	NotificationID string `json:"notification_id" yaml:"notification_id"`

	// StatusID is the status that was replied to.
	StatusID string `json:"status_id" yaml:"status_id"`

	// ReplyStatusID is the ID of the posted reply, when the instance returned one.
	ReplyStatusID string `json:"reply_status_id,omitempty" yaml:"reply_status_id,omitempty"`

	// Account is the acct handle of the mentioning user.
	Account string `json:"account" yaml:"account"`

	// Visibility mirrors the original status.
	Visibility Visibility `json:"visibility" yaml:"visibility"`

	// Text is the full posted body including pings.
	Text string `json:"text" yaml:"text"`

	// WordCount is the generated word count.
	WordCount int `json:"word_count" yaml:"word_count"`

	// Regenerations is how many emoji-only drafts were discarded.
	Regenerations int `json:"regenerations" yaml:"regenerations"`

	// CreatedAt is when the reply was recorded.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ReplyQuery filters ledger queries.
type ReplyQuery struct {
	Account *string
	Since   *time.Time
	Limit   int
}
