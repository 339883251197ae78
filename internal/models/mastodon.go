package models

// Visibility is the audience of a Mastodon status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// NotificationType is the Mastodon notification type tag.
type NotificationType string

const (
	NotificationTypeMention              NotificationType = "mention"
	NotificationTypeStatus               NotificationType = "status"
	NotificationTypeReblog               NotificationType = "reblog"
	NotificationTypeReaction             NotificationType = "reaction"
	NotificationTypeFollow               NotificationType = "follow"
	NotificationTypeFollowRequest        NotificationType = "follow_request"
	NotificationTypeFavourite            NotificationType = "favourite"
	NotificationTypePoll                 NotificationType = "poll"
	NotificationTypeUpdate               NotificationType = "update"
	NotificationTypeSeveredRelationships NotificationType = "severed_relationships"
	NotificationTypeModerationWarning    NotificationType = "moderation_warning"
)

// Account is the subset of a Mastodon account the bot reads.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
	Bot         bool   `json:"bot"`
}

// Mention is an account mentioned in a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	URL      string `json:"url"`
	Acct     string `json:"acct"`
}

// Status is the subset of a Mastodon status the bot reads.
type Status struct {
	ID          string     `json:"id"`
	URI         string     `json:"uri"`
	URL         string     `json:"url,omitempty"`
	CreatedAt   string     `json:"created_at"`
	Account     Account    `json:"account"`
	Content     string     `json:"content"`
	Text        *string    `json:"text,omitempty"`
	Visibility  Visibility `json:"visibility"`
	SpoilerText string     `json:"spoiler_text"`
	Mentions    []Mention  `json:"mentions"`
	InReplyToID *string    `json:"in_reply_to_id,omitempty"`
}

// Notification is a Mastodon notification.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	CreatedAt string           `json:"created_at"`
	Account   Account          `json:"account"`
	Status    *Status          `json:"status,omitempty"`
}

// IsMention reports whether the notification is a mention.
func (n Notification) IsMention() bool {
	return n.Type == NotificationTypeMention
}

// StatusRequest is the body of POST /api/v1/statuses.
type StatusRequest struct {
	Status      string     `json:"status"`
	InReplyToID string     `json:"in_reply_to_id,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
	SpoilerText string     `json:"spoiler_text,omitempty"`
	Sensitive   bool       `json:"sensitive,omitempty"`
	Language    string     `json:"language,omitempty"`
}
