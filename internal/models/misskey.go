package models

// MisskeyVisibility is the audience of a Misskey note.
type MisskeyVisibility string

const (
	MisskeyVisibilityPublic    MisskeyVisibility = "public"
	MisskeyVisibilityHome      MisskeyVisibility = "home"
	MisskeyVisibilityFollowers MisskeyVisibility = "followers"
	MisskeyVisibilitySpecified MisskeyVisibility = "specified"
)

// MisskeyUser is the subset of the /api/i response the bot reads.
type MisskeyUser struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Host     *string `json:"host"`
	Name     *string `json:"name"`
	IsBot    bool    `json:"isBot"`
}

// NoteRequest is the body of POST /api/notes/create.
type NoteRequest struct {
	Text       string            `json:"text,omitempty"`
	Visibility MisskeyVisibility `json:"visibility,omitempty"`
	ReplyID    string            `json:"replyId,omitempty"`
	CW         string            `json:"cw,omitempty"`
	LocalOnly  bool              `json:"localOnly,omitempty"`
}

// MisskeyVisibilityFor maps a Mastodon visibility onto Misskey's.
func MisskeyVisibilityFor(v Visibility) MisskeyVisibility {
	switch v {
	case VisibilityUnlisted:
		return MisskeyVisibilityHome
	case VisibilityPrivate:
		return MisskeyVisibilityFollowers
	case VisibilityDirect:
		return MisskeyVisibilitySpecified
	default:
		return MisskeyVisibilityPublic
	}
}
