package bot

import (
	"html"
	"net/url"
	"strings"

	"github.com/mrrp-bot/mrrp/internal/models"
)

// BuildPings returns "@username@host " for every mention except self, in
// mention order. The host comes from the mention's profile URL, so
// https://lunar.place/@luna becomes @luna@lunar.place.
func BuildPings(mentions []models.Mention, self string) string {
	var b strings.Builder
	for _, m := range mentions {
		if self != "" && strings.EqualFold(m.Username, self) {
			continue
		}
		b.WriteString(ping(m))
		b.WriteByte(' ')
	}
	return b.String()
}

func ping(m models.Mention) string {
	if host := mentionHost(m.URL); host != "" {
		return "@" + m.Username + "@" + host
	}
	if m.Acct != "" {
		return "@" + m.Acct
	}
	return "@" + m.Username
}

func mentionHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	// Scheme-less or malformed URLs: keep everything up to the first slash.
	if i := strings.LastIndex(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// ComposeReply builds the posted body: the author's handle, the pings, then
// the generated text.
func ComposeReply(acct, pings, text string) string {
	return "@" + acct + " " + pings + text
}

var blockBreaks = strings.NewReplacer(
	"<br>", " ",
	"<br/>", " ",
	"<br />", " ",
	"</p>", " ",
)

// triggerText returns the text rules match against. Mastodon only sends the
// plain source text for the author's own statuses, so remote mentions
// usually arrive with Text unset.
func (b *Bot) triggerText(status *models.Status) *string {
	if status.Text != nil {
		return status.Text
	}
	if !b.opts.UseContentFallback || strings.TrimSpace(status.Content) == "" {
		return nil
	}
	plain := html.UnescapeString(b.sanitizer.Sanitize(blockBreaks.Replace(status.Content)))
	plain = strings.Join(strings.Fields(plain), " ")
	return &plain
}
