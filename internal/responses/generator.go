package responses

import (
	"strings"
	"unicode"
)

// emojiDelimiter wraps custom emoji shortcodes, e.g. ":neocat_floof:".
const emojiDelimiter = ":"

// Generator produces replies from a Table.
type Generator struct {
	table            *Table
	src              Source
	maxRegenerations int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSource overrides the randomness source.
func WithSource(src Source) Option {
	return func(g *Generator) {
		if src != nil {
			g.src = src
		}
	}
}

// WithMaxRegenerations caps the emoji-only re-roll loop. Zero or less means
// unbounded.
func WithMaxRegenerations(n int) Option {
	return func(g *Generator) {
		g.maxRegenerations = n
	}
}

// NewGenerator creates a generator over table.
func NewGenerator(table *Table, opts ...Option) (*Generator, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrNilTable
	}
	g := &Generator{
		table: table,
		src:   DefaultSource(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Result is the outcome of a guarded generation.
type Result struct {
	// Text is the reply body without mention pings.
	Text string
	// WordCount is the number of drawn tokens.
	WordCount int
	// Rule is the index of the rule that produced the reply.
	Rule int
	// Regenerations counts discarded emoji-only drafts.
	Regenerations int
	// Capped is set when the regeneration cap forced a fallback reply.
	Capped bool
}

// Generate draws a single reply. text is the triggering post text; nil means
// the post has none, which skips every rule that carries a regex.
func (g *Generator) Generate(text *string) (string, int) {
	reply, count, _ := g.generate(text)
	return reply, count
}

// GenerateGuarded draws replies until the result is not a lone emoji
// shortcode.
func (g *Generator) GenerateGuarded(text *string) Result {
	reply, count, rule := g.generate(text)
	res := Result{Text: reply, WordCount: count, Rule: rule}

	for IsEmojiOnly(res.Text, res.WordCount) {
		if g.maxRegenerations > 0 && res.Regenerations >= g.maxRegenerations {
			// Pad with a fallback token so the reply is no longer a lone shortcode.
			last := g.table.rules[g.table.Len()-1]
			res.Text = res.Text + " " + last.Words[g.src.Intn(len(last.Words))]
			res.WordCount = 2
			res.Capped = true
			break
		}
		res.Regenerations++
		res.Text, res.WordCount, res.Rule = g.generate(text)
	}

	return res
}

// IsEmojiOnly reports whether a reply consists of a single :shortcode: token.
func IsEmojiOnly(text string, wordCount int) bool {
	if wordCount != 1 || text == "" {
		return false
	}
	return strings.HasPrefix(text, emojiDelimiter) && strings.HasSuffix(text, emojiDelimiter)
}

func (g *Generator) generate(text *string) (string, int, int) {
	rules := g.table.rules
	last := len(rules) - 1

	for i := 0; i < last; i++ {
		rule := &rules[i]
		if g.src.Intn(100) > rule.Chance {
			continue
		}
		if rule.pattern != nil {
			if text == nil || !rule.pattern.MatchString(*text) {
				continue
			}
		}
		reply, count := g.compose(rule)
		return reply, count, i
	}

	reply, count := g.compose(&rules[last])
	return reply, count, last
}

func (g *Generator) compose(rule *compiledRule) (string, int) {
	count := rule.MinWords + g.src.Intn(rule.MaxWords-rule.MinWords)

	var b strings.Builder
	for i := 0; i < count; i++ {
		b.WriteString(rule.Words[g.src.Intn(len(rule.Words))])
		b.WriteByte(' ')
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace), count
}
