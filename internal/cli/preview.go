package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mrrp-bot/mrrp/internal/responses"
	"github.com/spf13/cobra"
)

var (
	previewCount  int
	previewSeed   uint64
	previewFormat string
)

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().IntVarP(&previewCount, "count", "n", 5, "number of replies to generate")
	previewCmd.Flags().Uint64Var(&previewSeed, "seed", 0, "seed for reproducible output")
	previewCmd.Flags().StringVar(&previewFormat, "format", formatText, "output format (text, json)")
}

var previewCmd = &cobra.Command{
	Use:   "preview [text]",
	Short: "Generate sample replies without posting",
	Long: `Generate sample replies from the configured response table.

The optional text is matched against rule regexes the way a mention's text
would be. Nothing is sent to any instance.`,
	Example: `  mrrp preview
  mrrp preview "@grok is this true?" --count 10
  mrrp preview --seed 42 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		if err := validateFormat(previewFormat, formatText, formatJSON); err != nil {
			return err
		}

		cfg, err := loadConfigOrDefault(cmd)
		if err != nil {
			return err
		}
		table, err := cfg.Table()
		if err != nil {
			return err
		}

		opts := []responses.Option{responses.WithMaxRegenerations(cfg.MaxRegenerations)}
		if cmd.Flags().Changed("seed") {
			opts = append(opts, responses.WithSource(responses.NewSeededSource(previewSeed)))
		}
		generator, err := responses.NewGenerator(table, opts...)
		if err != nil {
			return err
		}

		var text *string
		if len(args) == 1 {
			text = &args[0]
		}

		samples := make([]previewSample, 0, previewCount)
		for i := 0; i < previewCount; i++ {
			result := generator.GenerateGuarded(text)
			samples = append(samples, previewSample{
				Text:          result.Text,
				WordCount:     result.WordCount,
				Rule:          result.Rule,
				Regenerations: result.Regenerations,
				Capped:        result.Capped,
			})
		}

		out := cmd.OutOrStdout()
		if previewFormat == formatJSON {
			return writeStructured(out, formatJSON, samples)
		}
		return writePreview(out, samples)
	},
}

type previewSample struct {
	Text          string `json:"text"`
	WordCount     int    `json:"word_count"`
	Rule          int    `json:"rule"`
	Regenerations int    `json:"regenerations"`
	Capped        bool   `json:"capped"`
}

func writePreview(out io.Writer, samples []previewSample) error {
	st := newStyles(out)
	width := len(strconv.Itoa(len(samples)))
	for i, s := range samples {
		meta := fmt.Sprintf("rule %d, %d words", s.Rule, s.WordCount)
		if s.Regenerations > 0 {
			meta += fmt.Sprintf(", %d rerolls", s.Regenerations)
		}
		line := fmt.Sprintf("%s  %s  %s",
			st.index.Render(fmt.Sprintf("%*d", width, i+1)),
			st.text.Render(s.Text),
			st.meta.Render("("+meta+")"))
		if s.Capped {
			line += " " + st.warn.Render("capped")
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
