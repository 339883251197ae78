package cli

import (
	"encoding/json"
	"time"

	"github.com/mrrp-bot/mrrp/internal/db"
	"github.com/mrrp-bot/mrrp/internal/models"
	"github.com/spf13/cobra"
)

var (
	eventsType   string
	eventsLimit  int
	eventsSince  time.Duration
	eventsFormat string
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsType, "type", "", "only events of this type (e.g. reply.sent)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum events to show")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "only events newer than this (e.g. 1h)")
	eventsCmd.Flags().StringVar(&eventsFormat, "format", formatTable, "output format (table, json, yaml)")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the bot event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(eventsFormat, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}

		ctx := commandContext(cmd)
		database, ok, err := openLedger(ctx, cmd)
		if err != nil {
			return err
		}
		var views []eventView
		if ok {
			defer database.Close()

			query := db.EventQuery{Limit: eventsLimit}
			if eventsType != "" {
				eventType := models.EventType(eventsType)
				query.Type = &eventType
			}
			if eventsSince > 0 {
				since := time.Now().Add(-eventsSince)
				query.Since = &since
			}
			page, err := db.NewEventRepository(database).Query(ctx, query)
			if err != nil {
				return err
			}
			views = make([]eventView, 0, len(page.Events))
			for _, e := range page.Events {
				views = append(views, newEventView(e))
			}
		}
		return writeEvents(cmd, views)
	},
}

type eventView struct {
	ID         string            `json:"id" yaml:"id"`
	Timestamp  time.Time         `json:"timestamp" yaml:"timestamp"`
	Type       string            `json:"type" yaml:"type"`
	EntityType string            `json:"entity_type" yaml:"entity_type"`
	EntityID   string            `json:"entity_id" yaml:"entity_id"`
	Payload    map[string]any    `json:"payload,omitempty" yaml:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	raw string
}

func newEventView(e *models.Event) eventView {
	view := eventView{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Type:       string(e.Type),
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		Metadata:   e.Metadata,
		raw:        string(e.Payload),
	}
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &view.Payload)
	}
	return view
}

func writeEvents(cmd *cobra.Command, views []eventView) error {
	out := cmd.OutOrStdout()
	if views == nil {
		views = []eventView{}
	}
	switch eventsFormat {
	case formatJSON, formatYAML:
		return writeStructured(out, eventsFormat, views)
	}

	if len(views) == 0 {
		_, err := out.Write([]byte("No events recorded.\n"))
		return err
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.Timestamp.Local().Format("2006-01-02 15:04:05"),
			v.Type,
			v.EntityType + ":" + truncate(v.EntityID, 24),
			truncate(v.raw, 60),
		})
	}
	return writeTable(out, []string{"TIME", "TYPE", "ENTITY", "PAYLOAD"}, rows)
}
