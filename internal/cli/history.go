package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mrrp-bot/mrrp/internal/db"
	"github.com/mrrp-bot/mrrp/internal/models"
	"github.com/spf13/cobra"
)

var (
	historyLimit        int
	historyAccount      string
	historySince        time.Duration
	historyFormat       string
	historyNotification string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum replies to show")
	historyCmd.Flags().StringVar(&historyAccount, "account", "", "only replies to this acct handle")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only replies newer than this (e.g. 24h)")
	historyCmd.Flags().StringVar(&historyFormat, "format", formatTable, "output format (table, json, yaml)")
	historyCmd.Flags().StringVar(&historyNotification, "notification", "", "show the reply to one notification id")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List replies from the reply ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(historyFormat, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}

		ctx := commandContext(cmd)
		database, ok, err := openLedger(ctx, cmd)
		if err != nil {
			return err
		}
		if !ok {
			if historyNotification != "" {
				return fmt.Errorf("no reply recorded for notification %s", historyNotification)
			}
			return writeReplies(cmd, nil, 0)
		}
		defer database.Close()

		repo := db.NewReplyRepository(database)
		if historyNotification != "" {
			reply, err := repo.GetByNotification(ctx, historyNotification)
			if errors.Is(err, db.ErrReplyNotFound) {
				return fmt.Errorf("no reply recorded for notification %s", historyNotification)
			}
			if err != nil {
				return err
			}
			return writeReplies(cmd, []*models.Reply{reply}, 1)
		}

		query := models.ReplyQuery{Limit: historyLimit}
		if historyAccount != "" {
			query.Account = &historyAccount
		}
		if historySince > 0 {
			since := time.Now().Add(-historySince)
			query.Since = &since
		}

		replies, err := repo.List(ctx, query)
		if err != nil {
			return err
		}
		total, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		return writeReplies(cmd, replies, total)
	},
}

// writeReplies renders replies. total is the ledger size; table output notes
// when only part of it is shown.
func writeReplies(cmd *cobra.Command, replies []*models.Reply, total int) error {
	out := cmd.OutOrStdout()
	if replies == nil {
		replies = []*models.Reply{}
	}
	switch historyFormat {
	case formatJSON, formatYAML:
		return writeStructured(out, historyFormat, replies)
	}

	if len(replies) == 0 {
		fmt.Fprintln(out, "No replies recorded.")
		return nil
	}
	table := make([][]string, 0, len(replies))
	for _, r := range replies {
		table = append(table, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Account,
			string(r.Visibility),
			strconv.Itoa(r.WordCount),
			truncate(r.Text, 60),
		})
	}
	if err := writeTable(out, []string{"WHEN", "ACCOUNT", "VISIBILITY", "WORDS", "TEXT"}, table); err != nil {
		return err
	}
	if total > len(replies) {
		fmt.Fprintf(out, "\nShowing %d of %d replies.\n", len(replies), total)
	}
	return nil
}

// openLedger opens the configured database. ok is false when persistence is
// disabled or nothing has been recorded yet.
func openLedger(ctx context.Context, cmd *cobra.Command) (*db.DB, bool, error) {
	cfg, err := loadConfigOrDefault(cmd)
	if err != nil {
		return nil, false, err
	}
	if cfg.Database == "" {
		return nil, false, fmt.Errorf("reply ledger is disabled (database is empty in %s)", configPath)
	}
	if _, err := os.Stat(cfg.Database); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat database: %w", err)
	}
	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, false, err
	}
	return database, true, nil
}
