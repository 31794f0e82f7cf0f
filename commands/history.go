package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paprika/core"
	"paprika/db"
)

func historyCmd(a *app) *cobra.Command {
	var (
		limit int
		reset bool
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show, prune or reset recorded predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && prune {
				return fmt.Errorf("--reset and --prune are mutually exclusive")
			}

			if reset {
				// The connection is closed so the migrator owns the file.
				if err := db.MigrateDown(a.cfg.DBPath); err != nil {
					return err
				}
				if err := db.MigrateUp(a.cfg.DBPath); err != nil {
					return err
				}
				okColor.Fprintf(a.out, "✓ history reset at %s\n", a.cfg.DBPath)
				return nil
			}

			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()
			repo := db.NewRepository(database)

			if prune {
				if a.cfg.HistoryRetentionDays == 0 {
					warnColor.Fprintln(a.out, "! retention is 0, nothing pruned")
					return nil
				}
				res, err := repo.Cleanup(cmd.Context(), a.cfg.HistoryRetentionDays)
				if err != nil {
					return err
				}
				okColor.Fprintf(a.out, "✓ pruned %d prediction(s) older than %s\n",
					res.Deleted, res.Cutoff.Format("2006-01-02 15:04"))
				return nil
			}

			return printHistory(cmd, a, repo, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of predictions to show")
	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate the history schema")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete predictions older than PAPRIKA_HISTORY_RETENTION_DAYS")
	return cmd
}

func printHistory(cmd *cobra.Command, a *app, repo *db.Repository, limit int) error {
	ctx := cmd.Context()
	rows, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	printHeader(a.out, "History")
	if len(rows) == 0 {
		dimColor.Fprintln(a.out, "  no predictions recorded")
		return nil
	}
	for _, p := range rows {
		when := p.CreatedAt.Local().Format("2006-01-02 15:04:05")
		if p.Succeeded() {
			fmt.Fprintf(a.out, "%s %s %s %s %.2f %dx%d %s %s\n",
				okColor.Sprint("✓"), dimColor.Sprint(when), p.ID, p.Style, p.Strength,
				p.OutputWidth, p.OutputHeight, core.FormatBytes(p.OutputBytes), p.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(a.out, "%s %s %s %s %s\n",
			failColor.Sprint("✗"), dimColor.Sprint(when), p.ID, p.Style, failColor.Sprint(p.ErrorKind))
		if p.ErrorMessage != "" {
			dimColor.Fprintf(a.out, "    └─ %s\n", p.ErrorMessage)
		}
	}
	fmt.Fprintln(a.out)
	dimColor.Fprintf(a.out, "showing %d of %d\n", len(rows), total)
	return nil
}
