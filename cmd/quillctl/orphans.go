package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/quillpad/quillpad/internal/bootstrap"
	"github.com/quillpad/quillpad/internal/inflight"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/spf13/cobra"
)

var orphansJSON bool

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Inspect or remove attachments whose note was deleted",
}

var orphansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orphaned attachments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNotes(cmd.Context(), func(svc *service.Service) error {
			orphans, err := svc.Orphans(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if orphansJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(orphans)
			}
			if len(orphans) == 0 {
				fmt.Fprintln(out, "no orphaned attachments")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNOTE\tOWNER\tSIZE\tPATH")
			for _, a := range orphans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.NoteID, a.UserID, a.FileSize, a.Path)
			}
			return w.Flush()
		})
	},
}

var orphansPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove orphaned attachment objects and rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNotes(cmd.Context(), func(svc *service.Service) error {
			n, err := svc.PurgeOrphans(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d orphaned attachment(s)\n", n)
			return err
		})
	},
}

// withNotes opens the configured backends for the duration of fn.
func withNotes(ctx context.Context, fn func(*service.Service) error) error {
	b, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close(context.Background())
	return fn(service.New(b.Notes, b.Objects, inflight.NewMemoryGuard(), cfg.Storage.SignedURLTTL))
}

func init() {
	orphansListCmd.Flags().BoolVar(&orphansJSON, "json", false, "Print JSON instead of a table")
	orphansCmd.AddCommand(orphansListCmd, orphansPurgeCmd)
	rootCmd.AddCommand(orphansCmd)
}
