package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thesyncim/mediacapture/internal/config"
	"github.com/thesyncim/mediacapture/internal/store"
)

type listedArtifact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	MIMEType    string `json:"mimeType,omitempty"`
	PayloadSize int64  `json:"payloadSize"`
	Snapshots   int    `json:"snapshotCount"`
	DurationMs  int64  `json:"durationMs"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
	Dir         string `json:"dir"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved artifacts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				records, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					items := make([]listedArtifact, 0, len(records))
					for _, r := range records {
						items = append(items, listedArtifact{
							ID:          r.ID,
							Name:        r.Name,
							Kind:        r.Kind,
							MIMEType:    r.MIMEType,
							PayloadSize: r.PayloadSize,
							Snapshots:   r.SnapshotCount,
							DurationMs:  r.Duration.Milliseconds(),
							SourceURL:   r.SourceURL,
							CreatedAt:   r.CreatedAt.Format(time.RFC3339Nano),
							Dir:         r.Dir,
						})
					}
					return writeJSON(cmd, items)
				}

				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No artifacts saved")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					size := "-"
					if r.PayloadSize > 0 {
						size = humanize.Bytes(uint64(r.PayloadSize))
					}
					duration := "-"
					if r.Duration > 0 {
						duration = r.Duration.Round(time.Second).String()
					}
					rows = append(rows, []string{
						r.ID,
						r.Name,
						r.Kind,
						size,
						duration,
						fmt.Sprintf("%d", r.SnapshotCount),
						humanize.Time(r.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Kind", "Size", "Duration", "Snapshots", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
