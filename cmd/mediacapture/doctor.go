package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/capture"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report encoder availability and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Config:   %s\n", ctx.configPath)
			fmt.Fprintf(out, "Storage:  %s\n", cfg.Storage.Dir)
			devices := "hardware"
			if cfg.Devices.Synthetic {
				devices = "synthetic"
			}
			fmt.Fprintf(out, "Devices:  %s\n\n", devices)

			var rows [][]string
			available := map[string]bool{}
			for _, c := range mediacapture.EncoderAvailability() {
				available[strings.ToLower(c.Codec)] = c.Available
				rows = append(rows, []string{
					c.Codec,
					c.Kind.String(),
					c.Provider.String(),
					c.Provider.Library(),
					c.Provider.License().String(),
					yesNo(c.Available),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Codec", "Kind", "Provider", "Library", "License", "Available"},
				rows, nil,
			))

			fmt.Fprintln(out)
			modes := make([][]string, 0, 3)
			for _, m := range []capture.Mode{capture.ModeCameraMic, capture.ModeMicOnly, capture.ModeScreen} {
				d := m.Descriptor()
				ok := available["opus"]
				if d.Video {
					ok = available[cfg.Video.Codec] && (ok || !d.Audio)
				}
				modes = append(modes, []string{m.String(), d.MIMEType, yesNo(ok)})
			}
			fmt.Fprintln(out, renderTable([]string{"Mode", "Container", "Recordable"}, modes, nil))
			return nil
		},
	}
}
