package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var synthetic bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			devices, _ := mediaDevices(cfg, synthetic, 0)
			list, err := devices.EnumerateDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No devices found")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, d := range list {
				rows = append(rows, []string{d.Kind.String(), d.Label, d.DeviceID, d.GroupID})
			}
			fmt.Fprintln(out, renderTable([]string{"Kind", "Label", "Device ID", "Group"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "List the synthetic devices instead of hardware")
	return cmd
}
