package main

import (
	"fmt"

	"github.com/codelens-dev/lens/internal/applog"
	"github.com/spf13/cobra"
)

func errorsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show recent warnings and errors",
		Long:  "Show warnings and errors logged by recent lens commands, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := applog.ReadFile(applog.DefaultPath(), limit)
			if err != nil {
				return fmt.Errorf("read error log: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No errors logged.")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-5s  %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Level, e.Message)
				if e.Error != "" {
					line += ": " + e.Error
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
