package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var revalidatePreviousTemplate string

func init() {
	rootCmd.AddCommand(revalidateCmd, checkCmd)
	revalidateCmd.Flags().StringVar(&revalidatePreviousTemplate, "previous-template", "",
		"template the existing sequences were rendered with, for sequences that carry no stored number")
}

var revalidateCmd = &cobra.Command{
	Use:   "revalidate <config-id>",
	Short: "Re-render every machine sequence governed by a config under its current template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid config id %q", args[0])
		}
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.sequences.RevalidateExisting(context.Background(), configID, revalidatePreviousTemplate)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, report)
		}

		fmt.Fprintf(os.Stdout, "updated %d, unchanged %d, unresolved %d\n", report.Updated, report.Unchanged, len(report.Unresolved))
		for _, u := range report.Unresolved {
			fmt.Fprintf(os.Stdout, "  %s  %-24s %s\n", u.MachineID, u.Sequence, u.Reason)
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <config-id>",
	Short: "List machines whose sequence no longer validates against a config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid config id %q", args[0])
		}
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.sequences.CheckSequences(context.Background(), configID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, report)
		}

		fmt.Fprintf(os.Stdout, "checked %d, invalid %d\n", report.Checked, len(report.Invalid))
		for _, u := range report.Invalid {
			fmt.Fprintf(os.Stdout, "  %s  %-24s %s\n", u.MachineID, u.Sequence, u.Reason)
		}
		if len(report.Invalid) > 0 {
			return fmt.Errorf("%d sequences do not validate", len(report.Invalid))
		}
		return nil
	},
}
