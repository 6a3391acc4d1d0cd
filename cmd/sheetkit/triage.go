package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/spf13/cobra"
)

var triageCmd = &cobra.Command{
	Use:   "triage <report.xlsx>",
	Short: "Summarise a reviewed error report",
	Long: `Read an error report written by "validate --report" and count its rows
by Status. The command exits non-zero while any row is still Open or has a
status outside the dropdown.`,
	Args: cobra.ExactArgs(1),
	RunE: triageReport,
}

func init() {
	rootCmd.AddCommand(triageCmd)
}

func triageReport(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd)
	if err != nil {
		return err
	}
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	t, err := svc.ReadErrorReport(cmd.Context(), in)
	if err != nil {
		return err
	}

	w, name := cmd.OutOrStdout(), filepath.Base(args[0])
	if t.HeadError != "" {
		fmt.Fprintf(w, "%s: header: %s\n", name, t.HeadError)
		return errInvalid
	}
	for _, e := range t.Errors {
		fmt.Fprintf(w, "%s: %s\n", name, e)
	}
	for _, status := range core.ErrorStatuses {
		fmt.Fprintf(w, "%s: %s %d\n", name, status, t.Counts[status])
	}
	if t.Open() > 0 || len(t.Errors) > 0 {
		return errInvalid
	}
	return nil
}
