package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var workbookFlags struct {
	output string
}

var workbookCmd = &cobra.Command{
	Use:   "workbook <template>",
	Short: "Write the blank workbook of a template",
	Long: `Write the blank workbook of a template. Every dropdown column is
restricted to its options; dependent columns offer the options for the
value chosen in their parent column.`,
	Args: cobra.ExactArgs(1),
	RunE: writeWorkbook,
}

func init() {
	rootCmd.AddCommand(workbookCmd)

	workbookCmd.Flags().StringVarP(&workbookFlags.output, "output", "o", "", "output path (default <template>.xlsx)")
}

func writeWorkbook(cmd *cobra.Command, args []string) error {
	key := args[0]
	svc, err := newService(cmd)
	if err != nil {
		return err
	}

	path := workbookFlags.output
	if path == "" {
		path = key + ".xlsx"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	report, err := svc.BuildTemplate(cmd.Context(), key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d dropdowns", path, report.Render.Rendered)
	if report.Render.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d skipped", report.Render.Skipped)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ")")
	return nil
}
