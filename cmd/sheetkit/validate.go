package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/spf13/cobra"
)

var validateFlags struct {
	annotate string
	report   string
	format   string
}

var validateCmd = &cobra.Command{
	Use:   "validate <template> <file>",
	Short: "Check a filled-in copy of a template",
	Long: `Check an .xlsx or .csv file against a template and print every header
and cell problem. The command exits non-zero when the file has errors.

Examples:
  # Print the problems
  sheetkit validate sales_orders orders.xlsx

  # Also write a copy with the problem cells highlighted and commented
  sheetkit validate sales_orders orders.csv --annotate orders_errors.xlsx

  # Write the problems as a checklist workbook
  sheetkit validate sales_orders orders.xlsx --report orders_report.xlsx`,
	Args: cobra.ExactArgs(2),
	RunE: validateFile,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.annotate, "annotate", "a", "", "write an annotated workbook to this path")
	validateCmd.Flags().StringVarP(&validateFlags.report, "report", "r", "", "write an error report workbook to this path")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateFile(cmd *cobra.Command, args []string) error {
	key, path := args[0], args[1]
	svc, err := newService(cmd)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	name := filepath.Base(path)
	var report *core.ValidationReport
	if validateFlags.annotate == "" {
		report, err = svc.Validate(cmd.Context(), key, name, in)
	} else {
		report, err = annotateTo(cmd, svc, key, name, in, validateFlags.annotate)
	}
	if err != nil {
		return fmt.Errorf("%s (%s)", core.FormatUserError(err), err)
	}

	if validateFlags.report != "" && !report.Valid() {
		if err := reportTo(cmd, svc, report, validateFlags.report); err != nil {
			return err
		}
	}

	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid() {
		return errInvalid
	}
	return nil
}

func annotateTo(cmd *cobra.Command, svc *core.Service, key, name string, in io.Reader, path string) (*core.ValidationReport, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	report, err := svc.Annotate(cmd.Context(), key, name, in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return report, nil
}

func reportTo(cmd *cobra.Command, svc *core.Service, report *core.ValidationReport, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = svc.ErrorReport(cmd.Context(), report, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

func printReport(w io.Writer, report *core.ValidationReport) error {
	if validateFlags.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.HeadError != "" {
		fmt.Fprintf(w, "%s: header: %s\n", report.FileName, report.HeadError)
		return nil
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "%s: %s\n", report.FileName, e)
	}
	fmt.Fprintf(w, "%s: %d rows, %d with errors\n", report.FileName, report.Rows, report.ErrorRows)
	return nil
}
