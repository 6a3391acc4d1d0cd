package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/JonMunkholm/sheetkit/internal/logging"
	"github.com/JonMunkholm/sheetkit/internal/schema"
	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:   "lint <file|dir>...",
	Short: "Check template definition files",
	Long: `Parse template YAML files and check that every definition is complete
and that no key collides with a built-in template or another file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: lintTemplates,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func lintTemplates(cmd *cobra.Command, args []string) error {
	reg := core.DefaultRegistry().Clone()
	failed := 0
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}

		if info.IsDir() {
			res, err := schema.NewLoader(arg, reg, logging.New(cmd.ErrOrStderr(), logLevel, "text")).Load()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				failed += res.Failed
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%d files, %d templates)\n", arg, res.Files, res.Templates)
			continue
		}

		defs, err := schema.ParseFile(arg)
		if err == nil {
			err = reg.ReplaceSource(arg, defs)
		}
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%d templates)\n", arg, len(defs))
	}

	if failed > 0 {
		return fmt.Errorf("%d template files failed", failed)
	}
	return nil
}
