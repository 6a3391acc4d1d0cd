package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/sheetkit/internal/core"
	_ "github.com/JonMunkholm/sheetkit/internal/core/tables" // Register built-in templates
	"github.com/JonMunkholm/sheetkit/internal/logging"
	"github.com/JonMunkholm/sheetkit/internal/schema"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	templatesDir string
	logLevel     string
)

// errInvalid makes the process exit non-zero after a report was printed.
var errInvalid = errors.New("file has errors")

var rootCmd = &cobra.Command{
	Use:   "sheetkit",
	Short: "Spreadsheet templates with dropdown validation",
	Long: `Sheetkit generates Excel templates whose columns carry dropdown lists,
including lists that depend on another column, and checks filled-in copies
against the same rules.

Templates come from the built-in set plus any YAML files under
--templates-dir.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&templatesDir, "templates-dir", "t", os.Getenv("TEMPLATES_DIR"), "directory of template YAML files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// newService builds a service over the built-in templates and the
// templates directory. Unlike the server, a broken template file is an
// error here.
func newService(cmd *cobra.Command) (*core.Service, error) {
	logger := logging.New(cmd.ErrOrStderr(), logLevel, "text")
	reg := core.DefaultRegistry().Clone()
	if templatesDir != "" {
		if _, err := schema.NewLoader(templatesDir, reg, logger).Load(); err != nil {
			return nil, err
		}
	}
	return core.NewService(reg, core.ServiceConfig{Logger: logger}), nil
}
