package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/spf13/cobra"
)

var templatesFlags struct {
	group  string
	format string
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List registered templates",
	Args:  cobra.NoArgs,
	RunE:  listTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)

	templatesCmd.Flags().StringVar(&templatesFlags.group, "group", "", "only list one group")
	templatesCmd.Flags().StringVar(&templatesFlags.format, "format", "text", "output format: text, json")
}

func listTemplates(cmd *cobra.Command, _ []string) error {
	svc, err := newService(cmd)
	if err != nil {
		return err
	}

	var infos []core.TemplateInfo
	for _, info := range svc.ListTemplates() {
		if templatesFlags.group == "" || info.Group == templatesFlags.group {
			infos = append(infos, info)
		}
	}

	out := cmd.OutOrStdout()
	switch templatesFlags.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "text":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tGROUP\tLABEL\tCOLUMNS")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Key, info.Group, info.Label, strings.Join(info.Columns, ", "))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown format %q", templatesFlags.format)
}
