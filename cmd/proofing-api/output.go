package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// printJSON writes value as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}
