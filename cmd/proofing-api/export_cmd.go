package main

import (
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	var (
		exportType string
		client     selection.ClientInfo
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "export <gallery-id>",
		Short: "Export the gallery's selection and notify the photographer",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			request := selection.Request{GalleryID: args[0], Type: selection.ParseType(exportType)}
			if !client.IsZero() {
				info := client
				request.ClientInfo = &info
			}
			result, err := rt.selection.Export(cmd.Context(), request)
			if err != nil {
				return err
			}
			if outputPath != "" {
				if err := afero.WriteFile(afero.NewOsFs(), outputPath, []byte(result.Text), 0o644); err != nil {
					return err
				}
			}
			return printJSON(cmd, result)
		}),
	}
	cmd.Flags().StringVar(&exportType, "type", string(selection.TypeComplete), "Selection type (personal, complete)")
	cmd.Flags().StringVar(&client.Name, "client-name", "", "Client name printed in the manifest")
	cmd.Flags().StringVar(&client.Email, "client-email", "", "Client email printed in the manifest")
	cmd.Flags().StringVar(&client.Phone, "client-phone", "", "Client phone printed in the manifest")
	cmd.Flags().StringVar(&outputPath, "output", "", "Also write the manifest to this file")
	return cmd
}
