package main

import (
	"fmt"
	"path/filepath"

	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newGalleryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage galleries and their photos",
	}

	var input catalog.GalleryInput
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a gallery",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			catalogService, err := rt.requireCatalog()
			if err != nil {
				return err
			}
			input.Name = args[0]
			gallery, err := catalogService.CreateGallery(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(cmd, gallery)
		}),
	}
	create.Flags().StringVar(&input.Description, "description", "", "Gallery description")
	create.Flags().StringVar(&input.Password, "password", "", "Password clients need to open the gallery")
	create.Flags().BoolVar(&input.AllowComments, "allow-comments", true, "Let clients comment on photos")
	create.Flags().BoolVar(&input.AllowFavorites, "allow-favorites", true, "Let clients mark favorites")

	list := &cobra.Command{
		Use:   "list",
		Short: "List galleries, newest first",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			catalogService, err := rt.requireCatalog()
			if err != nil {
				return err
			}
			galleries, err := catalogService.ListGalleries(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, galleries)
		}),
	}

	show := &cobra.Command{
		Use:   "show <gallery-id>",
		Short: "Show a gallery with its photos and subfolders",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			catalogService, err := rt.requireCatalog()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			gallery, err := catalogService.GetGallery(ctx, args[0])
			if err != nil {
				return err
			}
			photos, err := catalogService.ListPhotos(ctx, gallery.ID)
			if err != nil {
				return err
			}
			subfolders, err := catalogService.ListSubfolders(ctx, gallery.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"gallery": gallery, "photos": photos, "subfolders": subfolders})
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <gallery-id>",
		Short: "Delete a gallery with its photos, favorites and comments",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			catalogService, err := rt.requireCatalog()
			if err != nil {
				return err
			}
			return catalogService.DeleteGallery(cmd.Context(), args[0])
		}),
	}

	var subfolder string
	upload := &cobra.Command{
		Use:   "upload <gallery-id> <file>...",
		Short: "Upload photo files into a gallery",
		Args:  cobra.MinimumNArgs(2),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			catalogService, err := rt.requireCatalog()
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()
			uploaded := make([]catalog.Photo, 0, len(args)-1)
			for _, filePath := range args[1:] {
				data, err := afero.ReadFile(fs, filePath)
				if err != nil {
					return fmt.Errorf("read %s: %w", filePath, err)
				}
				photo, err := catalogService.UploadPhoto(cmd.Context(), catalog.PhotoUpload{
					GalleryID: args[0],
					Subfolder: subfolder,
					FileName:  filepath.Base(filePath),
					Data:      data,
				})
				if err != nil {
					return err
				}
				uploaded = append(uploaded, photo)
			}
			return printJSON(cmd, uploaded)
		}),
	}
	upload.Flags().StringVar(&subfolder, "subfolder", "", "Subfolder inside the gallery")

	cmd.AddCommand(create, list, show, deleteCmd, upload)
	return cmd
}
