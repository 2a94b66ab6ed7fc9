package main

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/spf13/cobra"
)

func newFavoritesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List and change the favorites of a gallery",
	}

	var userName string

	list := &cobra.Command{
		Use:   "list <gallery-id>",
		Short: "List the gallery's favorites, newest first, one per photo",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			entries, err := rt.favorites.Favorites(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"favorites": entries, "count": len(entries)})
		}),
	}

	mine := &cobra.Command{
		Use:   "mine <gallery-id>",
		Short: "List the favorites attributed to this device or session",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			entries, err := rt.favorites.MyFavorites(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"favorites": entries, "count": len(entries)})
		}),
	}

	add := &cobra.Command{
		Use:   "add <gallery-id> <photo-id>",
		Short: "Mark a photo as favorite",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			if err := ensureSession(cmd.Context(), rt, userName); err != nil {
				return err
			}
			favorite, err := rt.favorites.AddToFavorites(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, favorite)
		}),
	}
	add.Flags().StringVar(&userName, "user-name", "", "Display name; starts a session when none exists")

	remove := &cobra.Command{
		Use:   "remove <gallery-id> <photo-id>",
		Short: "Remove a photo from the favorites of every user",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			removed, err := rt.favorites.RemoveFromFavorites(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"removed": removed})
		}),
	}

	clearAll := &cobra.Command{
		Use:   "clear <gallery-id>",
		Short: "Remove every favorite of the gallery",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			cleared, err := rt.favorites.ClearAllFavorites(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"cleared": cleared})
		}),
	}

	cmd.AddCommand(list, mine, add, remove, clearAll)
	return cmd
}

func newCommentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "List and change the comments of a gallery",
	}

	var (
		photoID  string
		userName string
	)

	list := &cobra.Command{
		Use:   "list <gallery-id>",
		Short: "List the gallery's comments, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			var (
				comments []favorites.Comment
				err      error
			)
			if photoID != "" {
				comments, err = rt.favorites.PhotoComments(cmd.Context(), args[0], photoID)
			} else {
				comments, err = rt.favorites.Comments(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"comments": comments, "count": len(comments)})
		}),
	}
	list.Flags().StringVar(&photoID, "photo", "", "Only list comments of this photo")

	add := &cobra.Command{
		Use:   "add <gallery-id> <photo-id> <text>...",
		Short: "Comment on a photo",
		Args:  cobra.MinimumNArgs(3),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			if err := ensureSession(cmd.Context(), rt, userName); err != nil {
				return err
			}
			comment, err := rt.favorites.AddComment(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, comment)
		}),
	}
	add.Flags().StringVar(&userName, "user-name", "", "Display name; starts a session when none exists")

	remove := &cobra.Command{
		Use:   "remove <comment-id>",
		Short: "Remove a comment written from this device",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			removed, err := rt.favorites.RemoveComment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"removed": removed})
		}),
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy this device's local favorites and comments into the shared store",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			report, err := rt.favorites.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}),
	}
}

func ensureSession(ctx context.Context, rt *clientRuntime, userName string) error {
	if strings.TrimSpace(userName) == "" || rt.identity.IsLoggedIn(ctx) {
		return nil
	}
	_, err := rt.identity.CreateSession(ctx, userName, "")
	return err
}
