package main

import (
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/spf13/cobra"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the display name attached to this device's writes",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the device id and the current session",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			ctx := cmd.Context()
			output := map[string]any{"device_id": rt.identity.DeviceID(ctx), "logged_in": false}
			if session, ok := rt.identity.CurrentSession(ctx); ok {
				output["logged_in"] = true
				output["session"] = session
			}
			return printJSON(cmd, output)
		}),
	}

	login := &cobra.Command{
		Use:   "login <name>",
		Short: "Start a session with a display name",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			session, err := rt.identity.CreateSession(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			return printJSON(cmd, session)
		}),
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the current session",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			return rt.identity.ClearSession(cmd.Context())
		}),
	}

	cmd.AddCommand(show, login, logout)
	return cmd
}

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage this device's settings",
	}
	email := &cobra.Command{
		Use:   "email",
		Short: "Selection notification settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the notification settings",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			settings, err := rt.settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, settings)
		}),
	}

	var (
		enabled bool
		address string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the notification settings",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			current, err := rt.settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			next := emails.Settings{Enabled: current.Enabled, PhotographerAddress: current.PhotographerAddress}
			if cmd.Flags().Changed("enabled") {
				next.Enabled = enabled
			}
			if cmd.Flags().Changed("address") {
				next.PhotographerAddress = address
			}
			saved, err := rt.settings.Save(cmd.Context(), next)
			if err != nil {
				return err
			}
			return printJSON(cmd, saved)
		}),
	}
	set.Flags().BoolVar(&enabled, "enabled", false, "Send a notification after each export")
	set.Flags().StringVar(&address, "address", "", "Photographer address receiving notifications")

	email.AddCommand(show, set)
	cmd.AddCommand(email)
	return cmd
}
