package cmd

import (
	"errors"
	"fmt"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/session"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Long: `Check the backend session and print who is signed in.

An unreachable backend or an expired session is reported as "Not signed in".
A session close to expiry is refreshed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			if err := deps.Manager.CheckAuth(cmd.Context()); err != nil {
				return fmt.Errorf("session check failed: %s", session.UserMessage(err))
			}
			return printSnapshot(cmd.OutOrStdout(), deps.Manager.Snapshot())
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			if err := deps.Manager.RefreshAuth(cmd.Context()); err != nil {
				if session.IsAuthAbsentError(err) {
					return errors.New("session expired; run 'lmsctl login' again")
				}
				return fmt.Errorf("refresh failed: %s", session.UserMessage(err))
			}
			return printSnapshot(cmd.OutOrStdout(), deps.Manager.Snapshot())
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	Long: `Sign out of the backend, revoke the refresh token and clear every
locally stored credential. Local data is cleared even when the backend
cannot be reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			err := deps.Manager.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			if deps.Config.Cognito.CognitoConfigured() {
				fmt.Fprintf(cmd.OutOrStdout(), "To end the hosted UI session too, open:\n  %s\n", deps.Provider.LogoutURL())
			}
			if err != nil {
				return fmt.Errorf("some local data could not be removed: %w", err)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(logoutCmd)
}
