package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivkov/inboxtriage/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Google OAuth tokens",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "login [auth-code]",
		Short: "Authorize a Google account",
		Long: `Without arguments, prints the Google authorization URL. Open it, grant
access and re-run the command with the code Google displays:

  inboxtriage auth login <auth-code>

Tokens are cached per account under the user cache directory. The OAuth
client credentials come from GOOGLE_OAUTH_CLIENT_ID and
GOOGLE_OAUTH_CLIENT_SECRET.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				url, err := google.GetAuthURL()
				if err != nil {
					return err
				}
				fmt.Println("Open the following URL and authorize access:")
				fmt.Println()
				fmt.Println("  " + url)
				fmt.Println()
				fmt.Println("Then run: inboxtriage auth login <auth-code>")
				return nil
			}

			if err := google.SaveTokenForAccount(cmd.Context(), account, args[0]); err != nil {
				return fmt.Errorf("failed to save token for account %s: %w", account, err)
			}
			fmt.Printf("Token saved for account %q\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to authorize")
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a cached token exists for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if google.HasTokenForAccount(account) {
				fmt.Printf("Account %q has a cached token\n", account)
				return nil
			}
			fmt.Printf("Account %q has no cached token; run 'inboxtriage auth login'\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to check")
	return cmd
}
