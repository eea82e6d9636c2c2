package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// newAuthCmd creates the `reelforge auth` command group, managing the
// bearer token the CLI presents to a running daemon's API.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the CLI's API admin token",
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthStatusCmd(), newAuthClearCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the admin token used to authenticate API requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(os.Stdout, "Admin token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stdout)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			if len(raw) == 0 {
				return fmt.Errorf("token must not be empty")
			}
			if err := keyring.Set(keyringService, keyringUser, string(raw)); err != nil {
				return fmt.Errorf("store token in keyring: %w", err)
			}
			fmt.Fprintln(os.Stdout, "token stored")
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a token is stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := keyring.Get(keyringService, keyringUser); err != nil {
				fmt.Fprintln(os.Stdout, "no token stored")
				return nil
			}
			fmt.Fprintln(os.Stdout, "token stored")
			return nil
		},
	}
}

func newAuthClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored admin token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keyring.Delete(keyringService, keyringUser); err != nil && err != keyring.ErrNotFound {
				return fmt.Errorf("clear token: %w", err)
			}
			fmt.Fprintln(os.Stdout, "token cleared")
			return nil
		},
	}
}
