package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.service()
			if err != nil {
				return err
			}

			sess, err := svc.Session()
			if err != nil {
				return err
			}
			if sess == nil {
				_, _ = fmt.Fprintln(rt.Writer(), "Not logged in.")
				return nil
			}

			_, _ = fmt.Fprintf(rt.Writer(), "Logged in as %s (%d installations visible)\n", sess.User.Login, len(sess.Installations))
			if sess.CurrentInstallation == nil {
				_, _ = fmt.Fprintln(rt.Writer(), "No installation selected.")
			} else {
				_, _ = fmt.Fprintf(rt.Writer(), "Current installation: %d (%s)\n",
					sess.CurrentInstallation.ID, sess.CurrentInstallation.Account.Login)
				if sess.InstallationToken != nil {
					remaining := time.Until(sess.InstallationToken.ExpiresAt).Round(time.Second)
					if remaining > 0 {
						_, _ = fmt.Fprintf(rt.Writer(), "Installation token valid for %s\n", remaining)
					} else {
						_, _ = fmt.Fprintln(rt.Writer(), "Installation token expired; it will be refreshed on next use.")
					}
				}
			}
			if !svc.StoreEncrypted() {
				_, _ = fmt.Fprintln(rt.Writer(), "Warning: session is stored without platform encryption.")
			}
			return nil
		},
	}
}
