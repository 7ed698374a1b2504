package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgedesk/forgedesk/pkg/desktop"
	"github.com/forgedesk/forgedesk/pkg/login"
)

// printNotifier renders the login signals on the terminal. Opening the
// verification URL in a browser is opt-in via --open.
type printNotifier struct {
	w           io.Writer
	openBrowser bool
}

func (n *printNotifier) UserCodeReady(userCode, verificationURI string, expiresIn time.Duration) {
	_, _ = fmt.Fprintf(n.w, "Open %s and enter the code %s\n", verificationURI, userCode)
	_, _ = fmt.Fprintf(n.w, "The code expires in %s.\n", expiresIn.Round(time.Minute))
	if n.openBrowser {
		if err := desktop.OpenBrowser(verificationURI); err != nil {
			_, _ = fmt.Fprintf(n.w, "Could not open a browser: %v\n", err)
		}
	}
}

func (n *printNotifier) LoginSucceeded() {
	_, _ = fmt.Fprintln(n.w, "Login succeeded.")
}

func (n *printNotifier) LoginFailed(code login.Code, message string, retryable bool) {
	if retryable {
		_, _ = fmt.Fprintf(n.w, "Login failed (%s): %s. Try again.\n", code, message)
		return
	}
	_, _ = fmt.Fprintf(n.w, "Login failed (%s): %s\n", code, message)
}

func NewLoginCommand() *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the device flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			rt.openBrowser = open

			svc, err := rt.service()
			if err != nil {
				return err
			}

			sess, err := svc.Login(cmd.Context())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(rt.Writer(), "Logged in as %s.\n", sess.User.Login)
			if sess.CurrentInstallation != nil {
				_, _ = fmt.Fprintf(rt.Writer(), "Selected installation %d (%s).\n",
					sess.CurrentInstallation.ID, sess.CurrentInstallation.Account.Login)
			} else if len(sess.Installations) == 0 {
				_, _ = fmt.Fprintln(rt.Writer(), "No installations are visible to this account; install the app first.")
			} else {
				_, _ = fmt.Fprintln(rt.Writer(), "No installation selected; run 'fdctl select <id>'.")
			}
			if !svc.StoreEncrypted() {
				_, _ = fmt.Fprintln(rt.Writer(), "Warning: no platform keychain available, session stored in a plain file.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Open the verification URL in a browser")
	return cmd
}
