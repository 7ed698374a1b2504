package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewInstallationsCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "installations",
		Short: "List the installations visible to this account",
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
				return fmt.Errorf("not logged in, run 'fdctl login' first")
			}

			installations := sess.Installations
			if refresh {
				installations, err = svc.CheckInstallations(cmd.Context())
				if err != nil {
					return err
				}
				sess, err = svc.Session()
				if err != nil {
					return err
				}
			}

			if len(installations) == 0 {
				_, _ = fmt.Fprintln(rt.Writer(), "No installations visible.")
				return nil
			}

			w := tabwriter.NewWriter(rt.Writer(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tACCOUNT\tTYPE\tREPOSITORIES\tCURRENT")
			for _, inst := range installations {
				current := ""
				if sess != nil && sess.CurrentInstallation != nil && sess.CurrentInstallation.ID == inst.ID {
					current = "*"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					inst.ID, inst.Account.Login, inst.Account.Type, inst.RepositorySelection, current)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read the list from the issuance service")
	return cmd
}

func NewSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <installation-id>",
		Short: "Switch to an installation and fetch its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid installation id %q", args[0])
			}

			svc, err := rt.service()
			if err != nil {
				return err
			}
			if err := svc.SelectInstallation(cmd.Context(), id); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(rt.Writer(), "Selected installation %d.\n", id)
			return nil
		},
	}
}

// NewTokenCommand prints the current installation token, refreshing it first
// when it is about to expire. Intended for piping into other tooling.
func NewTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid installation token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.service()
			if err != nil {
				return err
			}

			token, err := svc.AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), token.Token)
			return nil
		},
	}
}
