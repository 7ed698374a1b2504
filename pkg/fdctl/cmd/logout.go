package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.service()
			if err != nil {
				return err
			}
			if err := svc.Logout(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out.")
			return nil
		},
	}
}
