package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/forgedesk/forgedesk/pkg/fdctl/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the fdctl config file",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var server string
	var caFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a fresh config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			path := rt.configPath
			if _, statErr := os.Stat(path); statErr == nil && !force {
				return fmt.Errorf("config already exists at %s, pass --force to overwrite", path)
			}

			cfg := config.DefaultConfig()
			cfg.Server = server
			cfg.CAFile = caFile
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Issuance service URL")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "CA bundle for the issuance service")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the active config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(rt.Writer(), string(data))
			return nil
		},
	}
}
