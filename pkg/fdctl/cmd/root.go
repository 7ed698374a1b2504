// Package cmd implements the fdctl command tree. fdctl is the reference
// consumer of the desktop auth service: it logs in over the device flow,
// inspects the stored session and switches installations.
package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgedesk/forgedesk/pkg/desktop"
	"github.com/forgedesk/forgedesk/pkg/fdctl/config"
	"github.com/forgedesk/forgedesk/pkg/issuance"
	"github.com/forgedesk/forgedesk/pkg/sessionstore"
	"github.com/forgedesk/forgedesk/pkg/system"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
}

type runtimeState struct {
	configPath     string
	cfg            *config.Config
	serverOverride string
	verbose        bool
	openBrowser    bool
	writer         io.Writer

	// serviceFactory is swapped in tests.
	serviceFactory func(rt *runtimeState) (*desktop.Service, error)
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:     cfg.ConfigPath,
		writer:         cfg.OutputWriter,
		serviceFactory: buildService,
	}

	root := &cobra.Command{
		Use:   "fdctl",
		Short: "ForgeDesk auth CLI",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.serverOverride == "" {
				rt.serverOverride = os.Getenv("FDCTL_SERVER")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("FDCTL_VERBOSE"), "true")
			}

			// Commands that work without a config file.
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			if cmd.Parent() != nil && (cmd.Parent().Name() == "config" || cmd.Parent().Name() == "completion") {
				return nil
			}
			// A server override makes the config file optional.
			if rt.serverOverride != "" {
				rt.cfg = &config.Config{Version: config.VersionV1, Server: rt.serverOverride}
				return nil
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Issuance service URL (bypass config)")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewLoginCommand(),
		NewStatusCommand(),
		NewInstallationsCommand(),
		NewSelectCommand(),
		NewTokenCommand(),
		NewLogoutCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) logger() *zap.SugaredLogger {
	if rt.verbose {
		return system.NewLogger(true)
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) resolveServer() string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if rt.cfg != nil {
		return rt.cfg.Server
	}
	return ""
}

// service builds (or returns the injected) desktop auth service.
func (rt *runtimeState) service() (*desktop.Service, error) {
	return rt.serviceFactory(rt)
}

func buildService(rt *runtimeState) (*desktop.Service, error) {
	server := rt.resolveServer()
	if server == "" {
		return nil, errors.New("no server configured, set server: in the config file or pass --server")
	}

	opts := []issuance.Option{issuance.WithServer(server)}
	if rt.cfg != nil && (rt.cfg.CAFile != "" || rt.cfg.InsecureSkipTLSVerify) {
		opts = append(opts, issuance.WithTLSConfig(rt.cfg.CAFile, rt.cfg.InsecureSkipTLSVerify))
	}
	client, err := issuance.New(opts...)
	if err != nil {
		return nil, err
	}

	log := rt.logger()
	store := sessionstore.New(log, sessionstore.WithFallbackPath(config.SessionFallbackPath()))
	notifier := &printNotifier{w: rt.Writer(), openBrowser: rt.openBrowser}
	return desktop.New(client, store, notifier, log), nil
}
