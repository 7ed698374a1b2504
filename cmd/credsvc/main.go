package main

import (
	"flag"

	"github.com/forgedesk/forgedesk/pkg/audit"
	"github.com/forgedesk/forgedesk/pkg/credsvc"
	"github.com/forgedesk/forgedesk/pkg/system"
	"github.com/forgedesk/forgedesk/pkg/version"
)

func main() {
	var debug bool
	var configPath string
	flag.BoolVar(&debug, "debug", false, "enables debug mode")
	flag.StringVar(&configPath, "config", "", "path to the config file")
	flag.Parse()

	log := system.NewLogger(debug)
	log.With("version", version.Version).Info("Starting credential issuance service")

	config, err := credsvc.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading credsvc config: %v", err)
	}
	if debug {
		config.Server.Debug = true
	}

	signer, err := credsvc.NewSignerFromFile(config.App.ID, config.App.PrivateKeyFile)
	if err != nil {
		log.Fatalf("Error loading app signing key: %v", err)
	}

	forge := credsvc.NewForge(config.Upstream, config.App.ClientID)

	auditor := audit.NewService(audit.Config{
		Brokers: config.Audit.Brokers,
		Topic:   config.Audit.Topic,
	}, log)
	if auditor != nil {
		defer func() {
			_ = auditor.Close()
		}()
	}

	server := credsvc.NewServer(log, config, signer, forge, auditor)
	if err := server.Listen(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
