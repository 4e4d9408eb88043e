package main

// @title Recall API
// @version 1.0
// @description Tiered, self-compacting long-term memory for chat assistants

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey JobToken
// @in header
// @name X-JOB-TOKEN

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/logger"
	"github.com/recallkit/recall/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	debug      bool
	port       int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "recall",
		Short:         "Tiered, self-compacting long-term memory for chat assistants",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug mode")
	pf.IntVar(&flags.port, "port", 0, "Override HTTP server port")

	root.AddCommand(
		newServeCmd(flags),
		newJobCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info().String())
		},
	}
}

// overrides maps command line flags onto configuration keys.
func (f *globalFlags) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if f.port != 0 {
		overrides["server.port"] = f.port
	}
	if f.logLevel != "" {
		overrides["log.level"] = f.logLevel
	}
	if f.debug {
		overrides["app.debug"] = true
	}
	return overrides
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.overrides())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	return log
}
