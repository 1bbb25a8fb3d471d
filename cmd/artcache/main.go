// Command artcache inspects and exercises the artwork thumbnail pipeline
// from the command line: decode a single image or run a fetch storm against
// a directory of artwork.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IH0kN3m/Petrichor/internal/config"
	"github.com/IH0kN3m/Petrichor/internal/logging"
)

type app struct {
	mgr *config.Manager
	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "artcache",
		Short:         "Exercise the Petrichor artwork thumbnail pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			a.mgr = mgr
			a.cfg = mgr.Config()
			a.log = newLogger(a.cfg.Logging)
			cmd.SetContext(logging.WithContext(cmd.Context(), a.log))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
	root.AddCommand(newDecodeCmd(a), newBenchCmd(a))
	return root
}

func newLogger(lc config.LoggingConfig) zerolog.Logger {
	cfg := logging.DefaultConfig()
	if lvl, err := zerolog.ParseLevel(lc.Level); err == nil && lc.Level != "" {
		cfg.Level = lvl
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	return logging.New(cfg)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
