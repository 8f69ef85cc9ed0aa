package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/survey-intake/internal/bootstrap"
	"github.com/bryanwahyu/survey-intake/internal/config"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/infra/store"
	"github.com/bryanwahyu/survey-intake/internal/logger"
)

type app struct {
	configPath string
	dataDir    string
	verbose    bool
	out        io.Writer
}

// NewRootCommand builds the surveyctl command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "surveyctl",
		Short: "Inspect and maintain a survey response store",
		Long: `surveyctl works directly on the data directory of the intake service.

It reads the same config file (CONFIG_PATH or --config) so the survey schema
and storage paths match the running service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = cmd.OutOrStdout()
		},
	}

	defaultConfig := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfig, "Path to config file")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Override storage.dataDir")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(a.statsCmd())
	root.AddCommand(a.verifyCmd())
	root.AddCommand(a.replayCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if a.dataDir != "" {
		cfg.Storage.DataDir = a.dataDir
	}
	log := zap.NewNop()
	if a.verbose {
		if log, err = logger.New("development"); err != nil {
			return nil, nil, err
		}
	}
	return cfg, log, nil
}

func (a *app) openStore() (*config.Config, *domain.Schema, *store.FileStore, *zap.Logger, error) {
	cfg, log, err := a.load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	schema, err := cfg.Survey.Schema()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	st, err := bootstrap.OpenStore(cfg, schema, log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, schema, st, log, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
