package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voxgate/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Audio analysis and decision pipeline",
	Version:       serviceVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(serveCmd, enrollCmd, recognizeCmd, verifyCmd, affectCmd,
		statusCmd, identitiesCmd, removeCmd, forgetCmd, auditCmd)
}

// loadConfig reads the configuration file, falling back to the defaults
// when the default path does not exist
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, fmt.Errorf("logging config: %w", err)
		}
	}
	return cfg, nil
}

// openApp loads the configuration, builds the components and, unless
// withModels is false, initializes the model capabilities
func openApp(cmd *cobra.Command, withModels bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	// One-shot commands log to stderr so stdout stays machine readable.
	if cmd.Name() != serveCmd.Name() && (cfg.Logging.Output == "stdout" || cfg.Logging.Output == "") {
		cfg.Logging.Output = "stderr"
	}
	logger := initLogger(cfg.Logging)

	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	if withModels {
		if err := a.initModels(cmd.Context()); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize models: %w", err)
		}
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}
	return data, nil
}
