package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skypro1111/meetscribe/internal/config"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meetscribe"
	serviceVersion    = "1.0.0"
)

// Dependencies are shared by every command
type Dependencies struct {
	ConfigPath string
	Stdout     io.Writer
	Stderr     io.Writer
}

// configPath returns the --config value, falling back to the default file
// when it exists and to built-in defaults otherwise.
func (d *Dependencies) configPath() string {
	if d.ConfigPath != "" {
		return d.ConfigPath
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// LoadConfig loads and validates the configuration
func (d *Dependencies) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(d.configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Record meetings and transcribe them segment by segment",
		Long:          "A recording agent that captures microphone and system audio, seals it into fixed-length segments, and transcribes each segment while the meeting is still running.",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "Path to configuration file (default "+defaultConfigPath+" when present)")

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
