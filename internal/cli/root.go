// Package cli implements the campusnet command line.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/HerbHall/campusnet/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// options are the persistent flags plus test hooks.
type options struct {
	configPath string
	logLevel   string

	// buildApp wires components from settings; replaced in tests.
	buildApp func(s *config.Settings, logger *zap.Logger) *app
}

// runtime is what every command that needs configuration starts from.
type runtime struct {
	viper    *viper.Viper
	settings *config.Settings
	logger   *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{buildApp: newApp})
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "campusnet",
		Short: "Keep a campus network session logged in",
		Long: `campusnet watches internet reachability behind a captive portal and logs
back in with the configured credentials whenever access is lost.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	// Accept --log_level as well, matching the config key spelling.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: campusnet.{json,yaml} in ., ./configs or /etc/campusnet)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level override: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads and validates configuration and builds the logger.
func (o *options) load(cmd *cobra.Command) (*runtime, error) {
	v, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := v.BindPFlag("log_level", f); err != nil {
			return nil, fmt.Errorf("binding --log-level: %w", err)
		}
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, err
	}

	s, err := config.Parse(v)
	if err != nil {
		if errors.Is(err, config.ErrMissingFields) || errors.Is(err, config.ErrPlaceholder) {
			err = fmt.Errorf("%w (copy configs/campusnet.example.yaml and fill in your credentials)", err)
		}
		_ = logger.Sync()
		return nil, err
	}
	return &runtime{viper: v, settings: s, logger: logger}, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
