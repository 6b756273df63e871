package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
//
// Every field can also come from a stepnav.yaml config file or from a
// STEPNAV_-prefixed environment variable; flags win over both.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	Config      string // explicit config file path
	Database    string
	StrictRules bool
	MaxSteps    int

	v *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stepnav CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "stepnav",
		Short: "stepnav - step navigation engine",
		Long: `Drive multi-step tasks (questionnaires, onboarding flows, guided procedures)
defined in CUE. Rules pick the next step from earlier answers, runs checkpoint to
SQLite, and scripted scenarios verify navigation end to end.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return WrapExitError(ExitCommandError, "failed to read config", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			configureLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Config, "config", "", "config file (default ./stepnav.yaml)")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database")
	flags.BoolVar(&opts.StrictRules, "strict-rules", false, "reject a second rule for the same trigger")
	flags.IntVar(&opts.MaxSteps, "max-steps", 0, "presentation quota per run (0 keeps the engine default)")

	_ = opts.v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = opts.v.BindPFlag("format", flags.Lookup("format"))
	_ = opts.v.BindPFlag("db", flags.Lookup("db"))
	_ = opts.v.BindPFlag("strict_rules", flags.Lookup("strict-rules"))
	_ = opts.v.BindPFlag("max_steps", flags.Lookup("max-steps"))

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load merges the config file and environment into opts.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.v == nil {
		return nil
	}
	v := o.v

	v.SetEnvPrefix("STEPNAV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if o.Config != "" {
		v.SetConfigFile(o.Config)
	} else {
		v.SetConfigName("stepnav")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.Config != "" || !errors.As(err, &notFound) {
			return err
		}
	}

	o.Verbose = v.GetBool("verbose")
	o.Format = v.GetString("format")
	o.Database = v.GetString("db")
	o.StrictRules = v.GetBool("strict_rules")
	o.MaxSteps = v.GetInt("max_steps")
	return nil
}

// configureLogging installs the default slog handler on w.
func configureLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
