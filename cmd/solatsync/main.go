// Package main provides the solatsync command line.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/logging"
	"github.com/walnadz/solatsyncmy/internal/output"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App holds the CLI application state and dependencies.
type App struct {
	cfgFile  string
	haURL    string
	haToken  string
	zone     string
	port     int
	readOnly bool
	format   string
	color    string

	v       *viper.Viper
	rootCmd *cobra.Command
}

// NewApp creates a new CLI application instance with all dependencies.
func NewApp() *App {
	app := &App{v: viper.New()}
	app.rootCmd = app.buildRootCmd()
	app.setupFlags()
	app.addCommands()
	return app
}

func (a *App) buildRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solatsync",
		Short: "Waktu Solat Malaysia prayer times and azan for Home Assistant",
		Long: `solatsync keeps Home Assistant helpers in sync with the JAKIM prayer
schedule for one zone and plays the azan on a media player at each prayer.

Without a subcommand it runs the service (same as "solatsync run").`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runService,
	}
}

// setupFlags configures CLI flags and binds them to viper.
func (a *App) setupFlags() {
	flags := a.rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.StringVar(&a.haURL, "ha-url", "", "Home Assistant websocket URL")
	flags.StringVar(&a.haToken, "ha-token", "", "Home Assistant long-lived access token")
	flags.StringVar(&a.zone, "zone", "", "JAKIM zone code, e.g. SGR01")
	flags.IntVar(&a.port, "port", 0, "HTTP API port")
	flags.BoolVar(&a.readOnly, "read-only", false, "log Home Assistant writes instead of making them")
	flags.StringVar(&a.format, "format", "cli", "output format: cli or json")
	flags.StringVar(&a.color, "color", "auto", "color output: auto, always or never")

	a.bindPFlag("homeassistant.url", flags.Lookup("ha-url"))
	a.bindPFlag("homeassistant.token", flags.Lookup("ha-token"))
	a.bindPFlag("homeassistant.read_only", flags.Lookup("read-only"))
	a.bindPFlag("waktusolat.zone", flags.Lookup("zone"))
	a.bindPFlag("server.port", flags.Lookup("port"))
}

func (a *App) addCommands() {
	a.rootCmd.AddCommand(
		a.buildRunCmd(),
		a.buildZonesCmd(),
		a.buildTodayCmd(),
		a.buildNextCmd(),
		a.buildPlayCmd(),
		a.buildConfigCmd(),
	)
}

// bindPFlag binds a flag to viper. Only explicitly set flags override the
// config file and environment.
func (a *App) bindPFlag(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to bind flag %s: %v\n", key, err)
	}
}

// loadConfig loads and validates the configuration.
func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithViper(a.v, a.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the service logger. The console encoder is used when
// stderr is a terminal.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	development := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return logging.New(cfg.Logging.Level, development)
}

// formatter builds the output formatter from --format and --color.
func (a *App) formatter(cmd *cobra.Command) (*output.CLIFormatter, error) {
	format, err := output.ParseFormat(a.format)
	if err != nil {
		return nil, err
	}

	var colorMode output.ColorMode
	switch a.color {
	case "always":
		colorMode = output.ColorAlways
	case "never":
		colorMode = output.ColorNever
	default:
		colorMode = output.ColorAuto
	}

	return output.NewCLIFormatter(&output.Formatter{
		Writer:    cmd.OutOrStdout(),
		Format:    format,
		ColorMode: colorMode,
	}), nil
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

func main() {
	app := NewApp()
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
