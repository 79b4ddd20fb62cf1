package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devspace/internal/adapter/tui/theme"
	"devspace/internal/infra/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	debug      bool
	host       string
	port       int
}

const (
	modeCLI         = "cli"
	modeServer      = "server"
	modeInteractive = "interactive"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, theme.TextError.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	var mode string

	cmd := &cobra.Command{
		Use:           "devspace",
		Short:         "DevSpace - AI/ML, Robotics, and Distributed Systems Development Environment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.TextAccent.Render("Welcome to DevSpace!"))
			fmt.Fprintln(out, "A comprehensive development environment for intelligent applications.")
			fmt.Fprintln(out)

			switch mode {
			case modeCLI:
				return cmd.Help()
			case modeServer:
				return runServices(cmd.Context(), out, flags, serviceAll)
			case modeInteractive:
				printWelcome(cmd)
				return nil
			default:
				return fmt.Errorf("invalid --mode %q (want cli, server or interactive)", mode)
			}
		},
	}
	cmd.SetVersionTemplate("DevSpace {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath(), "config file path")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug mode")
	cmd.PersistentFlags().StringVar(&flags.host, "host", "", "host to bind the server to (default from config)")
	cmd.PersistentFlags().IntVar(&flags.port, "port", 0, "port to bind the server to (default from config)")
	cmd.Flags().StringVar(&mode, "mode", modeInteractive, "run mode: cli, server, or interactive")

	cmd.AddCommand(
		initCmd(flags),
		createCmd(flags),
		statusCmd(flags),
		startCmd(flags),
		stopCmd(flags),
		deployCmd(flags),
		chatCmd(flags),
		doctorCmd(flags),
	)
	return cmd
}

func printWelcome(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	b := theme.SymbolBullet
	fmt.Fprintln(out, "DevSpace is ready! Choose your next action:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintf(out, "  %s devspace --mode=cli        - Show the CLI commands\n", b)
	fmt.Fprintf(out, "  %s devspace --mode=server     - Start the HTTP API server\n", b)
	fmt.Fprintf(out, "  %s devspace init              - Create the project directories and config\n", b)
	fmt.Fprintf(out, "  %s devspace chat              - Chat with an agent in the terminal\n", b)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run 'devspace --help' for every command and flag.")
}

// defaultConfigPath honors DEVSPACE_CONFIG.
func defaultConfigPath() string {
	if p := os.Getenv("DEVSPACE_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// loadConfig reads the config file and applies the flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flags.debug {
		cfg.Project.Debug = true
	}
	if flags.host != "" {
		cfg.API.Host = flags.host
	}
	if flags.port != 0 {
		cfg.API.Port = flags.port
	}
	return cfg, nil
}
