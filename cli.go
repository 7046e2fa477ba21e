package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fosrl/newt/logger"
	"github.com/spf13/cobra"

	"github.com/dnschanger/dnschanger/api"
	"github.com/dnschanger/dnschanger/dnsmgr"
	"github.com/dnschanger/dnschanger/providers"
	"github.com/dnschanger/dnschanger/ui"
)

// cliState carries the loaded config and manager into the command
// handlers.
type cliState struct {
	config  *Config
	manager *dnsmgr.Manager
}

func newRootCmd(version string) *cobra.Command {
	state := &cliState{}

	var (
		profile    string
		iface      string
		logLevel   string
		noVerify   bool
		enableAPI  bool
		apiAddr    string
		socketPath string
		useSocket  bool
		showConfig bool
	)

	rootCmd := &cobra.Command{
		Use:     "dnschanger",
		Short:   "View and change the system DNS resolver configuration",
		Long:    "An interactive tool for switching the system DNS between well-known providers, custom servers, and automatic (router-provided) DNS.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(profile)
			if err != nil {
				return err
			}

			// CLI flags override file and environment values.
			if cmd.Flags().Changed("interface") {
				config.Interface = iface
				config.setFromCLI("interface")
			}
			if cmd.Flags().Changed("log-level") {
				config.LogLevel = logLevel
				config.setFromCLI("logLevel")
			}
			if noVerify {
				config.Verify = false
				config.setFromCLI("verify")
			}
			if enableAPI {
				config.EnableAPI = true
				config.setFromCLI("enableApi")
			}
			if cmd.Root().Flags().Changed("api-addr") {
				config.APIAddr = apiAddr
				config.setFromCLI("apiAddr")
			}
			if cmd.Root().Flags().Changed("socket-path") {
				config.SocketPath = socketPath
				config.setFromCLI("socketPath")
			}

			logger.GetLogger().SetLevel(parseLogLevel(config.LogLevel))

			state.config = config
			state.manager = dnsmgr.New(dnsmgr.Options{Verify: config.Verify})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showConfig {
				state.config.ShowConfig()
				return nil
			}
			return runInteractive(cmd, state, useSocket)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&profile, "profile", "", "Configuration profile to use")
	pf.StringVarP(&iface, "interface", "i", "", "Network interface to operate on")
	pf.StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR, FATAL)")
	pf.BoolVar(&noVerify, "no-verify", false, "Skip the post-apply DNS probe")

	rootCmd.Flags().BoolVar(&enableAPI, "enable-api", false, "Start the local control API")
	rootCmd.Flags().StringVar(&apiAddr, "api-addr", "", "TCP address for the control API")
	rootCmd.Flags().StringVar(&socketPath, "socket-path", "", "Unix socket / named pipe for the control API")
	rootCmd.Flags().BoolVar(&useSocket, "api-socket", false, "Serve the control API on the socket instead of TCP")
	rootCmd.Flags().BoolVar(&showConfig, "show-config", false, "Print the effective configuration and exit")

	rootCmd.AddCommand(
		newListCmd(state),
		newProvidersCmd(state),
		newShowCmd(state),
		newApplyCmd(state),
		newAutoCmd(state),
		newRestoreCmd(state),
		newStatusCmd(state),
		newConfigCmd(state),
	)
	return rootCmd
}

// runInteractive drives the menu session, optionally alongside the control
// API.
func runInteractive(cmd *cobra.Command, state *cliState, useSocket bool) error {
	if state.config.EnableAPI {
		var server *api.API
		if useSocket {
			server = api.NewAPISocket(state.config.SocketPath, cmd.Root().Version, state.manager, state.config.Providers)
		} else {
			server = api.NewAPI(state.config.APIAddr, cmd.Root().Version, state.manager, state.config.Providers)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("start control API: %w", err)
		}
		defer server.Stop()
	}

	if state.manager.PendingRestore() {
		logger.Info("A previous session left DNS changed without restoring it")
	}

	session := ui.New(state.manager, ui.Options{
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		Interface: state.config.Interface,
		Extra:     state.config.Providers,
	})
	return session.Run()
}

func newListCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List network interfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := state.manager.ListInterfaces()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newProvidersCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List DNS provider presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range append(providers.Builtin(), state.config.Providers...) {
				fmt.Fprintf(out, "%-12s %-35s %s\n", p.Name, p.Description, strings.Join(p.AddrStrings(), ", "))
			}
			fmt.Fprintf(out, "%-12s %s\n", "custom", "Enter your own server addresses")
			fmt.Fprintf(out, "%-12s %s\n", "automatic", "Router/DHCP-provided DNS")
			return nil
		},
	}
}

func newShowCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current DNS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := pickInterface(state)
			if err != nil {
				return err
			}
			servers, err := state.manager.CurrentDNS(iface)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(servers) == 0 {
				fmt.Fprintf(out, "No static DNS configured on %s (automatic)\n", iface)
				return nil
			}
			for _, server := range servers {
				fmt.Fprintln(out, server)
			}
			return nil
		},
	}
}

func newApplyCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <provider|address>...",
		Short: "Apply a provider preset or explicit server addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := pickInterface(state)
			if err != nil {
				return err
			}

			values := args
			if len(args) == 1 {
				if p, ok := providers.Find(args[0], state.config.Providers); ok {
					values = p.AddrStrings()
				}
			}

			if err := state.manager.Apply(iface, values); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DNS on %s set to %s\n", iface, strings.Join(values, ", "))
			return nil
		},
	}
}

func newAutoCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Switch to automatic (router-provided) DNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := pickInterface(state)
			if err != nil {
				return err
			}
			if err := state.manager.SetAutomatic(iface); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DNS on %s switched to automatic\n", iface)
			return nil
		},
	}
}

func newRestoreCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the DNS configuration saved before the last apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.manager.Restore(state.config.Interface); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Previous DNS configuration restored")
			return nil
		},
	}
}

func newStatusCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize interfaces and any pending restore",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dnschanger %s\n", cmd.Root().Version)

			names, err := state.manager.ListInterfaces()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Interfaces: %s\n", strings.Join(names, ", "))

			if prev := state.manager.Previous(); prev != nil {
				if len(prev.PreviousDNS) == 0 {
					fmt.Fprintf(out, "Pending restore on %s: automatic DNS (saved %s)\n",
						prev.Interface, prev.CreatedAt.Format("2006-01-02 15:04:05"))
				} else {
					fmt.Fprintf(out, "Pending restore on %s: %s (saved %s)\n",
						prev.Interface, strings.Join(prev.PreviousDNS, ", "),
						prev.CreatedAt.Format("2006-01-02 15:04:05"))
				}
			} else {
				fmt.Fprintln(out, "No pending restore")
			}
			return nil
		},
	}
}

func newConfigCmd(state *cliState) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and where each value came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			state.config.ShowConfig()
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "profiles",
		Short: "List configuration profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := ListProfiles()
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to the profile's file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := SaveConfig(state.config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", configPath(state.config.activeProfile))
			return nil
		},
	})

	return configCmd
}

// pickInterface resolves the interface for one-shot commands: an explicit
// setting wins, otherwise a single-interface host needs no choice.
func pickInterface(state *cliState) (string, error) {
	if state.config.Interface != "" {
		return state.config.Interface, nil
	}

	names, err := state.manager.ListInterfaces()
	if err != nil {
		return "", err
	}
	if len(names) == 1 {
		return names[0], nil
	}
	return "", fmt.Errorf("multiple interfaces found (%s), pick one with --interface", strings.Join(names, ", "))
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logger.DEBUG
	case "WARN":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	case "FATAL":
		return logger.FATAL
	default:
		return logger.INFO
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
