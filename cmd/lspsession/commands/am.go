package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lspsession/am"
	"github.com/teranos/lspsession/errors"
	"gopkg.in/yaml.v3"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage lspsession configuration",
	Long: `am: Manage lspsession configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (LSPSESSION_* prefix, e.g. LSPSESSION_SESSION_ADDRESS)
3. Project config (./am.toml, searched upward)
4. User config (~/.lspsession/am.toml)
5. System config (/etc/lspsession/am.toml)
6. Default values

Examples:
  lspsession am show                      # Show current configuration
  lspsession am show --format json        # Show configuration in JSON format
  lspsession am get session.address       # Get specific config value
  lspsession am validate                  # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective lspsession configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., session.address, reconnect.max_attempts)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the effective configuration and report unknown keys in config files",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files were checked.

Lists all configuration files in order of precedence, showing
which files exist and which are missing.`,
	RunE: runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(loaded, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(loaded)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# lspsession configuration\n%s", string(data))

	case "toml":
		data, err := am.Marshal(loaded)
		if err != nil {
			return err
		}
		fmt.Printf("# lspsession configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.WithHint(
			errors.Newf("configuration key %q not found", key),
			"run 'lspsession am show' to list keys")
	}

	fmt.Println(am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if err := loaded.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	for _, src := range am.ConfigPaths() {
		if !src.Exists {
			continue
		}
		unknown, err := am.CheckUnknownKeys(src.Path)
		if err != nil {
			return err
		}
		for _, key := range unknown {
			pterm.Warning.Printfln("%s: unknown key %q is ignored", src.Path, key)
		}
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")

	n := 2
	for _, src := range am.ConfigPaths() {
		status := pterm.Gray("missing")
		if src.Exists {
			status = pterm.Green("loaded")
		}
		fmt.Printf("  %d. [%s]%*s%s (%s)\n", n, src.Label, 9-len(src.Label), "", src.Path, status)
		n++
	}
	fmt.Printf("  %d. [ENV]      %s_* environment variables\n", n, am.EnvPrefix)

	if active := am.ActiveConfigPath(); active != "" {
		fmt.Printf("\nActive file: %s\n", active)
	}
	return nil
}
