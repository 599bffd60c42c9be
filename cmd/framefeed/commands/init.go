package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/framefeed/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample FrameFeed configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/framefeed/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  framefeed init

  # Initialize with custom path
  framefeed init --config ./config.yaml

  # Force overwrite existing config
  framefeed init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
		configPath = filepath.Join(dir, "framefeed", "config.yaml")
	}

	if err := config.WriteSample(configPath, initForce); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Point dataset.input_dir at your frame directory")
	fmt.Printf("  2. Run the harness with: framefeed run --config %s\n", configPath)

	return nil
}
