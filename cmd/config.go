package cmd

import (
	"fmt"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/detect"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "cornea.yml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		fmt.Printf("The pigo detector needs a cascade file. Fetch it with:\n")
		fmt.Printf("  curl -L --create-dirs -o cascade/facefinder %s\n", detect.CascadeURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}
