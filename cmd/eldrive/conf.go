// cmd/eldrive/conf.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamzrod/eldrive/internal/config"
)

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after defaults, the file and the environment are applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return config.Dump(cmd.OutOrStdout(), *cfg)
	},
}

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "Write the default configuration to --config",
	Long:  "Write the built-in defaults as YAML. An existing file is never overwritten.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.OpenFile(configPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if err := config.Dump(f, config.Default()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(confCmd, mkconfCmd)
}
