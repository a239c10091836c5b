package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sen6x-go/services/config"
)

var showEffective bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print an example configuration, or the effective one with --effective",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !showEffective {
			fmt.Fprint(cmd.OutOrStdout(), config.Example)
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	configCmd.Flags().BoolVar(&showEffective, "effective", false, "Print the loaded configuration after defaults and overrides")
	rootCmd.AddCommand(configCmd)
}
