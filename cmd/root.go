// SPDX-License-Identifier: GPL-3.0-only
package cmd

import (
	"fmt"
	"os"

	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
)

var rootCmd = &cobra.Command{
	Use:    "logexplorer",
	Short:  "Explore log streams: paged queries, time slots and live tail",
	Long:   ``,
	PreRun: onCommandStart,
	Run: func(cmd *cobra.Command, args []string) {
		// Check if config exists before showing generic help
		if _, err := config.Path(configPath); err != nil {
			fmt.Println("Welcome to logexplorer!")
			fmt.Println("\nNo configuration found.")
			fmt.Println("   Run 'logexplorer configure' to get started with an interactive setup wizard.")
			fmt.Println("\nOr use 'logexplorer --help' to see all available options.")
			return
		}
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file with backends and views")
	rootCmd.PersistentFlags().StringVar(&logger.Path, "logging-path", "", "file to output logs of the application")
	rootCmd.PersistentFlags().StringVar(&logger.Level, "logging-level", "", "logging level to output INFO WARN ERROR DEBUG TRACE")
	rootCmd.PersistentFlags().BoolVar(&logger.Stdout, "logging-stdout", false, "output appplication log in the stdout")
	rootCmd.PersistentFlags().BoolVar(&debugHttp, "debug-http", false, "enable HTTP debug logs (prints request bodies and masked headers)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "Color output: auto, always or never")

	// Register completion for --logging-level flag
	_ = rootCmd.RegisterFlagCompletionFunc("logging-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("color", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "always", "never"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(queryCommand)
	rootCmd.AddCommand(slotsCommand)
	rootCmd.AddCommand(tailCommand)
	rootCmd.AddCommand(filterCommand)
	rootCmd.AddCommand(versionCommand)
}
