package cmd

import (
	"github.com/spf13/cobra"

	"github.com/porthorian/memberdir"
)

var BuildVersion = "dev"

var (
	configPath string
	settings   = memberdir.NewViper()
)

var rootCmd = &cobra.Command{
	Use:          "memberdir",
	Short:        "Member directory service",
	Long:         "CLI for running and administering the member directory service.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, json or toml). Environment variables use the MEMBERDIR_ prefix.")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: json or console.")
	_ = settings.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = settings.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of the memberdir CLI",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (memberdir.RuntimeConfig, error) {
	return memberdir.LoadConfig(settings, configPath)
}
