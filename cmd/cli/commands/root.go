package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davidmoltin/procurement-workflows/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	apiURL     string
	apiToken   string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "procurement-cli",
	Short: "Procurement Workflows CLI - Review purchase requests and check documents",
	Long: `The Procurement Workflows CLI lets approvers work through purchase
requests from the command line and run document checks offline.

Examples:
  procurement-cli requests list --status pending
  procurement-cli requests approve <request-id> --comments "Within budget"
  procurement-cli extract proforma.pdf
  procurement-cli reconcile --po po.json receipt.pdf`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.procurement-cli.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Procurement API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", "", "API bearer token")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results in JSON format")

	// Bind flags to viper
	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("api-token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".procurement-cli")
	}

	// PROCUREMENT_API_URL, PROCUREMENT_API_TOKEN
	viper.SetEnvPrefix("PROCUREMENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if !outputJSON {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func newClient() *cli.Client {
	return cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
