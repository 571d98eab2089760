package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Pappt04/Lilyoutube-server/node"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "viewsync",
	Short: "Replicated video view counter",
	Long: `viewsync counts video views on several independent replicas. Each replica
only increments its own counter row and periodically exchanges rows with its
peers, so every replica converges on the same totals without coordination.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", node.DefaultEnvFiles, "env files read before the process environment")
}

func loadConfig() (*node.Config, error) {
	return node.Load(configPath, envFiles...)
}
