package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pappt04/Lilyoutube-server/client"
)

var (
	probeTarget  string
	probeRetries int
	probeCount   int
)

var viewCmd = &cobra.Command{
	Use:   "view VIDEO_ID",
	Short: "Record views on a replica",
	Long: `Record one or more views of a video through a replica's HTTP API.

Examples:
  viewsync view 1 --target=127.0.0.1:8081 --count=15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVideoID(args[0])
		if err != nil {
			return err
		}
		c := newProbeClient()
		for i := 0; i < probeCount; i++ {
			if err := c.RecordView(cmd.Context(), id); err != nil {
				return fmt.Errorf("view %d of %d: %w", i+1, probeCount, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %d view(s) of video %d on %s\n", probeCount, id, probeTarget)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get VIDEO_ID",
	Short: "Show a video's total views as one replica sees it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVideoID(args[0])
		if err != nil {
			return err
		}
		v, err := newProbeClient().GetVideo(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d views\n", v.ID, v.Name, v.ViewsCount)
		return nil
	},
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the per-replica view table of one replica",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := newProbeClient().ReplicaTable(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VIDEO\tREPLICA\tVIEWS")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.VideoName, r.ReplicaName, r.Views)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{viewCmd, getCmd, tableCmd} {
		c.Flags().StringVarP(&probeTarget, "target", "t", "127.0.0.1:8080", "Replica HTTP address")
		c.Flags().IntVar(&probeRetries, "retries", 3, "Retries on network errors and 5xx responses")
		rootCmd.AddCommand(c)
	}
	viewCmd.Flags().IntVar(&probeCount, "count", 1, "Number of views to record")
}

func newProbeClient() *client.Client {
	cfg := client.DefaultConfig()
	cfg.MaxRetries = probeRetries
	cfg.Timeout = 5 * time.Second
	return client.New(probeTarget, cfg)
}

func parseVideoID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid video id %q: must be an integer", arg)
	}
	return id, nil
}
