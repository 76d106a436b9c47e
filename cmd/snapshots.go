package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/trialfunnel-cli/internal/report"
	"github.com/KaramelBytes/trialfunnel-cli/internal/snapshot"
)

var snapShowFormat string

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots",
	Aliases: []string{"snap"},
	Short:   "List or show saved runs",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		list, err := snapshot.NewStore(c.SnapshotsDir).List()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, "(no snapshots)")
			return nil
		}
		for _, s := range list {
			name := s.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(w, "- %s: %s  %s  clients=%d converted=%d retained=%d excluded=%d\n",
				s.ID, name, s.CreatedAt.Format("2006-01-02 15:04"), s.Clients, s.Converted, s.Retained, s.Excluded)
		}
		return nil
	},
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <id|latest>",
	Short: "Render a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		st := snapshot.NewStore(c.SnapshotsDir)
		var s *snapshot.Snapshot
		if args[0] == "latest" {
			s, err = st.Latest()
		} else {
			s, err = st.Load(args[0])
		}
		if err != nil {
			return err
		}
		if s.Output == nil {
			return fmt.Errorf("snapshot %s has no output", s.ID)
		}
		title := s.Name
		if title == "" {
			title = "Snapshot " + s.ID
		}
		return report.Write(cmd.OutOrStdout(), snapShowFormat, s.Output, report.Options{Title: title, CurrencySymbol: c.CurrencySymbol})
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsShowCmd.Flags().StringVarP(&snapShowFormat, "format", "f", "md", "output format: md, json or csv")
}
