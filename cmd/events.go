package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/store"
)

var eventsJSON bool

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "List the stored progress events of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListEvents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "events")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No events found.")
			return nil
		}

		if eventsJSON {
			return writeJSON(os.Stdout, list)
		}
		formatEvents(os.Stdout, list)
		return nil
	},
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print events as JSON")
	rootCmd.AddCommand(eventsCmd)
}

// formatEvents writes a tabular list of events to w.
func formatEvents(out io.Writer, list []store.StoredEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tSTAGE\tPROGRESS\tPAYLOAD")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t--------\t-------")

	for _, se := range list {
		ev := se.Event
		progress := ""
		if ev.Progress != nil {
			progress = fmt.Sprintf("%d%%", *ev.Progress)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Format("15:04:05.000"),
			ev.Kind,
			ev.Stage,
			progress,
			formatPayload(ev.Payload),
		)
	}
	_ = w.Flush()
}

// formatPayload renders a payload as sorted key=value pairs.
func formatPayload(p map[string]any) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}
