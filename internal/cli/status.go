package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HerbHall/campusnet/internal/store"
	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02 15:04:05"

func newStatusCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent outages, logins and checks from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck // best-effort flush

			path := rt.settings.History.Path
			if path == "" {
				return errors.New("history is disabled: set history.path in the config")
			}

			ctx := cmd.Context()
			db, err := store.Open(ctx, path)
			if err != nil {
				return err
			}
			defer db.Close()

			h, err := store.NewHistory(ctx, db, rt.logger.Named("history"))
			if err != nil {
				return err
			}

			outages, err := h.RecentOutages(ctx, limit)
			if err != nil {
				return err
			}
			logins, err := h.RecentLogins(ctx, limit)
			if err != nil {
				return err
			}
			checks, err := h.RecentChecks(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printOutages(out, outages)
			printLogins(out, logins)
			printChecks(out, checks)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "rows to show per section")
	return cmd
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
}

func printOutages(w io.Writer, outages []store.Outage) {
	printHeader(w, "Outages")
	if len(outages) == 0 {
		fmt.Fprint(w, "  none\n\n")
		return
	}
	for _, o := range outages {
		if o.Open() {
			fmt.Fprintf(w, "  %s  ongoing  failures=%d\n", local(o.StartedAt), o.Failures)
			continue
		}
		fmt.Fprintf(w, "  %s  lasted %s  failures=%d\n",
			local(o.StartedAt), o.EndedAt.Sub(o.StartedAt).Round(time.Second), o.Failures)
	}
	fmt.Fprintln(w)
}

func printLogins(w io.Writer, logins []store.LoginRecord) {
	printHeader(w, "Login attempts")
	if len(logins) == 0 {
		fmt.Fprint(w, "  none\n\n")
		return
	}
	for _, l := range logins {
		result := "ok"
		if !l.Success {
			result = "failed: " + l.Reason
		}
		fmt.Fprintf(w, "  %s  %s  attempt %d  %s\n", local(l.AttemptedAt), l.Username, l.Attempt, result)
	}
	fmt.Fprintln(w)
}

func printChecks(w io.Writer, checks []store.CheckRecord) {
	printHeader(w, "Connectivity checks")
	if len(checks) == 0 {
		fmt.Fprint(w, "  none\n\n")
		return
	}
	for _, c := range checks {
		result := "reachable"
		if !c.Reachable {
			result = "unreachable"
		}
		fmt.Fprintf(w, "  %s  %-11s via %-4s %s\n", local(c.CheckedAt), result, c.Layer, c.Detail)
	}
	fmt.Fprintln(w)
}

func local(t time.Time) string {
	return t.Local().Format(timeFormat)
}
