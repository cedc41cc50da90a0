package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExitUnreachable is the exit code of check when there is no internet access.
const ExitUnreachable = 2

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one connectivity check and print every probe verdict",
		Long: `check pings the configured DNS servers and, if none answer, fetches the
HTTP check URL once. It exits 0 when the internet is reachable and 2 when
it is not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer rt.logger.Sync() //nolint:errcheck // best-effort flush

			a := opts.buildApp(rt.settings, rt.logger)
			report := a.classifier.Classify(cmd.Context())

			out := cmd.OutOrStdout()
			for _, v := range report.Verdicts {
				mark := "FAIL"
				if v.Reachable {
					mark = "OK  "
				}
				fmt.Fprintf(out, "[%s] %s\n", mark, v)
			}
			if !report.Reachable {
				fmt.Fprintln(out, "internet: unreachable")
				return &ExitError{Code: ExitUnreachable}
			}
			fmt.Fprintf(out, "internet: reachable (via %s)\n", report.Layer)
			return nil
		},
	}
}
