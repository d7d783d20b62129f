package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"

	"perfmetrics/internal/domain"
	"perfmetrics/pkg/perfmetrics"
)

// ---------------------------------------------------------------------------
// metrics
// ---------------------------------------------------------------------------

type metricsCmd struct {
	g    *globals
	bars bool
}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "print trailing-window metrics for symbols" }
func (*metricsCmd) Usage() string {
	return `perfmetrics-cli [-server URL] metrics [-bars] SYMBOL...

  Prints return, volatility, Sharpe ratio, drawdown and top price over the
  7, 30, 60 and 90 day windows for each symbol.
`
}

func (c *metricsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.bars, "bars", false, "include the bar series (JSON output only)")
}

func (c *metricsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one symbol is required")
		return subcommands.ExitUsageError
	}
	src, err := c.g.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer src.Close()

	status := subcommands.ExitSuccess
	var results []*perfmetrics.Metrics
	for _, sym := range f.Args() {
		m, err := src.GetMetrics(ctx, sym, c.bars)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", sym, err)
			status = subcommands.ExitFailure
			continue
		}
		results = append(results, m)
	}

	if c.g.json {
		printJSON(os.Stdout, results)
	} else {
		printMetricsTable(os.Stdout, results)
	}
	return status
}

// ---------------------------------------------------------------------------
// refresh
// ---------------------------------------------------------------------------

type refreshCmd struct {
	g *globals
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "recompute metrics for many symbols in batches" }
func (*refreshCmd) Usage() string {
	return `perfmetrics-cli [-server URL] refresh SYMBOL...

  Recomputes today's metrics for every symbol and reports the failures.
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one symbol is required")
		return subcommands.ExitUsageError
	}
	src, err := c.g.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer src.Close()

	resp, err := src.Refresh(ctx, f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.g.json {
		printJSON(os.Stdout, resp)
	} else {
		results := make([]*perfmetrics.Metrics, 0, len(resp.Results))
		for _, m := range resp.Results {
			results = append(results, &m)
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
		printMetricsTable(os.Stdout, results)
		for _, sym := range resp.Failures {
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", sym, resp.Errors[sym])
		}
	}
	if len(resp.Failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print the CLI version" }
func (*versionCmd) Usage() string          { return "perfmetrics-cli version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("perfmetrics-cli %s\n", version)
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func printMetricsTable(w io.Writer, results []*perfmetrics.Metrics) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tWINDOW\tBARS\tRETURN %\tVOL %\tSHARPE\tMAX DD %\tTOP\tSPOT\tSOURCE\t")
	for _, m := range results {
		for _, key := range domain.AllWindows {
			wm, ok := m.Windows[string(key)]
			if !ok {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\t-\t%.2f\t%s\t\n", m.Symbol, key, m.SpotPrice, m.DataSource)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n",
				m.Symbol, key, wm.Bars, wm.ReturnPct, wm.VolatilityAnnual, wm.SharpeRatio,
				wm.MaxDrawdownPct, wm.TopPrice, m.SpotPrice, m.DataSource)
		}
	}
	tw.Flush()
}
