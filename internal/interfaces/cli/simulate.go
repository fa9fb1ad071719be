package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Output formats of the simulate command.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputText  = "text"
)

type simulateOptions struct {
	file    string
	output  string
	noCache bool
	trace   bool
}

// NewSimulateCmd runs one scenario file and prints the result.
func NewSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and print the build plan and NPV",
		Example: "  tplanner simulate -f scenario.yaml\n" +
			"  tplanner simulate -f scenario.yaml -o json --no-cache",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "scenario file (YAML or JSON)")
	f.StringVarP(&opts.output, "output", "o", outputTable, "output format (table, json, text)")
	f.BoolVar(&opts.noCache, "no-cache", false, "ignore cached results of an identical scenario")
	f.BoolVar(&opts.trace, "trace", false, "log every planner decision")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSimulate(cmd *cobra.Command, opts *simulateOptions) error {
	switch opts.output {
	case outputTable, outputJSON, outputText:
	default:
		return errors.InvalidParam("unknown output format").WithDetail(opts.output)
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	sc, err := planning.LoadScenario(opts.file)
	if err != nil {
		return err
	}

	app, err := newApplication(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	req := &planning.SimulateRequest{Scenario: sc, NoCache: opts.noCache}
	if opts.trace {
		req.Observer = planning.NewLoggingObserver(cliCtx.Logger)
	}
	run, err := app.service.Simulate(cmd.Context(), req)
	if err != nil {
		return err
	}

	switch opts.output {
	case outputJSON:
		return printJSON(cmd, run)
	case outputText:
		printRunText(cmd.OutOrStdout(), run)
	default:
		printRunTables(cmd.OutOrStdout(), run)
	}
	return nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(0).StringFixed(0)
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func printRunText(w io.Writer, run *simulation.Run) {
	fmt.Fprintf(w, "run %s (%s) %s\n", run.ID, run.Name, run.Status)
	if run.Result == nil {
		return
	}
	res := run.Result
	fmt.Fprintf(w, "horizon %d-%d, %d elements\n",
		res.Horizon.Start, res.Horizon.Start+res.Horizon.Lifecycle-1, len(res.Elements))
	counts := make(map[string]int)
	var kinds []string
	for _, e := range res.Elements {
		k := e.Kind.String()
		if counts[k] == 0 {
			kinds = append(kinds, k)
		}
		counts[k]++
	}
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
	}
	if npv, ok := run.NPV(); ok {
		fmt.Fprintf(w, "NPV %s\n", money(npv))
	}
}

func printRunTables(w io.Writer, run *simulation.Run) {
	fmt.Fprintf(w, "Run %s (%s): %s\n\n", run.ID, run.Name, run.Status)
	if run.Result == nil {
		return
	}
	res := run.Result

	rows := make([][]string, 0, len(res.Elements))
	for _, e := range res.Elements {
		rows = append(rows, []string{e.Name, e.Kind.String(), strconv.Itoa(e.YearOnline), money(e.Capex)})
	}
	fmt.Fprintln(w, "Build plan")
	fmt.Fprint(w, FormatTable([]string{"ELEMENT", "KIND", "ONLINE", "CAPEX"}, rows, 2, 3))

	rows = rows[:0]
	for _, y := range res.Years {
		online := "-"
		if y.OnlineOccupancy != nil {
			online = ratio(*y.OnlineOccupancy)
		}
		rows = append(rows, []string{
			strconv.Itoa(y.Year), money(y.Volume), strconv.Itoa(y.Calls),
			ratio(y.BerthOccupancy), online, money(y.Demurrage), money(y.Revenue),
		})
	}
	fmt.Fprintln(w, "\nTraffic")
	fmt.Fprint(w, FormatTable(
		[]string{"YEAR", "VOLUME", "CALLS", "OCCUPANCY", "ONLINE OCC", "DEMURRAGE", "REVENUE"},
		rows, 0, 1, 2, 3, 4, 5, 6))

	if res.NPV == nil {
		return
	}
	rows = rows[:0]
	for _, r := range res.NPV.Rows {
		rows = append(rows, []string{
			strconv.Itoa(r.Year), money(r.Capex), money(r.Opex), money(r.Revenue), money(r.PV), money(r.CumPV),
		})
	}
	fmt.Fprintf(w, "\nDiscounted cash flow (real WACC %s)\n", strings.TrimRight(ratio(res.NPV.WACCReal), "0"))
	fmt.Fprint(w, FormatTable([]string{"YEAR", "CAPEX", "OPEX", "REVENUE", "PV", "CUMULATIVE"}, rows, 0, 1, 2, 3, 4, 5))
	fmt.Fprintf(w, "\nNPV %s\n", money(res.NPV.NPV))
}
