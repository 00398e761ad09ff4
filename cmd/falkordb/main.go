// Package main provides the falkordb command line client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/orneryd/falkordb-go/pkg/compact"
	"github.com/orneryd/falkordb-go/pkg/config"
	"github.com/orneryd/falkordb-go/pkg/falkordb"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	statColor   = color.New(color.FgHiBlack)
	errColor    = color.New(color.FgRed, color.Bold)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "falkordb",
		Short: "FalkorDB graph client",
		Long: `falkordb runs Cypher queries against a FalkorDB server and prints
the decoded results.

Connection settings come from --config, then FALKORDB_* environment
variables, then --url.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("url", "", "Server URL (falkor://, falkors://, redis://, rediss://)")
	rootCmd.PersistentFlags().StringP("graph", "g", "default", "Graph name")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("falkordb v%s (%s)\n", version, commit)
		},
	})

	queryCmd := &cobra.Command{
		Use:   "query CYPHER",
		Short: "Run a query and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringToString("param", nil, "Query parameter name=value (repeatable)")
	queryCmd.Flags().Bool("read-only", false, "Send as a read-only query")
	queryCmd.Flags().Duration("timeout", 0, "Server side query timeout")
	queryCmd.Flags().String("format", "table", "Output format (table, json)")
	rootCmd.AddCommand(queryCmd)

	explainCmd := &cobra.Command{
		Use:   "explain CYPHER",
		Short: "Print the execution plan of a query without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan(false),
	}
	explainCmd.Flags().StringToString("param", nil, "Query parameter name=value (repeatable)")
	rootCmd.AddCommand(explainCmd)

	profileCmd := &cobra.Command{
		Use:   "profile CYPHER",
		Short: "Run a query and print its plan with per operation timings",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan(true),
	}
	profileCmd.Flags().StringToString("param", nil, "Query parameter name=value (repeatable)")
	rootCmd.AddCommand(profileCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "List labels, relationship types and property keys",
		RunE:  runSchema,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "List indexes and constraints",
		RunE:  runIndexes,
	})

	slowlogCmd := &cobra.Command{
		Use:   "slowlog",
		Short: "Show the slowest recent queries",
		RunE:  runSlowlog,
	}
	slowlogCmd.Flags().Bool("reset", false, "Clear the slowlog instead of printing it")
	rootCmd.AddCommand(slowlogCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "graphs",
		Short: "List graphs on the server",
		RunE:  runGraphs,
	})

	if err := rootCmd.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// connect builds a client from the persistent flags.
func connect(cmd *cobra.Command) (*falkordb.Client, error) {
	path, _ := cmd.Flags().GetString("config")
	url, _ := cmd.Flags().GetString("url")
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if url != "" {
		cfg.Connection.URL = url
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	return falkordb.New(cfg, falkordb.WithLogger(logger))
}

func graphName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("graph")
	return name
}

// commandContext is canceled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func queryOptions(cmd *cobra.Command) []falkordb.QueryOption {
	var opts []falkordb.QueryOption
	if raw, _ := cmd.Flags().GetStringToString("param"); len(raw) > 0 {
		params := make(map[string]any, len(raw))
		for k, v := range raw {
			params[k] = parseParam(v)
		}
		opts = append(opts, falkordb.WithParams(params))
	}
	if cmd.Flags().Lookup("timeout") != nil {
		if d, _ := cmd.Flags().GetDuration("timeout"); d > 0 {
			opts = append(opts, falkordb.WithTimeout(d))
		}
	}
	return opts
}

// parseParam reads a flag value as an integer, float or bool when it looks
// like one, and as a string otherwise. Quote a value to force a string.
func parseParam(s string) any {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	if s == "null" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	g := client.SelectGraph(graphName(cmd))
	readOnly, _ := cmd.Flags().GetBool("read-only")
	run := g.Query
	if readOnly {
		run = g.ROQuery
	}

	start := time.Now()
	rs, err := run(ctx, args[0], queryOptions(cmd)...)
	if err != nil {
		return err
	}
	defer rs.Close()

	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return writeJSON(ctx, rs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if header := rs.Header(); len(header) > 0 {
		headerColor.Fprintln(w, strings.Join(header, "\t"))
	}
	for rec, err := range rs.Records(ctx) {
		if err != nil {
			w.Flush()
			return err
		}
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = v.String()
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	printStats(rs.Stats(), rs.Len(), time.Since(start))
	return nil
}

// writeJSON prints one JSON object per row, keyed by column name.
func writeJSON(ctx context.Context, rs *compact.ResultSet) error {
	enc := json.NewEncoder(os.Stdout)
	keys := jsonKeys(rs.Header())
	for rec, err := range rs.Records(ctx) {
		if err != nil {
			return err
		}
		if err := enc.Encode(jsonRow(keys, rec)); err != nil {
			return err
		}
	}
	return nil
}

// jsonKeys makes column names unique. A repeated name gets a numeric
// suffix, starting at _2.
func jsonKeys(header []string) []string {
	keys := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		key := name
		for n := 2; seen[key]; n++ {
			key = name + "_" + strconv.Itoa(n)
		}
		seen[key] = true
		keys[i] = key
	}
	return keys
}

func jsonRow(keys []string, rec value.Record) map[string]any {
	row := make(map[string]any, len(keys))
	for i, key := range keys {
		row[key] = jsonSafe(value.ToGo(rec[i]))
	}
	return row
}

// jsonSafe replaces NaN and infinities, which encoding/json rejects, with
// their string forms.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "+Inf"
		case math.IsInf(x, -1):
			return "-Inf"
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = jsonSafe(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = jsonSafe(e)
		}
		return x
	}
	return v
}

func printStats(stats compact.Statistics, rows int, elapsed time.Duration) {
	fmt.Println()
	names := make([]string, 0, len(stats))
	for name := range stats {
		if name != compact.StatExecutionTime {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		statColor.Printf("%s: %s\n", name, stats[name])
	}
	statColor.Printf("%d row(s), server %v, total %v\n", rows, stats.ExecutionTime(), elapsed.Round(time.Microsecond))
}

func runPlan(profile bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := commandContext()
		defer cancel()

		g := client.SelectGraph(graphName(cmd))
		plan := g.Explain
		if profile {
			plan = g.Profile
		}
		p, err := plan(ctx, args[0], queryOptions(cmd)...)
		if err != nil {
			return err
		}
		fmt.Println(strings.TrimPrefix(p.String(), "\n"))
		return nil
	}
}

func runSchema(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	g := client.SelectGraph(graphName(cmd))
	for _, ns := range schema.Namespaces {
		table, err := g.FetchSchema(ctx, ns)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(table))
		for id := range table {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		headerColor.Printf("%s (%d)\n", ns, len(ids))
		for _, id := range ids {
			fmt.Printf("  %4d  %s\n", id, table[id])
		}
	}
	return nil
}

func runIndexes(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	g := client.SelectGraph(graphName(cmd))
	indices, err := g.ListIndices(ctx)
	if err != nil {
		return err
	}
	constraints, err := g.ListConstraints(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	headerColor.Fprintln(w, "ENTITY\tLABEL\tPROPERTY\tTYPES\tSTATUS")
	for _, idx := range indices {
		for _, prop := range idx.Properties {
			kinds := make([]string, len(idx.Types[prop]))
			for i, k := range idx.Types[prop] {
				kinds[i] = k.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", idx.EntityType, idx.Label, prop, strings.Join(kinds, ","), idx.Status)
		}
	}
	if len(constraints) > 0 {
		fmt.Fprintln(w)
		headerColor.Fprintln(w, "ENTITY\tLABEL\tPROPERTIES\tCONSTRAINT\tSTATUS")
		for _, c := range constraints {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.EntityType, c.Label, strings.Join(c.Properties, ","), c.Type, c.Status)
		}
	}
	return w.Flush()
}

func runSlowlog(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	g := client.SelectGraph(graphName(cmd))
	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		if err := g.SlowlogReset(ctx); err != nil {
			return err
		}
		fmt.Println("slowlog cleared")
		return nil
	}

	entries, err := g.Slowlog(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	headerColor.Fprintln(w, "TIME\tDURATION\tCOMMAND\tQUERY")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Duration, e.Command, e.Query)
	}
	return w.Flush()
}

func runGraphs(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext()
	defer cancel()

	names, err := client.ListGraphs(ctx)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
