package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/relations"
	"github.com/cuemby/conduit/pkg/types"
)

const refreshTimeout = 60 * time.Second

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the local cache from the control plane",
	Long: `Fetch every kind from the control plane, normalize it and write it to
the local cache. Kinds that fail keep their previously cached data.`,
	RunE: runRefresh,
}

var getCmd = &cobra.Command{
	Use:   "get KIND [ID]",
	Short: "Show routes, services, upstreams or consumers",
	Long: `Show one kind, or one entity of it, from a fresh refresh.

Examples:
  # List all routes
  conduit get routes

  # Show one upstream as JSON from the cache, without contacting the server
  conduit get upstream u1 --offline -o json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Show consumer to upstream access chains",
	RunE:  runChains,
}

var danglingCmd = &cobra.Command{
	Use:   "dangling",
	Short: "List references to entities that do not exist",
	RunE:  runDangling,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, chainsCmd, danglingCmd} {
		c.Flags().Bool("offline", false, "Use the cached snapshot without contacting the control plane")
	}
	getCmd.Flags().StringP("output", "o", "yaml", "Output format: yaml or json")

	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(danglingCmd)
}

// withSnapshot opens the engine, refreshes unless --offline is set and
// hands the published snapshot to fn
func withSnapshot(cmd *cobra.Command, chains bool, fn func(eng *engine, snap types.Snapshot) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Refresh.Chains = cfg.Refresh.Chains || chains
	cfg.Refresh.Interval = 0

	eng, err := openEngine(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	offline, _ := cmd.Flags().GetBool("offline")
	if !offline {
		ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
		defer cancel()
		report, err := eng.rec.Refresh(ctx, reconciler.TriggerManual)
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		for _, kind := range report.Failed() {
			kr, _ := report.Kind(kind)
			fmt.Fprintf(os.Stderr, "warning: %s not refreshed: %v\n", kind, kr.Err)
		}
	}

	snap := eng.rec.Snapshot()
	if snap.RefreshedAt.IsZero() {
		return fmt.Errorf("no data: the control plane was unreachable and the cache is empty")
	}
	return fn(eng, snap)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Refresh.Interval = 0

	eng, err := openEngine(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
	defer cancel()
	report, err := eng.rec.Refresh(ctx, reconciler.TriggerManual)
	if err != nil {
		return err
	}

	printReport(os.Stdout, report)
	if failed := report.Failed(); len(failed) == len(types.AllKinds) {
		return fmt.Errorf("every kind failed to refresh")
	}
	return nil
}

func printReport(out io.Writer, report reconciler.Report) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCOUNT\tDROPPED\tDUPLICATES\tSTATUS")
	for _, k := range report.Kinds {
		status := "ok"
		switch {
		case k.Err != nil:
			status = "failed: " + k.Err.Error()
		case k.PersistErr != nil:
			status = "not cached: " + k.PersistErr.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", k.Kind, k.Count, k.Dropped, k.Duplicates, status)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nRefreshed in %s\n", report.Duration.Round(time.Millisecond))
}

func runGet(cmd *cobra.Command, args []string) error {
	kind, ok := types.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown kind %q (want routes, services, upstreams or consumers)", args[0])
	}
	format, _ := cmd.Flags().GetString("output")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown output format %q", format)
	}

	return withSnapshot(cmd, kind == types.KindConsumer, func(eng *engine, snap types.Snapshot) error {
		var body any
		switch kind {
		case types.KindRoute:
			body = snap.Routes
		case types.KindService:
			body = snap.Services
		case types.KindUpstream:
			body = snap.Upstreams
		case types.KindConsumer:
			body = snap.Consumers
		}

		if len(args) == 2 {
			entity, found := findEntity(snap, kind, args[1])
			if !found {
				return fmt.Errorf("%s %q not found", kind.Singular(), args[1])
			}
			body = entity
		}
		return printValue(os.Stdout, format, body)
	})
}

func findEntity(snap types.Snapshot, kind types.Kind, id string) (types.Entity, bool) {
	var items []types.Entity
	switch kind {
	case types.KindRoute:
		for _, r := range snap.Routes {
			items = append(items, r)
		}
	case types.KindService:
		for _, s := range snap.Services {
			items = append(items, s)
		}
	case types.KindUpstream:
		for _, u := range snap.Upstreams {
			items = append(items, u)
		}
	case types.KindConsumer:
		for _, c := range snap.Consumers {
			items = append(items, c)
		}
	}
	for _, item := range items {
		if item.EntityID() == id {
			return item, true
		}
	}
	return nil, false
}

func printValue(out io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func runChains(cmd *cobra.Command, args []string) error {
	return withSnapshot(cmd, true, func(eng *engine, snap types.Snapshot) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONSUMER\tROUTE\tSERVICE\tUPSTREAM\tRULE")
		for _, ch := range eng.rec.AccessChains() {
			if ch.Placeholder {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				dash(ch.Consumer), dash(ch.Route), dash(ch.Service), dash(ch.Upstream), ch.Rule)
		}
		return w.Flush()
	})
}

func runDangling(cmd *cobra.Command, args []string) error {
	return withSnapshot(cmd, false, func(eng *engine, snap types.Snapshot) error {
		refs := relations.Dangling(snap.EntitySet)
		if len(refs) == 0 {
			fmt.Println("No dangling references")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tMISSING")
		for _, ref := range refs {
			fmt.Fprintf(w, "%s/%s\t%s/%s\n", ref.FromKind.Singular(), ref.FromID, ref.ToKind.Singular(), ref.ToID)
		}
		return w.Flush()
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
