// Command wizmini-index drives the indexing and query engine from a
// terminal: activate a scope, optionally force a reindex, optionally
// run one search, and report status — the CLI-shaped external
// collaborator spec §1 places out of the core's scope, built here so
// the engine is exercisable end to end. Flags and dispatch follow the
// teacher's cmd/stupgrades idiom (a flat kong-tagged struct parsed
// with kong.Parse).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"
	_ "go.uber.org/automaxprocs"

	"github.com/wizmini/wizmini/internal/config"
	"github.com/wizmini/wizmini/internal/coordinator"
	"github.com/wizmini/wizmini/internal/logger"
	"github.com/wizmini/wizmini/internal/metrics"
	"github.com/wizmini/wizmini/internal/query"
	"github.com/wizmini/wizmini/internal/scope"
	"github.com/wizmini/wizmini/internal/search"
	"github.com/wizmini/wizmini/internal/snapshot"
)

var l = logger.DefaultLogger.NewFacility("main", "command-line driver")

type cli struct {
	Scope       string `default:"current" help:"Scope to index: \"current\" (cwd), \"all\" (every local volume), a volume letter like \"C:\", or a directory path."`
	Reindex     bool   `help:"Force a full reacquisition instead of loading a warm-start snapshot."`
	Query       string `help:"Run one search against the indexed scope and print matches."`
	Latest      string `help:"Restrict --query to entries changed within this window, e.g. \"30sec\", \"5m\", \"1h\"."`
	Debug       bool   `help:"Enable debug-level logging for the core facilities and the /debug/httpmetrics endpoint."`
	MetricsAddr string `help:"If set, serve Prometheus metrics (and, with --debug, the debug JSON endpoint) on this address." placeholder:"HOST:PORT"`
}

var debugFacilities = []string{"store", "walker", "volume", "journal", "search", "coordinator", "snapshot", "metrics", "query"}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("wizmini-index"),
		kong.Description("Keyboard-first local file finder: indexing and query engine driver."))

	if err := run(&c); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *cli) error {
	if c.Debug {
		for _, facility := range debugFacilities {
			logger.DefaultLogger.SetDebug(facility, true)
		}
		// metrics.NewServer registers /debug/httpmetrics only when
		// WIZMINI_DEBUG=1.
		os.Setenv("WIZMINI_DEBUG", "1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(defaultConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
		return fmt.Errorf("preparing snapshot directory: %w", err)
	}

	sc, err := parseScope(c.Scope)
	if err != nil {
		return err
	}

	// Root of the service tree: the Index Coordinator's change-journal
	// pump loop and, if requested, the metrics endpoint, supervised the
	// way the teacher's cmd/syncthing root services run under a single
	// suture.Supervisor.
	main := suture.New("wizmini-index", suture.Spec{PassThroughPanics: true})

	coord := coordinator.New(cfg)
	main.Add(coord)
	if c.MetricsAddr != "" {
		main.Add(metrics.NewServer(c.MetricsAddr))
	}
	supervisorDone := make(chan error, 1)
	go func() { supervisorDone <- main.Serve(ctx) }()

	if err := activate(ctx, coord, sc, c.Reindex); err != nil {
		return fmt.Errorf("activating scope %s: %w", sc.Label(), err)
	}

	if c.Query != "" {
		if err := runSearch(coord, c.Query, c.Latest); err != nil {
			return err
		}
	} else {
		printStatus(coord, sc)
	}

	return persistSnapshot(coord, sc, cfg)
}

// parseScope maps the --scope flag onto the four scope.Kind variants
// (spec §2, §4.6): "current", "all", a bare volume letter, or a path.
func parseScope(raw string) (scope.Scope, error) {
	switch raw {
	case "", "current":
		cwd, err := os.Getwd()
		if err != nil {
			return scope.Scope{}, fmt.Errorf("resolving current directory: %w", err)
		}
		return scope.NewCurrentDir(cwd), nil
	case "all":
		return scope.NewAllVolumes(), nil
	}
	if volumeLetterPattern.MatchString(raw) {
		return scope.NewVolume(raw), nil
	}
	info, err := os.Stat(raw)
	if err != nil {
		return scope.Scope{}, fmt.Errorf("--scope %q: %w", raw, err)
	}
	if !info.IsDir() {
		return scope.Scope{}, fmt.Errorf("--scope %q is not a directory", raw)
	}
	return scope.NewCustom(raw), nil
}

var volumeLetterPattern = regexp.MustCompile(`^[A-Za-z]:\\?$`)

// activate drives the Coordinator to Live, printing one status line
// per progress event the way the teacher's cmd-line tools narrate
// long-running operations to stderr, then forces a rebuild if
// --reindex was requested.
func activate(ctx context.Context, coord *coordinator.Coordinator, sc scope.Scope, reindex bool) error {
	done := make(chan error, 1)
	go func() { done <- coord.ActivateScope(sc) }()
	if err := watchProgress(ctx, coord, done); err != nil {
		return err
	}

	if reindex {
		done = make(chan error, 1)
		go func() { done <- coord.ReindexNow() }()
		return watchProgress(ctx, coord, done)
	}
	return nil
}

func watchProgress(ctx context.Context, coord *coordinator.Coordinator, done <-chan error) error {
	for {
		select {
		case ev := <-coord.Progress():
			if ev.TotalEstimate > 0 {
				fmt.Fprintf(os.Stderr, "%s: %d/%d\n", ev.Phase, ev.Scanned, ev.TotalEstimate)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %d\n", ev.Phase, ev.Scanned)
			}
		case ws := <-coord.WatchStatusEvents():
			if ws.Healthy {
				fmt.Fprintf(os.Stderr, "watch: tracking (%s)\n", ws.Mode)
			} else {
				fmt.Fprintln(os.Stderr, "watch: not tracking")
			}
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runSearch(coord *coordinator.Coordinator, queryText, latest string) error {
	var latestFilter *query.LatestFilter
	if latest != "" {
		window, err := query.ParseWindow(latest)
		if err != nil {
			return err
		}
		latestFilter = &query.LatestFilter{Window: window}
	}
	matcher, err := query.Parse(queryText, latestFilter)
	if err != nil {
		return err
	}

	worker := search.New(coord.Store(), 2000, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go worker.Serve(ctx)

	worker.Submit(search.Request{RequestID: "cli", Matcher: matcher, Sort: search.SortRelevance})

	var items []search.Item
	for {
		select {
		case chunk := <-worker.Chunks():
			items = append(items, chunk.Items...)
		case d := <-worker.Done():
			metrics.ObserveSearch(time.Duration(d.TookMs) * time.Millisecond)
			printItems(items)
			fmt.Printf("%d matches in %dms\n", d.Total, d.TookMs)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printItems(items []search.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Score < items[j].Score })
	for _, it := range items {
		fmt.Printf("%-40s %10d  %s\n", it.DisplayName, it.Size, it.FullPath)
	}
}

func printStatus(coord *coordinator.Coordinator, sc scope.Scope) {
	counts := coord.DeltaCounts()
	fmt.Printf("scope:  %s\n", sc.Label())
	fmt.Printf("memory: %d bytes\n", coord.MemoryEstimate())
	fmt.Printf("deltas: +%d ~%d -%d\n", counts.Added, counts.Updated, counts.Deleted)
}

// persistSnapshot writes the current index to disk on a clean exit so
// the next activation can warm-start instead of reacquiring (spec
// §4.2's "invoked on clean shutdown or reindex completion").
func persistSnapshot(coord *coordinator.Coordinator, sc scope.Scope, cfg config.Tuning) error {
	st := coord.Store()
	if st == nil {
		return nil
	}
	path := cfg.SnapshotDir + "/snapshots/" + sc.SnapshotName() + ".bin"
	if err := os.MkdirAll(cfg.SnapshotDir+"/snapshots", 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries := snapshot.FromStore(st.SnapshotView())
	return snapshot.Write(f, sc.Hash(), coord.LastAppliedSeq(), entries)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "wizmini.yaml"
	}
	return dir + "/wizmini/config.yaml"
}
