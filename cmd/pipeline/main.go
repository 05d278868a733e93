package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yungbote/synphys-pipeline/internal/app"
	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

type unitList []string

func (l *unitList) String() string { return strings.Join(*l, ",") }
func (l *unitList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var (
		configPath string
		stageName  string
		units      unitList
		list       bool
		summary    bool
		update     bool
		drop       bool
		dropAll    bool
		limit      int
		parallel   bool
		workers    int
		seed       int64
		onError    string
	)
	flag.StringVar(&configPath, "config", "pipeline.yaml", "pipeline config file")
	flag.StringVar(&stageName, "stage", "", "stage to operate on")
	flag.Var(&units, "unit", "work unit ID (repeatable; default derives stale+missing units)")
	flag.BoolVar(&list, "list", false, "print registered stages in dependency order")
	flag.BoolVar(&summary, "summary", false, "print the finished/invalid/ready partition for -stage")
	flag.BoolVar(&update, "update", false, "process stale or missing results for -stage")
	flag.BoolVar(&drop, "drop", false, "drop stored results for the given -unit values (and dependents)")
	flag.BoolVar(&dropAll, "drop-all", false, "drop all stored results for -stage (and dependents)")
	flag.IntVar(&limit, "limit", 0, "max units to process (randomly sampled; 0 = no limit)")
	flag.BoolVar(&parallel, "parallel", false, "run jobs across a worker pool")
	flag.IntVar(&workers, "workers", 0, "worker pool size (0 = one per CPU core)")
	flag.Int64Var(&seed, "seed", 0, "random seed for -limit sampling (0 = time-seeded)")
	flag.StringVar(&onError, "on-error", "", "continue or abort (default continue)")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	if workers == 0 {
		workers = cfg.Defaults.Workers
	}
	if onError == "" {
		onError = cfg.Defaults.OnError
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case list:
		os.Exit(runList(application))
	case summary:
		os.Exit(runSummary(ctx, application, stageName))
	case drop:
		os.Exit(runDrop(ctx, application, stageName, units))
	case dropAll:
		os.Exit(runDropAll(ctx, application, stageName))
	case update:
		opts := pipeline.UpdateOptions{
			Limit:    limit,
			Parallel: parallel,
			Workers:  workers,
			OnError:  pipeline.ErrorPolicy(onError),
		}
		if len(units) > 0 {
			opts.Units = toUnits(units)
		}
		if seed != 0 {
			opts.Rand = rand.New(rand.NewSource(seed))
		}
		os.Exit(runUpdate(ctx, application, stageName, opts))
	default:
		fmt.Println("nothing to do: pass one of -list, -summary, -update, -drop, -drop-all")
		os.Exit(2)
	}
}

func runList(a *app.App) int {
	stages, err := a.Registry.AllStages()
	if err != nil {
		fmt.Printf("stage graph: %v\n", err)
		return 1
	}
	for _, st := range stages {
		deps := st.Dependencies()
		if len(deps) == 0 {
			fmt.Println(st.Name())
			continue
		}
		fmt.Printf("%s  (after: %s)\n", st.Name(), strings.Join(deps, ", "))
	}
	return 0
}

func runSummary(ctx context.Context, a *app.App, stageName string) int {
	if stageName == "" {
		fmt.Println("missing -stage")
		return 2
	}
	s, err := a.Scheduler.JobSummary(ctx, stageName)
	if err != nil {
		fmt.Printf("job summary: %v\n", err)
		return 1
	}
	fmt.Printf("finished: %d  %v\n", len(s.Finished), s.Finished)
	fmt.Printf("invalid:  %d  %v\n", len(s.Invalid), s.Invalid)
	fmt.Printf("ready:    %d  %v\n", len(s.Ready), s.Ready)
	return 0
}

func runUpdate(ctx context.Context, a *app.App, stageName string, opts pipeline.UpdateOptions) int {
	if stageName == "" {
		fmt.Println("missing -stage")
		return 2
	}
	outcomes, err := a.Scheduler.Update(ctx, stageName, opts)
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
			fmt.Printf("FAILED  %s/%s: %v\n", o.Stage, o.Unit, o.Err)
		}
	}
	fmt.Printf("%d jobs, %d ok, %d failed\n", len(outcomes), len(outcomes)-failed, failed)
	if err != nil {
		fmt.Printf("update aborted: %v\n", err)
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func runDrop(ctx context.Context, a *app.App, stageName string, units unitList) int {
	if stageName == "" {
		fmt.Println("missing -stage")
		return 2
	}
	if len(units) == 0 {
		fmt.Println("missing -unit (use -drop-all to drop everything)")
		return 2
	}
	if err := a.Scheduler.Drop(ctx, stageName, toUnits(units)); err != nil {
		fmt.Printf("drop: %v\n", err)
		return 1
	}
	return 0
}

func runDropAll(ctx context.Context, a *app.App, stageName string) int {
	if stageName == "" {
		fmt.Println("missing -stage")
		return 2
	}
	if err := a.Scheduler.DropAll(ctx, stageName); err != nil {
		fmt.Printf("drop all: %v\n", err)
		return 1
	}
	return 0
}

func toUnits(ids []string) []pipeline.Unit {
	out := make([]pipeline.Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, pipeline.Unit(id))
	}
	return out
}
