// Command vajrapulse runs one load-generation pass against a registered
// Task using the selected load pattern, per spec.md §6's CLI surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"time"

	"github.com/99souls/vajrapulse"
	"github.com/99souls/vajrapulse/adaptive"
	"github.com/99souls/vajrapulse/engine"
	"github.com/99souls/vajrapulse/health"
	"github.com/99souls/vajrapulse/metrics"
	"github.com/99souls/vajrapulse/pattern"
)

const (
	exitOK           = 0
	exitArgError     = 1
	exitRuntimeError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vajrapulse", flag.ContinueOnError)
	var (
		taskName       string
		mode           string
		tps            float64
		durationStr    string
		rampDurStr     string
		snapshotStr    string
		maxInFlight    int
		workers        int
		metricsAddr    string
		metricsBackend string
		healthAddr     string
	)
	fs.StringVar(&taskName, "task", "sleep", "registered task name to run")
	fs.StringVar(&mode, "mode", "static", "load pattern mode: static|ramp|ramp-sustain|adaptive")
	fs.Float64Var(&tps, "tps", 10, "target transactions per second (static/ramp target, adaptive initial)")
	fs.StringVar(&durationStr, "duration", "30s", "run duration, e.g. 500ms, 30s, 5m, 1h (bare integer = seconds)")
	fs.StringVar(&rampDurStr, "ramp-duration", "10s", "ramp phase duration for ramp/ramp-sustain modes")
	fs.StringVar(&snapshotStr, "snapshot-interval", "5s", "interval between progress snapshots printed to stderr (0 disables)")
	fs.IntVar(&maxInFlight, "max-in-flight", 1000, "cooperative worker pool cap (ignored for bounded-policy tasks)")
	fs.IntVar(&workers, "workers", 0, "bounded worker pool size (0 = 1; ignored for cooperative-policy tasks)")
	fs.StringVar(&metricsAddr, "metrics", "", "expose metrics on address (e.g. :9090); requires -metrics-backend != noop")
	fs.StringVar(&metricsBackend, "metrics-backend", "noop", "metrics backend: noop|prom|otel")
	fs.StringVar(&healthAddr, "health", "", "expose health endpoint on address (e.g. :9091)")

	if err := fs.Parse(args); err != nil {
		return exitArgError
	}

	duration, err := parseDuration(durationStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -duration: %v\n", err)
		return exitArgError
	}
	rampDuration, err := parseDuration(rampDurStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -ramp-duration: %v\n", err)
		return exitArgError
	}
	snapshotInterval, err := parseDuration(snapshotStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -snapshot-interval: %v\n", err)
		return exitArgError
	}

	tk, err := vajrapulse.NewTask(taskName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v (available: %v)\n", err, vajrapulse.RegisteredTasks())
		return exitArgError
	}

	durationMS := uint64(duration.Milliseconds())
	rampMS := uint64(rampDuration.Milliseconds())

	var p pattern.Pattern
	var adaptivePattern *adaptive.Pattern
	switch mode {
	case "static":
		p, err = pattern.NewConstant(tps, durationMS)
	case "ramp":
		p, err = pattern.NewLinearRamp(tps, durationMS)
	case "ramp-sustain":
		p, err = pattern.NewRampThenHold(tps, rampMS, durationMS)
	case "adaptive":
		acfg := adaptive.DefaultConfig()
		acfg.InitialTPS = tps
		if aerr := acfg.Validate(); aerr != nil {
			err = aerr
			break
		}
		adaptivePattern, err = adaptive.New(acfg)
		p = adaptivePattern
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q: must be static|ramp|ramp-sustain|adaptive\n", mode)
		return exitArgError
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pattern configuration: %v\n", err)
		return exitArgError
	}

	var promProvider *metrics.PrometheusProvider
	var metricsProvider metrics.Provider
	switch metricsBackend {
	case "", "noop":
		metricsProvider = metrics.NewNoopProvider()
	case "prom":
		promProvider = metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
		metricsProvider = promProvider
	case "otel":
		metricsProvider = metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "vajrapulse"})
	default:
		fmt.Fprintf(os.Stderr, "unknown -metrics-backend %q: must be noop|prom|otel\n", metricsBackend)
		return exitArgError
	}

	ecfg := engine.DefaultConfig()
	ecfg.MaxInFlight = maxInFlight
	ecfg.Workers = workers
	ecfg.MetricsProvider = metricsProvider

	eng, err := engine.New(tk, p, ecfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create engine: %v\n", err)
		return exitArgError
	}

	evaluator := health.NewEvaluator(2 * time.Second)
	if adaptivePattern != nil {
		evaluator.Register(health.AdaptivePhaseProbe("adaptive", adaptivePattern, 0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; requesting graceful shutdown")
		eng.Stop()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(exitRuntimeError)
	}()

	if metricsAddr != "" {
		if promProvider == nil {
			fmt.Fprintf(os.Stderr, "-metrics requires -metrics-backend=prom (got %q)\n", metricsBackend)
			return exitArgError
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promProvider.MetricsHandler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			log.Printf("metrics listening on %s", metricsAddr)
			_ = srv.ListenAndServe()
		}()
	}

	if healthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			hs := evaluator.Evaluate(r.Context())
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(hs)
		})
		srv := &http.Server{Addr: healthAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			log.Printf("health endpoint listening on %s", healthAddr)
			_ = srv.ListenAndServe()
		}()
	}

	var ticker *time.Ticker
	stopPrinting := make(chan struct{})
	if snapshotInterval > 0 {
		ticker = time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		go printSnapshots(eng, evaluator, ticker, stopPrinting)
	}

	runErr := eng.Run(ctx)
	close(stopPrinting)

	if closeErr := eng.Close(); closeErr != nil {
		log.Printf("close engine: %v", closeErr)
	}

	printSnapshotOnce(eng, evaluator, "FINAL")

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", runErr)
		return exitRuntimeError
	}
	return exitOK
}

func printSnapshots(eng *engine.Engine, evaluator *health.Evaluator, ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			printSnapshotOnce(eng, evaluator, "SNAPSHOT")
		case <-stop:
			return
		}
	}
}

func printSnapshotOnce(eng *engine.Engine, evaluator *health.Evaluator, label string) {
	snap := eng.Snapshot()
	hs := evaluator.Evaluate(context.Background())
	out := struct {
		Snapshot engine.Snapshot `json:"snapshot"`
		Health   health.Snapshot `json:"health"`
	}{Snapshot: snap, Health: hs}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Printf("encode %s: %v", label, err)
		return
	}
	fmt.Fprintf(os.Stderr, "\n=== %s %s ===\n%s\n", label, time.Now().Format(time.RFC3339), string(b))
}

var durationPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h)?$`)

// parseDuration implements spec.md §6's duration grammar:
// <integer>(ms|s|m|h), bare integer means seconds.
func parseDuration(s string) (time.Duration, error) {
	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("malformed duration %q: expected <integer>(ms|s|m|h)", s)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed duration %q: %w", s, err)
	}
	unit := matches[2]
	switch unit {
	case "", "s":
		return time.Duration(n) * time.Second, nil
	case "ms":
		return time.Duration(n) * time.Millisecond, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
}
