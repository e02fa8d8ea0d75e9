package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tfengine/internal/config"
	"tfengine/internal/metrics"
	"tfengine/internal/metrics/prompush"
	"tfengine/internal/pipeline"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "tfengine/internal/storage/all"
)

// main is the entry point for the transformation binary. It loads the
// pipeline config, optionally initializes a metrics backend, and executes
// the fit and apply passes.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (e.g. pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		// Decide Pushgateway URL: flag → env → default.
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := p.Job
		if jobName == "" {
			jobName = "tfengine_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		mode := "fit+apply"
		if p.Transform.ApplyOnly {
			mode = "apply-only"
		}
		log.Printf("pipeline: source=%s mode=%s metadata=%s partitions=%d",
			p.Source.Kind, mode, p.Transform.MetadataPath, p.Runtime.Partitions)
	}

	r := pipeline.New(p)
	r.Verbose = *verbose
	sum, err := r.Run(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("%s: fit=%d applied=%d na=%d columns=%d->%d metadata=%s",
		sum.Job, sum.RowsFit, sum.RowsApplied, sum.NAValues,
		sum.NumColumns, sum.NumColumnsTransformed, sum.MetadataDir)
	if sum.RowsInserted > 0 {
		log.Printf("%s: table rows inserted=%d", sum.Job, sum.RowsInserted)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
