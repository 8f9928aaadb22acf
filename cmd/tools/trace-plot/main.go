// Command trace-plot replays a file of position lines through the tracking
// engine and writes one PNG per vessel showing its distance to each bridge
// over time, with confirmed passages marked.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/security"
	"github.com/banshee-data/canal.report/internal/timeutil"
)

func main() {
	in := flag.String("in", "", "File of JSON position lines")
	outDir := flag.String("out", ".", "Output directory for PNG files")
	tuningFile := flag.String("tuning", "", "Tuning JSON file (empty for built-in defaults)")
	only := flag.String("vessel", "", "Only plot this vessel id")
	step := flag.Duration("step", 10*time.Second, "Spacing of lines without a timestamp")
	verbose := flag.Bool("v", false, "Log engine decisions")
	flag.Parse()

	if *in == "" {
		log.Fatal("-in is required")
	}
	if !*verbose {
		monitoring.SetLogger(nil)
	}
	if err := security.ValidateOutputPath(*outDir); err != nil {
		log.Fatalf("invalid output directory: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	tuning := config.DefaultTuningConfig()
	if *tuningFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*tuningFile); err != nil {
			log.Fatalf("load tuning: %v", err)
		}
	}
	registry, err := bridges.RegistryFromTuning(tuning)
	if err != nil {
		log.Fatalf("bridge table: %v", err)
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	start := time.Now().UTC().Truncate(time.Second)
	clock := timeutil.NewMockClock(start)
	eng := engine.New(engine.ConfigFromTuning(tuning), registry, clock)

	traces, stats, err := Replay(f, eng, clock, start, *step)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	log.Printf("lines=%d reports=%d skipped=%d rejected=%d vessels=%d",
		stats.Lines, stats.Reports, stats.Skipped, stats.Rejected, len(traces))

	written := 0
	for _, id := range SortedIDs(traces) {
		if *only != "" && id != *only {
			continue
		}
		path, err := security.VesselFile(*outDir, "trace", id, "png")
		if err != nil {
			log.Printf("skip vessel %s: %v", id, err)
			continue
		}
		if err := RenderTrace(traces[id], registry, path); err != nil {
			log.Printf("plot vessel %s: %v", id, err)
			continue
		}
		fmt.Printf("%s: %d samples, %d passages -> %s\n", id, len(traces[id].Samples), len(traces[id].Passages), path)
		written++
	}
	if written == 0 {
		os.Exit(1)
	}
}
