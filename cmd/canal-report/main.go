// Command canal-report tracks vessels on the canal from a position feed and
// serves the bridge text, vessel list and passage journal over HTTP.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/canal.report/internal/api"
	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/db"
	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/feed"
	"github.com/banshee-data/canal.report/internal/timeutil"
	"github.com/banshee-data/canal.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty to disable)")
	serialPath  = flag.String("serial", "", "AIS receiver serial device, e.g. /dev/ttyUSB0")
	baudRate    = flag.Int("baud", 38400, "Serial baud rate")
	udpAddr     = flag.String("udp", "", "Listen for position lines on this UDP address, e.g. :10110")
	pcapFile    = flag.String("pcap", "", "Replay position lines from a pcap capture")
	pcapPort    = flag.Int("pcap-port", 0, "Only replay UDP packets to this port (0 for all)")
	devMode     = flag.Bool("dev", false, "Replay the dev fixture track instead of a real feed")
	devFile     = flag.String("dev-file", "config/dev-fixtures.jsonl", "Fixture lines for -dev")
	devInterval = flag.Duration("dev-interval", 2*time.Second, "Delay between fixture lines in -dev")
	tuningFile  = flag.String("tuning", config.DefaultConfigPath, "Tuning JSON file (empty for built-in defaults)")
	dbPath      = flag.String("db", "canal_report.db", "Passage journal SQLite file (empty to disable)")
	retention   = flag.Duration("retention", 90*24*time.Hour, "Journal retention")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		log.Fatalf("unknown command %q", flag.Arg(0))
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("canal-report: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: canal-report [flags]\n       canal-report migrate <command>\n\nFlags:\n")
	flag.PrintDefaults()
}

func loadTuning() (*config.TuningConfig, error) {
	if *tuningFile == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(*tuningFile)
}

func openFeed(ctx context.Context, g *errgroup.Group) (feed.Interface, error) {
	switch {
	case *devMode:
		pipe := feed.NewPipePort()
		g.Go(func() error { return replayFixtures(ctx, pipe, *devFile, *devInterval) })
		return feed.NewLineMux(pipe), nil
	case *serialPath != "":
		return feed.OpenSerial(*serialPath, feed.PortOptions{BaudRate: *baudRate})
	case *udpAddr != "":
		return feed.ListenUDP(*udpAddr)
	case *pcapFile != "":
		return feed.OpenCapture(*pcapFile, *pcapPort)
	}
	log.Print("no feed configured; accepting positions over HTTP only")
	return feed.NewDisabled(), nil
}

// replayFixtures writes the fixture lines to the pipe in a loop. Lines
// carry no timestamp so each is stamped on arrival.
func replayFixtures(ctx context.Context, pipe *feed.PipePort, path string, interval time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open fixtures file: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	go func() {
		<-ctx.Done()
		pipe.Close()
	}()
	for {
		scan := bufio.NewScanner(bytes.NewReader(data))
		for scan.Scan() {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if _, err := fmt.Fprintln(pipe.Writer, scan.Text()); err != nil {
				return nil
			}
		}
	}
}

func run(ctx context.Context) error {
	tuning, err := loadTuning()
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	registry, err := bridges.RegistryFromTuning(tuning)
	if err != nil {
		return fmt.Errorf("bridge table: %w", err)
	}

	clock := timeutil.RealClock{}
	eng := engine.New(engine.ConfigFromTuning(tuning), registry, clock)

	var journal *db.DB
	if *dbPath != "" {
		journal, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer journal.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	src, err := openFeed(ctx, g)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer src.Close()

	srv := api.NewServer(eng, journal, clock)
	health := api.NewFeedHealth(clock, tuning.GetFeedSilenceNotServing(), src.LastLine, srv.LastPosition)

	g.Go(func() error { return eng.Run(ctx) })

	// Attach before the monitor goroutine starts; lines read earlier are lost.
	pump := feed.Attach(src)
	g.Go(func() error {
		stats, err := pump.Run(ctx, eng, clock.Now)
		log.Printf("feed pump stopped: submitted=%d skipped=%d invalid=%d dropped=%d",
			stats.Submitted, stats.Skipped, stats.Invalid, stats.Dropped)
		return err
	})
	g.Go(func() error { return srv.Hub().Run(ctx, eng) })
	if journal != nil {
		worker := db.NewJournalWorker(journal)
		worker.Retention = *retention
		g.Go(func() error { return worker.Run(ctx, eng) })
	}
	g.Go(func() error {
		err := src.Monitor(ctx)
		log.Print("monitor routine terminated")
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feed monitor: %w", err)
		}
		return nil
	})

	g.Go(func() error { return health.Run(ctx, 15*time.Second) })
	if *grpcListen != "" {
		g.Go(func() error { return health.ServeGRPC(ctx, *grpcListen) })
	}

	g.Go(func() error {
		mux := srv.ServeMux()
		mux.Handle("/healthz", health)
		src.AttachAdminRoutes(mux)
		if journal != nil {
			journal.AttachAdminRoutes(mux)
		}
		return serveHTTP(ctx, &http.Server{Addr: *listen, Handler: api.LoggingMiddleware(mux)})
	})

	log.Printf("canal-report %s listening on %s", version.Version, *listen)
	return g.Wait()
}

func serveHTTP(ctx context.Context, server *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}
