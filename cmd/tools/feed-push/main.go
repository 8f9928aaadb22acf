// Command feed-push sends recorded position lines, from a JSON lines file
// or a pcap capture, to a running canal-report server.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/canal.report/internal/feed"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "canal-report base URL")
	in := flag.String("in", "", "JSON lines file")
	pcapFile := flag.String("pcap", "", "pcap capture to replay instead of -in")
	pcapPort := flag.Int("pcap-port", 0, "Only replay UDP packets to this port (0 for all)")
	batch := flag.Int("batch", 50, "Reports per request")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()

	if (*in == "") == (*pcapFile == "") {
		log.Fatal("exactly one of -in or -pcap is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := make(chan string, 256)
	errc := make(chan error, 1)
	if *in != "" {
		go func() { errc <- readFile(ctx, *in, lines) }()
	} else {
		go func() { errc <- readCapture(ctx, *pcapFile, *pcapPort, lines) }()
	}

	p := &Pusher{
		Client:    &http.Client{Timeout: *timeout},
		URL:       strings.TrimRight(*server, "/") + "/api/positions",
		BatchSize: *batch,
	}
	stats, err := p.Push(ctx, lines)
	log.Printf("batches=%d accepted=%d rejected=%d skipped=%d",
		stats.Batches, stats.Accepted, stats.Rejected, stats.Skipped)
	if err != nil {
		log.Fatalf("push: %v", err)
	}
	if err := <-errc; err != nil {
		log.Fatalf("read: %v", err)
	}
}

func readFile(ctx context.Context, path string, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		close(out)
		return err
	}
	defer f.Close()
	return scanLines(ctx, f, out)
}

// scanLines sends every line of r to out and closes out.
func scanLines(ctx context.Context, r io.Reader, out chan<- string) error {
	defer close(out)
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		select {
		case out <- scan.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scan.Err()
}

// readCapture scans the capture port directly rather than through a
// LineMux, which would drop lines whenever a POST is slower than the file.
func readCapture(ctx context.Context, path string, port int, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		close(out)
		return err
	}
	capture, err := feed.NewCapturePort(f, port)
	if err != nil {
		f.Close()
		close(out)
		return err
	}
	defer capture.Close()
	return scanLines(ctx, capture, out)
}
