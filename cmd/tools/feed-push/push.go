package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/banshee-data/canal.report/internal/httputil"
)

type positionsResponse struct {
	Accepted int `json:"accepted"`
	Rejected []struct {
		Index    int    `json:"index"`
		VesselID string `json:"vessel_id"`
		Error    string `json:"error"`
	} `json:"rejected"`
}

// PushStats totals the server's answers.
type PushStats struct {
	Batches  int
	Accepted int
	Rejected int
	Skipped  int
}

// Pusher posts position lines to a canal-report server in batches.
type Pusher struct {
	Client    httputil.HTTPClient
	URL       string
	BatchSize int
}

// Push reads lines until the channel closes or ctx is done. Lines that are
// not JSON objects are skipped; the rest are sent as JSON arrays of up to
// BatchSize reports.
func (p *Pusher) Push(ctx context.Context, lines <-chan string) (PushStats, error) {
	var stats PushStats
	size := p.BatchSize
	if size <= 0 {
		size = 50
	}
	batch := make([]json.RawMessage, 0, size)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var resp positionsResponse
		if err := httputil.PostJSON(ctx, p.Client, p.URL, batch, &resp); err != nil {
			return fmt.Errorf("batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Accepted += resp.Accepted
		stats.Rejected += len(resp.Rejected)
		for _, r := range resp.Rejected {
			log.Printf("rejected %s: %s", r.VesselID, r.Error)
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return stats, flush()
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "{") || !json.Valid([]byte(line)) {
				stats.Skipped++
				continue
			}
			batch = append(batch, json.RawMessage(line))
			if len(batch) >= size {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
}
