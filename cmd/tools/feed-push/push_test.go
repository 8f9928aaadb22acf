package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canal.report/internal/httputil"
)

func feedLines(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func TestPushBatches(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"accepted":2,"rejected":[]}`).
		AddResponse(http.StatusOK, `{"accepted":0,"rejected":[{"index":0,"vessel_id":"3","error":"invalid position report: lat 95 outside [-90, 90]"}]}`)
	p := &Pusher{Client: client, URL: "http://canal/api/positions", BatchSize: 2}

	stats, err := p.Push(context.Background(), feedLines(
		`{"mmsi":1,"lat":58.28,"lon":12.28}`,
		"$GPGGA,not-json",
		`{"mmsi":2,"lat":58.29,"lon":12.29}`,
		`{"mmsi":3,"lat":95,"lon":12.29}`,
		`{"broken`,
	))
	require.NoError(t, err)
	assert.Equal(t, PushStats{Batches: 2, Accepted: 2, Rejected: 1, Skipped: 2}, stats)

	require.Equal(t, 2, client.RequestCount())
	assert.Equal(t, http.MethodPost, client.Requests[0].Method)
	assert.Equal(t, "/api/positions", client.Requests[0].URL.Path)

	var first []map[string]any
	require.NoError(t, json.Unmarshal([]byte(client.Bodies[0]), &first))
	assert.Len(t, first, 2)
	var second []map[string]any
	require.NoError(t, json.Unmarshal([]byte(client.Bodies[1]), &second))
	assert.Len(t, second, 1)
}

func TestPushStopsOnServerError(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient().AddResponse(http.StatusServiceUnavailable, `{"error":"engine inbox full"}`)
	p := &Pusher{Client: client, URL: "http://canal/api/positions", BatchSize: 1}

	_, err := p.Push(context.Background(), feedLines(`{"mmsi":1,"lat":58.28,"lon":12.28}`, `{"mmsi":2,"lat":58.28,"lon":12.28}`))
	require.Error(t, err)
	var se *httputil.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 1, client.RequestCount())
}

func TestPushEmptyInputSendsNothing(t *testing.T) {
	t.Parallel()
	client := httputil.NewMockHTTPClient()
	p := &Pusher{Client: client, URL: "http://canal/api/positions"}

	stats, err := p.Push(context.Background(), feedLines())
	require.NoError(t, err)
	assert.Zero(t, stats.Batches)
	assert.Zero(t, client.RequestCount())
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "track.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	out := make(chan string, 4)
	require.NoError(t, readFile(context.Background(), path, out))
	var got []string
	for l := range out {
		got = append(got, l)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
