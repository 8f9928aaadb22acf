package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/vessel"
)

func init() {
	monitoring.SetLogger(nil)
}

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// ----------------------------------------------------------------------------
// Options
// ----------------------------------------------------------------------------

func TestPortOptionsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even parity", PortOptions{BaudRate: 4800, Parity: "even"}, PortOptions{BaudRate: 4800, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialModeStopBits(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, 38400, mode.BaudRate)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

// ----------------------------------------------------------------------------
// Parsing
// ----------------------------------------------------------------------------

func TestParseReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		wantID  string
		want    vessel.Report
		wantErr error
		anyErr  bool
	}{
		{
			name:   "mmsi number",
			line:   `{"mmsi":265123000,"lat":58.28,"lon":12.28,"sog":4.5,"cog":25,"timestamp":"2026-06-01T12:00:05Z"}`,
			wantID: "265123000",
			want:   vessel.Report{Lat: 58.28, Lon: 12.28, SOG: 4.5, COG: 25, Timestamp: t0.Add(5 * time.Second)},
		},
		{
			name:   "mmsi string without timestamp",
			line:   `{"mmsi":"265123001","lat":58.29,"lon":12.29,"sog":0,"cog":0}`,
			wantID: "265123001",
			want:   vessel.Report{Lat: 58.29, Lon: 12.29, Timestamp: t0},
		},
		{
			name:   "plain id",
			line:   `  {"id":"test-boat","lat":58.0,"lon":12.0,"sog":1,"cog":180}  `,
			wantID: "test-boat",
			want:   vessel.Report{Lat: 58.0, Lon: 12.0, SOG: 1, COG: 180, Timestamp: t0},
		},
		{name: "nmea sentence", line: "!AIVDM,1,1,,A,13aEOK?P00PD2wVMdLDRhgvL289?,0*26", wantErr: ErrNotPosition},
		{name: "status object", line: `{"receiver":"ok"}`, wantErr: ErrNotPosition},
		{name: "broken json", line: `{"mmsi":`, anyErr: true},
		{name: "bad mmsi", line: `{"mmsi":"abc","lat":1,"lon":1}`, anyErr: true},
		{name: "no id", line: `{"lat":1,"lon":1}`, anyErr: true},
		{name: "bad timestamp", line: `{"id":"x","lat":1,"lon":1,"sog":0,"cog":0,"timestamp":"yesterday"}`, anyErr: true},
		{name: "missing speed", line: `{"mmsi":1,"lat":58.28,"lon":12.28,"cog":25}`, wantErr: vessel.ErrInvalidReport},
		{name: "missing course", line: `{"mmsi":1,"lat":58.28,"lon":12.28,"sog":4}`, wantErr: vessel.ErrInvalidReport},
		{name: "null course", line: `{"mmsi":1,"lat":58.28,"lon":12.28,"sog":4,"cog":null}`, wantErr: vessel.ErrInvalidReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, r, err := ParseReport(tt.line, t0)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrNotPosition)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
				assert.True(t, tt.want.Timestamp.Equal(r.Timestamp))
				r.Timestamp = tt.want.Timestamp
				assert.Equal(t, tt.want, r)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// LineMux
// ----------------------------------------------------------------------------

func TestLineMuxFansOutLines(t *testing.T) {
	t.Parallel()

	port := NewTestablePort("one\ntwo\nthree\n")
	m := NewLineMux(port)
	idA, a := m.Subscribe()
	_, b := m.Subscribe()

	require.NoError(t, m.Monitor(context.Background()))
	assert.Equal(t, uint64(3), m.Lines())
	assert.False(t, m.LastLine().IsZero())

	for _, ch := range []chan string{a, b} {
		assert.Equal(t, "one", <-ch)
		assert.Equal(t, "two", <-ch)
		assert.Equal(t, "three", <-ch)
	}

	m.Unsubscribe(idA)
	_, open := <-a
	assert.False(t, open, "unsubscribed channel should be closed")

	require.NoError(t, m.Close())
	assert.True(t, port.IsClosed())
	_, open = <-b
	assert.False(t, open, "Close should close remaining subscribers")
}

func TestLineMuxReadError(t *testing.T) {
	t.Parallel()

	port := NewTestablePort("partial\n")
	port.ReadError = errors.New("device unplugged")
	m := NewLineMux(port)

	err := m.Monitor(context.Background())
	assert.EqualError(t, err, "device unplugged")
	assert.Equal(t, uint64(1), m.Lines())
}

func TestLineMuxStopsOnCancel(t *testing.T) {
	t.Parallel()

	port := NewPipePort()
	m := NewLineMux(port)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, m.Close())
}

func TestLineMuxSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for i := 0; i < 200; i++ {
		buf.WriteString("line\n")
	}
	m := NewLineMux(&TestablePort{ReadBuffer: &buf})
	_, ch := m.Subscribe()

	require.NoError(t, m.Monitor(context.Background()))
	assert.Equal(t, uint64(200), m.Lines())
	assert.Len(t, ch, 64)
}

func TestFeedAdminRoute(t *testing.T) {
	t.Parallel()

	m := NewLineMux(NewTestablePort("x\n"))
	require.NoError(t, m.Monitor(context.Background()))

	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/feed", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// tsweb may refuse non-tailnet callers; the route must exist either way.
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	if rec.Code == http.StatusOK {
		assert.Contains(t, rec.Body.String(), "lines: 1")
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	d := NewDisabled()
	_, ch := d.Subscribe()
	assert.True(t, d.LastLine().IsZero())

	require.NoError(t, d.Close())
	_, open := <-ch
	assert.False(t, open)

	_, late := d.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribing after Close returns a closed channel")
	assert.NoError(t, d.Close())
}

// ----------------------------------------------------------------------------
// Sources
// ----------------------------------------------------------------------------

func udpFrame(t *testing.T, dstPort uint16, payload string) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 1, 10},
		DstIP:    net.IP{192, 168, 1, 20},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestCaptureReplay(t *testing.T) {
	t.Parallel()

	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	frames := []struct {
		port    uint16
		payload string
	}{
		{10110, `{"mmsi":265123000,"lat":58.28,"lon":12.28,"sog":4,"cog":25}`},
		{5353, "not ais"},
		{10110, "a\nb\n"},
	}
	for i, f := range frames {
		data := udpFrame(t, f.port, f.payload)
		ci := gopacket.CaptureInfo{
			Timestamp:     t0.Add(time.Duration(i) * time.Second),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}

	port, err := NewCapturePort(&capture, 10110)
	require.NoError(t, err)
	m := NewLineMux(port)
	_, ch := m.Subscribe()

	require.NoError(t, m.Monitor(context.Background()))
	assert.Equal(t, 2, port.Packets)

	var got []string
	for len(ch) > 0 {
		got = append(got, <-ch)
	}
	assert.Equal(t, []string{frames[0].payload, "a", "b"}, got)
}

func TestCaptureRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewCapturePort(bytes.NewBufferString("definitely not pcap"), 0)
	assert.Error(t, err)
}

func TestUDPSource(t *testing.T) {
	t.Parallel()

	m, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	_, ch := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Monitor(ctx)

	conn, err := net.Dial("udp", m.port.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"id":"udp-boat","lat":58,"lon":12}`))
	require.NoError(t, err)

	select {
	case line := <-ch:
		assert.Equal(t, `{"id":"udp-boat","lat":58,"lon":12}`, line)
	case <-time.After(2 * time.Second):
		t.Fatal("no line received over UDP")
	}
	cancel()
	m.Close()
}

// ----------------------------------------------------------------------------
// Pump
// ----------------------------------------------------------------------------

type fakeSource struct{ lines chan string }

func newFakeSource(lines ...string) *fakeSource {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return &fakeSource{lines: ch}
}

func (f *fakeSource) Subscribe() (string, chan string)  { return "fake", f.lines }
func (f *fakeSource) Unsubscribe(string)                {}
func (f *fakeSource) Monitor(ctx context.Context) error { return nil }
func (f *fakeSource) Close() error                      { return nil }
func (f *fakeSource) LastLine() time.Time               { return time.Time{} }
func (f *fakeSource) AttachAdminRoutes(*http.ServeMux)  {}

type recorder struct {
	mu   sync.Mutex
	ids  []string
	fail map[string]error
}

func (r *recorder) Submit(_ context.Context, id string, _ vessel.Report, wait bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[id]; err != nil {
		return err
	}
	r.ids = append(r.ids, id)
	return nil
}

func TestPump(t *testing.T) {
	t.Parallel()

	src := newFakeSource(
		`{"mmsi":1,"lat":58,"lon":12,"sog":3,"cog":25}`,
		"!AIVDM,1,1,,A,13aEOK?P00PD2wVMdLDRhgvL289?,0*26",
		`{"mmsi":"x","lat":58,"lon":12,"sog":3,"cog":25}`,
		`{"mmsi":2,"lat":58,"lon":12,"sog":3,"cog":25}`,
		`{"mmsi":3,"lat":58,"lon":12,"sog":3,"cog":25}`,
		`{"mmsi":4,"lat":58,"lon":12}`,
	)
	dst := &recorder{fail: map[string]error{"3": io.ErrShortBuffer}}

	stats, err := Pump(context.Background(), src, dst, func() time.Time { return t0 })
	require.NoError(t, err)
	assert.Equal(t, PumpStats{Submitted: 2, Skipped: 1, Invalid: 2, Dropped: 1}, stats)
	assert.Equal(t, []string{"1", "2"}, dst.ids)
}

func TestPumpAttachedBeforeMonitor(t *testing.T) {
	t.Parallel()

	m := NewLineMux(NewTestablePort(
		`{"mmsi":1,"lat":58,"lon":12,"sog":3,"cog":25}` + "\n" +
			`{"mmsi":2,"lat":58,"lon":12,"sog":3,"cog":25}` + "\n"))
	pump := Attach(m)

	// The monitor drains the whole port before the pump runs; the lines
	// wait in the attached subscription.
	require.NoError(t, m.Monitor(context.Background()))
	require.NoError(t, m.Close())

	dst := &recorder{}
	stats, err := pump.Run(context.Background(), dst, func() time.Time { return t0 })
	require.NoError(t, err)
	assert.Equal(t, PumpStats{Submitted: 2}, stats)
	assert.Equal(t, []string{"1", "2"}, dst.ids)
}

func TestPumpStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Pump(ctx, &fakeSource{lines: make(chan string)}, &recorder{}, time.Now)
	assert.ErrorIs(t, err, context.Canceled)
}
