package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.ApproachSetM == nil || *cfg.ApproachSetM != 450 {
		t.Errorf("Expected ApproachSetM 450, got %v", cfg.ApproachSetM)
	}
	if cfg.UnderBridgeClearM == nil || *cfg.UnderBridgeClearM != 70 {
		t.Errorf("Expected UnderBridgeClearM 70, got %v", cfg.UnderBridgeClearM)
	}
	if cfg.LatchLifetime == nil || *cfg.LatchLifetime != "10m0s" {
		t.Errorf("Expected LatchLifetime '10m0s', got %v", cfg.LatchLifetime)
	}

	assert.Equal(t, 2*time.Minute, cfg.GetWaitingMinDwell())
	assert.Equal(t, 65*time.Second, cfg.GetPassedHold())
	assert.Equal(t, 10, cfg.GetRouteHistoryMax())
	assert.Equal(t, 100*time.Millisecond, cfg.GetTextDebounce())
	assert.Equal(t, 2*time.Minute, cfg.GetMaxReportAhead())
	require.NoError(t, cfg.Validate())
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "approach_set_m": 400,
  "approach_clear_m": 500,
  "latch_lifetime": "5m",
  "route_max_forward_skip": 1,
  "bridges": [
    {"id": "a", "name": "A", "lat": 58.0, "lon": 12.0, "radius_m": 300, "role": "openable", "sequence": 0}
  ]
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 400.0, cfg.GetApproachSetM())
	assert.Equal(t, 500.0, cfg.GetApproachClearM())
	assert.Equal(t, 5*time.Minute, cfg.GetLatchLifetime())
	assert.Equal(t, 1, cfg.GetRouteMaxForwardSkip())
	// Omitted fields keep their defaults.
	assert.Equal(t, 280.0, cfg.GetWaitingSetM())
	require.Len(t, cfg.Bridges, 1)
	assert.Equal(t, "openable", cfg.Bridges[0].Role)
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	assert.Error(t, err)
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	_, err := LoadTuningConfig("tuning.yaml")
	assert.ErrorContains(t, err, ".json extension")
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"approach_set_m": "near"`), 0644))

	_, err := LoadTuningConfig(configPath)
	assert.Error(t, err)
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, 450.0, cfg.GetApproachSetM())
	assert.Len(t, cfg.Bridges, 5, "defaults file carries the canal topology")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name:    "clear below set",
			cfg:     &TuningConfig{UnderBridgeSetM: ptrFloat64(60), UnderBridgeClearM: ptrFloat64(55)},
			wantErr: true,
		},
		{
			name:    "zones do not nest",
			cfg:     &TuningConfig{UnderBridgeClearM: ptrFloat64(300)},
			wantErr: true,
		},
		{
			name:    "invalid latch lifetime",
			cfg:     &TuningConfig{LatchLifetime: ptrString("soon")},
			wantErr: true,
		},
		{
			name:    "negative duration",
			cfg:     &TuningConfig{PassedHold: ptrString("-5s")},
			wantErr: true,
		},
		{
			name:    "confidence above one",
			cfg:     &TuningConfig{ConfidenceGPSJump: ptrFloat64(1.3)},
			wantErr: true,
		},
		{
			name:    "flicker window larger than history",
			cfg:     &TuningConfig{FlickerWindow: ptrInt(6)},
			wantErr: true,
		},
		{
			name: "duplicate bridge id",
			cfg: &TuningConfig{Bridges: []BridgeConfig{
				{ID: "a", Role: "openable"},
				{ID: "a", Role: "intermediate"},
			}},
			wantErr: true,
		},
		{
			name:    "unknown bridge role",
			cfg:     &TuningConfig{Bridges: []BridgeConfig{{ID: "a", Role: "swing"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDurationFallsBackOnParseError(t *testing.T) {
	cfg := &TuningConfig{GPSJumpHold: ptrString("invalid")}
	assert.Equal(t, 30*time.Second, cfg.GetGPSJumpHold())

	cfg = &TuningConfig{GPSJumpHold: ptrString("45s")}
	assert.Equal(t, 45*time.Second, cfg.GetGPSJumpHold())
}
