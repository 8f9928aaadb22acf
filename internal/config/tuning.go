package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for every threshold the
// bridge pipeline uses. All fields are optional; the Get* methods fall back
// to the built-in defaults, so partial files are safe.
type TuningConfig struct {
	// Status zones (metres), set <= / clear >=
	ApproachSetM      *float64 `json:"approach_set_m,omitempty"`
	ApproachClearM    *float64 `json:"approach_clear_m,omitempty"`
	WaitingSetM       *float64 `json:"waiting_set_m,omitempty"`
	WaitingClearM     *float64 `json:"waiting_clear_m,omitempty"`
	UnderBridgeSetM   *float64 `json:"under_bridge_set_m,omitempty"`
	UnderBridgeClearM *float64 `json:"under_bridge_clear_m,omitempty"`

	// Status kinematics
	WaitingMaxSpeedKn   *float64 `json:"waiting_max_speed_kn,omitempty"`
	WaitingMinDwell     *string  `json:"waiting_min_dwell,omitempty"` // duration string like "2m"
	ApproachMinSpeedKn  *float64 `json:"approach_min_speed_kn,omitempty"`
	HeadingToleranceDeg *float64 `json:"heading_tolerance_deg,omitempty"`
	PassedHold          *string  `json:"passed_hold,omitempty"`

	// Stabilizer
	StabilityWindow        *string  `json:"stability_window,omitempty"`
	StabilityMaxEntries    *int     `json:"stability_max_entries,omitempty"`
	FlickerWindow          *int     `json:"flicker_window,omitempty"`
	GPSJumpHold            *string  `json:"gps_jump_hold,omitempty"`
	UncertainConfirmations *int     `json:"uncertain_confirmations,omitempty"`
	StabilityIdlePurge     *string  `json:"stability_idle_purge,omitempty"`
	ConfidenceGPSJump      *float64 `json:"confidence_gps_jump,omitempty"`
	ConfidenceUncertain    *float64 `json:"confidence_uncertain,omitempty"`
	ConfidenceLowSpeed     *float64 `json:"confidence_low_speed,omitempty"`
	ConfidenceFar          *float64 `json:"confidence_far,omitempty"`
	ConfidenceFloor        *float64 `json:"confidence_floor,omitempty"`
	LowConfidenceSpeedKn   *float64 `json:"low_confidence_speed_kn,omitempty"`
	FarDistanceM           *float64 `json:"far_distance_m,omitempty"`

	// Proximity and staleness
	ProtectionZoneM    *float64 `json:"protection_zone_m,omitempty"`
	MidZoneM           *float64 `json:"mid_zone_m,omitempty"`
	NearTimeout        *string  `json:"near_timeout,omitempty"`
	MidTimeout         *string  `json:"mid_timeout,omitempty"`
	FarTimeout         *string  `json:"far_timeout,omitempty"`
	WaitingTimeoutMin  *string  `json:"waiting_timeout_min,omitempty"`
	FastSpeedKn        *float64 `json:"fast_speed_kn,omitempty"`
	FastTimeoutMin     *string  `json:"fast_timeout_min,omitempty"`
	PassedTimeoutMin   *string  `json:"passed_timeout_min,omitempty"`
	MovementThresholdM *float64 `json:"movement_threshold_m,omitempty"`

	// Position quality
	GPSJumpM               *float64 `json:"gps_jump_m,omitempty"`
	GPSJumpSpeedFactor     *float64 `json:"gps_jump_speed_factor,omitempty"`
	UncertainDisplacementM *float64 `json:"uncertain_displacement_m,omitempty"`
	UncertainSpeedFactor   *float64 `json:"uncertain_speed_factor,omitempty"`
	MaxReportAhead         *string  `json:"max_report_ahead,omitempty"`

	// Passage detection and latch
	PassageMaxClosestM      *float64 `json:"passage_max_closest_m,omitempty"`
	DepartureMarginM        *float64 `json:"departure_margin_m,omitempty"`
	DepartureAbsoluteM      *float64 `json:"departure_absolute_m,omitempty"`
	DepartureTurnDeg        *float64 `json:"departure_turn_deg,omitempty"`
	PassageMinSpeedKn       *float64 `json:"passage_min_speed_kn,omitempty"`
	PassageMinDisplacementM *float64 `json:"passage_min_displacement_m,omitempty"`
	LineCrossingProximityM  *float64 `json:"line_crossing_proximity_m,omitempty"`
	LatchLifetime           *string  `json:"latch_lifetime,omitempty"`
	LatchClearJumpM         *float64 `json:"latch_clear_jump_m,omitempty"`

	// Routing and target assignment
	TargetReassignDistanceM *float64 `json:"target_reassign_distance_m,omitempty"`
	DirectionMinSpeedKn     *float64 `json:"direction_min_speed_kn,omitempty"`
	RecentPassagesMax       *int     `json:"recent_passages_max,omitempty"`
	SpeedSamplesMax         *int     `json:"speed_samples_max,omitempty"`
	ETAMinSpeedKn           *float64 `json:"eta_min_speed_kn,omitempty"`
	NearZoneEventDistanceM  *float64 `json:"near_zone_event_distance_m,omitempty"`

	// Route order validator
	RouteHistoryMax         *int     `json:"route_history_max,omitempty"`
	RouteDuplicateWindow    *string  `json:"route_duplicate_window,omitempty"`
	RouteMaxForwardSkip     *int     `json:"route_max_forward_skip,omitempty"`
	RouteLargeGap           *string  `json:"route_large_gap,omitempty"`
	RouteHistoryMaxAge      *string  `json:"route_history_max_age,omitempty"`
	NorthboundCourseFromDeg *float64 `json:"northbound_course_from_deg,omitempty"`
	NorthboundCourseToDeg   *float64 `json:"northbound_course_to_deg,omitempty"`
	SouthboundCourseFromDeg *float64 `json:"southbound_course_from_deg,omitempty"`
	SouthboundCourseToDeg   *float64 `json:"southbound_course_to_deg,omitempty"`

	// Background sweeps
	LatchSweepInterval    *string `json:"latch_sweep_interval,omitempty"`
	RoutePruneInterval    *string `json:"route_prune_interval,omitempty"`
	StaleSweepInterval    *string `json:"stale_sweep_interval,omitempty"`
	TextDebounce          *string `json:"text_debounce,omitempty"`
	FeedSilenceNotServing *string `json:"feed_silence_not_serving,omitempty"`

	Bridges []BridgeConfig `json:"bridges,omitempty"`
}

// BridgeConfig describes one bridge of the canal topology. When the tuning
// file carries a bridges array it replaces the built-in table.
type BridgeConfig struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	RadiusM        float64 `json:"radius_m"`
	AxisBearingDeg float64 `json:"axis_bearing_deg"`
	Role           string  `json:"role"` // "openable" or "intermediate"
	NeverOpens     bool    `json:"never_opens,omitempty"`
	Sequence       int     `json:"sequence"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults. It needs no file and is what tests use.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		ApproachSetM:            ptrFloat64(e.GetApproachSetM()),
		ApproachClearM:          ptrFloat64(e.GetApproachClearM()),
		WaitingSetM:             ptrFloat64(e.GetWaitingSetM()),
		WaitingClearM:           ptrFloat64(e.GetWaitingClearM()),
		UnderBridgeSetM:         ptrFloat64(e.GetUnderBridgeSetM()),
		UnderBridgeClearM:       ptrFloat64(e.GetUnderBridgeClearM()),
		WaitingMaxSpeedKn:       ptrFloat64(e.GetWaitingMaxSpeedKn()),
		WaitingMinDwell:         ptrString(e.GetWaitingMinDwell().String()),
		ApproachMinSpeedKn:      ptrFloat64(e.GetApproachMinSpeedKn()),
		HeadingToleranceDeg:     ptrFloat64(e.GetHeadingToleranceDeg()),
		PassedHold:              ptrString(e.GetPassedHold().String()),
		StabilityWindow:         ptrString(e.GetStabilityWindow().String()),
		StabilityMaxEntries:     ptrInt(e.GetStabilityMaxEntries()),
		FlickerWindow:           ptrInt(e.GetFlickerWindow()),
		GPSJumpHold:             ptrString(e.GetGPSJumpHold().String()),
		UncertainConfirmations:  ptrInt(e.GetUncertainConfirmations()),
		StabilityIdlePurge:      ptrString(e.GetStabilityIdlePurge().String()),
		ConfidenceGPSJump:       ptrFloat64(e.GetConfidenceGPSJump()),
		ConfidenceUncertain:     ptrFloat64(e.GetConfidenceUncertain()),
		ConfidenceLowSpeed:      ptrFloat64(e.GetConfidenceLowSpeed()),
		ConfidenceFar:           ptrFloat64(e.GetConfidenceFar()),
		ConfidenceFloor:         ptrFloat64(e.GetConfidenceFloor()),
		LowConfidenceSpeedKn:    ptrFloat64(e.GetLowConfidenceSpeedKn()),
		FarDistanceM:            ptrFloat64(e.GetFarDistanceM()),
		ProtectionZoneM:         ptrFloat64(e.GetProtectionZoneM()),
		MidZoneM:                ptrFloat64(e.GetMidZoneM()),
		NearTimeout:             ptrString(e.GetNearTimeout().String()),
		MidTimeout:              ptrString(e.GetMidTimeout().String()),
		FarTimeout:              ptrString(e.GetFarTimeout().String()),
		WaitingTimeoutMin:       ptrString(e.GetWaitingTimeoutMin().String()),
		FastSpeedKn:             ptrFloat64(e.GetFastSpeedKn()),
		FastTimeoutMin:          ptrString(e.GetFastTimeoutMin().String()),
		PassedTimeoutMin:        ptrString(e.GetPassedTimeoutMin().String()),
		MovementThresholdM:      ptrFloat64(e.GetMovementThresholdM()),
		GPSJumpM:                ptrFloat64(e.GetGPSJumpM()),
		GPSJumpSpeedFactor:      ptrFloat64(e.GetGPSJumpSpeedFactor()),
		UncertainDisplacementM:  ptrFloat64(e.GetUncertainDisplacementM()),
		UncertainSpeedFactor:    ptrFloat64(e.GetUncertainSpeedFactor()),
		MaxReportAhead:          ptrString(e.GetMaxReportAhead().String()),
		PassageMaxClosestM:      ptrFloat64(e.GetPassageMaxClosestM()),
		DepartureMarginM:        ptrFloat64(e.GetDepartureMarginM()),
		DepartureAbsoluteM:      ptrFloat64(e.GetDepartureAbsoluteM()),
		DepartureTurnDeg:        ptrFloat64(e.GetDepartureTurnDeg()),
		PassageMinSpeedKn:       ptrFloat64(e.GetPassageMinSpeedKn()),
		PassageMinDisplacementM: ptrFloat64(e.GetPassageMinDisplacementM()),
		LineCrossingProximityM:  ptrFloat64(e.GetLineCrossingProximityM()),
		LatchLifetime:           ptrString(e.GetLatchLifetime().String()),
		LatchClearJumpM:         ptrFloat64(e.GetLatchClearJumpM()),
		TargetReassignDistanceM: ptrFloat64(e.GetTargetReassignDistanceM()),
		DirectionMinSpeedKn:     ptrFloat64(e.GetDirectionMinSpeedKn()),
		RecentPassagesMax:       ptrInt(e.GetRecentPassagesMax()),
		SpeedSamplesMax:         ptrInt(e.GetSpeedSamplesMax()),
		ETAMinSpeedKn:           ptrFloat64(e.GetETAMinSpeedKn()),
		NearZoneEventDistanceM:  ptrFloat64(e.GetNearZoneEventDistanceM()),
		RouteHistoryMax:         ptrInt(e.GetRouteHistoryMax()),
		RouteDuplicateWindow:    ptrString(e.GetRouteDuplicateWindow().String()),
		RouteMaxForwardSkip:     ptrInt(e.GetRouteMaxForwardSkip()),
		RouteLargeGap:           ptrString(e.GetRouteLargeGap().String()),
		RouteHistoryMaxAge:      ptrString(e.GetRouteHistoryMaxAge().String()),
		NorthboundCourseFromDeg: ptrFloat64(e.GetNorthboundCourseFromDeg()),
		NorthboundCourseToDeg:   ptrFloat64(e.GetNorthboundCourseToDeg()),
		SouthboundCourseFromDeg: ptrFloat64(e.GetSouthboundCourseFromDeg()),
		SouthboundCourseToDeg:   ptrFloat64(e.GetSouthboundCourseToDeg()),
		LatchSweepInterval:      ptrString(e.GetLatchSweepInterval().String()),
		RoutePruneInterval:      ptrString(e.GetRoutePruneInterval().String()),
		StaleSweepInterval:      ptrString(e.GetStaleSweepInterval().String()),
		TextDebounce:            ptrString(e.GetTextDebounce().String()),
		FeedSilenceNotServing:   ptrString(e.GetFeedSilenceNotServing().String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/trace-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	pairs := []struct {
		name       string
		set, clear float64
	}{
		{"approach", c.GetApproachSetM(), c.GetApproachClearM()},
		{"waiting", c.GetWaitingSetM(), c.GetWaitingClearM()},
		{"under_bridge", c.GetUnderBridgeSetM(), c.GetUnderBridgeClearM()},
	}
	for _, p := range pairs {
		if p.set <= 0 {
			return fmt.Errorf("%s_set_m must be positive, got %f", p.name, p.set)
		}
		if p.clear < p.set {
			return fmt.Errorf("%s_clear_m (%f) must not be below %s_set_m (%f)", p.name, p.clear, p.name, p.set)
		}
	}
	if c.GetUnderBridgeClearM() > c.GetWaitingSetM() || c.GetWaitingClearM() > c.GetApproachSetM() {
		return fmt.Errorf("status zones must nest: under_bridge < waiting < approach")
	}

	durations := map[string]*string{
		"waiting_min_dwell":        c.WaitingMinDwell,
		"passed_hold":              c.PassedHold,
		"stability_window":         c.StabilityWindow,
		"gps_jump_hold":            c.GPSJumpHold,
		"stability_idle_purge":     c.StabilityIdlePurge,
		"near_timeout":             c.NearTimeout,
		"mid_timeout":              c.MidTimeout,
		"far_timeout":              c.FarTimeout,
		"waiting_timeout_min":      c.WaitingTimeoutMin,
		"fast_timeout_min":         c.FastTimeoutMin,
		"passed_timeout_min":       c.PassedTimeoutMin,
		"latch_lifetime":           c.LatchLifetime,
		"route_duplicate_window":   c.RouteDuplicateWindow,
		"route_large_gap":          c.RouteLargeGap,
		"route_history_max_age":    c.RouteHistoryMaxAge,
		"latch_sweep_interval":     c.LatchSweepInterval,
		"route_prune_interval":     c.RoutePruneInterval,
		"stale_sweep_interval":     c.StaleSweepInterval,
		"text_debounce":            c.TextDebounce,
		"feed_silence_not_serving": c.FeedSilenceNotServing,
		"max_report_ahead":         c.MaxReportAhead,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	for name, v := range map[string]float64{
		"confidence_gps_jump":  c.GetConfidenceGPSJump(),
		"confidence_uncertain": c.GetConfidenceUncertain(),
		"confidence_low_speed": c.GetConfidenceLowSpeed(),
		"confidence_far":       c.GetConfidenceFar(),
		"confidence_floor":     c.GetConfidenceFloor(),
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
		}
	}

	if c.GetRouteHistoryMax() < 1 {
		return fmt.Errorf("route_history_max must be at least 1, got %d", c.GetRouteHistoryMax())
	}
	if c.GetStabilityMaxEntries() < c.GetFlickerWindow() {
		return fmt.Errorf("stability_max_entries (%d) must cover flicker_window (%d)",
			c.GetStabilityMaxEntries(), c.GetFlickerWindow())
	}

	seen := make(map[string]bool, len(c.Bridges))
	for i, b := range c.Bridges {
		if b.ID == "" {
			return fmt.Errorf("bridges[%d]: id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("bridges[%d]: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = true
		if b.Role != "openable" && b.Role != "intermediate" {
			return fmt.Errorf("bridges[%d]: role must be openable or intermediate, got %q", i, b.Role)
		}
	}

	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func (c *TuningConfig) GetApproachSetM() float64      { return getFloat(c.ApproachSetM, 450) }
func (c *TuningConfig) GetApproachClearM() float64    { return getFloat(c.ApproachClearM, 550) }
func (c *TuningConfig) GetWaitingSetM() float64       { return getFloat(c.WaitingSetM, 280) }
func (c *TuningConfig) GetWaitingClearM() float64     { return getFloat(c.WaitingClearM, 320) }
func (c *TuningConfig) GetUnderBridgeSetM() float64   { return getFloat(c.UnderBridgeSetM, 50) }
func (c *TuningConfig) GetUnderBridgeClearM() float64 { return getFloat(c.UnderBridgeClearM, 70) }

func (c *TuningConfig) GetWaitingMaxSpeedKn() float64 { return getFloat(c.WaitingMaxSpeedKn, 0.20) }
func (c *TuningConfig) GetWaitingMinDwell() time.Duration {
	return getDuration(c.WaitingMinDwell, 2*time.Minute)
}
func (c *TuningConfig) GetApproachMinSpeedKn() float64  { return getFloat(c.ApproachMinSpeedKn, 0.5) }
func (c *TuningConfig) GetHeadingToleranceDeg() float64 { return getFloat(c.HeadingToleranceDeg, 45) }
func (c *TuningConfig) GetPassedHold() time.Duration {
	return getDuration(c.PassedHold, 65*time.Second)
}

func (c *TuningConfig) GetStabilityWindow() time.Duration {
	return getDuration(c.StabilityWindow, 5*time.Minute)
}
func (c *TuningConfig) GetStabilityMaxEntries() int { return getInt(c.StabilityMaxEntries, 5) }
func (c *TuningConfig) GetFlickerWindow() int       { return getInt(c.FlickerWindow, 3) }
func (c *TuningConfig) GetGPSJumpHold() time.Duration {
	return getDuration(c.GPSJumpHold, 30*time.Second)
}
func (c *TuningConfig) GetUncertainConfirmations() int { return getInt(c.UncertainConfirmations, 2) }
func (c *TuningConfig) GetStabilityIdlePurge() time.Duration {
	return getDuration(c.StabilityIdlePurge, time.Hour)
}
func (c *TuningConfig) GetConfidenceGPSJump() float64    { return getFloat(c.ConfidenceGPSJump, 0.3) }
func (c *TuningConfig) GetConfidenceUncertain() float64  { return getFloat(c.ConfidenceUncertain, 0.7) }
func (c *TuningConfig) GetConfidenceLowSpeed() float64   { return getFloat(c.ConfidenceLowSpeed, 0.8) }
func (c *TuningConfig) GetConfidenceFar() float64        { return getFloat(c.ConfidenceFar, 0.9) }
func (c *TuningConfig) GetConfidenceFloor() float64      { return getFloat(c.ConfidenceFloor, 0.1) }
func (c *TuningConfig) GetLowConfidenceSpeedKn() float64 { return getFloat(c.LowConfidenceSpeedKn, 0.5) }
func (c *TuningConfig) GetFarDistanceM() float64         { return getFloat(c.FarDistanceM, 1000) }

func (c *TuningConfig) GetProtectionZoneM() float64 { return getFloat(c.ProtectionZoneM, 300) }
func (c *TuningConfig) GetMidZoneM() float64        { return getFloat(c.MidZoneM, 600) }
func (c *TuningConfig) GetNearTimeout() time.Duration {
	return getDuration(c.NearTimeout, 20*time.Minute)
}
func (c *TuningConfig) GetMidTimeout() time.Duration {
	return getDuration(c.MidTimeout, 10*time.Minute)
}
func (c *TuningConfig) GetFarTimeout() time.Duration {
	return getDuration(c.FarTimeout, 2*time.Minute)
}
func (c *TuningConfig) GetWaitingTimeoutMin() time.Duration {
	return getDuration(c.WaitingTimeoutMin, 20*time.Minute)
}
func (c *TuningConfig) GetFastSpeedKn() float64 { return getFloat(c.FastSpeedKn, 4.0) }
func (c *TuningConfig) GetFastTimeoutMin() time.Duration {
	return getDuration(c.FastTimeoutMin, 5*time.Minute)
}
func (c *TuningConfig) GetPassedTimeoutMin() time.Duration {
	return getDuration(c.PassedTimeoutMin, 65*time.Second)
}
func (c *TuningConfig) GetMovementThresholdM() float64 { return getFloat(c.MovementThresholdM, 5) }

func (c *TuningConfig) GetGPSJumpM() float64           { return getFloat(c.GPSJumpM, 500) }
func (c *TuningConfig) GetGPSJumpSpeedFactor() float64 { return getFloat(c.GPSJumpSpeedFactor, 1.5) }
func (c *TuningConfig) GetUncertainDisplacementM() float64 {
	return getFloat(c.UncertainDisplacementM, 100)
}
func (c *TuningConfig) GetUncertainSpeedFactor() float64 {
	return getFloat(c.UncertainSpeedFactor, 2.0)
}

// GetMaxReportAhead is how far past its arrival a report may be stamped
// before it is rejected.
func (c *TuningConfig) GetMaxReportAhead() time.Duration {
	return getDuration(c.MaxReportAhead, 2*time.Minute)
}

func (c *TuningConfig) GetPassageMaxClosestM() float64 { return getFloat(c.PassageMaxClosestM, 150) }
func (c *TuningConfig) GetDepartureMarginM() float64   { return getFloat(c.DepartureMarginM, 20) }
func (c *TuningConfig) GetDepartureAbsoluteM() float64 { return getFloat(c.DepartureAbsoluteM, 100) }
func (c *TuningConfig) GetDepartureTurnDeg() float64   { return getFloat(c.DepartureTurnDeg, 90) }
func (c *TuningConfig) GetPassageMinSpeedKn() float64  { return getFloat(c.PassageMinSpeedKn, 0.5) }
func (c *TuningConfig) GetPassageMinDisplacementM() float64 {
	return getFloat(c.PassageMinDisplacementM, 10)
}
func (c *TuningConfig) GetLineCrossingProximityM() float64 {
	return getFloat(c.LineCrossingProximityM, 150)
}
func (c *TuningConfig) GetLatchLifetime() time.Duration {
	return getDuration(c.LatchLifetime, 10*time.Minute)
}
func (c *TuningConfig) GetLatchClearJumpM() float64 { return getFloat(c.LatchClearJumpM, 1000) }
func (c *TuningConfig) GetTargetReassignDistanceM() float64 {
	return getFloat(c.TargetReassignDistanceM, 550)
}
func (c *TuningConfig) GetDirectionMinSpeedKn() float64 { return getFloat(c.DirectionMinSpeedKn, 0.5) }
func (c *TuningConfig) GetRecentPassagesMax() int       { return getInt(c.RecentPassagesMax, 5) }
func (c *TuningConfig) GetSpeedSamplesMax() int         { return getInt(c.SpeedSamplesMax, 5) }
func (c *TuningConfig) GetETAMinSpeedKn() float64       { return getFloat(c.ETAMinSpeedKn, 0.5) }
func (c *TuningConfig) GetNearZoneEventDistanceM() float64 {
	return getFloat(c.NearZoneEventDistanceM, 300)
}

func (c *TuningConfig) GetRouteHistoryMax() int { return getInt(c.RouteHistoryMax, 10) }
func (c *TuningConfig) GetRouteDuplicateWindow() time.Duration {
	return getDuration(c.RouteDuplicateWindow, 60*time.Second)
}
func (c *TuningConfig) GetRouteMaxForwardSkip() int { return getInt(c.RouteMaxForwardSkip, 2) }
func (c *TuningConfig) GetRouteLargeGap() time.Duration {
	return getDuration(c.RouteLargeGap, 30*time.Minute)
}
func (c *TuningConfig) GetRouteHistoryMaxAge() time.Duration {
	return getDuration(c.RouteHistoryMaxAge, 2*time.Hour)
}
func (c *TuningConfig) GetNorthboundCourseFromDeg() float64 {
	return getFloat(c.NorthboundCourseFromDeg, 315)
}
func (c *TuningConfig) GetNorthboundCourseToDeg() float64 { return getFloat(c.NorthboundCourseToDeg, 45) }
func (c *TuningConfig) GetSouthboundCourseFromDeg() float64 {
	return getFloat(c.SouthboundCourseFromDeg, 135)
}
func (c *TuningConfig) GetSouthboundCourseToDeg() float64 {
	return getFloat(c.SouthboundCourseToDeg, 225)
}

func (c *TuningConfig) GetLatchSweepInterval() time.Duration {
	return getDuration(c.LatchSweepInterval, 60*time.Second)
}
func (c *TuningConfig) GetRoutePruneInterval() time.Duration {
	return getDuration(c.RoutePruneInterval, 5*time.Minute)
}
func (c *TuningConfig) GetStaleSweepInterval() time.Duration {
	return getDuration(c.StaleSweepInterval, 60*time.Second)
}
func (c *TuningConfig) GetTextDebounce() time.Duration {
	return getDuration(c.TextDebounce, 100*time.Millisecond)
}

// GetFeedSilenceNotServing is how long the feed may stay silent before the
// health service reports NOT_SERVING.
func (c *TuningConfig) GetFeedSilenceNotServing() time.Duration {
	return getDuration(c.FeedSilenceNotServing, 5*time.Minute)
}
