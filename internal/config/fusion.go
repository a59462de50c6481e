package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
// This is the single source of truth for all default fusion parameters.
const DefaultConfigPath = "config/fusion.defaults.json"

// FusionConfig represents the root configuration for the fusion engine.
// Fields omitted from the JSON file retain their defaults, so partial
// configs are safe.
type FusionConfig struct {
	// Signal windowing params
	SampleRate *int `json:"sample_rate,omitempty"`
	WindowMS   *int `json:"window_ms,omitempty"`
	HopMS      *int `json:"hop_ms,omitempty"`

	// Calibration params
	WarmupDuration      *string  `json:"warmup_duration,omitempty"`      // duration string like "500ms"
	CalibrationDuration *string  `json:"calibration_duration,omitempty"` // duration string like "3.5s"
	ActiveVelocityDPS   *float64 `json:"active_velocity_dps,omitempty"`

	// Pairing params
	MasterSide *string `json:"master_side,omitempty"` // "L" or "R"
	PairLagMS  *int    `json:"pair_lag_ms,omitempty"`

	// Buffering
	BufferSeconds *int `json:"buffer_seconds,omitempty"`

	// Paths
	LogDir    *string `json:"log_dir,omitempty"`
	ModelsDir *string `json:"models_dir,omitempty"`

	// Device discovery
	PortNameL        *string `json:"port_name_l,omitempty"`
	PortNameR        *string `json:"port_name_r,omitempty"`
	DiscoveryRetries *int    `json:"discovery_retries,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFusionConfig returns a FusionConfig with all fields set to nil.
// Use LoadFusionConfig to load actual values from a defaults file.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *FusionConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}
	if c.WindowMS != nil && *c.WindowMS <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", *c.WindowMS)
	}
	if c.HopMS != nil && *c.HopMS <= 0 {
		return fmt.Errorf("hop_ms must be positive, got %d", *c.HopMS)
	}

	// The hop must not outrun the window or cycles would skip samples.
	if c.GetHopMS() > c.GetWindowMS() {
		return fmt.Errorf("hop_ms %d exceeds window_ms %d", c.GetHopMS(), c.GetWindowMS())
	}

	if c.MasterSide != nil && *c.MasterSide != "L" && *c.MasterSide != "R" {
		return fmt.Errorf("master_side must be L or R, got %q", *c.MasterSide)
	}
	if c.PairLagMS != nil && *c.PairLagMS <= 0 {
		return fmt.Errorf("pair_lag_ms must be positive, got %d", *c.PairLagMS)
	}
	if c.ActiveVelocityDPS != nil && *c.ActiveVelocityDPS < 0 {
		return fmt.Errorf("active_velocity_dps must be non-negative, got %f", *c.ActiveVelocityDPS)
	}
	if c.BufferSeconds != nil && *c.BufferSeconds <= 0 {
		return fmt.Errorf("buffer_seconds must be positive, got %d", *c.BufferSeconds)
	}

	// Validate WarmupDuration can be parsed if set
	if c.WarmupDuration != nil && *c.WarmupDuration != "" {
		if _, err := time.ParseDuration(*c.WarmupDuration); err != nil {
			return fmt.Errorf("invalid warmup_duration '%s': %w", *c.WarmupDuration, err)
		}
	}

	// Validate CalibrationDuration can be parsed if set
	if c.CalibrationDuration != nil && *c.CalibrationDuration != "" {
		if _, err := time.ParseDuration(*c.CalibrationDuration); err != nil {
			return fmt.Errorf("invalid calibration_duration '%s': %w", *c.CalibrationDuration, err)
		}
	}

	return nil
}

// GetSampleRate returns the sample_rate value or the default.
func (c *FusionConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return 500
	}
	return *c.SampleRate
}

// GetWindowMS returns the window_ms value or the default.
func (c *FusionConfig) GetWindowMS() int {
	if c.WindowMS == nil {
		return 250
	}
	return *c.WindowMS
}

// GetHopMS returns the hop_ms value or the default.
func (c *FusionConfig) GetHopMS() int {
	if c.HopMS == nil {
		return 125
	}
	return *c.HopMS
}

// WindowSamples returns the analysis window length in samples.
func (c *FusionConfig) WindowSamples() int {
	return c.GetSampleRate() * c.GetWindowMS() / 1000
}

// HopInterval returns the wall-clock period of one hop tick.
func (c *FusionConfig) HopInterval() time.Duration {
	return time.Duration(c.GetHopMS()) * time.Millisecond
}

// GetWarmupDuration parses and returns the WarmupDuration as a time.Duration.
func (c *FusionConfig) GetWarmupDuration() time.Duration {
	if c.WarmupDuration == nil || *c.WarmupDuration == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.WarmupDuration)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetCalibrationDuration parses and returns the CalibrationDuration as a
// time.Duration. It is measured from session start, so it includes the
// warmup phase.
func (c *FusionConfig) GetCalibrationDuration() time.Duration {
	if c.CalibrationDuration == nil || *c.CalibrationDuration == "" {
		return 3500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.CalibrationDuration)
	if err != nil {
		return 3500 * time.Millisecond // default on parse error
	}
	return d
}

// GetActiveVelocityDPS returns the active_velocity_dps value or the default.
func (c *FusionConfig) GetActiveVelocityDPS() float64 {
	if c.ActiveVelocityDPS == nil {
		return 15.0
	}
	return *c.ActiveVelocityDPS
}

// GetMasterSide returns the master_side value or the default.
func (c *FusionConfig) GetMasterSide() string {
	if c.MasterSide == nil {
		return "L"
	}
	return *c.MasterSide
}

// GetPairLagMS returns the pair_lag_ms value or the default.
func (c *FusionConfig) GetPairLagMS() int {
	if c.PairLagMS == nil {
		return 350
	}
	return *c.PairLagMS
}

// PairTolerance returns the pairing lag limit as a time.Duration.
func (c *FusionConfig) PairTolerance() time.Duration {
	return time.Duration(c.GetPairLagMS()) * time.Millisecond
}

// GetBufferSeconds returns the buffer_seconds value or the default.
func (c *FusionConfig) GetBufferSeconds() int {
	if c.BufferSeconds == nil {
		return 10
	}
	return *c.BufferSeconds
}

// GetLogDir returns the log_dir value or the default.
func (c *FusionConfig) GetLogDir() string {
	if c.LogDir == nil || *c.LogDir == "" {
		return "data/logs"
	}
	return *c.LogDir
}

// GetModelsDir returns the models_dir value or the default.
func (c *FusionConfig) GetModelsDir() string {
	if c.ModelsDir == nil || *c.ModelsDir == "" {
		return "models"
	}
	return *c.ModelsDir
}

// GetPortNameL returns the port_name_l value or the default.
func (c *FusionConfig) GetPortNameL() string {
	if c.PortNameL == nil || *c.PortNameL == "" {
		return "NANO33_L"
	}
	return *c.PortNameL
}

// GetPortNameR returns the port_name_r value or the default.
func (c *FusionConfig) GetPortNameR() string {
	if c.PortNameR == nil || *c.PortNameR == "" {
		return "NANO33_R"
	}
	return *c.PortNameR
}

// GetDiscoveryRetries returns the discovery_retries value or the default.
func (c *FusionConfig) GetDiscoveryRetries() int {
	if c.DiscoveryRetries == nil {
		return 8
	}
	return *c.DiscoveryRetries
}
