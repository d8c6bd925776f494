// Package config loads the options table from spec.md §6 as a validated
// Settings struct. Grounded on the teacher's internal/config/app.go nested
// struct + yaml tag + env-var-override pattern: YAML defines the baseline,
// a declared set of environment variables can override individual scalar
// fields, and the loader returns already-validated Go values so the core
// packages never touch a file or os.Getenv themselves (SPEC_FULL §2.1).
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// VenueConfig declares one venue entry (spec.md §6 venues[*]).
type VenueConfig struct {
	ID     string `yaml:"id"`
	Anchor bool   `yaml:"anchor"`
}

// FreshnessConfig declares the UI tier thresholds (spec.md §4.2).
type FreshnessConfig struct {
	GreenMs int64 `yaml:"green_ms"`
	AmberMs int64 `yaml:"amber_ms"`
}

// SpreadConfig declares classification thresholds (spec.md §4.4).
type SpreadConfig struct {
	ElevatedPct  string `yaml:"elevated_pct"`
	ArbitragePct string `yaml:"arbitrage_pct"`
	ArbDwellMs   int64  `yaml:"arb_dwell_ms"`
}

// PollConfig declares the Polling Controller's policy (spec.md §4.5).
type PollConfig struct {
	IntervalMs        int64   `yaml:"interval_ms"`
	MaxFailuresWindow int     `yaml:"max_failures_window"`
	BackoffMs         int64   `yaml:"backoff_ms"`
	FailureWindowMs   int64   `yaml:"failure_window_ms"`
	RetryBudget       int     `yaml:"retry_budget"`
	RESTRatePerSecond float64 `yaml:"rest_rate_per_second"`
}

// ReconnectConfig declares the Stream Multiplexer's backoff policy (spec.md §4.3).
type ReconnectConfig struct {
	BaseMs      int64 `yaml:"base_ms"`
	CapMs       int64 `yaml:"cap_ms"`
	StabilityMs int64 `yaml:"stability_ms"`
}

// TimeoutsConfig declares per-operation network timeouts (spec.md §5).
type TimeoutsConfig struct {
	HandshakeMs int64 `yaml:"handshake_ms"`
	HeartbeatMs int64 `yaml:"heartbeat_ms"`
	RESTMs      int64 `yaml:"rest_ms"`
}

// FanoutConfig declares the bus's per-subscriber channel bound (spec.md §4.6).
type FanoutConfig struct {
	ChannelCapacity int `yaml:"channel_capacity"`
}

// TelemetryConfig declares the OTel exporter's settings (SPEC_FULL §2.1/2.2).
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// File is the on-disk YAML document shape.
type File struct {
	Venues           []VenueConfig     `yaml:"venues"`
	Universe         []string          `yaml:"universe"`
	QuoteEquivalence map[string]string `yaml:"quote_equivalence"`
	StaleAfterMs     int64             `yaml:"stale_after_ms"`
	Freshness        FreshnessConfig   `yaml:"freshness"`
	Spread           SpreadConfig      `yaml:"spread"`
	Poll             PollConfig        `yaml:"poll"`
	Reconnect        ReconnectConfig   `yaml:"reconnect"`
	Timeouts         TimeoutsConfig    `yaml:"timeouts"`
	Fanout           FanoutConfig      `yaml:"fanout"`
	Telemetry        TelemetryConfig   `yaml:"telemetry"`
	HealthAddr       string            `yaml:"health_addr"`
}

// Settings is the fully validated, Duration-typed configuration the core
// packages are constructed from.
type Settings struct {
	Venues           []VenueConfig
	Universe         []schema.CanonicalId
	QuoteEquivalence map[string]string
	StaleAfter       time.Duration

	FreshnessGreen time.Duration
	FreshnessAmber time.Duration

	ElevatedPct  string
	ArbitragePct string
	ArbDwell     time.Duration

	PollInterval      time.Duration
	PollMaxFailures   int
	PollBackoff       time.Duration
	PollFailureWindow time.Duration
	PollRetryBudget   int
	PollRESTRate      float64

	ReconnectBase      time.Duration
	ReconnectCap       time.Duration
	ReconnectStability time.Duration

	HandshakeTimeout time.Duration
	HeartbeatTimeout time.Duration
	RESTTimeout      time.Duration

	FanoutChannelCapacity int

	Telemetry  TelemetryConfig
	HealthAddr string

	AnchorVenue schema.VenueId
}

// Load reads path, applies environment overrides, and validates the result.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errs.New("config/load", errs.CodeConfig,
			errs.WithMessage("read config file"), errs.WithField("path", path), errs.WithCause(err))
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Settings{}, errs.New("config/load", errs.CodeConfig,
			errs.WithMessage("parse yaml"), errs.WithField("path", path), errs.WithCause(err))
	}

	applyEnvOverrides(&f)
	return build(f)
}

// applyEnvOverrides mirrors the teacher's config.FromEnv / MELTICA_ENV
// pattern: a small, declared set of environment variables may override
// scalar fields without requiring a config file edit.
func applyEnvOverrides(f *File) {
	if v := os.Getenv("SPREADWATCH_HEALTH_ADDR"); v != "" {
		f.HealthAddr = v
	}
	if v := os.Getenv("SPREADWATCH_OTLP_ENDPOINT"); v != "" {
		f.Telemetry.OTLPEndpoint = v
		f.Telemetry.Enabled = true
	}
	if v := os.Getenv("SPREADWATCH_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Poll.IntervalMs = ms
		}
	}
}

func build(f File) (Settings, error) {
	s := Settings{
		Venues:                f.Venues,
		QuoteEquivalence:      f.QuoteEquivalence,
		StaleAfter:            ms(f.StaleAfterMs, 30*time.Second),
		FreshnessGreen:        ms(f.Freshness.GreenMs, 2*time.Second),
		FreshnessAmber:        ms(f.Freshness.AmberMs, 5*time.Second),
		ElevatedPct:           defaultStr(f.Spread.ElevatedPct, "0.001"),
		ArbitragePct:          defaultStr(f.Spread.ArbitragePct, "0.005"),
		ArbDwell:              ms(f.Spread.ArbDwellMs, 10*time.Second),
		PollInterval:          ms(f.Poll.IntervalMs, time.Second),
		PollMaxFailures:       defaultInt(f.Poll.MaxFailuresWindow, 3),
		PollBackoff:           ms(f.Poll.BackoffMs, 5*time.Second),
		PollFailureWindow:     ms(f.Poll.FailureWindowMs, time.Minute),
		PollRetryBudget:       defaultInt(f.Poll.RetryBudget, 10),
		PollRESTRate:          defaultFloat(f.Poll.RESTRatePerSecond, 5),
		ReconnectBase:         ms(f.Reconnect.BaseMs, 250*time.Millisecond),
		ReconnectCap:          ms(f.Reconnect.CapMs, 30*time.Second),
		ReconnectStability:    ms(f.Reconnect.StabilityMs, 10*time.Second),
		HandshakeTimeout:      ms(f.Timeouts.HandshakeMs, 5*time.Second),
		HeartbeatTimeout:      ms(f.Timeouts.HeartbeatMs, 30*time.Second),
		RESTTimeout:           ms(f.Timeouts.RESTMs, 5*time.Second),
		FanoutChannelCapacity: defaultInt(f.Fanout.ChannelCapacity, 64),
		Telemetry:             f.Telemetry,
		HealthAddr:            defaultStr(f.HealthAddr, ":8090"),
	}

	for _, id := range f.Universe {
		cid := schema.CanonicalId(id)
		if err := cid.Validate(); err != nil {
			return Settings{}, err
		}
		s.Universe = append(s.Universe, cid)
	}

	for _, v := range f.Venues {
		vid := schema.VenueId(v.ID)
		if err := vid.Validate(); err != nil {
			return Settings{}, err
		}
		if v.Anchor {
			if s.AnchorVenue != "" {
				return Settings{}, errs.New("config/build", errs.CodeConfig,
					errs.WithMessage("more than one anchor venue declared"))
			}
			s.AnchorVenue = vid
		}
	}
	if s.AnchorVenue == "" && len(f.Venues) > 0 {
		return Settings{}, errs.New("config/build", errs.CodeConfig,
			errs.WithMessage("missing anchor venue"))
	}

	return s, nil
}

func ms(v int64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func defaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
