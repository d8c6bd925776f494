// Command spreadwatch launches the cross-venue spread monitor runtime
// entrypoint. Grounded on the teacher's cmd/gateway/main.go lifecycle:
// signal-driven context, sequential component construction, a graceful
// shutdown delegated to a dedicated Supervisor instead of this file's own
// shutdownStep closures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/config"
	"github.com/nyxfeed/spreadwatch/internal/fanout"
	"github.com/nyxfeed/spreadwatch/internal/logging"
	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/mux"
	"github.com/nyxfeed/spreadwatch/internal/polling"
	"github.com/nyxfeed/spreadwatch/internal/registry"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/spread"
	"github.com/nyxfeed/spreadwatch/internal/supervisor"
	"github.com/nyxfeed/spreadwatch/internal/telemetry"
	"github.com/nyxfeed/spreadwatch/internal/venue"
	"github.com/nyxfeed/spreadwatch/internal/venue/binance"
	"github.com/nyxfeed/spreadwatch/internal/venue/fake"
)

const (
	defaultConfigPath = "config/app.yaml"
	loggerComponent   = "spreadwatch "
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := logging.New(os.Stdout, loggerComponent)

	settings, err := config.Load(resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	logger.Printf("configuration loaded: venues=%d universe=%d anchor=%s",
		len(settings.Venues), len(settings.Universe), settings.AnchorVenue)

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      settings.Telemetry.Enabled,
		OTLPEndpoint: settings.Telemetry.OTLPEndpoint,
		OTLPInsecure: settings.Telemetry.OTLPInsecure,
		ServiceName:  "spreadwatch",
	})
	if err != nil {
		logger.Errorf("initialize telemetry: %v", err)
		os.Exit(1)
	}

	reg := registry.New()
	adapters := buildAdapters(settings, reg, logger)

	bus := fanout.New(settings.FanoutChannelCapacity)
	store := book.New(bus, settings.StaleAfter)

	engine := spread.New(store, bus, spread.Thresholds{
		ElevatedPct:  mustPct(settings.ElevatedPct),
		ArbitragePct: mustPct(settings.ArbitragePct),
		StaleAfter:   settings.StaleAfter,
		AnchorVenue:  settings.AnchorVenue,
	})

	var poller *polling.Controller
	if settings.AnchorVenue != "" {
		poller = polling.New(store, reg, adapters, bus, polling.Config{
			Interval:          settings.PollInterval,
			DwellTime:         settings.ArbDwell,
			MaxFailures:       settings.PollMaxFailures,
			FailureWindow:     settings.PollFailureWindow,
			BackoffInterval:   settings.PollBackoff,
			RetryBudget:       settings.PollRetryBudget,
			RESTRatePerSecond: settings.PollRESTRate,
		})
	}

	muxes := buildMultiplexers(settings, adapters, reg, store, bus, logger)
	for _, m := range muxes {
		m.SetDesired(desiredSubs(settings.Universe))
	}

	sup := supervisor.New(supervisor.Components{
		Logger:       logger,
		Registry:     reg,
		Store:        store,
		Bus:          bus,
		Multiplexers: muxes,
		Engine:       engine,
		Poller:       poller,
		Anchor:       settings.AnchorVenue,
	})
	sup.Start(ctx)

	if _, err := telemetry.RegisterGauges(telemetryProvider.Meter("spreadwatch"), sup); err != nil {
		logger.Errorf("register telemetry gauges: %v", err)
	}

	healthServer := sup.NewHealthServer(settings.HealthAddr)
	sup.StartHealthServer(ctx, healthServer)
	logger.Printf("health endpoint listening on %s", settings.HealthAddr)

	logger.Printf("spreadwatch started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Printf("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	start := time.Now()
	sup.Shutdown(shutdownCtx)
	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown telemetry: %v", err)
	}
	logger.Printf("shutdown completed in %v", time.Since(start))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("path to configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return defaultConfigPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func mustPct(s string) money.Price {
	p, ok := money.Parse(s)
	if !ok {
		panic(fmt.Sprintf("invalid percent threshold %q in configuration", s))
	}
	return p
}

// buildAdapters constructs one venue.Adapter per configured venue. "binance"
// names the illustrative streaming+REST reference adapter (not enabled by
// default); every other declared venue id resolves to the in-memory fake
// adapter, useful for demos and for venues without a shipped implementation.
func buildAdapters(settings config.Settings, reg *registry.Registry, logger *logging.Logger) map[schema.VenueId]venue.Adapter {
	adapters := make(map[schema.VenueId]venue.Adapter, len(settings.Venues))
	for _, v := range settings.Venues {
		venueID := schema.VenueId(v.ID)
		switch venueID {
		case "binance":
			for _, id := range settings.Universe {
				native := deriveNativeSymbol(id)
				if err := reg.Register(venueID, native, id); err != nil {
					logger.Errorf("register %s/%s: %v", venueID, native, err)
				}
			}
			adapters[venueID] = binance.New(binance.Options{})
		default:
			quotes := make(map[schema.VenueSymbol]fake.Quote, len(settings.Universe))
			for _, id := range settings.Universe {
				native := deriveNativeSymbol(id)
				if err := reg.Register(venueID, native, id); err != nil {
					logger.Errorf("register %s/%s: %v", venueID, native, err)
					continue
				}
				quotes[native] = fake.Quote{
					Mid:        money.FromInt64(100),
					HalfSpread: mustPct("0.01"),
					Size:       money.FromInt64(1),
				}
			}
			adapters[venueID] = fake.New(fake.Options{
				Venue:        venueID,
				TickInterval: time.Second,
				Quotes:       quotes,
			})
		}
	}
	return adapters
}

// deriveNativeSymbol maps a CanonicalId's BASE-QUOTE pair to the
// concatenated symbol convention most spot-style venues (including
// Binance) use on the wire; this is a simplification acknowledged in
// DESIGN.md, since a production registry would load an explicit mapping
// table per venue instead of deriving one.
func deriveNativeSymbol(id schema.CanonicalId) schema.VenueSymbol {
	parts := strings.SplitN(string(id), "-", 3)
	if len(parts) < 2 {
		return schema.VenueSymbol(strings.ReplaceAll(string(id), "-", ""))
	}
	return schema.VenueSymbol(parts[0] + parts[1])
}

func buildMultiplexers(settings config.Settings, adapters map[schema.VenueId]venue.Adapter, reg *registry.Registry, store *book.Store, bus *fanout.Bus, logger *logging.Logger) map[schema.VenueId]*mux.Multiplexer {
	muxes := make(map[schema.VenueId]*mux.Multiplexer, len(adapters))
	onFatal := func(venueID schema.VenueId, err error) {
		logger.Errorf("venue %s: fatal: %v", venueID, err)
	}
	for venueID, adapter := range adapters {
		muxes[venueID] = mux.New(venueID, adapter, reg, store, bus, mux.Config{
			ReconnectBase:     settings.ReconnectBase,
			ReconnectCap:      settings.ReconnectCap,
			StabilityWindow:   settings.ReconnectStability,
			HandshakeAttempts: 10,
			AttemptWindow:     time.Minute,
		}, onFatal)
	}
	return muxes
}

func desiredSubs(universe []schema.CanonicalId) []schema.Sub {
	subs := make([]schema.Sub, 0, len(universe))
	for _, id := range universe {
		subs = append(subs, schema.Sub{ID: id, Channel: schema.ChannelBook})
	}
	return subs
}
