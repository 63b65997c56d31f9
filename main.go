package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-proximity-scanner/ble"
	"github.com/robertof/go-proximity-scanner/bluez"
	"github.com/robertof/go-proximity-scanner/collector"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/robertof/go-proximity-scanner/metrics"
	"github.com/robertof/go-proximity-scanner/report"
	"github.com/robertof/go-proximity-scanner/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()

  // SIGINT and SIGTERM stop discovery. Running sessions still finish.
  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  gateway, closeGateway := initGateway(cfg)
  defer closeGateway()

  adapters, err := gateway.ListAdapters(ctx)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to list Bluetooth adapters")
  }

  adapter, err := selectAdapter(adapters, cfg.Adapter)

  if err != nil {
    log.Fatal().
      Array("Available", utils.ToZeroLogArray(adapters)).
      Err(err).
      Msg("Could not find any bluetooth adapters")
  }

  log.Info().Stringer("Adapter", adapter).Msgf("Using Bluetooth adapter %s", adapter.Name())

  if cfg.DiscoverDevices {
    doDeviceDiscovery(ctx, cfg, adapter)
    return
  }

  log.Info().
    Str("Backend", cfg.Backend).
    Stringer("Profile", cfg.Profile).
    Dur("TimeoutSec", cfg.Timeout).
    Str("MetricsAddress", cfg.MetricsAddress).
    Msg("Starting with the specified configuration")

  scanner := collector.NewScanner(cfg.Profile, report.New(os.Stdout), collector.SessionOptions{
    Timeout: cfg.Timeout,
    PollInterval: cfg.PollInterval,
  })

  g, gctx := errgroup.WithContext(ctx)

  g.Go(func() error {
    // discovery may also end on its own (e.g. the adapter went away): take everything down.
    defer cancel()

    return scanner.Run(gctx, adapter)
  })

  if cfg.MetricsAddress != "" {
    serveMetrics(gctx, g, cfg, scanner)
  }

  if err := g.Wait(); err != nil {
    log.Fatal().Err(err).Msg("Scanner stopped with an error")
  }

  log.Info().Msg("Bye")
}

func initGateway(cfg config) (device.Gateway, func()) {
  switch cfg.Backend {
  case backendHCI:
    handle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags(cfg))

    if err != nil {
      log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
    }

    return handle, handle.Stop
  default:
    gateway, err := bluez.Connect()

    if err != nil {
      log.Fatal().Err(err).Msg("Failed to connect to BlueZ")
    }

    return gateway, gateway.Close
  }
}

func bleFlags(cfg config) (flags ble.Flags) {
  if cfg.ActiveScan {
    flags |= ble.FlagScanTypeActive
  }

  if cfg.ReportDuplicates {
    flags |= ble.FlagReportDuplicates
  }

  return flags
}

// selectAdapter picks the adapter with the given name, or the first one when name is empty.
func selectAdapter(adapters []device.Adapter, name string) (device.Adapter, error) {
  if len(adapters) == 0 {
    return nil, device.ErrNoAdapter
  }

  if name == "" {
    return adapters[0], nil
  }

  for _, adapter := range adapters {
    if adapter.Name() == name {
      return adapter, nil
    }
  }

  return nil, fmt.Errorf("adapter %q: %w", name, device.ErrNoAdapter)
}

func serveMetrics(ctx context.Context, g *errgroup.Group, cfg config, scanner *collector.Scanner) {
  registry := prometheus.NewRegistry()

  metrics.Register(scanner.InFlight, registry)

  if cfg.Backend == backendHCI {
    ble.RegisterMetrics(registry)
  }

  if cfg.EnableMetamonitoring {
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
  }

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}

  log.Info().
      Str("ListenAddress", cfg.MetricsAddress).
      Msg("Starting Prometheus server")

  g.Go(func() error {
    if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
      return fmt.Errorf("unable to bind on requested address: %w", err)
    }

    return nil
  })

  g.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
    defer cancel()

    return server.Shutdown(shutdownCtx)
  })
}
