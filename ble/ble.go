// Package ble drives a local HCI controller directly, bypassing the BlueZ daemon.
package ble

import (
  "context"
  "fmt"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/semaphore"
)

var (
  successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_hci_successful_connections_total",
  })
  failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_hci_failed_connections_total",
  })
  disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "proximity_scanner_hci_disconnections_total",
  })
)

type Handle struct {
  dev *linux.Device
  id int
  flags Flags

  // the controller handles a single pending connection at a time.
  dialSem *semaphore.Weighted
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    disconnectsCounter,
  )
}

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
  var scanType scanType = scanTypePassive

  if flags & FlagScanTypeActive == FlagScanTypeActive {
    scanType = scanTypeActive
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("ConnParams", &connParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType), // 0x00: passive, 0x01: active
      LEScanInterval:       0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0004,          // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,            // 0x00: public, 0x01: random
      ScanningFilterPolicy: 0x00,            // 0x00: accept all
    }),
    ble.OptConnParams(connParams.AdapterOptions()),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  return &Handle{dev: dev, id: deviceId, flags: flags, dialSem: semaphore.NewWeighted(1)}, nil
}

// ListAdapters returns the single controller the handle was opened on.
func (h *Handle) ListAdapters(ctx context.Context) ([]device.Adapter, error) {
  return []device.Adapter{&Adapter{h: h}}, nil
}

func (h *Handle) dial(ctx context.Context, addr ble.Addr) (ble.Client, error) {
  // waiting for another peer's dial counts against this one's deadline.
  if err := h.dialSem.Acquire(ctx, 1); err != nil {
    return nil, err
  }

  defer h.dialSem.Release(1)

  c, err := h.dev.Dial(ctx, addr)

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, err
  }

  successfulConnectionsCounter.Inc()
  log.Debug().Stringer("Addr", addr).Msg("ble: successfully opened new connection to device")

  return c, nil
}

func (h *Handle) Stop() {
  h.dev.Stop()
}
