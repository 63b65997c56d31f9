package ble

import (
  "context"
  "errors"
  "fmt"
  "strings"
  "sync"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/rs/zerolog/log"
)

// Peripherals seen again after this long are reported as new, like BlueZ does once it drops a
// temporary device.
const rediscoverAfter = 30 * time.Second

type Adapter struct {
  h *Handle
}

func (a *Adapter) Name() string {
  return fmt.Sprintf("hci%d", a.h.id)
}

func (a *Adapter) String() string {
  return fmt.Sprintf("hci[%d]", a.h.id)
}

func (a *Adapter) root() string {
  return "/" + a.Name()
}

// StartDiscovery scans until ctx is done. Advertisements are collapsed per peripheral: a device
// is only reported again when its advertised services change or after rediscoverAfter.
func (a *Adapter) StartDiscovery(ctx context.Context) (<-chan device.Device, error) {
  out := make(chan device.Device)
  seen := newSeenSet(time.Now)

  onAdvertisement := func(adv ble.Advertisement) {
    // the BLE lib could send an advertisement even after `Scan()` returns.
    select {
    case <-ctx.Done():
      return
    default:
    }

    uuids := canonicalUUIDs(adv.Services())

    if !seen.observe(adv.Addr().String(), uuids) {
      return
    }

    dev := newDevice(a.h, a.root(), adv.Addr(), uuids, int16(adv.RSSI()))

    log.Trace().
      Str("Device", dev.ObjectID()).
      Strs("Services", uuids).
      Int("RSSI", adv.RSSI()).
      Msg("ble: device discovered")

    select {
    case out <- dev:
    case <-ctx.Done():
    }
  }

  go func() {
    defer close(out)

    allowDup := a.h.flags & FlagReportDuplicates == FlagReportDuplicates
    err := a.h.dev.Scan(ctx, allowDup, onAdvertisement)

    // swallow context errors which are caused by the caller ending discovery.
    if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
      log.Error().Stringer("Adapter", a).Err(err).Msg("Scan failed")
    }
  }()

  return out, nil
}

type seenEntry struct {
  services string
  at       time.Time
}

type seenSet struct {
  now func() time.Time

  mu      sync.Mutex
  entries map[string]seenEntry
}

func newSeenSet(now func() time.Time) *seenSet {
  return &seenSet{now: now, entries: make(map[string]seenEntry)}
}

// observe records an advertisement and returns whether it should be reported.
func (s *seenSet) observe(addr string, uuids []string) bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  key := strings.ToLower(addr)
  services := strings.Join(uuids, ",")
  now := s.now()

  if prev, ok := s.entries[key]; ok && prev.services == services && now.Sub(prev.at) < rediscoverAfter {
    return false
  }

  s.entries[key] = seenEntry{services: services, at: now}

  return true
}
