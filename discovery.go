package main

import (
  "context"
  "sort"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"

  "github.com/robertof/go-proximity-scanner/device"
)

type discoveredDevice struct {
  objectID string
  services map[string]bool
}

// doDeviceDiscovery lists the devices seen on the adapter without connecting to any of them.
func doDeviceDiscovery(parentCtx context.Context, cfg config, adapter device.Adapter) {
  log.Info().
    Dur("DurationSec", cfg.DiscoveryDuration).
    Msg("Starting in device discovery mode - collecting devices...")

  ctx, cancel := context.WithTimeout(parentCtx, cfg.DiscoveryDuration)
  defer cancel()

  devices, err := adapter.StartDiscovery(ctx)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  found := make(map[device.Identity]*discoveredDevice)

  for dev := range devices {
    id := device.IdentityOf(dev.ObjectID())
    info, ok := found[id]

    if !ok {
      info = &discoveredDevice{objectID: dev.ObjectID(), services: make(map[string]bool)}
      found[id] = info
    }

    // merge
    for _, uuid := range dev.UUIDs() {
      info.services[uuid] = true
    }

    log.Debug().
      Stringer("Device", id).
      Strs("Services", dev.UUIDs()).
      Msg("Received device advertisement")
  }

  log.Info().Int("Found", len(found)).Msg("Finished device discovery")

  ids := maps.Keys(found)
  sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

  for _, id := range ids {
    info := found[id]
    services := maps.Keys(info.services)
    sort.Strings(services)

    log.Info().
      Stringer("Device", id).
      Str("ObjectID", info.objectID).
      Strs("Services", services).
      Bool("Target", device.MatchesService(services, cfg.Profile.ServiceUUID())).
      Msg("Found device")
  }
}
