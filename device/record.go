package device

import (
  "fmt"
)

// ProximityRecord is the decoded broadcast payload of a peer.
type ProximityRecord struct {
  Org     string
  Version int
  Model   string
  // Opaque (encrypted) blob, kept as sent.
  Message string

  // Filled in by the session after the read.
  RSSI     int16
  Identity Identity
}

func (r ProximityRecord) String() string {
  return fmt.Sprintf("ProximityRecord[Identity=%v,Org=%q,Version=%d,Model=%q,RSSI=%d,Message=%q]",
    r.Identity, r.Org, r.Version, r.Model, r.RSSI, r.Message)
}
