package ble

import (
  "encoding/binary"
  "fmt"
  "strings"

  "github.com/go-ble/ble"
  "github.com/google/uuid"
  "github.com/robertof/go-proximity-scanner/utils"
)

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// canonicalUUID renders u in the dashed, lowercase 128-bit form used everywhere else. Short
// UUIDs are expanded against the Bluetooth base UUID. go-ble stores UUIDs little-endian.
func canonicalUUID(u ble.UUID) string {
  switch u.Len() {
  case 2:
    return fmt.Sprintf("%08x", binary.LittleEndian.Uint16(u)) + baseUUIDSuffix
  case 4:
    return fmt.Sprintf("%08x", binary.LittleEndian.Uint32(u)) + baseUUIDSuffix
  case 16:
    if id, err := uuid.FromBytes(utils.Reverse(u)); err == nil {
      return id.String()
    }
  }

  return u.String()
}

func canonicalUUIDs(uuids []ble.UUID) []string {
  out := make([]string, 0, len(uuids))

  for _, u := range uuids {
    out = append(out, canonicalUUID(u))
  }

  return out
}

func sameUUID(u ble.UUID, s string) bool {
  return strings.EqualFold(canonicalUUID(u), s)
}
