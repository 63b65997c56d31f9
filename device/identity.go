package device

import "strings"

const identityPrefix = "dev_"

// Identity is the colon separated address form of a device, used to correlate log lines and
// sessions.
type Identity string

func (i Identity) String() string {
  return string(i)
}

// IdentityOf derives the identity from the last segment of an object identifier:
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF" becomes "AA:BB:CC:DD:EE:FF".
func IdentityOf(objectID string) Identity {
  id := objectID

  if i := strings.LastIndexByte(id, '/'); i >= 0 {
    id = id[i+1:]
  }

  id = strings.TrimPrefix(id, identityPrefix)

  return Identity(strings.ReplaceAll(id, "_", ":"))
}

// ObjectIDFor is the inverse of IdentityOf for stacks that don't have object paths of their own.
func ObjectIDFor(root string, addr string) string {
  return root + "/" + identityPrefix + strings.ToUpper(strings.ReplaceAll(addr, ":", "_"))
}
