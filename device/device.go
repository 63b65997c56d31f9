package device

import (
	"context"
	"errors"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrNotFound = errors.New("not found")
  ErrNoAdapter = errors.New("no bluetooth adapter available")
  ErrUnknownProperty = errors.New("unknown property")
)

// Property is the name of a device property as exposed by the radio stack.
type Property string

const (
  PropertyConnected        Property = "Connected"
  PropertyServicesResolved Property = "ServicesResolved"
  PropertyRSSI             Property = "RSSI"
  PropertyUUIDs            Property = "UUIDs"
)

type PropertyChange struct {
  Name  Property
  Value any
}

type Characteristic interface {
  UUID() string
  ReadValue(ctx context.Context) ([]byte, error)
}

type Service interface {
  UUID() string
  // Returns ErrNotFound when the service doesn't expose the characteristic.
  Characteristic(ctx context.Context, uuid string) (Characteristic, error)
}

// Device is a remote peer as seen by the radio stack. The scanner only observes and commands
// it for the duration of a session; it never owns it.
type Device interface {
  // Underlying object identifier, e.g. "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
  ObjectID() string
  // Service UUIDs advertised by the device at the time it was discovered.
  UUIDs() []string

  Property(ctx context.Context, name Property) (any, error)
  // Watch streams property changes until ctx is done. Subscribe before issuing commands whose
  // effects you want to observe.
  Watch(ctx context.Context) (<-chan PropertyChange, error)

  Connect(ctx context.Context) error
  Disconnect(ctx context.Context) error

  // Returns ErrNotFound when the device doesn't expose the service.
  Service(ctx context.Context, uuid string) (Service, error)
}

// Adapter is the local radio interface used to scan and connect.
type Adapter interface {
  Name() string
  String() string
  // StartDiscovery starts scanning and streams every device appearing (or re-appearing with
  // new advertisement data) until ctx is done, after which the channel is closed.
  StartDiscovery(ctx context.Context) (<-chan Device, error)
}

type Gateway interface {
  ListAdapters(ctx context.Context) ([]Adapter, error)
}
