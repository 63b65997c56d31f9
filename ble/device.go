package ble

import (
  "context"
  "errors"
  "fmt"
  "sync"

  "github.com/go-ble/ble"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/rs/zerolog/log"
)

var errNotConnected = errors.New("not connected")

// Device tracks a peripheral found while scanning. Since HCI has no property store of its own,
// the connection state is kept here and pushed to watchers as it changes.
type Device struct {
  h        *Handle
  addr     ble.Addr
  objectID string
  uuids    []string

  mu       sync.Mutex
  props    map[device.Property]any
  client   ble.Client
  profile  *ble.Profile
  watchers map[chan device.PropertyChange]struct{}
}

func newDevice(h *Handle, root string, addr ble.Addr, uuids []string, rssi int16) *Device {
  return &Device{
    h:        h,
    addr:     addr,
    objectID: device.ObjectIDFor(root, addr.String()),
    uuids:    uuids,
    props: map[device.Property]any{
      device.PropertyConnected:        false,
      device.PropertyServicesResolved: false,
      device.PropertyRSSI:             rssi,
      device.PropertyUUIDs:            uuids,
    },
    watchers: make(map[chan device.PropertyChange]struct{}),
  }
}

func (d *Device) ObjectID() string {
  return d.objectID
}

func (d *Device) UUIDs() []string {
  return d.uuids
}

func (d *Device) Property(ctx context.Context, name device.Property) (any, error) {
  d.mu.Lock()
  defer d.mu.Unlock()

  v, ok := d.props[name]

  if !ok {
    return nil, fmt.Errorf("%v: %w", name, device.ErrUnknownProperty)
  }

  return v, nil
}

func (d *Device) Watch(ctx context.Context) (<-chan device.PropertyChange, error) {
  ch := make(chan device.PropertyChange, 8)

  d.mu.Lock()
  d.watchers[ch] = struct{}{}
  d.mu.Unlock()

  go func() {
    <-ctx.Done()

    d.mu.Lock()
    defer d.mu.Unlock()

    delete(d.watchers, ch)
    close(ch)
  }()

  return ch, nil
}

func (d *Device) set(name device.Property, value any) {
  d.mu.Lock()
  defer d.mu.Unlock()

  d.props[name] = value

  for ch := range d.watchers {
    select {
    case ch <- device.PropertyChange{Name: name, Value: value}:
    default:
    }
  }
}

// Connect dials the peripheral and starts resolving its services in the background.
// ServicesResolved becomes true once the profile is known.
func (d *Device) Connect(ctx context.Context) error {
  client, err := d.h.dial(ctx, d.addr)

  if err != nil {
    return err
  }

  d.mu.Lock()
  d.client = client
  d.mu.Unlock()

  d.set(device.PropertyConnected, true)

  go func() {
    <-client.Disconnected()

    disconnectsCounter.Inc()
    log.Debug().Str("Device", d.objectID).Msg("ble: connection with device closed")

    d.set(device.PropertyServicesResolved, false)
    d.set(device.PropertyConnected, false)
  }()

  go func() {
    p, err := client.DiscoverProfile(true)

    if err != nil {
      log.Debug().Str("Device", d.objectID).Err(err).Msg("ble: cannot discover profile for device")
      return
    }

    d.mu.Lock()
    d.profile = p
    d.mu.Unlock()

    d.set(device.PropertyServicesResolved, true)
  }()

  return nil
}

func (d *Device) Disconnect(ctx context.Context) error {
  d.mu.Lock()
  client := d.client
  d.mu.Unlock()

  if client == nil {
    return nil
  }

  select {
  case <-client.Disconnected():
    return nil
  default:
  }

  if err := client.CancelConnection(); err != nil {
    return fmt.Errorf("failed to cancel connection: %w", err)
  }

  select {
  case <-client.Disconnected():
    return nil
  case <-ctx.Done():
    return ctx.Err()
  }
}

func (d *Device) connection() (ble.Client, *ble.Profile, error) {
  d.mu.Lock()
  defer d.mu.Unlock()

  if d.client == nil {
    return nil, nil, errNotConnected
  }

  if d.profile == nil {
    return nil, nil, errors.New("services not resolved")
  }

  return d.client, d.profile, nil
}

func (d *Device) Service(ctx context.Context, uuid string) (device.Service, error) {
  _, p, err := d.connection()

  if err != nil {
    return nil, err
  }

  for _, svc := range p.Services {
    if sameUUID(svc.UUID, uuid) {
      return &Service{dev: d, svc: svc}, nil
    }
  }

  return nil, fmt.Errorf("service %v on %v: %w", uuid, d.objectID, device.ErrNotFound)
}

type Service struct {
  dev *Device
  svc *ble.Service
}

func (s *Service) UUID() string {
  return canonicalUUID(s.svc.UUID)
}

func (s *Service) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
  for _, char := range s.svc.Characteristics {
    if sameUUID(char.UUID, uuid) {
      return &Characteristic{dev: s.dev, char: char}, nil
    }
  }

  return nil, fmt.Errorf("characteristic %v on %v: %w", uuid, s.dev.objectID, device.ErrNotFound)
}

type Characteristic struct {
  dev  *Device
  char *ble.Characteristic
}

func (c *Characteristic) UUID() string {
  return canonicalUUID(c.char.UUID)
}

type readResult struct {
  value []byte
  err   error
}

// ReadValue reads the full value, following up with blob reads when it doesn't fit the MTU.
// The underlying read can't be cancelled: on ctx expiry it's abandoned, and is unblocked once
// the connection is torn down.
func (c *Characteristic) ReadValue(ctx context.Context) ([]byte, error) {
  client, _, err := c.dev.connection()

  if err != nil {
    return nil, err
  }

  done := make(chan readResult, 1)

  go func() {
    value, err := client.ReadLongCharacteristic(c.char)
    done <- readResult{value, err}
  }()

  select {
  case res := <-done:
    if res.err != nil {
      return nil, fmt.Errorf("failed to read characteristic: %w", res.err)
    }

    return res.value, nil
  case <-ctx.Done():
    return nil, ctx.Err()
  }
}
