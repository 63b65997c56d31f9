package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robertof/go-proximity-scanner/device"
	"github.com/robertof/go-proximity-scanner/device/covidsafe"
)

const (
	testObjectID = "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"
	testPayload  = `{"msg":"abc123","modelP":"X1","v":1,"org":"ACME"}`
)

// mockCharacteristic returns a fixed value, an error, or blocks until ctx is done.
type mockCharacteristic struct {
	value  []byte
	err    error
	block  bool
	panics bool

	reads atomic.Int32
}

func (c *mockCharacteristic) UUID() string {
	return covidsafe.ServiceUUID
}

func (c *mockCharacteristic) ReadValue(ctx context.Context) ([]byte, error) {
	c.reads.Add(1)

	if c.panics {
		panic("stack exploded")
	}

	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return c.value, c.err
}

type mockService struct {
	char *mockCharacteristic
}

func (s *mockService) UUID() string {
	return covidsafe.ServiceUUID
}

func (s *mockService) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	if s.char == nil || uuid != covidsafe.ServiceUUID {
		return nil, fmt.Errorf("characteristic %v: %w", uuid, device.ErrNotFound)
	}

	return s.char, nil
}

// mockDevice simulates a peer. By default connecting brings the link up and resolves services
// shortly after, notifying watchers.
type mockDevice struct {
	objectID string
	uuids    []string

	connectErr      error
	connectBlocks   bool
	release         chan struct{}
	neverLinks      bool
	neverResolves   bool
	noNotifications bool
	disconnectErr   error
	service         *mockService

	mu       sync.Mutex
	props    map[device.Property]any
	watchers []chan device.PropertyChange

	connects    atomic.Int32
	disconnects atomic.Int32
}

func newMockDevice(objectID string, payload string) *mockDevice {
	return &mockDevice{
		objectID: objectID,
		uuids:    []string{"0000180f-0000-1000-8000-00805f9b34fb", covidsafe.ServiceUUID},
		service:  &mockService{char: &mockCharacteristic{value: []byte(payload)}},
		props: map[device.Property]any{
			device.PropertyConnected:        false,
			device.PropertyServicesResolved: false,
			device.PropertyRSSI:             int16(-67),
		},
	}
}

func (d *mockDevice) ObjectID() string {
	return d.objectID
}

func (d *mockDevice) UUIDs() []string {
	return d.uuids
}

func (d *mockDevice) Property(ctx context.Context, name device.Property) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.props[name]

	if !ok {
		return nil, device.ErrUnknownProperty
	}

	return v, nil
}

func (d *mockDevice) Watch(ctx context.Context) (<-chan device.PropertyChange, error) {
	if d.noNotifications {
		return nil, fmt.Errorf("notifications unsupported")
	}

	ch := make(chan device.PropertyChange, 8)

	d.mu.Lock()
	d.watchers = append(d.watchers, ch)
	d.mu.Unlock()

	return ch, nil
}

func (d *mockDevice) set(name device.Property, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.props[name] = value

	for _, ch := range d.watchers {
		select {
		case ch <- device.PropertyChange{Name: name, Value: value}:
		default:
		}
	}
}

func (d *mockDevice) Connect(ctx context.Context) error {
	d.connects.Add(1)

	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if d.connectBlocks {
		<-ctx.Done()
		return ctx.Err()
	}

	if d.connectErr != nil {
		return d.connectErr
	}

	go func() {
		if d.neverLinks {
			return
		}

		d.set(device.PropertyConnected, true)

		if !d.neverResolves {
			d.set(device.PropertyServicesResolved, true)
		}
	}()

	return nil
}

func (d *mockDevice) Disconnect(ctx context.Context) error {
	d.disconnects.Add(1)
	d.set(device.PropertyConnected, false)

	return d.disconnectErr
}

func (d *mockDevice) Service(ctx context.Context, uuid string) (device.Service, error) {
	if d.service == nil || uuid != covidsafe.ServiceUUID {
		return nil, fmt.Errorf("service %v: %w", uuid, device.ErrNotFound)
	}

	return d.service, nil
}
