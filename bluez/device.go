package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/rs/zerolog/log"
)

type Device struct {
	g     *Gateway
	path  dbus.ObjectPath
	uuids []string
}

func newDevice(g *Gateway, path dbus.ObjectPath, props map[string]dbus.Variant) *Device {
	uuids, _ := variantValue[[]string](props, string(device.PropertyUUIDs))

	return &Device{g: g, path: path, uuids: uuids}
}

func (d *Device) ObjectID() string {
	return string(d.path)
}

func (d *Device) UUIDs() []string {
	return d.uuids
}

func (d *Device) Property(ctx context.Context, name device.Property) (any, error) {
	var v dbus.Variant

	call := d.g.object(d.path).CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, string(name))

	if call.Err != nil {
		return nil, fmt.Errorf("failed to get %v: %w", name, call.Err)
	}

	if err := call.Store(&v); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", name, err)
	}

	return v.Value(), nil
}

func (d *Device) Watch(ctx context.Context) (<-chan device.PropertyChange, error) {
	sub := d.g.router.subscribe(d.path)
	out := make(chan device.PropertyChange, subscriptionBuffer)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sub.C:
				if !ok {
					return
				}

				iface, changed, ok := parsePropertiesChanged(sig)

				if !ok || iface != deviceInterface {
					continue
				}

				for name, value := range changed {
					select {
					case out <- device.PropertyChange{Name: device.Property(name), Value: value.Value()}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (d *Device) Connect(ctx context.Context) error {
	err := d.g.object(d.path).CallWithContext(ctx, deviceInterface+".Connect", 0).Err

	if err != nil && errorName(err) != errAlreadyConnected {
		return fmt.Errorf("connect failed: %w", err)
	}

	return nil
}

func (d *Device) Disconnect(ctx context.Context) error {
	err := d.g.object(d.path).CallWithContext(ctx, deviceInterface+".Disconnect", 0).Err

	if err != nil && errorName(err) != errNotConnected {
		return fmt.Errorf("disconnect failed: %w", err)
	}

	log.Trace().Str("Device", string(d.path)).Msg("bluez: disconnected")

	return nil
}

func (d *Device) Service(ctx context.Context, uuid string) (device.Service, error) {
	objects, err := d.g.managedObjects(ctx)

	if err != nil {
		return nil, err
	}

	p, ok := findByUUID(objects, d.path, serviceInterface, uuid)

	if !ok {
		return nil, fmt.Errorf("service %v on %v: %w", uuid, d.path, device.ErrNotFound)
	}

	return &Service{g: d.g, path: p, uuid: uuid}, nil
}
