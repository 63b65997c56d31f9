package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/robertof/go-proximity-scanner/device"
)

type Service struct {
	g    *Gateway
	path dbus.ObjectPath
	uuid string
}

func (s *Service) UUID() string {
	return s.uuid
}

func (s *Service) Characteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	objects, err := s.g.managedObjects(ctx)

	if err != nil {
		return nil, err
	}

	p, ok := findByUUID(objects, s.path, characteristicInterface, uuid)

	if !ok {
		return nil, fmt.Errorf("characteristic %v on %v: %w", uuid, s.path, device.ErrNotFound)
	}

	return &Characteristic{g: s.g, path: p, uuid: uuid}, nil
}

type Characteristic struct {
	g    *Gateway
	path dbus.ObjectPath
	uuid string
}

func (c *Characteristic) UUID() string {
	return c.uuid
}

func (c *Characteristic) ReadValue(ctx context.Context) ([]byte, error) {
	var value []byte

	call := c.g.object(c.path).CallWithContext(
		ctx, characteristicInterface+".ReadValue", 0, map[string]dbus.Variant{})

	if call.Err != nil {
		return nil, fmt.Errorf("read failed: %w", call.Err)
	}

	if err := call.Store(&value); err != nil {
		return nil, fmt.Errorf("failed to parse characteristic value: %w", err)
	}

	return value, nil
}
