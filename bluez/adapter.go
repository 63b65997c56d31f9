package bluez

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/rs/zerolog/log"
)

const stopDiscoveryTimeout = 2 * time.Second

type Adapter struct {
	g    *Gateway
	path dbus.ObjectPath
}

// Name is the adapter name as BlueZ knows it, e.g. "hci0".
func (a *Adapter) Name() string {
	return adapterName(a.path)
}

func (a *Adapter) String() string {
	return fmt.Sprintf("bluez[%v]", a.path)
}

func adapterName(p dbus.ObjectPath) string {
	return path.Base(string(p))
}

func (a *Adapter) StartDiscovery(ctx context.Context) (<-chan device.Device, error) {
	obj := a.g.object(a.path)

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}

	if err := obj.CallWithContext(ctx, adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		log.Warn().Stringer("Adapter", a).Err(err).Msg("Failed to restrict discovery to LE devices")
	}

	// subscribe before starting discovery so no device added in between is lost.
	sub := a.g.router.subscribe("")

	err := obj.CallWithContext(ctx, adapterInterface+".StartDiscovery", 0).Err

	if err != nil && errorName(err) != errInProgress {
		sub.Close()
		return nil, fmt.Errorf("failed to start discovery: %w", err)
	}

	known, err := a.g.managedObjects(ctx)

	if err != nil {
		sub.Close()
		a.stopDiscovery()
		return nil, err
	}

	out := make(chan device.Device)

	go func() {
		defer close(out)
		defer a.stopDiscovery()
		defer sub.Close()

		emit := func(dev *Device) bool {
			log.Trace().
				Str("Device", dev.ObjectID()).
				Strs("Services", dev.UUIDs()).
				Msg("bluez: device discovered")

			select {
			case out <- dev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, p := range pathsWithInterface(known, a.path, deviceInterface) {
			if !emit(newDevice(a.g, p, known[p][deviceInterface])) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sub.C:
				if !ok {
					return
				}

				if dev := a.deviceFromSignal(sig); dev != nil && !emit(dev) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deviceFromSignal returns the device a signal announces: either a new device object or a known
// device whose advertised services changed.
func (a *Adapter) deviceFromSignal(sig *dbus.Signal) *Device {
	if p, ifaces, ok := parseInterfacesAdded(sig); ok {
		props, isDevice := ifaces[deviceInterface]

		if !isDevice || !isChildOf(p, a.path) {
			return nil
		}

		return newDevice(a.g, p, props)
	}

	if iface, changed, ok := parsePropertiesChanged(sig); ok {
		if iface != deviceInterface || !isChildOf(sig.Path, a.path) {
			return nil
		}

		if _, ok := changed[string(device.PropertyUUIDs)]; !ok {
			return nil
		}

		return newDevice(a.g, sig.Path, changed)
	}

	return nil
}

func (a *Adapter) stopDiscovery() {
	ctx, cancel := context.WithTimeout(context.Background(), stopDiscoveryTimeout)
	defer cancel()

	if err := a.g.object(a.path).CallWithContext(ctx, adapterInterface+".StopDiscovery", 0).Err; err != nil {
		log.Warn().Stringer("Adapter", a).Err(err).Msg("Failed to stop discovery")
		return
	}

	log.Debug().Stringer("Adapter", a).Msg("bluez: discovery stopped")
}
