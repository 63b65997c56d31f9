// Package bluez talks to the BlueZ daemon over the system D-Bus.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/rs/zerolog/log"
)

const (
	busName                 = "org.bluez"
	adapterInterface        = "org.bluez.Adapter1"
	deviceInterface         = "org.bluez.Device1"
	serviceInterface        = "org.bluez.GattService1"
	characteristicInterface = "org.bluez.GattCharacteristic1"
	propertiesInterface     = "org.freedesktop.DBus.Properties"
	objectManagerInterface  = "org.freedesktop.DBus.ObjectManager"

	signalPropertiesChanged = propertiesInterface + ".PropertiesChanged"
	signalInterfacesAdded   = objectManagerInterface + ".InterfacesAdded"

	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
	errNotConnected     = "org.bluez.Error.NotConnected"
	errInProgress       = "org.bluez.Error.InProgress"
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Gateway is the entry point to BlueZ. A single D-Bus signal subscription is shared by every
// adapter and device created from it.
type Gateway struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	router  *signalRouter
}

func Connect() (*Gateway, error) {
	// shared connection, must not be closed.
	conn, err := dbus.SystemBus()

	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}

	return newGateway(conn)
}

func newGateway(conn *dbus.Conn) (*Gateway, error) {
	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(busName),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchSender(busName),
			dbus.WithMatchInterface(objectManagerInterface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
	}

	for _, match := range matches {
		if err := conn.AddMatchSignal(match...); err != nil {
			return nil, fmt.Errorf("failed to subscribe to BlueZ signals: %w", err)
		}
	}

	g := &Gateway{
		conn:    conn,
		signals: make(chan *dbus.Signal, 256),
		router:  newSignalRouter(),
	}

	conn.Signal(g.signals)

	go g.router.run(g.signals)

	return g, nil
}

// Close stops routing signals. Adapters and devices obtained from the gateway stop receiving
// notifications.
func (g *Gateway) Close() {
	g.conn.RemoveSignal(g.signals)
	close(g.signals)
}

func (g *Gateway) object(path dbus.ObjectPath) dbus.BusObject {
	return g.conn.Object(busName, path)
}

func (g *Gateway) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects

	call := g.object("/").CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0)

	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects failed: %w", call.Err)
	}

	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to parse managed objects: %w", err)
	}

	return objects, nil
}

func (g *Gateway) ListAdapters(ctx context.Context) ([]device.Adapter, error) {
	objects, err := g.managedObjects(ctx)

	if err != nil {
		return nil, err
	}

	var adapters []device.Adapter

	for _, path := range pathsWithInterface(objects, "", adapterInterface) {
		adapters = append(adapters, &Adapter{g: g, path: path})
	}

	log.Debug().Int("Found", len(adapters)).Msg("bluez: listed adapters")

	return adapters, nil
}

// pathsWithInterface returns, sorted, the objects implementing iface that are direct children of
// parent. An empty parent matches every object.
func pathsWithInterface(objects managedObjects, parent dbus.ObjectPath, iface string) []dbus.ObjectPath {
	var paths []dbus.ObjectPath

	for path, ifaces := range objects {
		if _, ok := ifaces[iface]; !ok {
			continue
		}

		if parent != "" && !isChildOf(path, parent) {
			continue
		}

		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	return paths
}

func isChildOf(path, parent dbus.ObjectPath) bool {
	prefix := string(parent) + "/"

	if !strings.HasPrefix(string(path), prefix) {
		return false
	}

	return !strings.Contains(string(path)[len(prefix):], "/")
}

// findByUUID looks for a direct child of parent implementing iface whose UUID property matches.
func findByUUID(objects managedObjects, parent dbus.ObjectPath, iface string, uuid string) (dbus.ObjectPath, bool) {
	for _, path := range pathsWithInterface(objects, parent, iface) {
		if got, ok := variantValue[string](objects[path][iface], "UUID"); ok && strings.EqualFold(got, uuid) {
			return path, true
		}
	}

	return "", false
}

func variantValue[T any](props map[string]dbus.Variant, name string) (T, bool) {
	var zero T

	v, ok := props[name]
	if !ok {
		return zero, false
	}

	val, ok := v.Value().(T)

	return val, ok
}

func errorName(err error) string {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}

	var ptr *dbus.Error
	if errors.As(err, &ptr) {
		return ptr.Name
	}

	return ""
}
