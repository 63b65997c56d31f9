package bluez

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 64

// signalRouter fans signals received on the shared D-Bus connection out to subscribers. Delivery
// never blocks: a subscriber that falls behind loses signals.
type signalRouter struct {
	mu     sync.Mutex
	byPath map[dbus.ObjectPath]map[*subscription]struct{}
	all    map[*subscription]struct{}
}

type subscription struct {
	C <-chan *dbus.Signal

	ch     chan *dbus.Signal
	path   dbus.ObjectPath
	router *signalRouter
	closed bool
}

func newSignalRouter() *signalRouter {
	return &signalRouter{
		byPath: make(map[dbus.ObjectPath]map[*subscription]struct{}),
		all:    make(map[*subscription]struct{}),
	}
}

// subscribe returns a subscription receiving the signals emitted by path, or every signal when
// path is empty.
func (r *signalRouter) subscribe(path dbus.ObjectPath) *subscription {
	ch := make(chan *dbus.Signal, subscriptionBuffer)
	sub := &subscription{C: ch, ch: ch, path: path, router: r}

	r.mu.Lock()
	defer r.mu.Unlock()

	if path == "" {
		r.all[sub] = struct{}{}
	} else {
		if r.byPath[path] == nil {
			r.byPath[path] = make(map[*subscription]struct{})
		}

		r.byPath[path][sub] = struct{}{}
	}

	return sub
}

func (r *signalRouter) run(in <-chan *dbus.Signal) {
	for sig := range in {
		r.dispatch(sig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.all {
		sub.closeLocked()
	}

	for _, subs := range r.byPath {
		for sub := range subs {
			sub.closeLocked()
		}
	}
}

func (r *signalRouter) dispatch(sig *dbus.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deliver := func(sub *subscription) {
		select {
		case sub.ch <- sig:
		default:
			log.Trace().
				Str("Path", string(sig.Path)).
				Str("Signal", sig.Name).
				Msg("bluez: subscriber is lagging, dropping signal")
		}
	}

	for sub := range r.byPath[sig.Path] {
		deliver(sub)
	}

	for sub := range r.all {
		deliver(sub)
	}
}

func (s *subscription) Close() {
	s.router.mu.Lock()
	defer s.router.mu.Unlock()

	s.closeLocked()
}

func (s *subscription) closeLocked() {
	if s.closed {
		return
	}

	s.closed = true

	if s.path == "" {
		delete(s.router.all, s)
	} else if subs := s.router.byPath[s.path]; subs != nil {
		delete(subs, s)

		if len(subs) == 0 {
			delete(s.router.byPath, s.path)
		}
	}

	close(s.ch)
}

// parsePropertiesChanged extracts the interface name and the changed values from a
// PropertiesChanged signal. Invalidated properties are ignored.
func parsePropertiesChanged(sig *dbus.Signal) (string, map[string]dbus.Variant, bool) {
	if sig.Name != signalPropertiesChanged || len(sig.Body) < 2 {
		return "", nil, false
	}

	iface, ok := sig.Body[0].(string)
	if !ok {
		return "", nil, false
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}

	return iface, changed, true
}

func parseInterfacesAdded(sig *dbus.Signal) (dbus.ObjectPath, map[string]map[string]dbus.Variant, bool) {
	if sig.Name != signalInterfacesAdded || len(sig.Body) < 2 {
		return "", nil, false
	}

	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, false
	}

	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}

	return path, ifaces, true
}
