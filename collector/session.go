package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robertof/go-proximity-scanner/collector/model"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/robertof/go-proximity-scanner/utils"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 5 * time.Second

type SessionOptions struct {
	// Applied independently to link-up, services resolution, the read and the disconnect.
	Timeout      time.Duration
	PollInterval time.Duration
}

type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingLinkUp
	StateAwaitingServicesResolved
	StateReadingCharacteristic
	StateDisconnecting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingLinkUp:
		return "AwaitingLinkUp"
	case StateAwaitingServicesResolved:
		return "AwaitingServicesResolved"
	case StateReadingCharacteristic:
		return "ReadingCharacteristic"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDone:
		return "Done"
	default:
		panic("unknown session state: " + strconv.Itoa(int(s)))
	}
}

func (s State) stage() model.Stage {
	switch s {
	case StateConnecting:
		return model.StageConnect
	case StateAwaitingLinkUp:
		return model.StageLinkUp
	case StateAwaitingServicesResolved:
		return model.StageServicesResolved
	case StateReadingCharacteristic:
		return model.StageRead
	default:
		return model.StageNone
	}
}

// Session drives a single connect, read, disconnect attempt against one device.
type Session struct {
	dev      device.Device
	profile  device.Profile
	identity device.Identity
	opts     SessionOptions

	state State
}

func NewSession(dev device.Device, profile device.Profile, opts SessionOptions) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Session{
		dev:      dev,
		profile:  profile,
		identity: device.IdentityOf(dev.ObjectID()),
		opts:     opts,
	}
}

func (s *Session) Identity() device.Identity {
	return s.identity
}

// State is only safe to read once Run has returned.
func (s *Session) State() State {
	return s.state
}

func (s *Session) transition(to State) {
	log.Trace().
		Stringer("Device", s.identity).
		Stringer("From", s.state).
		Stringer("To", to).
		Msg("collector: session state transition")

	s.state = to
}

func isDeadline(err error) bool {
	return utils.ErrorIsAnyOf(err, context.DeadlineExceeded, os.ErrDeadlineExceeded)
}

func classify(stage model.Stage, err error) model.Result {
	if isDeadline(err) {
		return model.Timeout(stage, fmt.Errorf("%v timed out: %w", stage, err))
	}

	return model.TransportError(stage, err)
}

// Run executes the session. It can only be run once. The device is always disconnected before
// Run returns, no matter how the session ended.
func (s *Session) Run(ctx context.Context) (res model.Result) {
	if s.state != StateIdle {
		panic("collector: attempted to run a session twice")
	}

	// registered first so it runs last, after a panic has been turned into a result.
	defer s.disconnect(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Stringer("Device", s.identity).
				Stringer("State", s.state).
				Interface("Panic", r).
				Msg("collector: session panicked")

			res = model.TransportError(s.state.stage(), fmt.Errorf("panic: %v", r))
		}
	}()

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	changes, err := s.dev.Watch(watchCtx)

	if err != nil {
		log.Debug().
			Stringer("Device", s.identity).
			Err(err).
			Msg("collector: cannot watch device properties, falling back to polling")
	}

	if res, ok := s.linkUp(ctx, changes); !ok {
		return res
	}

	if res, ok := s.servicesResolved(ctx, changes); !ok {
		return res
	}

	raw, res, ok := s.read(ctx)

	if !ok {
		return res
	}

	record, err := s.profile.Decode(raw)

	if err != nil {
		return model.DecodeFailed(err)
	}

	record.Identity = s.identity
	record.RSSI = s.rssi(ctx)

	return model.Success(record)
}

func (s *Session) linkUp(ctx context.Context, changes <-chan device.PropertyChange) (model.Result, bool) {
	// the connect command shares the link-up budget: some stacks only return from it once the
	// link is up.
	linkCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	s.transition(StateConnecting)

	if err := s.dev.Connect(linkCtx); err != nil {
		if isDeadline(err) {
			return classify(model.StageLinkUp, err), false
		}

		return model.TransportError(model.StageConnect, fmt.Errorf("failed to connect to device: %w", err)), false
	}

	s.transition(StateAwaitingLinkUp)

	err := waitForProperty(linkCtx, s.dev, changes, device.PropertyConnected, true, s.opts.PollInterval)

	if err != nil {
		return classify(model.StageLinkUp, err), false
	}

	return model.Result{}, true
}

func (s *Session) servicesResolved(ctx context.Context, changes <-chan device.PropertyChange) (model.Result, bool) {
	resolveCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	s.transition(StateAwaitingServicesResolved)

	err := waitForProperty(resolveCtx, s.dev, changes, device.PropertyServicesResolved, true, s.opts.PollInterval)

	if err != nil {
		return classify(model.StageServicesResolved, err), false
	}

	return model.Result{}, true
}

func (s *Session) read(ctx context.Context) ([]byte, model.Result, bool) {
	readCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	s.transition(StateReadingCharacteristic)

	svc, err := s.dev.Service(readCtx, s.profile.ServiceUUID())

	if errors.Is(err, device.ErrNotFound) {
		return nil, model.ServiceNotFound(fmt.Errorf("service %v: %w", s.profile.ServiceUUID(), err)), false
	} else if err != nil {
		return nil, classify(model.StageRead, fmt.Errorf("failed to look up service: %w", err)), false
	}

	char, err := svc.Characteristic(readCtx, s.profile.CharacteristicUUID())

	if errors.Is(err, device.ErrNotFound) {
		return nil, model.ServiceNotFound(
			fmt.Errorf("characteristic %v: %w", s.profile.CharacteristicUUID(), err)), false
	} else if err != nil {
		return nil, classify(model.StageRead, fmt.Errorf("failed to look up characteristic: %w", err)), false
	}

	raw, err := char.ReadValue(readCtx)

	if err != nil {
		return nil, classify(model.StageRead, fmt.Errorf("failed to read characteristic: %w", err)), false
	}

	log.Trace().
		Stringer("Device", s.identity).
		Hex("Value", raw).
		Msg("collector: read characteristic")

	return raw, model.Result{}, true
}

// rssi reads the signal strength after the read. Some stacks stop reporting it once connected,
// in which case it's reported as 0.
func (s *Session) rssi(ctx context.Context) int16 {
	rssiCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	v, err := s.dev.Property(rssiCtx, device.PropertyRSSI)

	if err != nil {
		log.Debug().Stringer("Device", s.identity).Err(err).Msg("collector: RSSI unavailable")
		return 0
	}

	switch rssi := v.(type) {
	case int16:
		return rssi
	case int:
		return int16(rssi)
	case int32:
		return int16(rssi)
	default:
		log.Debug().
			Stringer("Device", s.identity).
			Str("Type", fmt.Sprintf("%T", v)).
			Msg("collector: unexpected RSSI type")
		return 0
	}
}

func (s *Session) disconnect(ctx context.Context) {
	s.transition(StateDisconnecting)

	disconnectCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Stringer("Device", s.identity).Interface("Panic", r).Msg("collector: disconnect panicked")
		}

		s.transition(StateDone)
	}()

	if err := s.dev.Disconnect(disconnectCtx); err != nil {
		log.Warn().
			Stringer("Device", s.identity).
			Err(err).
			Msg("Failed to disconnect from device")
	}
}
