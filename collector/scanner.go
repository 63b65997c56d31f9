package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robertof/go-proximity-scanner/collector/model"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/robertof/go-proximity-scanner/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Reporter interface {
	Report(record device.ProximityRecord) error
}

// Scanner consumes discovery events and runs one session per matching device. Sessions for
// different devices run concurrently; a device whose session is still running is not entered
// again when rediscovered.
type Scanner struct {
	// Called with every finished session, after it has been logged and reported.
	OnResult func(model.SessionResult)

	profile  device.Profile
	reporter Reporter
	opts     SessionOptions

	mu       sync.Mutex
	inFlight map[device.Identity]struct{}

	sessions errgroup.Group
}

func NewScanner(profile device.Profile, reporter Reporter, opts SessionOptions) *Scanner {
	return &Scanner{
		profile:  profile,
		reporter: reporter,
		opts:     opts,
		inFlight: make(map[device.Identity]struct{}),
	}
}

// Run starts discovery on the adapter and dispatches devices until ctx is done. Sessions still
// running at that point are not interrupted: Run waits for them to finish (and disconnect).
func (s *Scanner) Run(ctx context.Context, adapter device.Adapter) error {
	log.Info().
		Str("Adapter", adapter.Name()).
		Stringer("Profile", s.profile).
		Dur("TimeoutSec", s.opts.Timeout).
		Msg("Starting discovery")

	devices, err := adapter.StartDiscovery(ctx)

	if err != nil {
		return fmt.Errorf("failed to start discovery on %v: %w", adapter.Name(), err)
	}

	for dev := range devices {
		s.HandleDevice(ctx, dev)
	}

	log.Info().Int("InFlight", s.InFlight()).Msg("Discovery stopped, waiting for running sessions")

	return s.Wait()
}

// HandleDevice starts a session for dev if it advertises the profile's service and no session
// is running for it already. Returns whether a session was started.
func (s *Scanner) HandleDevice(ctx context.Context, dev device.Device) bool {
	metrics.DevicesDiscovered.Inc()

	uuids := dev.UUIDs()

	if !device.MatchesService(uuids, s.profile.ServiceUUID()) {
		log.Trace().
			Str("Device", dev.ObjectID()).
			Strs("Services", uuids).
			Msg("collector: ignoring device not advertising the target service")

		return false
	}

	metrics.DevicesMatched.Inc()

	identity := device.IdentityOf(dev.ObjectID())

	if !s.acquire(identity) {
		metrics.SessionsSkipped.Inc()

		log.Debug().
			Stringer("Device", identity).
			Msg("collector: session already running for device, skipping")

		return false
	}

	log.Debug().
		Stringer("Device", identity).
		Strs("Services", uuids).
		Msg("Found device advertising the target service")

	// sessions are not cancelled with discovery, they always run to completion.
	sessionCtx := context.WithoutCancel(ctx)

	s.sessions.Go(func() error {
		defer s.release(identity)

		started := time.Now()
		res := NewSession(dev, s.profile, s.opts).Run(sessionCtx)

		metrics.ObserveSession(res.Outcome.String(), string(res.Stage), time.Since(started))

		s.handleResult(model.SessionResult{Identity: identity, Result: res})

		return nil
	})

	return true
}

// Wait blocks until every started session has finished.
func (s *Scanner) Wait() error {
	return s.sessions.Wait()
}

func (s *Scanner) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inFlight)
}

func (s *Scanner) acquire(identity device.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[identity]; ok {
		return false
	}

	s.inFlight[identity] = struct{}{}

	return true
}

func (s *Scanner) release(identity device.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, identity)
}

func (s *Scanner) handleResult(res model.SessionResult) {
	switch res.Outcome {
	case model.OutcomeSuccess:
		log.Debug().
			Stringer("Device", res.Identity).
			Stringer("Record", res.Record).
			Msg("Successfully read record from device")

		if err := s.reporter.Report(res.Record); err != nil {
			log.Error().Stringer("Device", res.Identity).Err(err).Msg("Failed to report record")
		}
	case model.OutcomeServiceNotFound:
		log.Warn().
			Stringer("Device", res.Identity).
			Err(res.Error).
			Msg("Failed to find target service on device")
	case model.OutcomeDecodeFailed:
		log.Warn().
			Stringer("Device", res.Identity).
			Err(res.Error).
			Msg("Failed to decode payload from device")
	default:
		log.Error().
			Stringer("Device", res.Identity).
			Stringer("Outcome", res.Outcome).
			Str("Stage", string(res.Stage)).
			Err(res.Error).
			Msg("Session with device failed")
	}

	if s.OnResult != nil {
		s.OnResult(res)
	}
}
