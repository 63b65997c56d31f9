package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robertof/go-proximity-scanner/collector/model"
	"github.com/robertof/go-proximity-scanner/device"
	"github.com/robertof/go-proximity-scanner/device/covidsafe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReporter struct {
	mu      sync.Mutex
	records []device.ProximityRecord
}

func (r *mockReporter) Report(record device.ProximityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, record)

	return nil
}

func (r *mockReporter) Records() []device.ProximityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]device.ProximityRecord(nil), r.records...)
}

type mockAdapter struct {
	devices []device.Device
}

func (a *mockAdapter) Name() string {
	return "hci0"
}

func (a *mockAdapter) String() string {
	return "mock[hci0]"
}

func (a *mockAdapter) StartDiscovery(ctx context.Context) (<-chan device.Device, error) {
	ch := make(chan device.Device, len(a.devices))

	for _, dev := range a.devices {
		ch <- dev
	}

	close(ch)

	return ch, nil
}

func newTestScanner() (*Scanner, *mockReporter) {
	reporter := &mockReporter{}

	return NewScanner(covidsafe.DefaultProfile(), reporter, testOptions), reporter
}

func TestScanner_IgnoresNonMatchingDevice(t *testing.T) {
	s, reporter := newTestScanner()

	dev := newMockDevice(testObjectID, testPayload)
	dev.uuids = []string{"0000180f-0000-1000-8000-00805f9b34fb"}

	assert.False(t, s.HandleDevice(context.Background(), dev))
	require.NoError(t, s.Wait())

	assert.Zero(t, dev.connects.Load())
	assert.Zero(t, dev.disconnects.Load())
	assert.Empty(t, reporter.Records())
}

func TestScanner_SkipsDeviceWithSessionInFlight(t *testing.T) {
	s, reporter := newTestScanner()

	dev := newMockDevice(testObjectID, testPayload)
	dev.release = make(chan struct{})

	// rediscovered under a different object: still the same peer.
	again := newMockDevice(testObjectID, testPayload)

	require.True(t, s.HandleDevice(context.Background(), dev))
	assert.False(t, s.HandleDevice(context.Background(), again))
	assert.Equal(t, 1, s.InFlight())

	close(dev.release)
	require.NoError(t, s.Wait())

	assert.Zero(t, s.InFlight())
	assert.Zero(t, again.connects.Load())
	assert.Len(t, reporter.Records(), 1)

	// the guard is released once the session ends.
	assert.True(t, s.HandleDevice(context.Background(), again))
	require.NoError(t, s.Wait())
	assert.Len(t, reporter.Records(), 2)
}

func TestScanner_ConcurrentSessions(t *testing.T) {
	s, reporter := newTestScanner()

	release := make(chan struct{})

	a := newMockDevice("/org/bluez/hci0/dev_11_11_11_11_11_11", testPayload)
	b := newMockDevice("/org/bluez/hci0/dev_22_22_22_22_22_22", testPayload)
	a.release, b.release = release, release

	require.True(t, s.HandleDevice(context.Background(), a))
	require.True(t, s.HandleDevice(context.Background(), b))

	assert.Eventually(t, func() bool {
		return a.connects.Load() == 1 && b.connects.Load() == 1
	}, time.Second, time.Millisecond, "both sessions must be connecting at the same time")

	assert.Equal(t, 2, s.InFlight())

	close(release)
	require.NoError(t, s.Wait())

	var ids []device.Identity
	for _, r := range reporter.Records() {
		ids = append(ids, r.Identity)
	}

	assert.ElementsMatch(t, []device.Identity{"11:11:11:11:11:11", "22:22:22:22:22:22"}, ids)
}

func TestScanner_SessionsOutliveDiscovery(t *testing.T) {
	s, reporter := newTestScanner()

	dev := newMockDevice(testObjectID, testPayload)
	dev.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, s.HandleDevice(ctx, dev))
	cancel()

	close(dev.release)
	require.NoError(t, s.Wait())

	assert.Len(t, reporter.Records(), 1)
	assert.EqualValues(t, 1, dev.disconnects.Load())
}

func TestScanner_Run(t *testing.T) {
	s, reporter := newTestScanner()

	ok := newMockDevice("/org/bluez/hci0/dev_11_11_11_11_11_11", testPayload)
	broken := newMockDevice("/org/bluez/hci0/dev_22_22_22_22_22_22", `not json`)
	other := newMockDevice("/org/bluez/hci0/dev_33_33_33_33_33_33", testPayload)
	other.uuids = nil

	var mu sync.Mutex
	results := make(map[device.Identity]model.Outcome)

	s.OnResult = func(res model.SessionResult) {
		mu.Lock()
		defer mu.Unlock()

		results[res.Identity] = res.Outcome
	}

	err := s.Run(context.Background(), &mockAdapter{devices: []device.Device{ok, broken, other}})
	require.NoError(t, err)

	assert.Equal(t, map[device.Identity]model.Outcome{
		"11:11:11:11:11:11": model.OutcomeSuccess,
		"22:22:22:22:22:22": model.OutcomeDecodeFailed,
	}, results)

	require.Len(t, reporter.Records(), 1)
	assert.Equal(t, device.Identity("11:11:11:11:11:11"), reporter.Records()[0].Identity)
	assert.Zero(t, other.connects.Load())
}
