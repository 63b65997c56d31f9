package collector

import (
	"context"
	"testing"
	"time"

	"github.com/robertof/go-proximity-scanner/device"
	"github.com/stretchr/testify/assert"
)

func TestWaitForProperty_AlreadySet(t *testing.T) {
	dev := newMockDevice(testObjectID, testPayload)
	dev.set(device.PropertyConnected, true)

	err := waitForProperty(context.Background(), dev, nil, device.PropertyConnected, true, time.Hour)

	assert.NoError(t, err)
}

func TestWaitForProperty_Notification(t *testing.T) {
	dev := newMockDevice(testObjectID, testPayload)
	changes := make(chan device.PropertyChange, 2)

	changes <- device.PropertyChange{Name: device.PropertyServicesResolved, Value: true}
	changes <- device.PropertyChange{Name: device.PropertyConnected, Value: true}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// the poll interval is far beyond the deadline: only the notification can end the wait.
	err := waitForProperty(ctx, dev, changes, device.PropertyConnected, true, time.Hour)

	assert.NoError(t, err)
}

func TestWaitForProperty_PollsAfterNotificationsEnd(t *testing.T) {
	dev := newMockDevice(testObjectID, testPayload)
	changes := make(chan device.PropertyChange)
	close(changes)

	go func() {
		time.Sleep(20 * time.Millisecond)
		dev.set(device.PropertyConnected, true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := waitForProperty(ctx, dev, changes, device.PropertyConnected, true, 5*time.Millisecond)

	assert.NoError(t, err)
}

func TestWaitForProperty_Deadline(t *testing.T) {
	dev := newMockDevice(testObjectID, testPayload)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := waitForProperty(ctx, dev, nil, device.PropertyConnected, true, 5*time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
