package ble

import (
  "context"
  "testing"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
  "golang.org/x/sync/semaphore"
)

func TestCanonicalUUID(t *testing.T) {
  tests := []struct {
    name string
    in   ble.UUID
    want string
  }{
    {"16-bit", ble.UUID16(0x180f), "0000180f-0000-1000-8000-00805f9b34fb"},
    {"32-bit", ble.UUID{0x78, 0x56, 0x34, 0x12}, "12345678-0000-1000-8000-00805f9b34fb"},
    {
      "128-bit",
      ble.MustParse("b82ab3fc-1595-4f6a-80f0-fe094cc218f9"),
      "b82ab3fc-1595-4f6a-80f0-fe094cc218f9",
    },
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      assert.Equal(t, tt.want, canonicalUUID(tt.in))
    })
  }
}

func TestSameUUID(t *testing.T) {
  u := ble.MustParse("b82ab3fc-1595-4f6a-80f0-fe094cc218f9")

  assert.True(t, sameUUID(u, "B82AB3FC-1595-4F6A-80F0-FE094CC218F9"))
  assert.False(t, sameUUID(ble.UUID16(0x180f), "b82ab3fc-1595-4f6a-80f0-fe094cc218f9"))
}

func TestSeenSet(t *testing.T) {
  now := time.Date(2020, time.May, 1, 0, 0, 0, 0, time.UTC)
  s := newSeenSet(func() time.Time { return now })

  svc := []string{"b82ab3fc-1595-4f6a-80f0-fe094cc218f9"}

  assert.True(t, s.observe("AA:BB:CC:DD:EE:FF", nil))
  assert.False(t, s.observe("aa:bb:cc:dd:ee:ff", nil))

  // services showing up in a later scan response.
  assert.True(t, s.observe("aa:bb:cc:dd:ee:ff", svc))
  assert.False(t, s.observe("aa:bb:cc:dd:ee:ff", svc))

  assert.True(t, s.observe("11:22:33:44:55:66", svc))

  now = now.Add(rediscoverAfter)
  assert.True(t, s.observe("aa:bb:cc:dd:ee:ff", svc))
}

func TestFlags_String(t *testing.T) {
  assert.Equal(t, "none", Flags(0).String())
  assert.Equal(t, "active scan, duplicates", (FlagScanTypeActive | FlagReportDuplicates).String())
}

func TestConnParams_Set(t *testing.T) {
  var p ConnParams

  require.NoError(t, p.Set(""))
  assert.Equal(t, ConnParamsDefault, p)

  require.NoError(t, p.Set("power-saving"))
  assert.Equal(t, ConnParamsPowerSaving, p)
  assert.EqualValues(t, 0x0708, p.AdapterOptions().SupervisionTimeout)

  assert.Error(t, p.Set("turbo"))
}

func TestDevice_PropertiesAndWatch(t *testing.T) {
  uuids := []string{"b82ab3fc-1595-4f6a-80f0-fe094cc218f9"}
  dev := newDevice(nil, "/hci0", ble.NewAddr("aa:bb:cc:dd:ee:ff"), uuids, -70)

  assert.Equal(t, "/hci0/dev_AA_BB_CC_DD_EE_FF", dev.ObjectID())
  assert.Equal(t, device.Identity("AA:BB:CC:DD:EE:FF"), device.IdentityOf(dev.ObjectID()))
  assert.Equal(t, uuids, dev.UUIDs())

  ctx, cancel := context.WithCancel(context.Background())

  changes, err := dev.Watch(ctx)
  require.NoError(t, err)

  v, err := dev.Property(ctx, device.PropertyRSSI)
  require.NoError(t, err)
  assert.Equal(t, int16(-70), v)

  v, err = dev.Property(ctx, device.PropertyConnected)
  require.NoError(t, err)
  assert.Equal(t, false, v)

  _, err = dev.Property(ctx, "Paired")
  assert.ErrorIs(t, err, device.ErrUnknownProperty)

  dev.set(device.PropertyConnected, true)

  assert.Equal(t, device.PropertyChange{Name: device.PropertyConnected, Value: true}, <-changes)

  cancel()

  for range changes {
  }

  // nothing to disconnect from, and no lookups possible, before connecting.
  assert.NoError(t, dev.Disconnect(context.Background()))

  _, err = dev.Service(context.Background(), uuids[0])
  assert.ErrorIs(t, err, errNotConnected)
}

func TestHandle_DialHonoursDeadlineWhileQueued(t *testing.T) {
  h := &Handle{dialSem: semaphore.NewWeighted(1)}

  // another peer's dial in progress.
  require.NoError(t, h.dialSem.Acquire(context.Background(), 1))
  defer h.dialSem.Release(1)

  ctx, cancel := context.WithTimeout(context.Background(), 50 * time.Millisecond)
  defer cancel()

  started := time.Now()
  _, err := h.dial(ctx, ble.NewAddr("aa:bb:cc:dd:ee:ff"))

  assert.ErrorIs(t, err, context.DeadlineExceeded)
  assert.Less(t, time.Since(started), 500 * time.Millisecond)
}
