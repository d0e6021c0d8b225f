package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func trackerAt(start time.Time) (*healthTracker, *time.Time) {
	now := start
	h := newHealthTracker()
	h.now = func() time.Time { return now }
	return h, &now
}

func TestQuarantineRejectionRatio(t *testing.T) {
	h, _ := trackerAt(time.Unix(1000, 0))
	const relay = "wss://bad.example"

	// 197 good, 2 rejected inside one window: the 1% threshold is
	// crossed at the second rejection (2/199).
	for i := 0; i < 197; i++ {
		h.ReportAccepted(relay)
	}
	h.ReportRejected(relay, false)
	require.False(t, h.Quarantined(relay))
	h.ReportRejected(relay, false)
	require.True(t, h.Quarantined(relay))
}

func TestQuarantineNeedsMinimumVolume(t *testing.T) {
	h, _ := trackerAt(time.Unix(1000, 0))
	const relay = "wss://quiet.example"

	// One rejection out of ten events is 10%, but the sample is too
	// small to trip.
	for i := 0; i < 9; i++ {
		h.ReportAccepted(relay)
	}
	h.ReportRejected(relay, false)
	require.False(t, h.Quarantined(relay))
}

func TestQuarantineConsecutiveBadSignatures(t *testing.T) {
	h, _ := trackerAt(time.Unix(1000, 0))
	const relay = "wss://forged.example"

	for i := 0; i < 99; i++ {
		h.ReportRejected(relay, true)
	}
	require.False(t, h.Quarantined(relay))
	h.ReportRejected(relay, true)
	require.True(t, h.Quarantined(relay))
}

func TestQuarantineConsecutiveResetOnAccept(t *testing.T) {
	h, now := trackerAt(time.Unix(1000, 0))
	const relay = "wss://flaky.example"

	for i := 0; i < 99; i++ {
		h.ReportRejected(relay, true)
	}
	h.ReportAccepted(relay)
	// The window rolls so the ratio trip does not fire either.
	*now = now.Add(2 * time.Minute)
	h.ReportRejected(relay, true)
	require.False(t, h.Quarantined(relay))
}

func TestQuarantineExpires(t *testing.T) {
	h, now := trackerAt(time.Unix(1000, 0))
	const relay = "wss://bad.example"

	for i := 0; i < 100; i++ {
		h.ReportRejected(relay, true)
	}
	require.True(t, h.Quarantined(relay))
	*now = now.Add(quarantineDuration + time.Second)
	require.False(t, h.Quarantined(relay))
}

func TestQuarantineIsPerRelay(t *testing.T) {
	h, _ := trackerAt(time.Unix(1000, 0))
	for i := 0; i < 100; i++ {
		h.ReportRejected("wss://bad.example", true)
	}
	require.True(t, h.Quarantined("wss://bad.example"))
	require.False(t, h.Quarantined("wss://good.example"))
}

func TestQuarantineWindowRolls(t *testing.T) {
	h, now := trackerAt(time.Unix(1000, 0))
	const relay = "wss://slow-burn.example"

	// Rejections spread across windows never accumulate past the ratio.
	for i := 0; i < 10; i++ {
		for j := 0; j < 99; j++ {
			h.ReportAccepted(relay)
		}
		h.ReportRejected(relay, false)
		require.False(t, h.Quarantined(relay), fmt.Sprintf("window %d", i))
		*now = now.Add(quarantineWindow + time.Second)
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := backoffDelay(attempt)
		require.GreaterOrEqual(t, d, backoffBase/2)
		require.LessOrEqual(t, d, backoffCap+backoffCap/2)
	}
}

func TestBackoffGrows(t *testing.T) {
	// Jitter is +-50%, so attempt 6 (64s capped to 60s, min 30s) always
	// exceeds attempt 0 (1s, max 1.5s).
	require.Greater(t, backoffDelay(6), backoffDelay(0))
}
