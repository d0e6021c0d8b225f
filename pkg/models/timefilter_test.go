package models

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestTimeFilterCycleWrapsAround(t *testing.T) {
	order := []TimeFilter{
		TimeFilterNone, TimeFilterHour, TimeFilterFourHours,
		TimeFilterTwelveHours, TimeFilterDay, TimeFilterWeek,
	}
	f := TimeFilterNone
	for i := 1; i <= len(order); i++ {
		f = f.Cycle()
		require.Equal(t, order[i%len(order)], f)
	}
}

func TestTimeFilterLabels(t *testing.T) {
	require.Equal(t, "all", TimeFilterNone.Label())
	require.Equal(t, "1h", TimeFilterHour.Label())
	require.Equal(t, "4h", TimeFilterFourHours.Label())
	require.Equal(t, "12h", TimeFilterTwelveHours.Label())
	require.Equal(t, "24h", TimeFilterDay.Label())
	require.Equal(t, "7d", TimeFilterWeek.Label())
}

func TestTimeFilterAdmits(t *testing.T) {
	now := time.Now()
	fresh := nostr.Timestamp(now.Add(-30 * time.Minute).Unix())
	old := nostr.Timestamp(now.Add(-2 * time.Hour).Unix())

	require.True(t, TimeFilterNone.Admits(old, now))
	require.True(t, TimeFilterHour.Admits(fresh, now))
	require.False(t, TimeFilterHour.Admits(old, now))
	require.True(t, TimeFilterDay.Admits(old, now))
}
