package relay

import (
	"math/rand"
	"time"
)

// Reconnect schedule: exponential from 1s to a 60s cap with +-50% jitter.
// The attempt counter resets once a connection stays open for 5 minutes.
const (
	backoffBase  = time.Second
	backoffCap   = 60 * time.Second
	backoffReset = 5 * time.Minute
)

func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	// jitter in [0.5, 1.5)
	f := 0.5 + rand.Float64()
	return time.Duration(float64(d) * f)
}
