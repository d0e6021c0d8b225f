package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"harbor/pkg/errs"
)

func eventID(suffix string) string {
	return strings.Repeat("0", 64-len(suffix)) + suffix
}

func TestPublishAllAccepted(t *testing.T) {
	tr := newPublishTracker()
	id := eventID("1")
	tr.track(id, []string{"wss://r1", "wss://r2"})

	tr.handleOK("wss://r1", id, true, "")
	tr.handleOK("wss://r2", id, true, "")

	res, err := tr.wait(id)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"wss://r1", "wss://r2"}, res.Accepted)
	require.Empty(t, res.Rejected)
	require.Empty(t, res.Pending)
}

func TestPublishPartialAcceptance(t *testing.T) {
	tr := newPublishTracker()
	id := eventID("2")
	tr.track(id, []string{"wss://r1", "wss://r2"})

	tr.handleOK("wss://r1", id, true, "")
	tr.handleOK("wss://r2", id, false, "blocked: rate limit")

	res, err := tr.wait(id)
	require.ErrorIs(t, err, errs.ErrPublishPartial)
	require.Equal(t, []string{"wss://r1"}, res.Accepted)
	require.Equal(t, "blocked: rate limit", res.Rejected["wss://r2"])
}

func TestPublishAllRejected(t *testing.T) {
	tr := newPublishTracker()
	id := eventID("3")
	tr.track(id, []string{"wss://r1"})

	tr.handleOK("wss://r1", id, false, "invalid: bad sig")

	res, err := tr.wait(id)
	require.ErrorIs(t, err, errs.ErrPublishRejected)
	require.Empty(t, res.Accepted)
}

func TestPublishIgnoresStrayOKs(t *testing.T) {
	tr := newPublishTracker()
	id := eventID("4")
	tr.track(id, []string{"wss://r1"})

	// OK from a relay we never sent to, and for an unknown event.
	tr.handleOK("wss://other", id, true, "")
	tr.handleOK("wss://r1", eventID("99"), true, "")
	tr.handleOK("wss://r1", id, true, "")

	res, err := tr.wait(id)
	require.NoError(t, err)
	require.Equal(t, []string{"wss://r1"}, res.Accepted)
}

func TestPublishDuplicateOKCountsOnce(t *testing.T) {
	tr := newPublishTracker()
	id := eventID("5")
	tr.track(id, []string{"wss://r1", "wss://r2"})

	tr.handleOK("wss://r1", id, true, "")
	tr.handleOK("wss://r1", id, true, "")
	tr.handleOK("wss://r2", id, true, "")

	res, err := tr.wait(id)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)
}

func TestWaitUnknownEvent(t *testing.T) {
	tr := newPublishTracker()
	_, err := tr.wait(eventID("6"))
	require.ErrorIs(t, err, errs.ErrPublishRejected)
}
