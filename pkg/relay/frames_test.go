package relay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventFrame(t *testing.T) {
	raw := []byte(`["EVENT","sub1",{"id":"abc","kind":1,"content":"hi"}]`)
	f, err := decodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, "EVENT", f.Kind)
	require.Equal(t, "sub1", f.Sub)
	require.JSONEq(t, `{"id":"abc","kind":1,"content":"hi"}`, string(f.Raw))
}

func TestDecodeEOSEAndNotice(t *testing.T) {
	f, err := decodeFrame([]byte(`["EOSE","sub1"]`))
	require.NoError(t, err)
	require.Equal(t, "EOSE", f.Kind)
	require.Equal(t, "sub1", f.Sub)

	f, err = decodeFrame([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	require.Equal(t, "NOTICE", f.Kind)
	require.Equal(t, "slow down", f.Text)
}

func TestDecodeOKFrame(t *testing.T) {
	f, err := decodeFrame([]byte(`["OK","` + strings.Repeat("a", 64) + `",false,"blocked: spam"]`))
	require.NoError(t, err)
	require.Equal(t, "OK", f.Kind)
	require.Equal(t, strings.Repeat("a", 64), f.EventID)
	require.False(t, f.Accepted)
	require.Equal(t, "blocked: spam", f.Text)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[]`,
		`["AUTH","challenge"]`,
		`["EVENT"]`,
		`["OK","id"]`,
		`{"kind":"EVENT"}`,
	} {
		_, err := decodeFrame([]byte(raw))
		require.Error(t, err, "input %q", raw)
	}
}

func TestEncodeReqRoundTrips(t *testing.T) {
	limit := 10
	data, err := encodeReq("sub1", []nostr.Filter{{Kinds: []int{1, 1111}, Limit: limit}})
	require.NoError(t, err)

	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &arr))
	require.Len(t, arr, 3)
	var label, sub string
	require.NoError(t, json.Unmarshal(arr[0], &label))
	require.NoError(t, json.Unmarshal(arr[1], &sub))
	require.Equal(t, "REQ", label)
	require.Equal(t, "sub1", sub)
}
