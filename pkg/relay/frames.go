package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Client->relay frames: ["REQ", id, filters...], ["CLOSE", id],
// ["EVENT", event]. Relay->client: ["EVENT", id, event], ["EOSE", id],
// ["NOTICE", text], ["OK", event-id, accepted, message].

func encodeReq(subID string, filters []nostr.Filter) ([]byte, error) {
	arr := make([]interface{}, 0, 2+len(filters))
	arr = append(arr, "REQ", subID)
	for i := range filters {
		arr = append(arr, filters[i])
	}
	return json.Marshal(arr)
}

func encodeClose(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", subID})
}

func encodeEvent(ev *nostr.Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", ev})
}

// frame is a decoded relay->client message.
type frame struct {
	Kind string
	// Sub is the subscription id for EVENT/EOSE frames.
	Sub string
	// Raw is the unparsed event object for EVENT frames.
	Raw []byte
	// Text carries NOTICE text or OK messages.
	Text string
	// EventID and Accepted are set for OK frames.
	EventID  string
	Accepted bool
}

// decodeFrame parses a relay frame. Unknown labels yield an error; the
// caller drops the frame and increments a protocol metric.
func decodeFrame(data []byte) (frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return frame{}, fmt.Errorf("bad frame: %w", err)
	}
	if len(arr) == 0 {
		return frame{}, fmt.Errorf("bad frame: empty array")
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return frame{}, fmt.Errorf("bad frame label: %w", err)
	}
	switch label {
	case "EVENT":
		if len(arr) < 3 {
			return frame{}, fmt.Errorf("short EVENT frame")
		}
		var sub string
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return frame{}, fmt.Errorf("bad EVENT sub id: %w", err)
		}
		return frame{Kind: "EVENT", Sub: sub, Raw: append([]byte(nil), arr[2]...)}, nil
	case "EOSE":
		if len(arr) < 2 {
			return frame{}, fmt.Errorf("short EOSE frame")
		}
		var sub string
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return frame{}, fmt.Errorf("bad EOSE sub id: %w", err)
		}
		return frame{Kind: "EOSE", Sub: sub}, nil
	case "NOTICE":
		var text string
		if len(arr) >= 2 {
			_ = json.Unmarshal(arr[1], &text)
		}
		return frame{Kind: "NOTICE", Text: text}, nil
	case "OK":
		if len(arr) < 3 {
			return frame{}, fmt.Errorf("short OK frame")
		}
		var f frame
		f.Kind = "OK"
		if err := json.Unmarshal(arr[1], &f.EventID); err != nil {
			return frame{}, fmt.Errorf("bad OK event id: %w", err)
		}
		if err := json.Unmarshal(arr[2], &f.Accepted); err != nil {
			return frame{}, fmt.Errorf("bad OK accepted flag: %w", err)
		}
		if len(arr) >= 4 {
			_ = json.Unmarshal(arr[3], &f.Text)
		}
		return f, nil
	default:
		return frame{}, fmt.Errorf("unknown frame label %q", label)
	}
}
