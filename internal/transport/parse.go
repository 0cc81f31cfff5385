package transport

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
)

// sessionIDKeys are tried in order to find the session a push item is about.
var sessionIDKeys = []string{"session_id", "sessionId", "id"}

// ParseMessage turns one push stream message into zero or more snapshots.
// Accepted shapes:
//
//	{"type":"update","message":{...}}        single update (server consumer envelope)
//	{"type":"update","messages":[{...}]}     batch
//	{...}                                    bare update
//	[{...}, {...}]                           bare batch
//
// Envelopes with another type, or whose message is not an object or array,
// carry no session state and yield no snapshots. Any malformed item makes
// the whole message an ErrParse; the caller drops it and keeps the channel.
// Returned snapshots are not stamped.
func ParseMessage(data []byte) ([]model.Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", model.ErrParse)
	}
	root := gjson.ParseBytes(data)

	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		payload := root
		if typ := root.Get("type"); typ.Exists() {
			if typ.String() != "update" {
				return nil, nil
			}
			switch {
			case root.Get("message").Exists():
				payload = root.Get("message")
			case root.Get("messages").Exists():
				payload = root.Get("messages")
			default:
				return nil, fmt.Errorf("%w: update without message", model.ErrParse)
			}
		}
		switch {
		case payload.IsArray():
			items = payload.Array()
		case payload.IsObject():
			items = []gjson.Result{payload}
		default:
			// e.g. a plain text notice from the server.
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: unexpected top-level %s", model.ErrParse, root.Type)
	}

	snaps := make([]model.Snapshot, 0, len(items))
	for i, item := range items {
		snap, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func parseItem(item gjson.Result) (model.Snapshot, error) {
	if !item.IsObject() {
		return model.Snapshot{}, fmt.Errorf("%w: update is not an object", model.ErrParse)
	}

	var id string
	for _, key := range sessionIDKeys {
		v := item.Get(key)
		if v.Exists() && (v.Type == gjson.String || v.Type == gjson.Number) && v.String() != "" {
			id = v.String()
			break
		}
	}
	if id == "" {
		return model.Snapshot{}, fmt.Errorf("%w: update has no session id", model.ErrParse)
	}

	var st client.SessionStatus
	if err := json.Unmarshal([]byte(item.Raw), &st); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: session %s: %w", model.ErrParse, id, err)
	}
	return st.Snapshot(id)
}
