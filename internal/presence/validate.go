package presence

import (
	"math"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/tidwall/gjson"
)

var (
	errInvalidState = state.Reject(state.CodeInvalidPlayerState, "position and rotation must be {x,y,z} numbers")
	errInvalidMedia = state.Reject(state.CodeInvalidPayload, "media flags must be an object")
)

// ParseState validates an inbound player state. Position and rotation must be objects
// with finite numeric x, y and z. Inventory may be omitted or null; otherwise it must be
// an array and only its string entries are kept.
func ParseState(raw []byte) (state.PlayerState, error) {
	if !gjson.ValidBytes(raw) {
		return state.PlayerState{}, errInvalidState
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return state.PlayerState{}, errInvalidState
	}

	pos, ok := parseVec3(doc.Get("position"))
	if !ok {
		return state.PlayerState{}, errInvalidState
	}
	rot, ok := parseVec3(doc.Get("rotation"))
	if !ok {
		return state.PlayerState{}, errInvalidState
	}

	inventory := []string{}
	inv := doc.Get("inventory")
	if inv.Exists() && inv.Type != gjson.Null {
		if !inv.IsArray() {
			return state.PlayerState{}, state.Reject(state.CodeInvalidPlayerState, "inventory must be an array")
		}
		for _, item := range inv.Array() {
			if item.Type == gjson.String {
				inventory = append(inventory, item.String())
			}
		}
	}
	return state.PlayerState{Position: pos, Rotation: rot, Inventory: inventory}, nil
}

func parseVec3(v gjson.Result) (state.Vec3, bool) {
	if !v.IsObject() {
		return state.Vec3{}, false
	}
	var out [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		n := v.Get(axis)
		if n.Type != gjson.Number {
			return state.Vec3{}, false
		}
		f := n.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return state.Vec3{}, false
		}
		out[i] = f
	}
	return state.Vec3{X: out[0], Y: out[1], Z: out[2]}, true
}

// ParseMedia reads media flags. The microphone is muted only when micMuted is true and
// the camera is enabled unless cameraEnabled is false. Anything but an object is rejected.
func ParseMedia(raw []byte) (state.MediaState, error) {
	if !gjson.ValidBytes(raw) {
		return state.MediaState{}, errInvalidMedia
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return state.MediaState{}, errInvalidMedia
	}
	return state.MediaState{
		MicMuted:      doc.Get("micMuted").Type == gjson.True,
		CameraEnabled: doc.Get("cameraEnabled").Type != gjson.False,
	}, nil
}
