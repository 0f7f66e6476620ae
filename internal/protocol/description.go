package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// EncodeDescription serializes a session description to JSON and encodes it
// as a signal token.
func EncodeDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("marshal session description: %w", err)
	}
	return Encode(string(data))
}

// DecodeDescription decodes a signal token produced by EncodeDescription.
// The description type is not checked here; callers validate it against
// their role.
func DecodeDescription(token string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription

	text, err := Decode(token)
	if err != nil {
		return desc, err
	}

	if err := json.Unmarshal([]byte(text), &desc); err != nil {
		return desc, &DecodeError{Stage: "json", Err: err}
	}

	return desc, nil
}
