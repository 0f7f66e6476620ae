package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer  MessageType = "offer"
	MsgTypeAnswer MessageType = "answer"
)

// Message is the JSON structure exchanged over the WebSocket during
// signaling. Token is a signal token as printed on the console.
type Message struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
}
