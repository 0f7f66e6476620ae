package signaling

// State is a step of the offer/answer exchange.
type State int

const (
	StateIdle State = iota
	StateWaitingForOffer
	StateOfferCreated
	StateAnswerCreated
	StateGatheringComplete
	StateLocalSet
	StateWaitingForAnswer
	StateRemoteSet
	StateReady
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateWaitingForOffer:   "waiting-for-offer",
	StateOfferCreated:      "offer-created",
	StateAnswerCreated:     "answer-created",
	StateGatheringComplete: "gathering-complete",
	StateLocalSet:          "local-set",
	StateWaitingForAnswer:  "waiting-for-answer",
	StateRemoteSet:         "remote-set",
	StateReady:             "ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
