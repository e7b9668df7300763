package tourrtc

import "fmt"

// State is the phase of a Peer's negotiation.
type State int

const (
	StateIdle State = iota
	StateMediaReady
	StateSignalingSubscribed
	StateWaitingForReady
	StateWaitingForOffer
	StateOfferSent
	StateAnswerSent
	StateConnected
	StateClosed
)

var stateNames = [...]string{
	StateIdle:                "IDLE",
	StateMediaReady:          "MEDIA_READY",
	StateSignalingSubscribed: "SIGNALING_SUBSCRIBED",
	StateWaitingForReady:     "WAITING_FOR_READY",
	StateWaitingForOffer:     "WAITING_FOR_OFFER",
	StateOfferSent:           "OFFER_SENT",
	StateAnswerSent:          "ANSWER_SENT",
	StateConnected:           "CONNECTED",
	StateClosed:              "CLOSED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists the legal successors of each state. StateClosed is
// reachable from everywhere and leads nowhere.
var transitions = map[State][]State{
	StateIdle:                {StateMediaReady},
	StateMediaReady:          {StateSignalingSubscribed},
	StateSignalingSubscribed: {StateWaitingForReady, StateWaitingForOffer},
	StateWaitingForReady:     {StateOfferSent},
	StateWaitingForOffer:     {StateAnswerSent},
	StateOfferSent:           {StateConnected},
	StateAnswerSent:          {StateConnected},
	StateConnected:           {},
	StateClosed:              {},
}

func canTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
