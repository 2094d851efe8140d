package signaling

import (
	"github.com/pion/webrtc/v3"
)

// answerFromString wraps a raw SDP string as an answer. Every SDP the
// client sends to this SFU is an answer: the SFU always initiates the
// offer for both publisher and consumer peer connections.
func answerFromString(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
}

func toICECandidateInit(c ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
