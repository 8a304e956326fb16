package call

import (
	"bytes"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

var ErrInvalidSignal = errors.New("señal WebRTC inválida")

// Signal is an opaque WebRTC handshake payload: a session description (offer, answer, pranswer,
// rollback) or an ICE candidate, either bare or wrapped as {"type":"candidate","candidate":{...}}.
type Signal json.RawMessage

func (s Signal) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	*s = append((*s)[0:0], data...)
	return nil
}

type signalProbe struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// Validate checks that s decodes as a pion session description or ICE candidate.
func (s Signal) Validate() error {
	data := bytes.TrimSpace(s)
	if len(data) == 0 || data[0] != '{' {
		return ErrInvalidSignal
	}

	var probe signalProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return ErrInvalidSignal
	}

	switch {
	case probe.Type != "" && probe.Type != "candidate":
		switch webrtc.NewSDPType(probe.Type) {
		case webrtc.SDPTypeOffer, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer, webrtc.SDPTypeRollback:
		default:
			return ErrInvalidSignal
		}
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(data, &desc); err != nil {
			return errors.Wrap(ErrInvalidSignal, err.Error())
		}
		if desc.Type != webrtc.SDPTypeRollback && desc.SDP == "" {
			return errors.Wrap(ErrInvalidSignal, "missing sdp")
		}
		return nil
	case len(probe.Candidate) > 0:
		var cand webrtc.ICECandidateInit
		src := data
		if probe.Candidate[0] == '{' { // wrapped candidate
			src = probe.Candidate
		}
		if err := json.Unmarshal(src, &cand); err != nil {
			return errors.Wrap(ErrInvalidSignal, err.Error())
		}
		return nil
	}
	return ErrInvalidSignal
}

// ICEServers builds the ICE configuration handed to clients.
func ICEServers(urls []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}
