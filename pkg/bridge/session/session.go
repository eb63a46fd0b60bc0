// Package session defines the per-call state record shared by the two relay
// directions of a bridged call.
package session

import "strings"

// Session is the state of one bridged call. It is created by the admission
// endpoint, mutated by the orchestrator while the call is live, and deleted
// on teardown. Exactly one live orchestrator owns a given call id at a time;
// the store is the persistence mechanism, not a concurrent owner.
type Session struct {
	CallSID      string            `json:"callSid"`
	CallerNumber string            `json:"callerNumber"`
	FirstMessage string            `json:"firstMessage"`
	Transcript   string            `json:"transcript"`
	StreamSID    string            `json:"streamSid,omitempty"`
	CallDetails  map[string]string `json:"callDetails,omitempty"`
}

// AppendTranscript appends one turn as "{Role}: {text}\n" with the speaker
// role capitalized. The transcript is append-only for the session's life.
func (s *Session) AppendTranscript(role, text string) {
	if role == "" || text == "" {
		return
	}
	s.Transcript += capitalize(role) + ": " + text + "\n"
}

// Clone returns a deep copy so a stored snapshot cannot alias live state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.CallDetails != nil {
		out.CallDetails = make(map[string]string, len(s.CallDetails))
		for k, v := range s.CallDetails {
			out.CallDetails[k] = v
		}
	}
	return &out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
