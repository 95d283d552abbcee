package models

import "encoding/json"

// VoterStatus is derived from the eligibility token and never stored.
// The ordering NotRegistered < Registered < Voted is meaningful.
type VoterStatus int

const (
	VoterNotRegistered VoterStatus = iota
	VoterRegistered
	VoterVoted
)

func (s VoterStatus) String() string {
	switch s {
	case VoterRegistered:
		return "registered"
	case VoterVoted:
		return "voted"
	default:
		return "not-registered"
	}
}

func (s VoterStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Advance returns the furthest of the two statuses. Once voted, always voted.
func (s VoterStatus) Advance(next VoterStatus) VoterStatus {
	if next > s {
		return next
	}
	return s
}

// ElectionForm is the raw admin input for a new election. Times are user text.
type ElectionForm struct {
	Position  string `json:"position"`
	Region    string `json:"region"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CandidateForm struct {
	ElectionID uint64 `json:"election_id"`
	Name       string `json:"name"`
	Number     uint64 `json:"number"`
	Party      string `json:"party"`
}
