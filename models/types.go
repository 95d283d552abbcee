// File: models/types.go
package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ElectionStatus string

const (
	ElectionUpcoming ElectionStatus = "upcoming"
	ElectionEnded    ElectionStatus = "ended"
	ElectionInactive ElectionStatus = "inactive"
	ElectionActive   ElectionStatus = "active"
)

// Election is the client view of one registry entry. It is read-only once loaded.
type Election struct {
	ID               uint64         `json:"id"`
	Position         string         `json:"position"`
	Region           string         `json:"region"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	IsActive         bool           `json:"is_active"`
	VoterRollRoot    common.Hash    `json:"voter_roll_root"`
	VoteTokenAddress common.Address `json:"vote_token_address"`
	BallotBoxAddress common.Address `json:"ballot_box_address"`
	RegistryAddress  common.Address `json:"registry_address"`
}

// Status reports how the election should be presented at the given instant.
// The time window is checked before the active flag.
func (e Election) Status(now time.Time) ElectionStatus {
	if now.Before(e.StartTime) {
		return ElectionUpcoming
	}
	if now.After(e.EndTime) {
		return ElectionEnded
	}
	if !e.IsActive {
		return ElectionInactive
	}
	return ElectionActive
}

// AcceptsVotes is true only inside the window of an active election.
func (e Election) AcceptsVotes(now time.Time) bool {
	return e.Status(now) == ElectionActive
}

type Candidate struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Number uint64 `json:"number"`
	Party  string `json:"party"`
}

type VoteResult struct {
	CandidateID     uint64  `json:"candidate_id"`
	CandidateName   string  `json:"candidate_name,omitempty"`
	CandidateNumber *uint64 `json:"candidate_number,omitempty"`
	Votes           uint64  `json:"votes"`
}

// AppState is a point-in-time copy of the wallet session.
type AppState struct {
	Account     *common.Address `json:"account"`
	IsConnected bool            `json:"is_connected"`
	IsAdmin     bool            `json:"is_admin"`
	IsLoading   bool            `json:"is_loading"`
	Error       string          `json:"error,omitempty"`
}
