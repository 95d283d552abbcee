package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"votechain/contracts"
	"votechain/models"
)

// ZipResults pairs ids and counts by position. Order is kept as returned.
// Names and numbers are attached when the candidate is known.
func ZipResults(ids, counts []*big.Int, candidates []models.Candidate) ([]models.VoteResult, error) {
	if len(ids) != len(counts) {
		return nil, models.NewContractCallError("getResults", errors.Errorf("%d ids but %d counts", len(ids), len(counts)))
	}
	byID := make(map[uint64]models.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	results := make([]models.VoteResult, len(ids))
	for i := range ids {
		if ids[i] == nil || counts[i] == nil || !ids[i].IsUint64() || !counts[i].IsUint64() {
			return nil, models.NewContractCallError("getResults", errors.Errorf("entry %d out of range", i))
		}
		r := models.VoteResult{CandidateID: ids[i].Uint64(), Votes: counts[i].Uint64()}
		if c, ok := byID[r.CandidateID]; ok {
			number := c.Number
			r.CandidateName = c.Name
			r.CandidateNumber = &number
		}
		results[i] = r
	}
	return results, nil
}

// ResultsViewer holds the tallies of one election's ballot box.
type ResultsViewer struct {
	ballot contracts.BallotBox

	mu       sync.Mutex
	results  []models.VoteResult
	seq      uint64
	detached bool
}

func NewResultsViewer(ballot contracts.BallotBox) *ResultsViewer {
	return &ResultsViewer{ballot: ballot}
}

// Load fetches the tallies and replaces the previous set. When loads
// overlap, only the most recently started one is kept.
func (r *ResultsViewer) Load(ctx context.Context, candidates []models.Candidate) ([]models.VoteResult, error) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	ids, counts, err := r.ballot.Results(ctx)
	if err != nil {
		return nil, err
	}
	results, err := ZipResults(ids, counts, candidates)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return nil, models.ErrStale
	}
	if seq == r.seq {
		r.results = results
	}
	return append([]models.VoteResult(nil), results...), nil
}

func (r *ResultsViewer) Results() []models.VoteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.VoteResult(nil), r.results...)
}

func (r *ResultsViewer) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.results = nil
}
