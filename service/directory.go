package service

import (
	"context"
	"iter"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"votechain/contracts"
	"votechain/models"
)

// Elections walks the registry lazily: one count read, then one detail read
// per step in index order. Nothing is cached between walks. A failed read is
// yielded once and ends the sequence.
func Elections(ctx context.Context, reg contracts.Registry, registry common.Address) iter.Seq2[models.Election, error] {
	return func(yield func(models.Election, error) bool) {
		count, err := reg.ElectionCount(ctx)
		if err != nil {
			yield(models.Election{}, err)
			return
		}
		for i := uint64(0); i < count; i++ {
			details, err := reg.ElectionDetails(ctx, i)
			if err != nil {
				yield(models.Election{}, err)
				return
			}
			election, err := toElection(i, details, registry)
			if err != nil {
				yield(models.Election{}, err)
				return
			}
			if !yield(election, nil) {
				return
			}
		}
	}
}

// unixSeconds converts an on-chain second count to an instant.
func unixSeconds(v *big.Int) (time.Time, bool) {
	if v == nil || !v.IsInt64() || v.Sign() < 0 || v.Int64() > math.MaxInt64/1000 {
		return time.Time{}, false
	}
	return time.UnixMilli(v.Int64() * 1000), true
}

func toElection(id uint64, d *contracts.ElectionDetails, registry common.Address) (models.Election, error) {
	start, ok1 := unixSeconds(d.StartTime)
	end, ok2 := unixSeconds(d.EndTime)
	if !ok1 || !ok2 {
		return models.Election{}, models.NewContractCallError("getElectionDetails", errors.Errorf("election %d: timestamp out of range", id))
	}
	if start.After(end) {
		return models.Election{}, models.NewContractCallError("getElectionDetails", errors.Errorf("election %d: start after end", id))
	}
	return models.Election{
		ID:               id,
		Position:         d.Position,
		Region:           d.Region,
		StartTime:        start,
		EndTime:          end,
		IsActive:         d.IsActive,
		VoterRollRoot:    d.VoterRollRoot,
		VoteTokenAddress: d.VoteTokenAddress,
		BallotBoxAddress: d.BallotBoxAddress,
		RegistryAddress:  registry,
	}, nil
}

// ElectionDirectory holds the last loaded election list and the selection.
type ElectionDirectory struct {
	mu        sync.RWMutex
	elections []models.Election
	selected  *models.Election
}

func NewElectionDirectory() *ElectionDirectory {
	return &ElectionDirectory{}
}

// Load replaces the list wholesale; on failure the previous list is kept.
func (d *ElectionDirectory) Load(ctx context.Context, reg contracts.Registry, registry common.Address) ([]models.Election, error) {
	loaded := make([]models.Election, 0)
	for election, err := range Elections(ctx, reg, registry) {
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, election)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.elections = loaded
	if d.selected != nil {
		if e, ok := find(loaded, d.selected.ID); ok {
			d.selected = &e
		} else {
			d.selected = nil
		}
	}
	return d.listLocked(), nil
}

func (d *ElectionDirectory) List() []models.Election {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listLocked()
}

func (d *ElectionDirectory) listLocked() []models.Election {
	return append([]models.Election{}, d.elections...)
}

// Select makes id the selected election. changed is false when it already was.
func (d *ElectionDirectory) Select(id uint64) (election models.Election, changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := find(d.elections, id)
	if !ok {
		return models.Election{}, false, models.NewValidationError("election_id", "unknown election")
	}
	changed = d.selected == nil || d.selected.ID != id
	d.selected = &e
	return e, changed, nil
}

func (d *ElectionDirectory) Selected() (models.Election, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.selected == nil {
		return models.Election{}, false
	}
	return *d.selected, true
}

func (d *ElectionDirectory) ClearSelection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = nil
}

func find(elections []models.Election, id uint64) (models.Election, bool) {
	for _, e := range elections {
		if e.ID == id {
			return e, true
		}
	}
	return models.Election{}, false
}
