package service_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"votechain/contracts"
	"votechain/models"
)

// callLog is shared by the fakes so tests can assert on ordering across contracts.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeRegistry struct {
	log        *callLog
	details    []*contracts.ElectionDetails
	countErr   error
	detailErr  map[uint64]error
	admin      bool
	candidates []models.Candidate
	candErr    error
	writeErr   error

	mu         sync.Mutex
	registered []registration
	created    [][2]int64
}

type registration struct {
	electionID uint64
	proof      []common.Hash
	leaf       common.Hash
}

func (r *fakeRegistry) ElectionCount(ctx context.Context) (uint64, error) {
	r.log.add("electionCount")
	if r.countErr != nil {
		return 0, r.countErr
	}
	return uint64(len(r.details)), nil
}

func (r *fakeRegistry) ElectionDetails(ctx context.Context, index uint64) (*contracts.ElectionDetails, error) {
	r.log.add("getElectionDetails(%d)", index)
	if err := r.detailErr[index]; err != nil {
		return nil, err
	}
	return r.details[index], nil
}

func (r *fakeRegistry) CreateElection(ctx context.Context, position, region string, start, end int64) error {
	r.log.add("createElection(%s,%s)", position, region)
	if r.writeErr != nil {
		return r.writeErr
	}
	r.mu.Lock()
	r.created = append(r.created, [2]int64{start, end})
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistry) RegisterVoter(ctx context.Context, electionID uint64, proof []common.Hash, voterHash common.Hash) error {
	r.log.add("registerVoter(%d)", electionID)
	if r.writeErr != nil {
		return r.writeErr
	}
	r.mu.Lock()
	r.registered = append(r.registered, registration{electionID, proof, voterHash})
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistry) HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	r.log.add("hasRole")
	return r.admin, nil
}

func (r *fakeRegistry) AddCandidate(ctx context.Context, electionID uint64, name string, number uint64, party string) error {
	r.log.add("addCandidate(%d,%s)", electionID, name)
	return r.writeErr
}

func (r *fakeRegistry) SetVoterRoll(ctx context.Context, electionID uint64, root common.Hash) error {
	r.log.add("setVoterRoll(%d)", electionID)
	return r.writeErr
}

func (r *fakeRegistry) Candidates(ctx context.Context, electionID uint64) ([]models.Candidate, error) {
	r.log.add("getCandidates(%d)", electionID)
	return r.candidates, r.candErr
}

type fakeToken struct {
	log     *callLog
	voted   bool
	balance *big.Int
	err     error
}

func (t *fakeToken) HasVoted(ctx context.Context, account common.Address) (bool, error) {
	t.log.add("hasVoted")
	return t.voted, t.err
}

func (t *fakeToken) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	t.log.add("balanceOf")
	return t.balance, t.err
}

type fakeBallot struct {
	log    *callLog
	ids    []*big.Int
	counts []*big.Int
	err    error

	// gate, when set, blocks Results until it is closed.
	gate     chan struct{}
	// voteGate, when set, blocks VoteBasic until it is closed.
	voteGate chan struct{}

	mu        sync.Mutex
	blindings [][32]byte
	votes     []uint64
}

func (b *fakeBallot) VoteBasic(ctx context.Context, candidateID uint64, blinding [32]byte) error {
	b.log.add("voteBasic(%d)", candidateID)
	if b.voteGate != nil {
		<-b.voteGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blindings = append(b.blindings, blinding)
	b.votes = append(b.votes, candidateID)
	return b.err
}

func (b *fakeBallot) Results(ctx context.Context) ([]*big.Int, []*big.Int, error) {
	b.log.add("getResults")
	if b.gate != nil {
		<-b.gate
	}
	return b.ids, b.counts, b.err
}

type fakeContracts struct {
	registry *fakeRegistry
	token    *fakeToken
	ballot   *fakeBallot
}

func newFakeContracts() *fakeContracts {
	log := &callLog{}
	return &fakeContracts{
		registry: &fakeRegistry{log: log, detailErr: map[uint64]error{}},
		token:    &fakeToken{log: log, balance: big.NewInt(0)},
		ballot:   &fakeBallot{log: log},
	}
}

func (c *fakeContracts) calls() []string { return c.registry.log.all() }

func (c *fakeContracts) RegistryAddress() common.Address {
	return registryAddr
}

func (c *fakeContracts) Registry() contracts.Registry {
	return c.registry
}

func (c *fakeContracts) VoteToken(common.Address) contracts.VoteToken {
	return c.token
}

func (c *fakeContracts) BallotBox(common.Address) contracts.BallotBox {
	return c.ballot
}

var registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func bigs(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}
