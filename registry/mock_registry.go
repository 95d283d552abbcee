package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"votechain/contracts"
	"votechain/encryption"
	"votechain/models"
	"votechain/wallet"
)

// MockRegistry keeps the three contract surfaces in memory. It applies the
// same checks the deployed contracts do: role gating, one registration per
// account and leaf, one vote per account, no reused blinding value.
type MockRegistry struct {
	mu        sync.RWMutex
	address   common.Address
	roles     map[common.Hash]map[common.Address]bool
	elections []*mockElection
	byToken   map[common.Address]*mockElection
	byBallot  map[common.Address]*mockElection
	calls     []string
	crypto    *encryption.CryptoService
}

type mockElection struct {
	id         uint64
	details    contracts.ElectionDetails
	candidates []models.Candidate
	balances   map[common.Address]*big.Int
	voted      map[common.Address]bool
	leaves     map[common.Hash]bool
	tally      map[uint64]uint64
	blindings  map[[32]byte]bool
}

// SeedData is the JSON layout accepted by LoadTestData.
type SeedData struct {
	Admins    []string       `json:"admins"`
	Elections []SeedElection `json:"elections"`
}

type SeedElection struct {
	Position      string             `json:"position"`
	Region        string             `json:"region"`
	StartTime     int64              `json:"start_time"`
	EndTime       int64              `json:"end_time"`
	IsActive      bool               `json:"is_active"`
	VoterRollRoot string             `json:"voter_roll_root"`
	Candidates    []models.Candidate `json:"candidates"`
	Registered    []string           `json:"registered"`
}

func NewMockRegistry(address common.Address) *MockRegistry {
	return &MockRegistry{
		address:  address,
		roles:    make(map[common.Hash]map[common.Address]bool),
		byToken:  make(map[common.Address]*mockElection),
		byBallot: make(map[common.Address]*mockElection),
		crypto:   encryption.NewCryptoService(),
	}
}

// LoadTestData seeds admins and elections from a JSON file.
func (m *MockRegistry) LoadTestData(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read seed file")
	}
	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "failed to parse seed file")
	}
	return m.Seed(seed)
}

func (m *MockRegistry) Seed(seed SeedData) error {
	for _, a := range seed.Admins {
		if !common.IsHexAddress(a) {
			return errors.Errorf("invalid admin address %q", a)
		}
		m.GrantRole(encryption.AdminRole, common.HexToAddress(a))
	}
	for _, e := range seed.Elections {
		id, err := m.addElection(e.Position, e.Region, e.StartTime, e.EndTime, e.IsActive)
		if err != nil {
			return err
		}
		m.mu.Lock()
		el := m.elections[id]
		if e.VoterRollRoot != "" {
			el.details.VoterRollRoot = common.HexToHash(e.VoterRollRoot)
		}
		el.candidates = append(el.candidates, e.Candidates...)
		for _, r := range e.Registered {
			el.balances[common.HexToAddress(r)] = big.NewInt(1)
		}
		m.mu.Unlock()
	}
	return nil
}

func (m *MockRegistry) GrantRole(label string, account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := m.crypto.RoleHash(label)
	if m.roles[role] == nil {
		m.roles[role] = make(map[common.Address]bool)
	}
	m.roles[role][account] = true
}

// Calls lists the contract methods invoked so far, in order.
func (m *MockRegistry) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRegistry) record(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *MockRegistry) addElection(position, region string, start, end int64, active bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint64(len(m.elections))
	el := &mockElection{
		id: id,
		details: contracts.ElectionDetails{
			Position:         position,
			Region:           region,
			StartTime:        big.NewInt(start),
			EndTime:          big.NewInt(end),
			IsActive:         active,
			VoteTokenAddress: crypto.CreateAddress(m.address, 2*id),
			BallotBoxAddress: crypto.CreateAddress(m.address, 2*id+1),
		},
		balances:  make(map[common.Address]*big.Int),
		voted:     make(map[common.Address]bool),
		leaves:    make(map[common.Hash]bool),
		tally:     make(map[uint64]uint64),
		blindings: make(map[[32]byte]bool),
	}
	m.elections = append(m.elections, el)
	m.byToken[el.details.VoteTokenAddress] = el
	m.byBallot[el.details.BallotBoxAddress] = el
	return id, nil
}

func revert(method, reason string) error {
	return models.NewContractCallError(method, errors.Wrap(contracts.ErrReverted, reason))
}

// Contracts is a contracts.Factory binding the in-memory contracts to the signer's account.
func (m *MockRegistry) Contracts(signer *wallet.Signer, registry common.Address) (contracts.Contracts, error) {
	if registry == (common.Address{}) {
		return nil, models.ConfigError("registry.address")
	}
	if signer == nil {
		return nil, models.ErrNotConnected
	}
	if registry != m.address {
		return nil, errors.Errorf("no registry deployed at %s", registry.Hex())
	}
	return &mockContracts{m: m, from: signer.Address}, nil
}

type mockContracts struct {
	m    *MockRegistry
	from common.Address
}

func (c *mockContracts) RegistryAddress() common.Address { return c.m.address }

func (c *mockContracts) Registry() contracts.Registry { return &mockRegistryHandle{c} }

func (c *mockContracts) VoteToken(address common.Address) contracts.VoteToken {
	return &mockTokenHandle{mockContracts: c, address: address}
}

func (c *mockContracts) BallotBox(address common.Address) contracts.BallotBox {
	return &mockBallotHandle{mockContracts: c, address: address}
}

type mockRegistryHandle struct{ *mockContracts }

func (r *mockRegistryHandle) ElectionCount(ctx context.Context) (uint64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("electionCount")
	return uint64(len(r.m.elections)), nil
}

func (r *mockRegistryHandle) ElectionDetails(ctx context.Context, index uint64) (*contracts.ElectionDetails, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("getElectionDetails(%d)", index)
	if index >= uint64(len(r.m.elections)) {
		return nil, revert("getElectionDetails", "election does not exist")
	}
	d := r.m.elections[index].details
	d.StartTime = new(big.Int).Set(d.StartTime)
	d.EndTime = new(big.Int).Set(d.EndTime)
	return &d, nil
}

func (r *mockRegistryHandle) isAdmin(account common.Address) bool {
	return r.m.roles[r.m.crypto.RoleHash(encryption.AdminRole)][account]
}

func (r *mockRegistryHandle) CreateElection(ctx context.Context, position, region string, start, end int64) error {
	r.m.mu.Lock()
	r.m.record("createElection")
	admin := r.isAdmin(r.from)
	r.m.mu.Unlock()
	if !admin {
		return revert("createElection", "caller is not an election admin")
	}
	if end < start {
		return revert("createElection", "end before start")
	}
	_, err := r.m.addElection(position, region, start, end, true)
	return err
}

func (r *mockRegistryHandle) RegisterVoter(ctx context.Context, electionID uint64, proof []common.Hash, voterHash common.Hash) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("registerVoter(%d)", electionID)
	if electionID >= uint64(len(r.m.elections)) {
		return revert("registerVoter", "election does not exist")
	}
	el := r.m.elections[electionID]
	if el.leaves[voterHash] {
		return revert("registerVoter", "voter hash already used")
	}
	if b := el.balances[r.from]; (b != nil && b.Sign() > 0) || el.voted[r.from] {
		return revert("registerVoter", "account already registered")
	}
	el.leaves[voterHash] = true
	el.balances[r.from] = big.NewInt(1)
	return nil
}

func (r *mockRegistryHandle) HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("hasRole")
	return r.m.roles[role][account], nil
}

func (r *mockRegistryHandle) AddCandidate(ctx context.Context, electionID uint64, name string, number uint64, party string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("addCandidate(%d)", electionID)
	if !r.isAdmin(r.from) {
		return revert("addCandidate", "caller is not an election admin")
	}
	if electionID >= uint64(len(r.m.elections)) {
		return revert("addCandidate", "election does not exist")
	}
	el := r.m.elections[electionID]
	el.candidates = append(el.candidates, models.Candidate{
		ID:     uint64(len(el.candidates)) + 1,
		Name:   name,
		Number: number,
		Party:  party,
	})
	return nil
}

func (r *mockRegistryHandle) SetVoterRoll(ctx context.Context, electionID uint64, root common.Hash) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("setVoterRoll(%d)", electionID)
	if !r.isAdmin(r.from) {
		return revert("setVoterRoll", "caller is not an election admin")
	}
	if electionID >= uint64(len(r.m.elections)) {
		return revert("setVoterRoll", "election does not exist")
	}
	r.m.elections[electionID].details.VoterRollRoot = root
	return nil
}

func (r *mockRegistryHandle) Candidates(ctx context.Context, electionID uint64) ([]models.Candidate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.record("getCandidates(%d)", electionID)
	if electionID >= uint64(len(r.m.elections)) {
		return nil, revert("getCandidates", "election does not exist")
	}
	return append([]models.Candidate(nil), r.m.elections[electionID].candidates...), nil
}

type mockTokenHandle struct {
	*mockContracts
	address common.Address
}

func (t *mockTokenHandle) election(method string) (*mockElection, error) {
	el, ok := t.m.byToken[t.address]
	if !ok {
		return nil, models.NewContractCallError(method, errors.Errorf("no contract at %s", t.address.Hex()))
	}
	return el, nil
}

func (t *mockTokenHandle) HasVoted(ctx context.Context, account common.Address) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.record("hasVoted")
	el, err := t.election("hasVoted")
	if err != nil {
		return false, err
	}
	return el.voted[account], nil
}

func (t *mockTokenHandle) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.record("balanceOf")
	el, err := t.election("balanceOf")
	if err != nil {
		return nil, err
	}
	if b := el.balances[account]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type mockBallotHandle struct {
	*mockContracts
	address common.Address
}

func (b *mockBallotHandle) election(method string) (*mockElection, error) {
	el, ok := b.m.byBallot[b.address]
	if !ok {
		return nil, models.NewContractCallError(method, errors.Errorf("no contract at %s", b.address.Hex()))
	}
	return el, nil
}

func (b *mockBallotHandle) VoteBasic(ctx context.Context, candidateID uint64, blinding [32]byte) error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	b.m.record("voteBasic(%d)", candidateID)
	el, err := b.election("voteBasic")
	if err != nil {
		return err
	}
	if el.voted[b.from] {
		return revert("voteBasic", "already voted")
	}
	if bal := el.balances[b.from]; bal == nil || bal.Sign() == 0 {
		return revert("voteBasic", "no vote token")
	}
	if el.blindings[blinding] {
		return revert("voteBasic", "blinding value reused")
	}
	if len(el.candidates) > 0 && !hasCandidate(el.candidates, candidateID) {
		return revert("voteBasic", "unknown candidate")
	}
	el.blindings[blinding] = true
	el.voted[b.from] = true
	el.balances[b.from] = new(big.Int)
	el.tally[candidateID]++
	return nil
}

func (b *mockBallotHandle) Results(ctx context.Context) ([]*big.Int, []*big.Int, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	b.m.record("getResults")
	el, err := b.election("getResults")
	if err != nil {
		return nil, nil, err
	}
	ids := make([]*big.Int, 0, len(el.candidates))
	counts := make([]*big.Int, 0, len(el.candidates))
	listed := make(map[uint64]bool, len(el.candidates))
	for _, c := range el.candidates {
		listed[c.ID] = true
		ids = append(ids, new(big.Int).SetUint64(c.ID))
		counts = append(counts, new(big.Int).SetUint64(el.tally[c.ID]))
	}
	var extra []uint64
	for id := range el.tally {
		if !listed[id] {
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, id := range extra {
		ids = append(ids, new(big.Int).SetUint64(id))
		counts = append(counts, new(big.Int).SetUint64(el.tally[id]))
	}
	return ids, counts, nil
}

func hasCandidate(candidates []models.Candidate, id uint64) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
