package service

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"votechain/contracts"
	"votechain/encryption"
	"votechain/logger"
	"votechain/models"
)

// DefaultCandidates is shown when the registry has no candidate data.
var DefaultCandidates = []models.Candidate{
	{ID: 1, Name: "Candidato A", Number: 123, Party: "PARTIDO A"},
	{ID: 2, Name: "Candidato B", Number: 456, Party: "PARTIDO B"},
	{ID: 3, Name: "Candidato C", Number: 789, Party: "PARTIDO C"},
}

// DeriveVoterStatus is the single place the status rule lives: a cast vote
// dominates any balance, and a positive balance means registered.
func DeriveVoterStatus(hasVoted bool, balance *big.Int) models.VoterStatus {
	if hasVoted {
		return models.VoterVoted
	}
	if balance != nil && balance.Sign() > 0 {
		return models.VoterRegistered
	}
	return models.VoterNotRegistered
}

// CheckVoterStatus reads the has-voted flag first and skips the balance read
// when it is set.
func CheckVoterStatus(ctx context.Context, token contracts.VoteToken, account common.Address) (models.VoterStatus, error) {
	voted, err := token.HasVoted(ctx, account)
	if err != nil {
		return models.VoterNotRegistered, err
	}
	if voted {
		return DeriveVoterStatus(true, nil), nil
	}
	balance, err := token.BalanceOf(ctx, account)
	if err != nil {
		return models.VoterNotRegistered, err
	}
	return DeriveVoterStatus(false, balance), nil
}

// VoterFlow drives registration and voting for one (account, election) pair.
// Once detached, results of calls still in flight are discarded.
type VoterFlow struct {
	account  common.Address
	election models.Election
	registry contracts.Registry
	token    contracts.VoteToken
	ballot   contracts.BallotBox
	crypto   *encryption.CryptoService

	mu         sync.Mutex
	status     models.VoterStatus
	candidates []models.Candidate
	inFlight   bool
	detached   bool
}

func NewVoterFlow(c contracts.Contracts, account common.Address, election models.Election, cs *encryption.CryptoService) *VoterFlow {
	return &VoterFlow{
		account:  account,
		election: election,
		registry: c.Registry(),
		token:    c.VoteToken(election.VoteTokenAddress),
		ballot:   c.BallotBox(election.BallotBoxAddress),
		crypto:   cs,
	}
}

func (f *VoterFlow) Account() common.Address   { return f.account }
func (f *VoterFlow) Election() models.Election { return f.election }

func (f *VoterFlow) Status() models.VoterStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// CheckStatus re-reads the token. The status never moves backwards.
func (f *VoterFlow) CheckStatus(ctx context.Context) (models.VoterStatus, error) {
	status, err := CheckVoterStatus(ctx, f.token, f.account)
	if err != nil {
		return f.Status(), err
	}
	return f.advance(status)
}

func (f *VoterFlow) advance(status models.VoterStatus) (models.VoterStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return f.status, models.ErrStale
	}
	f.status = f.status.Advance(status)
	return f.status, nil
}

// settle records the status reached by a confirmed write. The transaction is
// final either way, so a flow detached meanwhile still reports success.
func (f *VoterFlow) settle(op string, status models.VoterStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = f.status.Advance(status)
	if f.detached {
		logger.GetLogger().Infow("write confirmed after the session moved on",
			"op", op, "election", f.election.ID, "account", f.account.Hex())
	}
}

// Register submits the hashed identity as the registration leaf with an
// empty membership proof.
func (f *VoterFlow) Register(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return models.NewValidationError("voter_hash", "identity is required")
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	leaf := f.crypto.IdentityHash(identity)
	if err := f.registry.RegisterVoter(ctx, f.election.ID, []common.Hash{}, leaf); err != nil {
		return err
	}
	f.settle("register", models.VoterRegistered)
	return nil
}

// Vote casts a ballot for candidateID with a blinding value drawn for this
// attempt only. Candidate ids start at 1; zero means nothing was selected.
func (f *VoterFlow) Vote(ctx context.Context, candidateID uint64) error {
	if candidateID == 0 {
		return models.NewValidationError("candidate_id", "select a candidate")
	}
	if err := f.begin(); err != nil {
		return err
	}
	defer f.end()

	blinding, err := f.crypto.NewBlindingValue()
	if err != nil {
		return err
	}
	if err := f.ballot.VoteBasic(ctx, candidateID, blinding); err != nil {
		return err
	}
	f.settle("vote", models.VoterVoted)
	return nil
}

// LoadCandidates reads the candidate list, falling back to DefaultCandidates
// when the registry read fails or returns nothing.
func (f *VoterFlow) LoadCandidates(ctx context.Context) []models.Candidate {
	candidates, err := f.registry.Candidates(ctx, f.election.ID)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			logger.GetLogger().Warnw("candidate read failed, using fallback list",
				"election", f.election.ID, "error", err)
		}
		candidates = append([]models.Candidate(nil), DefaultCandidates...)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.detached {
		f.candidates = candidates
	}
	return append([]models.Candidate(nil), candidates...)
}

func (f *VoterFlow) Candidates() []models.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Candidate(nil), f.candidates...)
}

// Detach marks the flow as belonging to a previous account or selection.
func (f *VoterFlow) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}

func (f *VoterFlow) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return models.ErrStale
	}
	if f.inFlight {
		return models.ErrOperationInFlight
	}
	f.inFlight = true
	return nil
}

func (f *VoterFlow) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
}
