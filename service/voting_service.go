package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"votechain/contracts"
	"votechain/encryption"
	"votechain/logger"
	"votechain/models"
	"votechain/wallet"
)

// VotingService ties the wallet session to the contract flows. The session
// is passed in explicitly; derived state (admin flag, voter status, results)
// is dropped whenever the account or the selected election changes.
type VotingService struct {
	session   *wallet.Session
	factory   contracts.Factory
	registry  common.Address
	crypto    *encryption.CryptoService
	directory *ElectionDirectory
	admin     *AdminFlow
	location  *time.Location
	metrics   *MetricsCollector
	log       *zap.SugaredLogger

	mu         sync.Mutex
	voter      *VoterFlow
	results    *ResultsViewer
	generation uint64
}

type Option func(*VotingService)

func WithCryptoService(cs *encryption.CryptoService) Option {
	return func(s *VotingService) { s.crypto = cs }
}

func WithLocation(loc *time.Location) Option {
	return func(s *VotingService) { s.location = loc }
}

// NewVotingService wires the flows. registry may be the zero address, in
// which case every connect attempt fails with a configuration error.
func NewVotingService(session *wallet.Session, factory contracts.Factory, registry common.Address, opts ...Option) *VotingService {
	s := &VotingService{
		session:   session,
		factory:   factory,
		registry:  registry,
		crypto:    encryption.NewCryptoService(),
		directory: NewElectionDirectory(),
		metrics:   NewMetricsCollector(),
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.admin = NewAdminFlow(s.crypto, s.location)
	session.OnAccountChange(s.handleAccountChange)
	return s
}

func (s *VotingService) handleAccountChange(change wallet.AccountChange) {
	s.resetFlows()
	if change.Current == nil {
		s.directory.ClearSelection()
		return
	}
	if change.Previous != nil && change.Current != nil {
		go func() {
			if _, err := s.RefreshAdmin(context.Background()); err != nil && !errors.Is(err, models.ErrStale) {
				s.log.Warnw("admin re-check after account switch failed", "error", err)
			}
		}()
	}
}

func (s *VotingService) resetFlows() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetFlowsLocked()
}

func (s *VotingService) resetFlowsLocked() {
	if s.voter != nil {
		s.voter.Detach()
	}
	if s.results != nil {
		s.results.Detach()
	}
	s.voter = nil
	s.results = nil
}

// run is the operation boundary: loading is always cleared, failures are
// logged once and recorded as the session's last error. Discarded stale
// results are not failures and leave the last error alone.
func (s *VotingService) run(op string, fn func() error) error {
	done := s.session.Track()
	defer done()

	start := time.Now()
	err := fn()
	s.metrics.Observe(op, start, err)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStale):
			s.log.Infow("result discarded", "op", op, "error", err)
			return err
		case models.IsValidation(err):
			s.log.Warnw("rejected input", "op", op, "error", err)
		default:
			s.log.Errorw("operation failed", "op", op, "error", err)
		}
		s.session.SetError(err)
		return err
	}
	s.session.SetError(nil)
	return nil
}

func (s *VotingService) contracts() (contracts.Contracts, *wallet.Signer, uint64, error) {
	if s.registry == (common.Address{}) {
		return nil, nil, 0, models.ConfigError("registry.address")
	}
	signer, gen, err := s.session.Signer()
	if err != nil {
		return nil, nil, 0, err
	}
	c, err := s.factory(signer, s.registry)
	if err != nil {
		return nil, nil, 0, err
	}
	return c, signer, gen, nil
}

// Connect checks configuration, connects the wallet, then derives the
// admin flag and loads elections. Failures of the follow-ups are logged and
// leave the connection in place.
func (s *VotingService) Connect(ctx context.Context) (models.AppState, error) {
	err := s.run("connect", func() error {
		if s.registry == (common.Address{}) {
			return models.ConfigError("registry.address")
		}
		account, err := s.session.Connect(ctx)
		if err != nil {
			return err
		}
		s.log.Infow("wallet connected", "account", account.Hex())
		return nil
	})
	if err != nil {
		return s.session.State(), err
	}

	if _, err := s.RefreshAdmin(ctx); err != nil {
		s.log.Warnw("admin check after connect failed", "error", err)
	}
	if _, err := s.LoadElections(ctx); err != nil {
		s.log.Warnw("election load after connect failed", "error", err)
	}
	return s.session.State(), nil
}

func (s *VotingService) Disconnect() {
	s.session.Disconnect()
	s.directory.ClearSelection()
	s.log.Infow("wallet disconnected")
}

func (s *VotingService) State() models.AppState {
	return s.session.State()
}

// RefreshAdmin re-evaluates the role for the current account.
func (s *VotingService) RefreshAdmin(ctx context.Context) (bool, error) {
	var isAdmin bool
	err := s.run("is_admin", func() error {
		c, signer, gen, err := s.contracts()
		if err != nil {
			return err
		}
		isAdmin, err = s.admin.IsAdmin(ctx, c.Registry(), signer.Address)
		if err != nil {
			return err
		}
		return s.session.SetAdmin(gen, isAdmin)
	})
	return isAdmin, err
}

func (s *VotingService) LoadElections(ctx context.Context) ([]models.Election, error) {
	var elections []models.Election
	err := s.run("load_elections", func() error {
		c, _, _, err := s.contracts()
		if err != nil {
			return err
		}
		elections, err = s.directory.Load(ctx, c.Registry(), s.registry)
		return err
	})
	return elections, err
}

func (s *VotingService) Elections() []models.Election {
	return s.directory.List()
}

func (s *VotingService) SelectedElection() (models.Election, bool) {
	return s.directory.Selected()
}

// SelectElection switches the selection. State tied to the previous election
// is dropped before anything is loaded for the new one.
func (s *VotingService) SelectElection(ctx context.Context, id uint64) (models.Election, error) {
	var election models.Election
	err := s.run("select_election", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var changed bool
		var err error
		election, changed, err = s.directory.Select(id)
		if err != nil {
			return err
		}
		if changed {
			s.resetFlowsLocked()
		}
		return nil
	})
	if err != nil {
		return election, err
	}

	if _, err := s.VoterStatus(ctx); err != nil {
		s.log.Warnw("voter status after selection failed", "election", id, "error", err)
	}
	if _, err := s.Candidates(ctx); err != nil {
		s.log.Warnw("candidates after selection failed", "election", id, "error", err)
	}
	if _, err := s.RefreshResults(ctx); err != nil {
		s.log.Warnw("results after selection failed", "election", id, "error", err)
	}
	return election, nil
}

// flows returns the voter and results flows for the current account and
// selection, building fresh ones when either changed. Selection changes take
// s.mu too, so flows are never built for an election that is no longer selected.
func (s *VotingService) flows() (*VoterFlow, *ResultsViewer, error) {
	election, ok := s.directory.Selected()
	if !ok {
		return nil, nil, models.ErrNoElectionSelected
	}
	c, signer, gen, err := s.contracts()
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.directory.Selected()
	if !ok {
		return nil, nil, models.ErrNoElectionSelected
	}
	if current.ID != election.ID || s.session.Generation() != gen {
		return nil, nil, models.ErrStale
	}
	if s.voter != nil && s.generation == gen &&
		s.voter.Election().ID == election.ID && s.voter.Account() == signer.Address {
		return s.voter, s.results, nil
	}
	if s.voter != nil {
		s.voter.Detach()
	}
	if s.results != nil {
		s.results.Detach()
	}
	s.voter = NewVoterFlow(c, signer.Address, election, s.crypto)
	s.results = NewResultsViewer(c.BallotBox(election.BallotBoxAddress))
	s.generation = gen
	return s.voter, s.results, nil
}

func (s *VotingService) VoterStatus(ctx context.Context) (models.VoterStatus, error) {
	var status models.VoterStatus
	err := s.run("voter_status", func() error {
		voter, _, err := s.flows()
		if err != nil {
			return err
		}
		status, err = voter.CheckStatus(ctx)
		return err
	})
	return status, err
}

func (s *VotingService) Candidates(ctx context.Context) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := s.run("candidates", func() error {
		voter, _, err := s.flows()
		if err != nil {
			return err
		}
		candidates = voter.LoadCandidates(ctx)
		return nil
	})
	return candidates, err
}

// RegisterVoter validates the identity before touching the session.
func (s *VotingService) RegisterVoter(ctx context.Context, identity string) (models.VoterStatus, error) {
	var status models.VoterStatus
	err := s.run("register_voter", func() error {
		if strings.TrimSpace(identity) == "" {
			return models.NewValidationError("voter_hash", "identity is required")
		}
		voter, _, err := s.flows()
		if err != nil {
			return err
		}
		if err := voter.Register(ctx, identity); err != nil {
			return err
		}
		status = voter.Status()
		return nil
	})
	return status, err
}

func (s *VotingService) Vote(ctx context.Context, candidateID uint64) (models.VoterStatus, error) {
	var status models.VoterStatus
	err := s.run("vote", func() error {
		if candidateID == 0 {
			return models.NewValidationError("candidate_id", "select a candidate")
		}
		voter, _, err := s.flows()
		if err != nil {
			return err
		}
		if err := voter.Vote(ctx, candidateID); err != nil {
			return err
		}
		status = voter.Status()
		return nil
	})
	return status, err
}

// RefreshResults reloads the tallies of the selected election.
func (s *VotingService) RefreshResults(ctx context.Context) ([]models.VoteResult, error) {
	var results []models.VoteResult
	err := s.run("results", func() error {
		voter, viewer, err := s.flows()
		if err != nil {
			return err
		}
		candidates := voter.Candidates()
		if len(candidates) == 0 {
			candidates = voter.LoadCandidates(ctx)
		}
		results, err = viewer.Load(ctx, candidates)
		return err
	})
	return results, err
}

// Results returns the last loaded tallies for the current selection.
func (s *VotingService) Results() []models.VoteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	selected, ok := s.directory.Selected()
	if !ok || s.voter == nil || s.results == nil || s.voter.Election().ID != selected.ID {
		return []models.VoteResult{}
	}
	return s.results.Results()
}

// CreateElection submits a new election and reloads the directory on success.
func (s *VotingService) CreateElection(ctx context.Context, form models.ElectionForm) ([]models.Election, error) {
	err := s.run("create_election", func() error {
		if _, _, err := s.admin.ValidateElection(form); err != nil {
			return err
		}
		c, _, _, err := s.contracts()
		if err != nil {
			return err
		}
		return s.admin.CreateElection(ctx, c.Registry(), form)
	})
	if err != nil {
		return nil, err
	}
	return s.LoadElections(ctx)
}

func (s *VotingService) AddCandidate(ctx context.Context, form models.CandidateForm) error {
	return s.run("add_candidate", func() error {
		c, _, _, err := s.contracts()
		if err != nil {
			return err
		}
		return s.admin.AddCandidate(ctx, c.Registry(), form)
	})
}

func (s *VotingService) SetVoterRoll(ctx context.Context, electionID uint64, root string) error {
	err := s.run("set_voter_roll", func() error {
		c, _, _, err := s.contracts()
		if err != nil {
			return err
		}
		return s.admin.SetVoterRoll(ctx, c.Registry(), electionID, root)
	})
	if err != nil {
		return err
	}
	if _, err := s.LoadElections(ctx); err != nil {
		s.log.Warnw("election reload after voter roll update failed", "error", err)
	}
	return nil
}

func (s *VotingService) Metrics() map[string]OperationMetrics {
	return s.metrics.Snapshot()
}
