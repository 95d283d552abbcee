// File: api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"votechain/logger"
	"votechain/models"
	"votechain/service"
	"votechain/wallet"
)

// AccountSwitcher is implemented by wallets that let the user pick or hide
// accounts from this side. Browser-style providers do not.
type AccountSwitcher interface {
	Accounts() []common.Address
	Select(account common.Address) error
	Lock()
	Unlock()
}

type Server struct {
	svc      *service.VotingService
	switcher AccountSwitcher
	mux      *http.ServeMux
	srv      *http.Server
	log      *zap.SugaredLogger
}

type SelectElectionRequest struct {
	ID uint64 `json:"id"`
}

type RegisterVoterRequest struct {
	VoterHash string `json:"voter_hash"`
}

type CastVoteRequest struct {
	CandidateID uint64 `json:"candidate_id"`
}

type SwitchAccountRequest struct {
	Account string `json:"account"`
}

type VoterRollRequest struct {
	ElectionID uint64 `json:"election_id"`
	Root       string `json:"root"`
}

// ActionResponse is returned by every state-changing endpoint.
type ActionResponse struct {
	Notification models.Notification `json:"notification"`
	State        models.AppState     `json:"state"`
	Data         interface{}         `json:"data,omitempty"`
}

type ElectionView struct {
	models.Election
	Status   models.ElectionStatus `json:"status"`
	Selected bool                  `json:"selected"`
}

type ElectionsResponse struct {
	Elections []ElectionView `json:"elections"`
}

type VoterStatusResponse struct {
	ElectionID uint64             `json:"election_id"`
	Status     models.VoterStatus `json:"status"`
}

type ResultsResponse struct {
	ElectionID uint64              `json:"election_id"`
	Results    []models.VoteResult `json:"results"`
	Total      uint64              `json:"total_votes"`
}

type AccountsResponse struct {
	Accounts []common.Address `json:"accounts"`
}

func NewServer(svc *service.VotingService, provider wallet.Provider) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
		log: logger.GetLogger(),
	}
	if sw, ok := provider.(AccountSwitcher); ok {
		s.switcher = sw
	}

	s.mux.HandleFunc("/api/wallet/connect", s.handleConnect)
	s.mux.HandleFunc("/api/wallet/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/wallet/accounts", s.handleAccounts)
	s.mux.HandleFunc("/api/wallet/lock", s.handleLock)
	s.mux.HandleFunc("/api/wallet/unlock", s.handleUnlock)
	s.mux.HandleFunc("/api/session", s.handleSession)

	s.mux.HandleFunc("/api/elections", s.handleGetElections)
	s.mux.HandleFunc("/api/elections/refresh", s.handleRefreshElections)
	s.mux.HandleFunc("/api/elections/select", s.handleSelectElection)

	s.mux.HandleFunc("/api/candidates", s.handleGetCandidates)
	s.mux.HandleFunc("/api/voter/status", s.handleVoterStatus)
	s.mux.HandleFunc("/api/voter/register", s.handleRegisterVoter)
	s.mux.HandleFunc("/api/voter/vote", s.handleCastVote)

	s.mux.HandleFunc("/api/results", s.handleGetResults)
	s.mux.HandleFunc("/api/results/refresh", s.handleRefreshResults)

	s.mux.HandleFunc("/api/admin/elections", s.handleCreateElection)
	s.mux.HandleFunc("/api/admin/candidates", s.handleAddCandidate)
	s.mux.HandleFunc("/api/admin/voter-roll", s.handleSetVoterRoll)

	s.mux.HandleFunc("/api/metrics", s.handleGetMetrics)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed after a clean stop.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("starting HTTP server", "addr", addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNoElectionSelected),
		errors.Is(err, models.ErrOperationInFlight),
		errors.Is(err, models.ErrStale):
		return http.StatusConflict
	case errors.Is(err, models.ErrContractCallFailed):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func notify(kind models.NotificationType, message string) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		Type:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := models.NotifyError
	if models.IsValidation(err) || errors.Is(err, models.ErrStale) {
		kind = models.NotifyWarning
	}
	writeJSON(w, statusFor(err), ActionResponse{
		Notification: notify(kind, err.Error()),
		State:        s.svc.State(),
	})
}

func (s *Server) writeAction(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, ActionResponse{
		Notification: notify(models.NotifySuccess, message),
		State:        s.svc.State(),
		Data:         data,
	})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	state, err := s.svc.Connect(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Wallet connected", state)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.svc.Disconnect()
	s.writeAction(w, "Wallet disconnected", nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.State())
}

// handleAccounts lists wallet accounts on GET and switches the active one on POST.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if s.switcher == nil {
		http.Error(w, "Wallet does not support account switching", http.StatusNotImplemented)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, AccountsResponse{Accounts: s.switcher.Accounts()})
	case http.MethodPost:
		var req SwitchAccountRequest
		if !decode(w, r, &req) {
			return
		}
		if !common.IsHexAddress(req.Account) {
			s.writeError(w, models.NewValidationError("account", "not a valid address"))
			return
		}
		if err := s.switcher.Select(common.HexToAddress(req.Account)); err != nil {
			s.writeError(w, models.NewValidationError("account", err.Error()))
			return
		}
		s.writeAction(w, "Account switch requested", nil)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.switcher == nil {
		http.Error(w, "Wallet does not support locking", http.StatusNotImplemented)
		return
	}
	s.switcher.Lock()
	s.writeAction(w, "Wallet locked", nil)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.switcher == nil {
		http.Error(w, "Wallet does not support locking", http.StatusNotImplemented)
		return
	}
	s.switcher.Unlock()
	s.writeAction(w, "Wallet unlocked", nil)
}

func (s *Server) electionsView() ElectionsResponse {
	now := time.Now()
	selected, hasSelection := s.svc.SelectedElection()
	elections := s.svc.Elections()
	views := make([]ElectionView, len(elections))
	for i, e := range elections {
		views[i] = ElectionView{
			Election: e,
			Status:   e.Status(now),
			Selected: hasSelection && selected.ID == e.ID,
		}
	}
	return ElectionsResponse{Elections: views}
}

func (s *Server) handleGetElections(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.electionsView())
}

func (s *Server) handleRefreshElections(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if _, err := s.svc.LoadElections(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Elections loaded", s.electionsView())
}

func (s *Server) handleSelectElection(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req SelectElectionRequest
	if !decode(w, r, &req) {
		return
	}
	election, err := s.svc.SelectElection(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Election selected", election)
}

func (s *Server) handleGetCandidates(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	candidates, err := s.svc.Candidates(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) handleVoterStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	status, err := s.svc.VoterStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	election, _ := s.svc.SelectedElection()
	writeJSON(w, http.StatusOK, VoterStatusResponse{ElectionID: election.ID, Status: status})
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req RegisterVoterRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := s.svc.RegisterVoter(r.Context(), req.VoterHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Voter registered", VoterStatusResponse{Status: status})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req CastVoteRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := s.svc.Vote(r.Context(), req.CandidateID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Infow("vote cast", "candidate", req.CandidateID)
	s.writeAction(w, "Vote cast", VoterStatusResponse{Status: status})
}

func resultsResponse(election models.Election, results []models.VoteResult) ResultsResponse {
	var total uint64
	for _, r := range results {
		total += r.Votes
	}
	if results == nil {
		results = []models.VoteResult{}
	}
	return ResultsResponse{ElectionID: election.ID, Results: results, Total: total}
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	election, ok := s.svc.SelectedElection()
	if !ok {
		s.writeError(w, models.ErrNoElectionSelected)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse(election, s.svc.Results()))
}

func (s *Server) handleRefreshResults(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	results, err := s.svc.RefreshResults(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	election, _ := s.svc.SelectedElection()
	s.writeAction(w, "Results updated", resultsResponse(election, results))
}

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var form models.ElectionForm
	if !decode(w, r, &form) {
		return
	}
	if _, err := s.svc.CreateElection(r.Context(), form); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Election created", s.electionsView())
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var form models.CandidateForm
	if !decode(w, r, &form) {
		return
	}
	if err := s.svc.AddCandidate(r.Context(), form); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Candidate added", nil)
}

func (s *Server) handleSetVoterRoll(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req VoterRollRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.SetVoterRoll(r.Context(), req.ElectionID, req.Root); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAction(w, "Voter roll updated", nil)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Metrics())
}
