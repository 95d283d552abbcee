package api_test

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votechain/api"
	"votechain/models"
	"votechain/registry"
	"votechain/service"
	"votechain/wallet"
)

const (
	adminKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	voterKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	voterAccount = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// browserWallet hides the key provider's switching methods.
type browserWallet struct{ wallet.Provider }

func newTestServer(t *testing.T, wrap bool, keys ...string) (*httptest.Server, *registry.MockRegistry) {
	t.Helper()
	mock := registry.NewMockRegistry(registryAddr)
	require.NoError(t, mock.LoadTestData(filepath.Join("..", "assets", "dev_seed.json")))

	kp, err := wallet.NewKeyProvider(nil, big.NewInt(1337), keys)
	require.NoError(t, err)
	var provider wallet.Provider = kp
	if wrap {
		provider = browserWallet{kp}
	}
	session := wallet.NewSession(provider)
	t.Cleanup(func() { _ = session.Close() })

	svc := service.NewVotingService(session, mock.Contracts, registryAddr, service.WithLocation(time.UTC))
	ts := httptest.NewServer(api.NewServer(svc, provider).Handler())
	t.Cleanup(ts.Close)
	return ts, mock
}

func do(t *testing.T, ts *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestVotingOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, false, voterKey)

	resp := do(t, ts, http.MethodPost, "/api/wallet/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var connected api.ActionResponse
	decodeBody(t, resp, &connected)
	assert.Equal(t, models.NotifySuccess, connected.Notification.Type)
	assert.NotEmpty(t, connected.Notification.ID)
	assert.True(t, connected.State.IsConnected)

	resp = do(t, ts, http.MethodGet, "/api/elections", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list api.ElectionsResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Elections, 2)
	assert.Equal(t, "Governor", list.Elections[0].Position)
	assert.Equal(t, models.ElectionEnded, list.Elections[1].Status)

	resp = do(t, ts, http.MethodPost, "/api/elections/select", api.SelectElectionRequest{ID: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/voter/register", api.RegisterVoterRequest{VoterHash: "12345678900"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/voter/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]interface{}
	decodeBody(t, resp, &status)
	assert.Equal(t, "registered", status["status"])

	resp = do(t, ts, http.MethodPost, "/api/voter/vote", api.CastVoteRequest{CandidateID: 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/results/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results api.ResultsResponse
	decodeBody(t, resp, &results)
	assert.Equal(t, uint64(1), results.Total)
	require.Len(t, results.Results, 3)
	assert.Equal(t, "Candidato C", results.Results[2].CandidateName)
	assert.Equal(t, uint64(1), results.Results[2].Votes)

	resp = do(t, ts, http.MethodPost, "/api/voter/vote", api.CastVoteRequest{CandidateID: 1})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	ts, mock := newTestServer(t, false, voterKey)

	resp := do(t, ts, http.MethodPost, "/api/admin/elections", models.ElectionForm{Position: "Senator"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body api.ActionResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.NotifyWarning, body.Notification.Type)
	assert.Contains(t, body.Notification.Message, "region")
	assert.Empty(t, mock.Calls())

	resp = do(t, ts, http.MethodPost, "/api/elections/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/results", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/elections/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/voter/vote", bytes.NewBufferString("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAdminOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, false, adminKey)
	resp := do(t, ts, http.MethodPost, "/api/wallet/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/admin/elections", models.ElectionForm{
		Position:  "Senator",
		Region:    "MG",
		StartTime: "2026-10-01T08:00",
		EndTime:   "2026-10-02T08:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		Data api.ElectionsResponse `json:"data"`
	}
	decodeBody(t, resp, &created)
	require.Len(t, created.Data.Elections, 3)

	resp = do(t, ts, http.MethodPost, "/api/admin/candidates", models.CandidateForm{
		ElectionID: 2, Name: "Fulano", Number: 10, Party: "PARTIDO D",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/admin/voter-roll", api.VoterRollRequest{ElectionID: 2, Root: "0x1234"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics map[string]service.OperationMetrics
	decodeBody(t, resp, &metrics)
	assert.Equal(t, 1, metrics["create_election"].Count)
	assert.Equal(t, 1, metrics["set_voter_roll"].Failures)
}

func TestAccountSwitchAndLock(t *testing.T) {
	ts, _ := newTestServer(t, false, adminKey, voterKey)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/wallet/connect", nil).StatusCode)

	resp := do(t, ts, http.MethodGet, "/api/wallet/accounts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accounts api.AccountsResponse
	decodeBody(t, resp, &accounts)
	assert.Len(t, accounts.Accounts, 2)

	resp = do(t, ts, http.MethodPost, "/api/wallet/accounts", api.SwitchAccountRequest{Account: voterAccount.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, func() bool {
		var st models.AppState
		decodeBody(t, do(t, ts, http.MethodGet, "/api/session", nil), &st)
		return st.Account != nil && *st.Account == voterAccount && !st.IsAdmin
	}, time.Second, 20*time.Millisecond)

	resp = do(t, ts, http.MethodPost, "/api/wallet/accounts", api.SwitchAccountRequest{Account: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/wallet/lock", nil).StatusCode)
	assert.Eventually(t, func() bool {
		var st models.AppState
		decodeBody(t, do(t, ts, http.MethodGet, "/api/session", nil), &st)
		return !st.IsConnected
	}, time.Second, 20*time.Millisecond)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/wallet/unlock", nil).StatusCode)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/wallet/connect", nil).StatusCode)
}

func TestSwitchingUnsupportedByBrowserWallet(t *testing.T) {
	ts, _ := newTestServer(t, true, voterKey)
	assert.Equal(t, http.StatusNotImplemented, do(t, ts, http.MethodGet, "/api/wallet/accounts", nil).StatusCode)
	assert.Equal(t, http.StatusNotImplemented, do(t, ts, http.MethodPost, "/api/wallet/lock", nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/wallet/connect", nil).StatusCode)
}
