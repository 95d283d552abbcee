package contracts_test

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"votechain/contracts"
	"votechain/wallet"
)

type recordedCall struct {
	To     common.Address
	Method string
	Args   []interface{}
}

// fakeBackend answers eth_call with canned ABI-encoded outputs and mines
// every sent transaction with the configured receipt status.
type fakeBackend struct {
	mu      sync.Mutex
	abis    map[common.Address]abi.ABI
	outputs map[string][]interface{}
	callErr map[string]error
	calls   []recordedCall
	sent    []recordedCall

	receiptStatus uint64
	receiptErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		abis:          make(map[common.Address]abi.ABI),
		outputs:       make(map[string][]interface{}),
		callErr:       make(map[string]error),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) register(addr common.Address, def string) {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	f.abis[addr] = parsed
}

func (f *fakeBackend) setOutput(method string, values ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[method] = values
}

func (f *fakeBackend) decode(to common.Address, data []byte) (*abi.Method, []interface{}, error) {
	parsed, ok := f.abis[to]
	if !ok {
		return nil, nil, errors.Errorf("no contract at %s", to.Hex())
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return m, args, nil
}

func (f *fakeBackend) methodCalls(name string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Method == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) sentTxs() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.sent...)
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m, args, err := f.decode(*call.To, call.Data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{To: *call.To, Method: m.Name, Args: args})
	if err := f.callErr[m.Name]; err != nil {
		return nil, err
	}
	values, ok := f.outputs[m.Name]
	if !ok {
		return nil, errors.Errorf("no output configured for %s", m.Name)
	}
	return m.Outputs.Pack(values...)
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m, args, err := f.decode(*tx.To(), tx.Data())
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedCall{To: *tx.To(), Method: m.Name, Args: args})
	return nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: txHash, BlockNumber: big.NewInt(2)}, nil
}

func newSigner(t *testing.T, backend wallet.Backend) *wallet.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	return wallet.NewSigner(opts.From, backend, opts.Signer)
}

var (
	registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tokenAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	ballotAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newGateway(t *testing.T) (*contracts.Gateway, *fakeBackend, *wallet.Signer) {
	t.Helper()
	backend := newFakeBackend()
	backend.register(registryAddr, contracts.RegistryABI)
	backend.register(tokenAddr, contracts.VoteTokenABI)
	backend.register(ballotAddr, contracts.BallotBoxABI)
	signer := newSigner(t, backend)
	g, err := contracts.NewGateway(signer, registryAddr)
	require.NoError(t, err)
	return g, backend, signer
}
