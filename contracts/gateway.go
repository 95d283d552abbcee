package contracts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"votechain/logger"
	"votechain/models"
	"votechain/wallet"
)

var ErrReverted = errors.New("transaction reverted")

// ElectionDetails is the raw registry record for one election.
type ElectionDetails struct {
	Position         string
	Region           string
	StartTime        *big.Int
	EndTime          *big.Int
	IsActive         bool
	VoteTokenAddress common.Address
	BallotBoxAddress common.Address
	VoterRollRoot    common.Hash
}

// Registry is the election registry surface.
type Registry interface {
	ElectionCount(ctx context.Context) (uint64, error)
	ElectionDetails(ctx context.Context, index uint64) (*ElectionDetails, error)
	CreateElection(ctx context.Context, position, region string, start, end int64) error
	RegisterVoter(ctx context.Context, electionID uint64, proof []common.Hash, voterHash common.Hash) error
	HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error)
	AddCandidate(ctx context.Context, electionID uint64, name string, number uint64, party string) error
	SetVoterRoll(ctx context.Context, electionID uint64, root common.Hash) error
	Candidates(ctx context.Context, electionID uint64) ([]models.Candidate, error)
}

// VoteToken is the eligibility token surface of one election.
type VoteToken interface {
	HasVoted(ctx context.Context, account common.Address) (bool, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// BallotBox is the ballot surface of one election.
type BallotBox interface {
	VoteBasic(ctx context.Context, candidateID uint64, blinding [32]byte) error
	Results(ctx context.Context) (candidateIDs []*big.Int, voteCounts []*big.Int, err error)
}

// Contracts hands out typed handles bound to one signer.
type Contracts interface {
	RegistryAddress() common.Address
	Registry() Registry
	VoteToken(address common.Address) VoteToken
	BallotBox(address common.Address) BallotBox
}

// Factory builds the contract handles for a signer.
type Factory func(signer *wallet.Signer, registry common.Address) (Contracts, error)

// Gateway binds the three contracts to the session signer.
type Gateway struct {
	signer   *wallet.Signer
	registry common.Address
}

func NewGateway(signer *wallet.Signer, registry common.Address) (*Gateway, error) {
	if registry == (common.Address{}) {
		return nil, models.ConfigError("registry.address")
	}
	if signer == nil || signer.Backend == nil {
		return nil, models.ErrNotConnected
	}
	return &Gateway{signer: signer, registry: registry}, nil
}

// NewContracts is the Factory for on-chain contracts.
func NewContracts(signer *wallet.Signer, registry common.Address) (Contracts, error) {
	g, err := NewGateway(signer, registry)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) RegistryAddress() common.Address { return g.registry }

func (g *Gateway) Registry() Registry {
	return &registryContract{g.bind(g.registry, registryABI)}
}

func (g *Gateway) VoteToken(address common.Address) VoteToken {
	return &voteTokenContract{g.bind(address, voteTokenABI)}
}

func (g *Gateway) BallotBox(address common.Address) BallotBox {
	return &ballotBoxContract{g.bind(address, ballotBoxABI)}
}

func (g *Gateway) bind(address common.Address, parsed abi.ABI) *boundContract {
	b := g.signer.Backend
	return &boundContract{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, b, b, b),
		signer:   g.signer,
	}
}

type boundContract struct {
	address  common.Address
	contract *bind.BoundContract
	signer   *wallet.Signer
}

func (b *boundContract) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(b.signer.CallOpts(ctx), &out, method, params...); err != nil {
		return nil, models.NewContractCallError(method, err)
	}
	return out, nil
}

// transact submits the transaction and blocks until it is mined. A call is
// only complete once the receipt reports success.
func (b *boundContract) transact(ctx context.Context, method string, params ...interface{}) error {
	log := logger.GetLogger()
	start := time.Now()

	tx, err := b.contract.Transact(b.signer.TransactOpts(ctx), method, params...)
	if err != nil {
		if errors.Is(err, models.ErrUserRejected) {
			return err
		}
		return models.NewContractCallError(method, err)
	}
	log.Debugw("transaction submitted", "method", method, "contract", b.address.Hex(), "tx", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, b.signer.Backend, tx)
	if err != nil {
		return models.NewContractCallError(method, errors.Wrap(err, "confirmation failed"))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return models.NewContractCallError(method, errors.Wrapf(ErrReverted, "tx %s", tx.Hash().Hex()))
	}

	log.Infow("transaction confirmed", "method", method, "tx", tx.Hash().Hex(),
		"block", receipt.BlockNumber, "elapsed", time.Since(start))
	return nil
}

func decodeErr(method string, reason string) error {
	return models.NewContractCallError(method, errors.Errorf("unexpected output: %s", reason))
}

func toUint64(method string, v interface{}) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return 0, decodeErr(method, "expected uint256")
	}
	if !n.IsUint64() {
		return 0, decodeErr(method, "value overflows uint64")
	}
	return n.Uint64(), nil
}
