package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"votechain/models"
)

type registryContract struct {
	*boundContract
}

func (r *registryContract) ElectionCount(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, "electionCount")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, decodeErr("electionCount", "expected one value")
	}
	return toUint64("electionCount", out[0])
}

func (r *registryContract) ElectionDetails(ctx context.Context, index uint64) (*ElectionDetails, error) {
	const method = "getElectionDetails"
	out, err := r.call(ctx, method, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, decodeErr(method, "expected eight values")
	}

	d := &ElectionDetails{}
	var ok [8]bool
	d.Position, ok[0] = out[0].(string)
	d.Region, ok[1] = out[1].(string)
	d.StartTime, ok[2] = out[2].(*big.Int)
	d.EndTime, ok[3] = out[3].(*big.Int)
	d.IsActive, ok[4] = out[4].(bool)
	d.VoteTokenAddress, ok[5] = out[5].(common.Address)
	d.BallotBoxAddress, ok[6] = out[6].(common.Address)
	var root [32]byte
	root, ok[7] = out[7].([32]byte)
	d.VoterRollRoot = common.Hash(root)
	for _, v := range ok {
		if !v {
			return nil, decodeErr(method, "field type mismatch")
		}
	}
	return d, nil
}

func (r *registryContract) CreateElection(ctx context.Context, position, region string, start, end int64) error {
	return r.transact(ctx, "createElection", position, region, big.NewInt(start), big.NewInt(end))
}

func (r *registryContract) RegisterVoter(ctx context.Context, electionID uint64, proof []common.Hash, voterHash common.Hash) error {
	path := make([][32]byte, len(proof))
	for i, p := range proof {
		path[i] = p
	}
	return r.transact(ctx, "registerVoter", new(big.Int).SetUint64(electionID), path, [32]byte(voterHash))
}

func (r *registryContract) HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	out, err := r.call(ctx, "hasRole", [32]byte(role), account)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, decodeErr("hasRole", "expected one value")
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, decodeErr("hasRole", "expected bool")
	}
	return has, nil
}

func (r *registryContract) AddCandidate(ctx context.Context, electionID uint64, name string, number uint64, party string) error {
	return r.transact(ctx, "addCandidate", new(big.Int).SetUint64(electionID), name, new(big.Int).SetUint64(number), party)
}

func (r *registryContract) SetVoterRoll(ctx context.Context, electionID uint64, root common.Hash) error {
	return r.transact(ctx, "setVoterRoll", new(big.Int).SetUint64(electionID), [32]byte(root))
}

func (r *registryContract) Candidates(ctx context.Context, electionID uint64) ([]models.Candidate, error) {
	const method = "getCandidates"
	out, err := r.call(ctx, method, new(big.Int).SetUint64(electionID))
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, decodeErr(method, "expected four values")
	}
	ids, ok1 := out[0].([]*big.Int)
	names, ok2 := out[1].([]string)
	numbers, ok3 := out[2].([]*big.Int)
	parties, ok4 := out[3].([]string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, decodeErr(method, "field type mismatch")
	}
	if len(names) != len(ids) || len(numbers) != len(ids) || len(parties) != len(ids) {
		return nil, decodeErr(method, "candidate lists differ in length")
	}

	candidates := make([]models.Candidate, len(ids))
	for i := range ids {
		id, err := toUint64(method, ids[i])
		if err != nil {
			return nil, err
		}
		number, err := toUint64(method, numbers[i])
		if err != nil {
			return nil, err
		}
		candidates[i] = models.Candidate{ID: id, Name: names[i], Number: number, Party: parties[i]}
	}
	return candidates, nil
}

type voteTokenContract struct {
	*boundContract
}

func (t *voteTokenContract) HasVoted(ctx context.Context, account common.Address) (bool, error) {
	out, err := t.call(ctx, "hasVoted", account)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, decodeErr("hasVoted", "expected one value")
	}
	voted, ok := out[0].(bool)
	if !ok {
		return false, decodeErr("hasVoted", "expected bool")
	}
	return voted, nil
}

func (t *voteTokenContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, decodeErr("balanceOf", "expected one value")
	}
	balance, ok := out[0].(*big.Int)
	if !ok || balance == nil {
		return nil, decodeErr("balanceOf", "expected uint256")
	}
	return balance, nil
}

type ballotBoxContract struct {
	*boundContract
}

func (b *ballotBoxContract) VoteBasic(ctx context.Context, candidateID uint64, blinding [32]byte) error {
	return b.transact(ctx, "voteBasic", new(big.Int).SetUint64(candidateID), blinding)
}

func (b *ballotBoxContract) Results(ctx context.Context) ([]*big.Int, []*big.Int, error) {
	out, err := b.call(ctx, "getResults")
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, decodeErr("getResults", "expected two lists")
	}
	ids, ok1 := out[0].([]*big.Int)
	counts, ok2 := out[1].([]*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, decodeErr("getResults", "field type mismatch")
	}
	return ids, counts, nil
}
