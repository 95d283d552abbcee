package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const RegistryABI = `[
 {"type":"function","name":"electionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getElectionDetails","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[
   {"name":"position","type":"string"},
   {"name":"region","type":"string"},
   {"name":"startTime","type":"uint256"},
   {"name":"endTime","type":"uint256"},
   {"name":"isActive","type":"bool"},
   {"name":"voteTokenAddress","type":"address"},
   {"name":"ballotBoxAddress","type":"address"},
   {"name":"voterRollRoot","type":"bytes32"}]},
 {"type":"function","name":"createElection","stateMutability":"nonpayable","inputs":[
   {"name":"position","type":"string"},
   {"name":"region","type":"string"},
   {"name":"startTime","type":"uint256"},
   {"name":"endTime","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"registerVoter","stateMutability":"nonpayable","inputs":[
   {"name":"electionId","type":"uint256"},
   {"name":"proof","type":"bytes32[]"},
   {"name":"voterHash","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"hasRole","stateMutability":"view","inputs":[
   {"name":"role","type":"bytes32"},
   {"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"addCandidate","stateMutability":"nonpayable","inputs":[
   {"name":"electionId","type":"uint256"},
   {"name":"name","type":"string"},
   {"name":"number","type":"uint256"},
   {"name":"party","type":"string"}],"outputs":[]},
 {"type":"function","name":"setVoterRoll","stateMutability":"nonpayable","inputs":[
   {"name":"electionId","type":"uint256"},
   {"name":"root","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"getCandidates","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[
   {"name":"ids","type":"uint256[]"},
   {"name":"names","type":"string[]"},
   {"name":"numbers","type":"uint256[]"},
   {"name":"parties","type":"string[]"}]}
]`

const VoteTokenABI = `[
 {"type":"function","name":"hasVoted","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const BallotBoxABI = `[
 {"type":"function","name":"voteBasic","stateMutability":"nonpayable","inputs":[
   {"name":"candidateId","type":"uint256"},
   {"name":"secret","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"getResults","stateMutability":"view","inputs":[],"outputs":[
   {"name":"candidateIds","type":"uint256[]"},
   {"name":"voteCounts","type":"uint256[]"}]}
]`

var (
	registryABI  = mustParse(RegistryABI)
	voteTokenABI = mustParse(VoteTokenABI)
	ballotBoxABI = mustParse(BallotBoxABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
