package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	erabridge "github.com/zkforge/zkvm-bridge/era_bridge"
	eravm "github.com/zkforge/zkvm-bridge/era_vm"
)

// CallRequest is the backend-independent call/creation request the host
// test executor submits. A nil To is a contract creation.
type CallRequest struct {
	Caller   common.Address
	To       *common.Address
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64
}

// IsCreate reports whether the request creates a contract.
func (r *CallRequest) IsCreate() bool { return r.To == nil }

// ZkTransaction is the zk VM's transaction format. FactoryDeps are the
// bytecodes that must be registered with this transaction before its code
// can run.
type ZkTransaction struct {
	From        common.Address
	To          common.Address
	Value       *uint256.Int
	Data        []byte
	GasLimit    uint64
	Nonce       uint64
	FactoryDeps [][]byte
}

// ZkVM abstracts the alternate execution engine. Execute runs one
// transaction with the given observers attached to the instruction-dispatch
// loop and blocks until the VM terminates.
type ZkVM interface {
	Engine() string
	Execute(tx *ZkTransaction, observers ...eravm.ExecutionObserver) (*erabridge.ZkResult, error)
}

// EVMBackend abstracts the default execution engine this bridge switches
// away from. Its ordinary call/deploy machinery is an external collaborator;
// only the entry point is modeled here.
type EVMBackend interface {
	Engine() string
	Execute(req *CallRequest) (*erabridge.BridgedResult, error)
}
