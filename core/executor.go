package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/zkforge/zkvm-bridge/dualcompile"
	erabridge "github.com/zkforge/zkvm-bridge/era_bridge"
	eravm "github.com/zkforge/zkvm-bridge/era_vm"
	"github.com/zkforge/zkvm-bridge/tracing"
)

// Executor routes call/creation requests to the selected backend and keeps
// both backends' state views consistent across switches. It is the single
// entry point the host test executor talks to.
type Executor struct {
	cfg        Config
	registry   *dualcompile.Registry
	translator *erabridge.StateTranslator
	journal    erabridge.Journal
	cheat      *eravm.CheatcodeState
	env        erabridge.Env

	blockHashes map[uint64]common.Hash

	zk  ZkVM
	evm EVMBackend
}

// NewExecutor wires the dual-VM executor. The journal is the session's
// account/storage view; zk and evm are the two engines.
func NewExecutor(cfg Config, registry *dualcompile.Registry, journal erabridge.Journal, zk ZkVM, evm EVMBackend) *Executor {
	e := &Executor{
		cfg:         cfg.withDefaults(),
		registry:    registry,
		translator:  erabridge.NewStateTranslator(registry),
		journal:     journal,
		cheat:       eravm.NewCheatcodeState(),
		blockHashes: make(map[uint64]common.Hash),
		zk:          zk,
		evm:         evm,
	}
	if cfg.StartInZkVM {
		e.translator.SelectZkVM(journal, &e.env)
	}
	return e
}

// Engine returns a short identifier of the currently selected backend.
func (e *Executor) Engine() string {
	if e.translator.Mode() == erabridge.ModeZkVM {
		return e.zk.Engine()
	}
	return e.evm.Engine()
}

// CheatcodeState exposes the per-session cheatcode tables to the cheatcode
// dispatch layer (mockCall, expectCall, prank, ...).
func (e *Executor) CheatcodeState() *eravm.CheatcodeState { return e.cheat }

// Translator exposes persistence pinning (vm.makePersistent et al).
func (e *Executor) Translator() *erabridge.StateTranslator { return e.translator }

// Env returns the mutable block environment (roll/warp mutate it).
func (e *Executor) Env() *erabridge.Env { return &e.env }

// SetBlockHash records a historical block hash for BLOCKHASH emulation.
func (e *Executor) SetBlockHash(number uint64, hash common.Hash) {
	e.blockHashes[number] = hash
}

// SelectZkVM switches execution to the zk backend, translating persistent
// account state at the boundary. Callable as a cheatcode.
func (e *Executor) SelectZkVM() {
	e.translator.SelectZkVM(e.journal, &e.env)
}

// SelectEVM switches execution back to the EVM backend.
func (e *Executor) SelectEVM() {
	e.translator.SelectEVM(e.journal, &e.env)
}

// Call executes the request on the selected backend and returns the
// backend-independent result.
func (e *Executor) Call(req *CallRequest) (*erabridge.BridgedResult, error) {
	if e.translator.Mode() == erabridge.ModeEVM {
		return e.evm.Execute(req)
	}
	return e.zkCall(req)
}

// Create executes a contract creation from init code on the selected
// backend.
func (e *Executor) Create(caller common.Address, value *uint256.Int, initCode []byte, gasLimit uint64) (*erabridge.BridgedResult, error) {
	return e.Call(&CallRequest{Caller: caller, Value: value, Data: initCode, GasLimit: gasLimit})
}

func (e *Executor) zkCall(req *CallRequest) (*erabridge.BridgedResult, error) {
	e.env.Caller = req.Caller

	tx := &ZkTransaction{
		From:     req.Caller,
		Value:    req.Value,
		Data:     req.Data,
		GasLimit: req.GasLimit,
		Nonce:    e.journal.GetNonce(req.Caller),
	}

	if req.IsCreate() {
		found := e.registry.FindBytecode(req.Data)
		if found == nil {
			return nil, fmt.Errorf("no dual-compiled artifact matches the deployment bytecode (%d bytes); cannot execute creation on the zk VM", len(req.Data))
		}
		contract := found.Contract
		deps := e.registry.FetchAllFactoryDeps(contract)
		batches := dualcompile.BatchFactoryDeps(deps, e.cfg.BatchCeiling)

		// Every batch but the last is pre-registered through its own
		// dummy transaction; each consumes one nonce of the sender, in
		// order, before the real payload's nonce is computed.
		if n := len(batches); n > 0 {
			for _, batch := range batches[:n-1] {
				if err := e.sendFactoryDepBatch(req.Caller, batch, tx.Nonce); err != nil {
					return nil, err
				}
				tx.Nonce++
				e.journal.SetNonce(req.Caller, tx.Nonce, tracing.NonceChangeFactoryDepTx)
			}
			tx.FactoryDeps = batches[n-1]
		}
		tx.To = erabridge.ContractDeployerAddress
		data, err := encodeCreate(contract.ZkBytecodeHash, found.ConstructorArgs())
		if err != nil {
			return nil, err
		}
		tx.Data = data
		log.Debug("Dispatching zk creation", "contract", contract.Info, "deps", len(deps), "batches", len(batches))
	} else {
		tx.To = *req.To
	}

	ctx := eravm.CallContext{
		TxCaller:       req.Caller,
		MsgSender:      req.Caller,
		Target:         tx.To,
		BlockNumber:    e.env.BlockNumber,
		BlockTimestamp: e.env.BlockTimestamp,
		BlockBaseFee:   e.cfg.BaseFee,
		BlockHashes:    e.blockHashes,
		IsCreate:       req.IsCreate(),
	}
	tracer := eravm.NewCheatcodeTracer(ctx, e.cheat, e.journal.GetCode)

	res, err := e.zk.Execute(tx, tracer)
	if err != nil {
		return nil, err
	}
	if err := tracer.Finish(); err != nil {
		panic("core: tracer finalized twice: " + err.Error())
	}
	outcome, err := tracer.TakeOutcome()
	if err != nil {
		panic("core: tracer outcome unavailable after VM shutdown: " + err.Error())
	}
	e.mergeOutcome(outcome)

	return erabridge.BridgeResult(res, req.IsCreate(), e.journal.GetCode), nil
}

// sendFactoryDepBatch issues one empty-calldata, zero-value preparatory
// transaction whose only purpose is registering the batch's bytecodes.
func (e *Executor) sendFactoryDepBatch(from common.Address, batch [][]byte, nonce uint64) error {
	res, err := e.zk.Execute(&ZkTransaction{
		From:        from,
		To:          erabridge.FactoryDepSinkAddress,
		Value:       uint256.NewInt(0),
		Nonce:       nonce,
		FactoryDeps: batch,
	})
	if err != nil {
		return fmt.Errorf("factory dependency batch failed: %w", err)
	}
	if res.Status != erabridge.ZkSuccess {
		return fmt.Errorf("factory dependency batch rejected by the zk VM (status %d)", res.Status)
	}
	return nil
}

// mergeOutcome folds the tracer's published counts and immutables into the
// session cheatcode state.
func (e *Executor) mergeOutcome(outcome *eravm.TracerOutcome) {
	for addr, counts := range outcome.ExpectedCounts {
		expectations := e.cheat.ExpectedCalls()[addr]
		for i, n := range counts {
			if i < len(expectations) {
				expectations[i].Actual += n
			}
		}
	}
	e.cheat.MergeImmutables(outcome.Immutables)
}

// encodeCreate builds the ContractDeployer.create(bytes32,bytes32,bytes)
// calldata: zero salt, the contract's zk bytecode hash, and the constructor
// arguments sliced off the original init code.
func encodeCreate(bytecodeHash common.Hash, ctorArgs []byte) ([]byte, error) {
	data, err := createArgs.Pack([32]byte{}, [32]byte(bytecodeHash), ctorArgs)
	if err != nil {
		return nil, fmt.Errorf("encoding deployer calldata: %w", err)
	}
	return append(selCreate[:], data...), nil
}

var (
	selCreate  = eravm.Selector("create(bytes32,bytes32,bytes)")
	createArgs abi.Arguments
)

func init() {
	b32, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	byt, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	createArgs = abi.Arguments{{Type: b32}, {Type: b32}, {Type: byt}}
}
