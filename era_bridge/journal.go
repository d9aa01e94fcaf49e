package erabridge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/zkforge/zkvm-bridge/tracing"
)

// codeHash hashes deployed code the way the EVM journal reports it: the zero
// hash for code-less accounts, keccak otherwise.
func codeHash(code []byte) common.Hash {
	if len(code) == 0 {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(code)
}

// Journal is the mutable account/storage view both backends execute against.
// The host executor's state database satisfies it; tests use MemoryJournal.
// It is not safe for concurrent use, matching the strictly sequential
// execution model of a test session.
type Journal interface {
	Exist(addr common.Address) bool
	CreateAccount(addr common.Address)

	GetBalance(addr common.Address) *uint256.Int
	SetBalance(addr common.Address, balance *uint256.Int, reason tracing.BalanceChangeReason)

	GetNonce(addr common.Address) uint64
	SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason)

	GetCode(addr common.Address) []byte
	GetCodeHash(addr common.Address) common.Hash
	SetCode(addr common.Address, code []byte)

	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key, value common.Hash)
}

// StateReader is the read-only contract a forked network must satisfy. Reads
// are synchronous; the zk VM has no async model, so a slow read is treated as
// an ordinary, if slow, read.
type StateReader interface {
	Balance(addr common.Address) (*uint256.Int, error)
	Nonce(addr common.Address) (uint64, error)
	Code(addr common.Address) ([]byte, error)
	StorageAt(addr common.Address, key common.Hash) (common.Hash, error)
}

type memAccount struct {
	balance  uint256.Int
	nonce    uint64
	code     []byte
	codeHash common.Hash
	storage  map[common.Hash]common.Hash
}

// MemoryJournal is an in-memory Journal used by tests and by script sessions
// that do not fork a live network.
type MemoryJournal struct {
	accounts map[common.Address]*memAccount
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{accounts: make(map[common.Address]*memAccount)}
}

func (j *MemoryJournal) account(addr common.Address) *memAccount {
	acc, ok := j.accounts[addr]
	if !ok {
		acc = &memAccount{storage: make(map[common.Hash]common.Hash)}
		j.accounts[addr] = acc
	}
	return acc
}

func (j *MemoryJournal) Exist(addr common.Address) bool {
	_, ok := j.accounts[addr]
	return ok
}

func (j *MemoryJournal) CreateAccount(addr common.Address) {
	j.account(addr)
}

func (j *MemoryJournal) GetBalance(addr common.Address) *uint256.Int {
	if acc, ok := j.accounts[addr]; ok {
		return new(uint256.Int).Set(&acc.balance)
	}
	return new(uint256.Int)
}

func (j *MemoryJournal) SetBalance(addr common.Address, balance *uint256.Int, _ tracing.BalanceChangeReason) {
	j.account(addr).balance.Set(balance)
}

func (j *MemoryJournal) GetNonce(addr common.Address) uint64 {
	if acc, ok := j.accounts[addr]; ok {
		return acc.nonce
	}
	return 0
}

func (j *MemoryJournal) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	j.account(addr).nonce = nonce
}

func (j *MemoryJournal) GetCode(addr common.Address) []byte {
	if acc, ok := j.accounts[addr]; ok {
		return acc.code
	}
	return nil
}

func (j *MemoryJournal) GetCodeHash(addr common.Address) common.Hash {
	if acc, ok := j.accounts[addr]; ok {
		return acc.codeHash
	}
	return common.Hash{}
}

func (j *MemoryJournal) SetCode(addr common.Address, code []byte) {
	acc := j.account(addr)
	acc.code = append([]byte(nil), code...)
	acc.codeHash = codeHash(code)
}

func (j *MemoryJournal) GetState(addr common.Address, key common.Hash) common.Hash {
	if acc, ok := j.accounts[addr]; ok {
		return acc.storage[key]
	}
	return common.Hash{}
}

func (j *MemoryJournal) SetState(addr common.Address, key, value common.Hash) {
	j.account(addr).storage[key] = value
}
