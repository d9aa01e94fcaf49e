// Package erabridge keeps the EVM and zk backends' views of account state
// consistent across VM switches, and converts zk execution outcomes into the
// EVM-shaped results the test harness consumes.
package erabridge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// zk system contract addresses (kernel space, 0x8000 range).
var (
	BootloaderAddress         = common.HexToAddress("0x0000000000000000000000000000000000008001")
	AccountCodeStorageAddress = common.HexToAddress("0x0000000000000000000000000000000000008002")
	NonceHolderAddress        = common.HexToAddress("0x0000000000000000000000000000000000008003")
	KnownCodesStorageAddress  = common.HexToAddress("0x0000000000000000000000000000000000008004")
	ImmutableSimulatorAddress = common.HexToAddress("0x0000000000000000000000000000000000008005")
	ContractDeployerAddress   = common.HexToAddress("0x0000000000000000000000000000000000008006")
	L1MessengerAddress        = common.HexToAddress("0x0000000000000000000000000000000000008008")
	MsgValueSimulatorAddress  = common.HexToAddress("0x0000000000000000000000000000000000008009")
	BaseTokenAddress          = common.HexToAddress("0x000000000000000000000000000000000000800a")
	SystemContextAddress      = common.HexToAddress("0x000000000000000000000000000000000000800b")
	EventWriterAddress        = common.HexToAddress("0x000000000000000000000000000000000000800d")
)

// Harness addresses.
var (
	// CheatcodeAddress is the reserved magic address cheatcode calls target.
	CheatcodeAddress = common.HexToAddress("0x7109709ECfa91a80626fF3989D68f67F5b1DD12D")
	// DefaultTestContractAddress is where the harness deploys the test
	// contract itself. Its code is never translated across VM switches.
	DefaultTestContractAddress = common.HexToAddress("0xb4c79daB8f259C7Aee6E5b2Aa729821864227e84")
	// FactoryDepSinkAddress receives the empty-calldata preparatory
	// transactions that pre-register factory-dependency bytecodes.
	FactoryDepSinkAddress = common.Address{}
)

// SystemContextBlockInfoSlot holds the packed (block number, timestamp) word
// inside the SystemContext system contract.
var SystemContextBlockInfoSlot = common.HexToHash("0x07")

// mappingKey derives the storage key of mapping[addr] rooted at slotIndex,
// per the Solidity storage layout: keccak256(pad32(key) ++ pad32(slot)).
func mappingKey(addr common.Address, slotIndex uint64) common.Hash {
	var buf [64]byte
	copy(buf[12:32], addr.Bytes())
	buf[63] = byte(slotIndex)
	return crypto.Keccak256Hash(buf[:])
}

// BalanceKey returns the BaseToken storage key holding addr's balance
// (balances mapping at slot 0).
func BalanceKey(addr common.Address) common.Hash {
	return mappingKey(addr, 0)
}

// NonceKey returns the NonceHolder storage key holding addr's packed nonce
// word (rawNonces mapping at slot 0).
func NonceKey(addr common.Address) common.Hash {
	return mappingKey(addr, 0)
}

// AccountCodeKey returns the AccountCodeStorage key holding addr's zk
// bytecode hash. The address itself, left-padded, is the key.
func AccountCodeKey(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
