// Package dualcompile indexes contracts that were compiled by both the EVM
// toolchain and the zk toolchain from the same sources, and resolves the
// factory-dependency bytecodes the zk VM needs before such a contract can be
// deployed.
package dualcompile

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ContractInfo identifies a logical contract by its source location.
type ContractInfo struct {
	Path string // source file path, relative to the project root
	Name string
}

func (c ContractInfo) String() string {
	if c.Path == "" {
		return c.Name
	}
	return c.Path + ":" + c.Name
}

// EVMArtifact is the compiler output for one contract on the EVM side.
type EVMArtifact struct {
	Bytecode         []byte // creation bytecode
	DeployedBytecode []byte
}

// ZkArtifact is the compiler output for one contract on the zk side. The zk
// compiler emits, alongside the bytecode, the content hash and the set of
// bytecode hashes this contract depends on (its factory dependencies).
type ZkArtifact struct {
	Bytecode     []byte
	BytecodeHash common.Hash
	// FactoryDepHashes references other bytecodes by their zk content hash.
	// The hashes are resolved against the per-output hash table when the
	// registry is built.
	FactoryDepHashes []common.Hash
}

// DualCompiledContract pairs the two bytecodes produced for the same source
// artifact. The pairing happens once at link time and entries are immutable
// afterwards; the registry only ever grows.
type DualCompiledContract struct {
	Info ContractInfo

	ZkBytecodeHash     common.Hash
	ZkDeployedBytecode []byte
	// ZkFactoryDeps holds this contract's own bytecode plus every
	// dependency bytecode resolved at construction time. Nested deps are
	// discovered lazily via Registry.FetchAllFactoryDeps.
	ZkFactoryDeps [][]byte
	// ZkFactoryDepHashes is the dependency set as declared by the zk
	// compiler, by content hash.
	ZkFactoryDepHashes []common.Hash

	EvmBytecodeHash     common.Hash
	EvmDeployedBytecode []byte
	EvmBytecode         []byte // full creation bytecode
}

// stripPath reduces a compiler-reported source path to the suffix form used
// for pairing: both toolchains report the same file under different roots, so
// only the trailing path segments are comparable.
func stripPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	if i := strings.Index(p, "contracts/"); i >= 0 {
		return p[i:]
	}
	if i := strings.Index(p, "src/"); i >= 0 {
		return p[i:]
	}
	return p
}
