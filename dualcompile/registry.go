package dualcompile

import (
	"bytes"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// findCacheSize bounds the prefix-lookup cache. Lookups are linear over the
// registry, and the same init code is resolved repeatedly during a script
// (once per broadcastable call), so a small cache removes almost all rescans.
const findCacheSize = 256

// MatchType classifies how well a registry entry matched a fuzzy query.
type MatchType int

const (
	FullMatch MatchType = iota // path suffix and name both matched
	PathMatch
	NameMatch
)

// FindMatch is one ranked result of Registry.Find.
type FindMatch struct {
	Type     MatchType
	Contract *DualCompiledContract
}

// FindResult describes a bytecode prefix match. Input bytes beyond
// MatchedLen are the constructor arguments appended to the init code.
type FindResult struct {
	Contract   *DualCompiledContract
	Zk         bool // matched against the zk-side bytecode
	MatchedLen int
	input      []byte
}

// ConstructorArgs returns the bytes trailing the matched bytecode.
func (r *FindResult) ConstructorArgs() []byte {
	return r.input[r.MatchedLen:]
}

// Registry owns the dual-compiled contract collection for a session. It is
// read-heavy and append-only: linking may add entries mid-script, existing
// entries are never mutated in place.
type Registry struct {
	mu        sync.RWMutex
	contracts []*DualCompiledContract

	byZkHash      map[common.Hash]*DualCompiledContract
	byEvmCodeHash map[common.Hash]*DualCompiledContract
	// flatDeps is the decoded per-output bytecode-hash table: every zk
	// bytecode seen at construction or added via InsertFactoryDeps, keyed
	// by its content hash.
	flatDeps map[common.Hash][]byte

	findCache *lru.Cache[common.Hash, *FindResult]
}

// NewRegistry pairs every contract present in both compiler outputs by
// (stripped source path, name). Contracts present in only one output cannot
// be dual-compiled and are skipped; they must never be selected for zk
// execution.
func NewRegistry(evmOut map[ContractInfo]*EVMArtifact, zkOut map[ContractInfo]*ZkArtifact) *Registry {
	r := &Registry{
		byZkHash:      make(map[common.Hash]*DualCompiledContract),
		byEvmCodeHash: make(map[common.Hash]*DualCompiledContract),
		flatDeps:      make(map[common.Hash][]byte),
	}
	r.findCache, _ = lru.New[common.Hash, *FindResult](findCacheSize)

	// Decode the zk output's per-bytecode-hash table into a flat map first,
	// so dependency hashes can be resolved regardless of pairing order.
	zkByKey := make(map[ContractInfo]*ZkArtifact, len(zkOut))
	for info, art := range zkOut {
		key := ContractInfo{Path: stripPath(info.Path), Name: info.Name}
		zkByKey[key] = art
		r.flatDeps[art.BytecodeHash] = art.Bytecode
	}

	for info, evm := range evmOut {
		key := ContractInfo{Path: stripPath(info.Path), Name: info.Name}
		zk, ok := zkByKey[key]
		if !ok {
			log.Error("No zk artifact for contract, skipping dual registration", "path", info.Path, "name", info.Name)
			continue
		}
		c := pairContract(key, evm, zk, r.flatDeps)
		r.insertLocked(c)
		delete(zkByKey, key)
	}
	for key := range zkByKey {
		log.Error("No EVM artifact for contract, skipping dual registration", "path", key.Path, "name", key.Name)
	}
	return r
}

func pairContract(key ContractInfo, evm *EVMArtifact, zk *ZkArtifact, flat map[common.Hash][]byte) *DualCompiledContract {
	c := &DualCompiledContract{
		Info:                key,
		ZkBytecodeHash:      zk.BytecodeHash,
		ZkDeployedBytecode:  zk.Bytecode,
		ZkFactoryDepHashes:  append([]common.Hash(nil), zk.FactoryDepHashes...),
		EvmBytecodeHash:     crypto.Keccak256Hash(evm.DeployedBytecode),
		EvmDeployedBytecode: evm.DeployedBytecode,
		EvmBytecode:         evm.Bytecode,
	}
	// A contract's factory-dep list carries its own bytecode plus every
	// declared dependency that the hash table can resolve.
	c.ZkFactoryDeps = append(c.ZkFactoryDeps, zk.Bytecode)
	for _, h := range zk.FactoryDepHashes {
		dep, ok := flat[h]
		if !ok {
			log.Debug("Unresolved factory dependency hash", "contract", key, "hash", h)
			continue
		}
		c.ZkFactoryDeps = append(c.ZkFactoryDeps, dep)
	}
	return c
}

func (r *Registry) insertLocked(c *DualCompiledContract) {
	r.contracts = append(r.contracts, c)
	r.byZkHash[c.ZkBytecodeHash] = c
	r.byEvmCodeHash[c.EvmBytecodeHash] = c
	r.flatDeps[c.ZkBytecodeHash] = c.ZkDeployedBytecode
	r.findCache.Purge()
}

// Insert adds a single contract resolved after initial linking.
func (r *Registry) Insert(c *DualCompiledContract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(c)
}

// Extend adds a batch of contracts resolved after initial linking.
func (r *Registry) Extend(cs []*DualCompiledContract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		r.insertLocked(c)
	}
}

// InsertFactoryDeps registers additional hash->bytecode pairs so that nested
// dependencies of later-linked contracts resolve.
func (r *Registry) InsertFactoryDeps(deps map[common.Hash][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, b := range deps {
		r.flatDeps[h] = b
	}
}

// Len returns the number of registered dual-compiled contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}

// FindByEVMBytecode returns the entry whose EVM creation bytecode is a prefix
// of code. First match wins; ambiguity only arises for byte-identical
// contracts, which are interchangeable here.
func (r *Registry) FindByEVMBytecode(code []byte) *DualCompiledContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanEVMBytecode(code)
}

func (r *Registry) scanEVMBytecode(code []byte) *DualCompiledContract {
	for _, c := range r.contracts {
		if len(c.EvmBytecode) > 0 && bytes.HasPrefix(code, c.EvmBytecode) {
			return c
		}
	}
	return nil
}

// FindByZkDeployedBytecode returns the entry whose zk deployed bytecode is a
// prefix of code.
func (r *Registry) FindByZkDeployedBytecode(code []byte) *DualCompiledContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanZkBytecode(code)
}

func (r *Registry) scanZkBytecode(code []byte) *DualCompiledContract {
	for _, c := range r.contracts {
		if len(c.ZkDeployedBytecode) > 0 && bytes.HasPrefix(code, c.ZkDeployedBytecode) {
			return c
		}
	}
	return nil
}

// FindByZkBytecodeHash returns the entry with the given zk content hash.
func (r *Registry) FindByZkBytecodeHash(h common.Hash) *DualCompiledContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byZkHash[h]
}

// FindByEvmCodeHash returns the entry whose EVM deployed bytecode hashes
// (keccak) to h.
func (r *Registry) FindByEvmCodeHash(h common.Hash) *DualCompiledContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byEvmCodeHash[h]
}

// FindBytecode tries both directions against init code. When both sides
// match, the zk match wins if its bytecode is at least as long as the EVM
// match: the session's default intent is zk execution, and the longer prefix
// leaves the smaller constructor-argument remainder.
func (r *Registry) FindBytecode(initCode []byte) *FindResult {
	key := crypto.Keccak256Hash(initCode)
	if res, ok := r.findCache.Get(key); ok {
		return res
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var res *FindResult
	zk := r.scanZkBytecode(initCode)
	evm := r.scanEVMBytecode(initCode)
	switch {
	case zk != nil && (evm == nil || len(zk.ZkDeployedBytecode) >= len(evm.EvmBytecode)):
		res = &FindResult{Contract: zk, Zk: true, MatchedLen: len(zk.ZkDeployedBytecode), input: initCode}
	case evm != nil:
		res = &FindResult{Contract: evm, Zk: false, MatchedLen: len(evm.EvmBytecode), input: initCode}
	default:
		return nil
	}
	r.findCache.Add(key, res)
	return res
}

// FetchAllFactoryDeps walks the factory-dependency graph breadth-first and
// returns every transitively required bytecode exactly once. Cycles are cut
// by the visited set: a dependency is enqueued for expansion at most once.
func (r *Registry) FetchAllFactoryDeps(c *DualCompiledContract) [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := mapset.NewThreadUnsafeSet[common.Hash]()
	queue := []common.Hash{c.ZkBytecodeHash}
	queue = append(queue, c.ZkFactoryDepHashes...)

	var deps [][]byte
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if !visited.Add(h) {
			continue
		}
		code, ok := r.flatDeps[h]
		if !ok {
			log.Debug("Factory dependency bytecode unknown", "hash", h)
			continue
		}
		deps = append(deps, code)
		if nested := r.byZkHash[h]; nested != nil {
			queue = append(queue, nested.ZkFactoryDepHashes...)
		}
	}
	return deps
}

// Find resolves a possibly-partial contract reference. Matches are ranked:
// full (path suffix and name) before path-only before name-only, each tier
// internally unordered.
func (r *Registry) Find(path, name string) []FindMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var full, byPath, byName []FindMatch
	for _, c := range r.contracts {
		pathOK := path != "" && pathSuffixMatch(c.Info.Path, path)
		nameOK := name != "" && c.Info.Name == name
		switch {
		case pathOK && nameOK:
			full = append(full, FindMatch{Type: FullMatch, Contract: c})
		case pathOK:
			byPath = append(byPath, FindMatch{Type: PathMatch, Contract: c})
		case nameOK:
			byName = append(byName, FindMatch{Type: NameMatch, Contract: c})
		}
	}
	out := make([]FindMatch, 0, len(full)+len(byPath)+len(byName))
	out = append(out, full...)
	out = append(out, byPath...)
	out = append(out, byName...)
	return out
}

func pathSuffixMatch(registered, query string) bool {
	registered = stripPath(registered)
	query = stripPath(query)
	if registered == query {
		return true
	}
	return len(registered) > len(query) &&
		registered[len(registered)-len(query)-1] == '/' &&
		registered[len(registered)-len(query):] == query
}
