package erabridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/zkforge/zkvm-bridge/tracing"
)

// RPCStateReader reads account state from a forked network over JSON-RPC.
// Reads are pinned to the fork block and are synchronous by design: the zk
// VM's dispatch loop has no async model, so a remote read is just a slow
// read.
type RPCStateReader struct {
	client *ethclient.Client
	ctx    context.Context
	block  *big.Int
}

// NewRPCStateReader dials url and pins reads to blockNumber.
func NewRPCStateReader(ctx context.Context, url string, blockNumber uint64) (*RPCStateReader, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing fork endpoint %s", url)
	}
	return &RPCStateReader{
		client: client,
		ctx:    ctx,
		block:  new(big.Int).SetUint64(blockNumber),
	}, nil
}

// Close releases the underlying RPC connection.
func (r *RPCStateReader) Close() {
	r.client.Close()
}

func (r *RPCStateReader) Balance(addr common.Address) (*uint256.Int, error) {
	bal, err := r.client.BalanceAt(r.ctx, addr, r.block)
	if err != nil {
		return nil, errors.Wrapf(err, "reading balance of %s", addr)
	}
	out, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, errors.Errorf("balance of %s overflows 256 bits", addr)
	}
	return out, nil
}

func (r *RPCStateReader) Nonce(addr common.Address) (uint64, error) {
	nonce, err := r.client.NonceAt(r.ctx, addr, r.block)
	if err != nil {
		return 0, errors.Wrapf(err, "reading nonce of %s", addr)
	}
	return nonce, nil
}

func (r *RPCStateReader) Code(addr common.Address) ([]byte, error) {
	code, err := r.client.CodeAt(r.ctx, addr, r.block)
	if err != nil {
		return nil, errors.Wrapf(err, "reading code of %s", addr)
	}
	return code, nil
}

func (r *RPCStateReader) StorageAt(addr common.Address, key common.Hash) (common.Hash, error) {
	val, err := r.client.StorageAt(r.ctx, addr, key, r.block)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "reading storage %s of %s", key, addr)
	}
	return common.BytesToHash(val), nil
}

// LoadForkAccount copies one remote account into the journal. Used at
// session start and at explicit fork switches for every persistent address.
func LoadForkAccount(j Journal, r StateReader, addr common.Address) error {
	bal, err := r.Balance(addr)
	if err != nil {
		return err
	}
	nonce, err := r.Nonce(addr)
	if err != nil {
		return err
	}
	code, err := r.Code(addr)
	if err != nil {
		return err
	}
	if !j.Exist(addr) {
		j.CreateAccount(addr)
	}
	j.SetBalance(addr, bal, tracing.BalanceChangeVMTranslation)
	j.SetNonce(addr, nonce, tracing.NonceChangeVMTranslation)
	if len(code) > 0 {
		j.SetCode(addr, code)
	}
	log.Debug("Loaded fork account", "addr", addr, "nonce", nonce, "code", len(code))
	return nil
}
