package tracing

// BalanceChangeReason is a description of the reason why a balance was changed.
type BalanceChangeReason int

const (
	BalanceChangeUnspecified BalanceChangeReason = iota
	BalanceChangeTransfer
	BalanceChangeFee
	BalanceChangeRefund
	BalanceChangeCheatcode
	BalanceChangeVMTranslation // written while mirroring state across a VM switch
)

// NonceChangeReason is a description of the reason why a nonce was changed.
type NonceChangeReason int

const (
	NonceChangeUnspecified NonceChangeReason = iota
	NonceChangeTx
	NonceChangeFactoryDepTx // preparatory factory-dependency transaction
	NonceChangeCheatcode
	NonceChangeVMTranslation
)

// String returns a human-readable string for the reason.
func (r BalanceChangeReason) String() string {
	switch r {
	case BalanceChangeUnspecified:
		return "unspecified"
	case BalanceChangeTransfer:
		return "transfer"
	case BalanceChangeFee:
		return "fee"
	case BalanceChangeRefund:
		return "refund"
	case BalanceChangeCheatcode:
		return "cheatcode"
	case BalanceChangeVMTranslation:
		return "vm_translation"
	}
	return "unknown"
}

// String returns a human-readable string for the reason.
func (r NonceChangeReason) String() string {
	switch r {
	case NonceChangeUnspecified:
		return "unspecified"
	case NonceChangeTx:
		return "tx"
	case NonceChangeFactoryDepTx:
		return "factory_dep_tx"
	case NonceChangeCheatcode:
		return "cheatcode"
	case NonceChangeVMTranslation:
		return "vm_translation"
	}
	return "unknown"
}
