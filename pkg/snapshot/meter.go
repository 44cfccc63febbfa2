package snapshot

import (
	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

// KeyMeter tracks per-transaction read budgets for bulk loads. A key
// whose transactions lack remaining quota is refused and permanently
// charged, so further keys of the same transactions stay blocked.
type KeyMeter interface {
	// CanLoad reports whether every transaction reading key can still
	// afford nBytes.
	CanLoad(key xdr.LedgerKey, nBytes int) bool

	// UpdateReadQuotasForKey charges nBytes against every transaction
	// reading key. Quotas floor at zero.
	UpdateReadQuotasForKey(key xdr.LedgerKey, nBytes int)
}

// TxReadMeter is the standard KeyMeter: transactions register the keys
// they will read together with a byte quota. Not safe for concurrent
// use; each bulk query carries its own meter.
type TxReadMeter struct {
	remaining []int
	keyTxs    map[string][]int
}

// NewTxReadMeter creates an empty meter.
func NewTxReadMeter() *TxReadMeter {
	return &TxReadMeter{keyTxs: make(map[string][]int)}
}

// AddTransaction registers a transaction with a read quota and the keys
// it may read, returning its handle.
func (m *TxReadMeter) AddTransaction(quota int, keys ...xdr.LedgerKey) int {
	tx := len(m.remaining)
	m.remaining = append(m.remaining, quota)
	for _, k := range keys {
		enc := string(ledger.MustMarshalKey(k))
		m.keyTxs[enc] = append(m.keyTxs[enc], tx)
	}
	return tx
}

// RemainingQuota returns a transaction's unused budget.
func (m *TxReadMeter) RemainingQuota(tx int) int {
	return m.remaining[tx]
}

// CanLoad implements KeyMeter. Keys no transaction registered are free.
func (m *TxReadMeter) CanLoad(key xdr.LedgerKey, nBytes int) bool {
	txs, ok := m.keyTxs[string(ledger.MustMarshalKey(key))]
	if !ok {
		return true
	}
	for _, tx := range txs {
		if m.remaining[tx] < nBytes {
			return false
		}
	}
	return true
}

// UpdateReadQuotasForKey implements KeyMeter.
func (m *TxReadMeter) UpdateReadQuotasForKey(key xdr.LedgerKey, nBytes int) {
	for _, tx := range m.keyTxs[string(ledger.MustMarshalKey(key))] {
		m.remaining[tx] -= nBytes
		if m.remaining[tx] < 0 {
			m.remaining[tx] = 0
		}
	}
}
