package ledger

import "github.com/stellar/go/xdr"

// IsSorobanType reports whether the entry type belongs to the smart
// contract ("soroban") state class. Hot-archive buckets only admit these.
func IsSorobanType(t xdr.LedgerEntryType) bool {
	return t == xdr.LedgerEntryTypeContractData || t == xdr.LedgerEntryTypeContractCode
}

// IsSorobanKey reports whether a ledger key references soroban state.
func IsSorobanKey(key xdr.LedgerKey) bool {
	return IsSorobanType(key.Type)
}

// IsSorobanEntry reports whether a ledger entry holds soroban state.
func IsSorobanEntry(entry xdr.LedgerEntry) bool {
	return IsSorobanType(entry.Data.Type)
}
