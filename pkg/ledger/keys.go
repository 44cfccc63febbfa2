// Package ledger provides key ordering and entry classification helpers
// shared by the bucket storage engine and its query layer.
package ledger

import (
	"bytes"
	"fmt"

	"github.com/stellar/go/xdr"
)

// MarshalKey returns the canonical XDR encoding of a ledger key. The
// encoding doubles as the engine-wide sort key: the union discriminant is
// encoded first, so ACCOUNT keys order before every other entry type.
func MarshalKey(key xdr.LedgerKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, key); err != nil {
		return nil, fmt.Errorf("marshal ledger key: %w", err)
	}
	return buf.Bytes(), nil
}

// MustMarshalKey is MarshalKey for keys already validated by the caller.
func MustMarshalKey(key xdr.LedgerKey) []byte {
	enc, err := MarshalKey(key)
	if err != nil {
		panic(err)
	}
	return enc
}

// CompareKeys orders two ledger keys by their canonical encoding.
// Returns <0, 0, >0 in the usual way.
func CompareKeys(a, b xdr.LedgerKey) int {
	return bytes.Compare(MustMarshalKey(a), MustMarshalKey(b))
}

// KeyLess reports whether a orders strictly before b.
func KeyLess(a, b xdr.LedgerKey) bool {
	return CompareKeys(a, b) < 0
}

// EntryKey derives the ledger key identifying an entry.
func EntryKey(entry xdr.LedgerEntry) (xdr.LedgerKey, error) {
	key, err := entry.LedgerKey()
	if err != nil {
		return xdr.LedgerKey{}, fmt.Errorf("derive ledger key: %w", err)
	}
	return key, nil
}

// SerializedSize returns the size in bytes of the canonical XDR encoding
// of v. Used by the read meter, which charges quotas in serialized bytes.
func SerializedSize(v interface{}) (int, error) {
	var buf bytes.Buffer
	n, err := xdr.Marshal(&buf, v)
	if err != nil {
		return 0, fmt.Errorf("size of xdr value: %w", err)
	}
	return n, nil
}
