package ledger

import (
	"testing"

	"github.com/stellar/go/xdr"
)

func accountID(n byte) xdr.AccountId {
	var key xdr.Uint256
	key[0] = n
	return xdr.AccountId(xdr.PublicKey{
		Type:    xdr.PublicKeyTypePublicKeyTypeEd25519,
		Ed25519: &key,
	})
}

func accountKey(n byte) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: accountID(n)},
	}
}

func dataKey(n byte) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeData,
		Data: &xdr.LedgerKeyData{
			AccountId: accountID(n),
			DataName:  "config",
		},
	}
}

func TestCompareKeys_AccountsSortFirst(t *testing.T) {
	// The inflation scan depends on ACCOUNT entries ordering before
	// every other entry type.
	if CompareKeys(accountKey(200), dataKey(1)) >= 0 {
		t.Fatal("account key did not sort before data key")
	}
}

func TestCompareKeys_TotalOrder(t *testing.T) {
	a, b, c := accountKey(1), accountKey(2), accountKey(3)

	if CompareKeys(a, a) != 0 {
		t.Error("key does not equal itself")
	}
	if !KeyLess(a, b) || !KeyLess(b, c) {
		t.Error("ordering broken")
	}
	if !KeyLess(a, c) {
		t.Error("ordering not transitive")
	}
	if KeyLess(b, a) {
		t.Error("ordering not antisymmetric")
	}
}

func TestEntryKey(t *testing.T) {
	entry := xdr.LedgerEntry{
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{
				AccountId: accountID(7),
			},
		},
	}
	key, err := EntryKey(entry)
	if err != nil {
		t.Fatalf("EntryKey failed: %v", err)
	}
	if CompareKeys(key, accountKey(7)) != 0 {
		t.Error("derived key does not match")
	}
}

func TestSerializedSize(t *testing.T) {
	key := accountKey(1)
	n, err := SerializedSize(key)
	if err != nil {
		t.Fatalf("SerializedSize failed: %v", err)
	}
	enc := MustMarshalKey(key)
	if n != len(enc) {
		t.Errorf("size %d does not match encoding length %d", n, len(enc))
	}
}

func TestIsSorobanType(t *testing.T) {
	if !IsSorobanType(xdr.LedgerEntryTypeContractData) {
		t.Error("contract data should be soroban")
	}
	if !IsSorobanType(xdr.LedgerEntryTypeContractCode) {
		t.Error("contract code should be soroban")
	}
	if IsSorobanType(xdr.LedgerEntryTypeAccount) {
		t.Error("account is not soroban")
	}
	if IsSorobanType(xdr.LedgerEntryTypeTtl) {
		t.Error("TTL is not soroban")
	}
}
