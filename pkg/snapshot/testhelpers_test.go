package snapshot

import (
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
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

func accountEntry(n byte, balance int64, inflationDest *byte) xdr.LedgerEntry {
	ae := &xdr.AccountEntry{
		AccountId: accountID(n),
		Balance:   xdr.Int64(balance),
	}
	if inflationDest != nil {
		dest := accountID(*inflationDest)
		ae.InflationDest = &dest
	}
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type:    xdr.LedgerEntryTypeAccount,
			Account: ae,
		},
	}
}

func poolShareTrustLineKey(account byte, pid xdr.PoolId) xdr.LedgerKey {
	poolID := pid
	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeTrustline,
		TrustLine: &xdr.LedgerKeyTrustLine{
			AccountId: accountID(account),
			Asset: xdr.TrustLineAsset{
				Type:            xdr.AssetTypeAssetTypePoolShare,
				LiquidityPoolId: &poolID,
			},
		},
	}
}

func poolShareTrustLine(account byte, pid xdr.PoolId, balance int64) xdr.LedgerEntry {
	poolID := pid
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeTrustline,
			TrustLine: &xdr.TrustLineEntry{
				AccountId: accountID(account),
				Asset: xdr.TrustLineAsset{
					Type:            xdr.AssetTypeAssetTypePoolShare,
					LiquidityPoolId: &poolID,
				},
				Balance: xdr.Int64(balance),
				Limit:   xdr.Int64(1 << 40),
				Flags:   1,
			},
		},
	}
}

func asset(code string, issuer byte) xdr.Asset {
	var code4 xdr.AssetCode4
	copy(code4[:], code)
	return xdr.Asset{
		Type: xdr.AssetTypeAssetTypeCreditAlphanum4,
		AlphaNum4: &xdr.AlphaNum4{
			AssetCode: code4,
			Issuer:    accountID(issuer),
		},
	}
}

func liquidityPoolEntry(poolByte byte, assetA, assetB xdr.Asset) xdr.LedgerEntry {
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeLiquidityPool,
			LiquidityPool: &xdr.LiquidityPoolEntry{
				LiquidityPoolId: xdr.PoolId(xdr.Hash{poolByte}),
				Body: xdr.LiquidityPoolEntryBody{
					Type: xdr.LiquidityPoolTypeLiquidityPoolConstantProduct,
					ConstantProduct: &xdr.LiquidityPoolEntryConstantProduct{
						Params: xdr.LiquidityPoolConstantProductParameters{
							AssetA: assetA,
							AssetB: assetB,
							Fee:    30,
						},
					},
				},
			},
		},
	}
}

func live(e xdr.LedgerEntry) bucket.Record {
	entry := e
	return bucket.LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeLiveentry,
		LiveEntry: &entry,
	})
}

func dead(key xdr.LedgerKey) bucket.Record {
	k := key
	return bucket.LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeDeadentry,
		DeadEntry: &k,
	})
}

const testProtocol = bucket.ProtocolFirstInitMetaEntries

// testEnv bundles the managers and bucket list backing a query test.
type testEnv struct {
	bmgr *bucket.Manager
	smgr *Manager
	list *bucket.BucketList
	seq  uint32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := bucket.DefaultConfig(t.TempDir())
	cfg.PageSizeExponent = 0
	bmgr, err := bucket.NewManager(cfg, logging.NewNopLogger())
	require.NoError(t, err)

	return &testEnv{
		bmgr: bmgr,
		smgr: NewManager(logging.NewNopLogger()),
		list: bucket.NewBucketList(bucket.VariantLive),
	}
}

// writeBucket streams sorted records into an adopted bucket.
func (env *testEnv) writeBucket(t *testing.T, records ...bucket.Record) *bucket.Bucket {
	t.Helper()
	out, err := bucket.NewOutputIterator(t.TempDir(), bucket.VariantLive, true, xdr.BucketMetadata{LedgerVersion: xdr.Uint32(testProtocol)}, nil, false, nil)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, out.Put(rec))
	}
	b, err := out.Finalize(env.bmgr, true, nil)
	require.NoError(t, err)
	return b
}

// setLevel installs buckets and republishes the snapshot.
func (env *testEnv) setLevel(t *testing.T, level int, curr, snap *bucket.Bucket) {
	t.Helper()
	require.NoError(t, env.list.SetLevel(level, curr, snap))
	env.seq++
	env.smgr.UpdateCurrentSnapshot(env.list, env.seq)
}

func (env *testEnv) searchable() *SearchableSnapshot {
	return env.smgr.NewSearchableSnapshot()
}
