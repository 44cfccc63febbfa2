package snapshot

import (
	"sort"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
)

// minVotingBalance is the balance floor below which an account's
// inflation vote does not count.
const minVotingBalance = 1000000000

// InflationWinner is one inflation destination and the balance voted to
// it.
type InflationWinner struct {
	Destination xdr.AccountId
	Votes       int64
}

// SearchableSnapshot serves queries against a stable bucket-list
// snapshot. Every public entry point first invites the manager to swap
// in a newer snapshot; the query then runs entirely against the pointer
// captured after that refresh. Not safe for concurrent use; concurrent
// readers each hold their own.
type SearchableSnapshot struct {
	mgr  *Manager
	snap *BucketListSnapshot
}

// Close releases the reader's file handles.
func (ss *SearchableSnapshot) Close() {
	if ss.snap != nil {
		ss.snap.close()
	}
}

// LedgerSeq returns the sequence of the snapshot queries currently see.
func (ss *SearchableSnapshot) LedgerSeq() uint32 {
	if ss.snap == nil {
		return 0
	}
	return ss.snap.ledgerSeq
}

// loopAllBuckets walks buckets newest to oldest, curr before snap within
// a level, skipping sentinels. The callback returns true to short-
// circuit. This order is part of the query contract: shadow semantics
// depend on it.
func (ss *SearchableSnapshot) loopAllBuckets(f func(*BucketSnapshot) (bool, error)) error {
	if ss.snap == nil {
		return nil
	}
	for _, lev := range ss.snap.levels {
		for _, b := range []*BucketSnapshot{lev.Curr, lev.Snap} {
			if b.IsEmpty() {
				continue
			}
			stop, err := f(b)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// GetLedgerEntry returns the live value of the newest record for key, or
// nil when that record is a tombstone or no record exists.
func (ss *SearchableSnapshot) GetLedgerEntry(key xdr.LedgerKey) (*xdr.LedgerEntry, error) {
	ss.mgr.MaybeUpdateSnapshot(&ss.snap)
	stop := ss.mgr.PointLoadTimer(key.Type)
	defer stop()

	var result *xdr.LedgerEntry
	err := ss.loopAllBuckets(func(b *BucketSnapshot) (bool, error) {
		be, err := b.GetBucketEntry(key)
		if err != nil {
			return false, err
		}
		if be == nil {
			return false, nil
		}
		if be.Type != xdr.BucketEntryTypeDeadentry {
			entry := *be.LiveEntry
			result = &entry
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LoadKeysWithLimits bulk-loads the live entries for a key set, dropping
// keys the meter refuses. With a nil meter the result equals the union
// of point lookups over the set.
func (ss *SearchableSnapshot) LoadKeysWithLimits(keys []xdr.LedgerKey, meter KeyMeter) ([]xdr.LedgerEntry, error) {
	ss.mgr.MaybeUpdateSnapshot(&ss.snap)

	tag := "prefetch-classic"
	if meter != nil {
		tag = "prefetch-soroban"
	}
	stop := ss.mgr.RecordBulkLoadMetrics(tag, len(keys))
	defer stop()

	return ss.loadKeys(NewKeySet(keys), meter)
}

func (ss *SearchableSnapshot) loadKeys(keys *KeySet, meter KeyMeter) ([]xdr.LedgerEntry, error) {
	var results []xdr.LedgerEntry
	err := ss.loopAllBuckets(func(b *BucketSnapshot) (bool, error) {
		if err := b.LoadKeysWithLimits(keys, &results, meter); err != nil {
			return false, err
		}
		return keys.Empty(), nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// LoadPoolShareTrustLinesByAccountAndAsset returns the account's
// pool-share trustlines over pools containing the asset. Two passes:
// the per-bucket asset index nominates candidate pool IDs, then a bulk
// lookup resolves the corresponding trustline keys.
func (ss *SearchableSnapshot) LoadPoolShareTrustLinesByAccountAndAsset(accountID xdr.AccountId, asset xdr.Asset) ([]xdr.LedgerEntry, error) {
	ss.mgr.MaybeUpdateSnapshot(&ss.snap)

	poolIDs := make(map[xdr.PoolId]bool)
	err := ss.loopAllBuckets(func(b *BucketSnapshot) (bool, error) {
		ids, err := b.GetPoolIDsByAsset(asset)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			poolIDs[id] = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	keys := make([]xdr.LedgerKey, 0, len(poolIDs))
	for id := range poolIDs {
		poolID := id
		keys = append(keys, xdr.LedgerKey{
			Type: xdr.LedgerEntryTypeTrustline,
			TrustLine: &xdr.LedgerKeyTrustLine{
				AccountId: accountID,
				Asset: xdr.TrustLineAsset{
					Type:            xdr.AssetTypeAssetTypePoolShare,
					LiquidityPoolId: &poolID,
				},
			},
		})
	}

	stop := ss.mgr.RecordBulkLoadMetrics("poolshareTrustlines", len(keys))
	defer stop()
	return ss.loadKeys(NewKeySet(keys), nil)
}

// LoadInflationWinners aggregates inflation votes by scanning every
// bucket sequentially. Accounts sort before all other entry types, so
// each bucket's scan stops at the first non-account record. An account's
// newest record decides its contribution: tombstoned accounts vote
// nothing, and older duplicates are skipped.
func (ss *SearchableSnapshot) LoadInflationWinners(maxWinners int, minBalance int64) ([]InflationWinner, error) {
	ss.mgr.MaybeUpdateSnapshot(&ss.snap)
	stop := ss.mgr.RecordBulkLoadMetrics("inflationWinners", 0)
	defer stop()

	seen := make(map[string]bool)
	votes := make(map[string]int64)
	destByAddr := make(map[string]xdr.AccountId)

	err := ss.loopAllBuckets(func(b *BucketSnapshot) (bool, error) {
		in := bucket.NewInputIterator(b.RawBucket())
		defer in.Close()

		for in.Next() {
			rec := in.Record()
			if rec.IsMeta() {
				continue
			}

			be := rec.Live
			if be.Type == xdr.BucketEntryTypeDeadentry {
				if be.DeadEntry.Type == xdr.LedgerEntryTypeAccount {
					seen[be.DeadEntry.Account.AccountId.Address()] = true
				}
				continue
			}

			entry := be.LiveEntry
			if entry.Data.Type != xdr.LedgerEntryTypeAccount {
				break
			}

			ae := entry.Data.Account
			addr := ae.AccountId.Address()
			if seen[addr] {
				continue
			}
			seen[addr] = true

			if ae.InflationDest != nil && int64(ae.Balance) >= minVotingBalance {
				destAddr := ae.InflationDest.Address()
				votes[destAddr] += int64(ae.Balance)
				destByAddr[destAddr] = *ae.InflationDest
			}
		}
		return false, in.Err()
	})
	if err != nil {
		return nil, err
	}

	winners := make([]InflationWinner, 0, len(votes))
	for addr, count := range votes {
		winners = append(winners, InflationWinner{Destination: destByAddr[addr], Votes: count})
	}

	// Deterministic order: votes descending, address ascending on ties.
	sort.Slice(winners, func(i, j int) bool {
		if winners[i].Votes != winners[j].Votes {
			return winners[i].Votes > winners[j].Votes
		}
		return winners[i].Destination.Address() < winners[j].Destination.Address()
	})

	filtered := winners[:0]
	for _, w := range winners {
		if w.Votes >= minBalance {
			filtered = append(filtered, w)
		}
	}
	winners = filtered

	if len(winners) > maxWinners {
		winners = winners[:maxWinners]
	}
	return winners, nil
}
