package bucket

// MergeCounters tracks fine-grained merge events. These are plain
// integers rather than prometheus counters so that merges run without
// synchronization; the output iterator publishes its share to the metric
// registry at finalization.
type MergeCounters struct {
	// Output iterator events
	OutputIteratorTombstoneElisions  uint64
	OutputIteratorBufferUpdates      uint64
	OutputIteratorActualWrites       uint64
	OutputIteratorLiveToInitRewrites uint64

	// Merge resolution events for equal keys
	NewEntriesDefaultAccepted   uint64
	OldEntriesDefaultAccepted   uint64
	OldInitMergedWithNewLive    uint64
	OldInitAnnihilatedByNewDead uint64

	// Protocol-era accounting
	PreInitEntryProtocolMerges  uint64
	PostInitEntryProtocolMerges uint64
}

// Add accumulates another counter set into this one.
func (mc *MergeCounters) Add(other MergeCounters) {
	mc.OutputIteratorTombstoneElisions += other.OutputIteratorTombstoneElisions
	mc.OutputIteratorBufferUpdates += other.OutputIteratorBufferUpdates
	mc.OutputIteratorActualWrites += other.OutputIteratorActualWrites
	mc.OutputIteratorLiveToInitRewrites += other.OutputIteratorLiveToInitRewrites
	mc.NewEntriesDefaultAccepted += other.NewEntriesDefaultAccepted
	mc.OldEntriesDefaultAccepted += other.OldEntriesDefaultAccepted
	mc.OldInitMergedWithNewLive += other.OldInitMergedWithNewLive
	mc.OldInitAnnihilatedByNewDead += other.OldInitAnnihilatedByNewDead
	mc.PreInitEntryProtocolMerges += other.PreInitEntryProtocolMerges
	mc.PostInitEntryProtocolMerges += other.PostInitEntryProtocolMerges
}
