package services

// ReconcileVotesUsed picks the larger of the server-confirmed vote cycle and
// the locally persisted count so local state never regresses below what the
// server already accepted. The result is clamped to [0, voteAmount].
func ReconcileVotesUsed(voteAmount int, serverVoteCycle int, localVotesUsed int) int {
	used := localVotesUsed
	if serverVoteCycle > used {
		used = serverVoteCycle
	}
	return clamp(used, 0, max(voteAmount, 0))
}

func RemainingVotes(voteAmount int, votesUsed int) int {
	remaining := voteAmount - votesUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

type VoteCountInput struct {
	// Override is the sticky split-voting choice; values <= 0 mean unset.
	Override    int
	Requested   int
	Remaining   int
	UseAllVotes bool
}

// EffectiveVoteCount resolves how many votes a single submit call spends.
// Priority: use-all, stored override, requested count, then one vote. The
// result never exceeds the remaining quota.
func EffectiveVoteCount(in VoteCountInput) int {
	if in.Remaining <= 0 {
		return 0
	}
	var count int
	switch {
	case in.UseAllVotes:
		count = in.Remaining
	case in.Override > 0:
		count = in.Override
	case in.Requested > 0:
		count = in.Requested
	default:
		count = 1
	}
	return clamp(count, 1, in.Remaining)
}

// ApplyConfirmed adds the votes confirmed by this call to the reconciled
// baseline without ever exceeding the quota.
func ApplyConfirmed(voteAmount int, baseline int, confirmed int) int {
	if confirmed < 0 {
		confirmed = 0
	}
	return clamp(baseline+confirmed, baseline, max(voteAmount, baseline))
}

// PlanBatches splits total votes into batch sizes of at most batchSize.
func PlanBatches(total int, batchSize int) []int {
	if total <= 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = total
	}
	batches := make([]int, 0, (total+batchSize-1)/batchSize)
	for remaining := total; remaining > 0; remaining -= batchSize {
		batches = append(batches, min(batchSize, remaining))
	}
	return batches
}

func clamp(value int, lo int, hi int) int {
	if hi < lo {
		hi = lo
	}
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
