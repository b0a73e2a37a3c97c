package priority

// BandwidthAllocation splits a total bitrate across the three priority
// levels. The four fields always sum exactly: CriticalBps + HighBps +
// NormalBps == TotalBps.
type BandwidthAllocation struct {
	CriticalBps uint64
	HighBps     uint64
	NormalBps   uint64
	TotalBps    uint64
}

// AllocateBandwidth computes a BandwidthAllocation for totalBps given how
// many shards are currently pending at each level. The default split is
// 50/30/20 (Critical/High/Normal); an empty level's share is redistributed
// to the remaining levels. Redistribution is evaluated in a fixed order
// (Critical, then High, then Normal) because each step can change what the
// next step sees, so the result is not commutative in level order — this
// matches the documented behaviour required for test compatibility.
//
// Normal's final share is always computed as the remainder
// (total - critical - high) rather than carried through the redistribution
// arithmetic, so the sum is exact by construction regardless of integer
// rounding in the earlier steps.
func AllocateBandwidth(totalBps uint64, criticalPending, highPending, normalPending int) BandwidthAllocation {
	critical := totalBps * 50 / 100
	high := totalBps * 30 / 100
	normal := totalBps - critical - high

	if criticalPending == 0 {
		share := critical / 2
		high += share
		normal += critical - share
		critical = 0
	}
	if highPending == 0 {
		share := high / 2
		critical += share
		normal += high - share
		high = 0
	}
	if normalPending == 0 {
		share := normal / 2
		critical += share
		high += normal - share
		normal = 0
	}

	normal = totalBps - critical - high

	return BandwidthAllocation{
		CriticalBps: critical,
		HighBps:     high,
		NormalBps:   normal,
		TotalBps:    totalBps,
	}
}
