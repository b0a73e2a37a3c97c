package coordinator

import (
	"math/rand"
	"os"

	"github.com/lzww0608/resilientfile/chunk"
)

// LossTrialResult is one Monte-Carlo trial's outcome.
type LossTrialResult struct {
	Trials      int
	Successes   int
	SuccessRate float64
}

// SimulatePacketLoss runs samples independent trials of "drop each of D+P
// shards independently with probability rate, then check whether >= D
// survive", the same survivorship test Reconstruct performs, without
// touching the filesystem.
func SimulatePacketLoss(dataShards, parityShards int, rate float64, samples int) LossTrialResult {
	total := dataShards + parityShards
	result := LossTrialResult{Trials: samples}

	for i := 0; i < samples; i++ {
		survivors := 0
		for j := 0; j < total; j++ {
			if rand.Float64() >= rate {
				survivors++
			}
		}
		if survivors >= dataShards {
			result.Successes++
		}
	}
	if samples > 0 {
		result.SuccessRate = float64(result.Successes) / float64(samples)
	}
	return result
}

// SimulateFileTransfer splits path with codec, drops each shard
// independently with probability rate, and attempts Reconstruct into a
// throwaway temp file. It reports whether Reconstruct succeeded, which
// includes its BLAKE3 check of the whole rebuilt file.
func SimulateFileTransfer(codec *chunk.Codec, path string, rate float64) (bool, error) {
	manifest, shards, err := codec.Split(path, "simulation", chunk.PriorityNormal)
	if err != nil {
		return false, err
	}

	survivors := make([]*chunk.Shard, 0, len(shards))
	for _, s := range shards {
		if rand.Float64() >= rate {
			survivors = append(survivors, s)
		}
	}

	out, err := os.CreateTemp("", "resilientfile-sim-*")
	if err != nil {
		return false, err
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	if err := chunk.Reconstruct(manifest, survivors, outPath); err != nil {
		return false, nil
	}
	return true, nil
}

// ComparisonPoint is one loss-percentage row of a TCP-vs-resilient sweep.
// TCP is modeled as one unprotected stream that succeeds with probability
// (1-rate) per trial; ResilientSuccessRate comes from SimulatePacketLoss at
// max parity.
type ComparisonPoint struct {
	LossPercent          int
	TCPSuccessRate       float64
	ResilientSuccessRate float64
}

// SimulateComparison sweeps loss percentages 0..40 in 5-point steps, running
// trialsPerPoint Monte-Carlo trials per point at maxParity parity shards, to
// show the resilient envelope against an unprotected baseline.
func SimulateComparison(dataShards, maxParity, trialsPerPoint int) []ComparisonPoint {
	var points []ComparisonPoint
	for pct := 0; pct <= 40; pct += 5 {
		rate := float64(pct) / 100

		tcpSuccesses := 0
		for i := 0; i < trialsPerPoint; i++ {
			if rand.Float64() >= rate {
				tcpSuccesses++
			}
		}

		resilient := SimulatePacketLoss(dataShards, maxParity, rate, trialsPerPoint)

		points = append(points, ComparisonPoint{
			LossPercent:          pct,
			TCPSuccessRate:       float64(tcpSuccesses) / float64(trialsPerPoint),
			ResilientSuccessRate: resilient.SuccessRate,
		})
	}
	return points
}
