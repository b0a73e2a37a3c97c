package priority

import "testing"

func assertExactSum(t *testing.T, a BandwidthAllocation) {
	t.Helper()
	if sum := a.CriticalBps + a.HighBps + a.NormalBps; sum != a.TotalBps {
		t.Fatalf("shares do not sum to total: %d+%d+%d != %d", a.CriticalBps, a.HighBps, a.NormalBps, a.TotalBps)
	}
}

func TestAllocateBandwidthDefaultSplit(t *testing.T) {
	a := AllocateBandwidth(1000, 1, 1, 1)
	assertExactSum(t, a)
	if a.CriticalBps != 500 || a.HighBps != 300 || a.NormalBps != 200 {
		t.Fatalf("expected 50/30/20 split, got %+v", a)
	}
}

func TestAllocateBandwidthEmptyLevelsRedistribute(t *testing.T) {
	cases := []struct {
		name                    string
		critical, high, normal int
	}{
		{"none empty", 1, 1, 1},
		{"critical empty", 0, 1, 1},
		{"high empty", 1, 0, 1},
		{"normal empty", 1, 1, 0},
		{"critical and high empty", 0, 0, 1},
		{"critical and normal empty", 0, 1, 0},
		{"high and normal empty", 1, 0, 0},
		{"all empty", 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := AllocateBandwidth(12345, c.critical, c.high, c.normal)
			assertExactSum(t, a)
		})
	}
}

func TestAllocateBandwidthExactSumForArbitraryTotals(t *testing.T) {
	totals := []uint64{0, 1, 2, 3, 7, 97, 1000000, 999999999}
	for _, total := range totals {
		for critical := 0; critical <= 1; critical++ {
			for high := 0; high <= 1; high++ {
				for normal := 0; normal <= 1; normal++ {
					assertExactSum(t, AllocateBandwidth(total, critical, high, normal))
				}
			}
		}
	}
}

func TestAllocateBandwidthCriticalOnlyGetsNonzeroShare(t *testing.T) {
	// High and Normal empty, Critical pending: High's share is split between
	// Critical and Normal, then Normal's between Critical and High, so of
	// 1000 Critical ends with 825 and the empty High level keeps 175.
	a := AllocateBandwidth(1000, 1, 0, 0)
	assertExactSum(t, a)
	if a.CriticalBps == 0 {
		t.Fatalf("expected Critical to receive a nonzero share when it is the only pending level, got %+v", a)
	}
}
