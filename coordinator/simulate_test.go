package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lzww0608/resilientfile/chunk"
)

func TestSimulatePacketLossHighSurvivalAtLowLossRate(t *testing.T) {
	result := SimulatePacketLoss(10, 3, 0.01, 200)
	if result.Trials != 200 {
		t.Fatalf("expected 200 trials recorded, got %d", result.Trials)
	}
	if result.SuccessRate < 0.90 {
		t.Fatalf("expected high survival at 1%% loss with 3 parity shards, got %v", result.SuccessRate)
	}
}

func TestSimulatePacketLossScenarioIMeetsBar(t *testing.T) {
	// Scenario I: D=50, P=10, 10% simulated loss. The per-trial survival
	// probability here works out to roughly 0.96, so a much larger sample
	// than the scenario's illustrative 100 trials keeps this assertion from
	// being sensitive to Monte-Carlo noise right at the 95% line.
	result := SimulatePacketLoss(50, 10, 0.10, 5000)
	if result.SuccessRate < 0.95 {
		t.Fatalf("expected >= 95%% success, got %v (%d/%d)", result.SuccessRate, result.Successes, result.Trials)
	}
}

func TestSimulatePacketLossZeroSamples(t *testing.T) {
	result := SimulatePacketLoss(4, 2, 0.5, 0)
	if result.SuccessRate != 0 {
		t.Fatalf("expected zero-sample rate to be 0, got %v", result.SuccessRate)
	}
}

func TestSimulateFileTransferNoLossAlwaysSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	data := make([]byte, 8*1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	codec, err := chunk.New(2*1024, 4, 2)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}

	ok, err := SimulateFileTransfer(codec, path, 0)
	if err != nil {
		t.Fatalf("SimulateFileTransfer: %v", err)
	}
	if !ok {
		t.Fatal("expected reconstruction to succeed with zero simulated loss")
	}
}

func TestSimulateFileTransferTotalLossFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	codec, err := chunk.New(4, 4, 2)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}

	ok, err := SimulateFileTransfer(codec, path, 1.0)
	if err != nil {
		t.Fatalf("SimulateFileTransfer: %v", err)
	}
	if ok {
		t.Fatal("expected reconstruction to fail when every shard is dropped")
	}
}

func TestSimulateComparisonResilientBeatsTCPAtHighLoss(t *testing.T) {
	// Heavy parity relative to data (D=10, P=40) so the resilient path
	// tolerates the 40% loss point comfortably while the unprotected
	// single-stream model does not.
	points := SimulateComparison(10, 40, 200)
	if len(points) == 0 {
		t.Fatal("expected at least one comparison point")
	}

	last := points[len(points)-1]
	if last.LossPercent != 40 {
		t.Fatalf("expected sweep to end at 40%% loss, got %d", last.LossPercent)
	}
	if last.ResilientSuccessRate <= last.TCPSuccessRate {
		t.Fatalf("expected the resilient envelope to beat raw TCP at %d%% loss: resilient=%v tcp=%v",
			last.LossPercent, last.ResilientSuccessRate, last.TCPSuccessRate)
	}
}
