package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// GIVEN two partitioned RNGs with the same key
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN three values are drawn from the service subsystem of each
	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemService).Float64()
		b := rng2.ForSubsystem(SubsystemService).Float64()
		// THEN the sequences are identical
		assert.Equal(t, a, b, "value %d", i)
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN one RNG that has drawn heavily from the balking stream
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemBalking).Float64()
	}

	// WHEN the service stream is used for the first time
	got := rngA.ForSubsystem(SubsystemService).Float64()

	// THEN it starts where a fresh service stream starts
	fresh := NewPartitionedRNG(NewSimulationKey(42))
	assert.Equal(t, fresh.ForSubsystem(SubsystemService).Float64(), got)
}

func TestPartitionedRNG_ArrivalsUseMasterSeed(t *testing.T) {
	// GIVEN a seed
	seed := int64(42)
	rng := NewPartitionedRNG(NewSimulationKey(seed))

	// WHEN the arrivals stream is compared with a plain RNG on the same seed
	arrivals := rng.ForSubsystem(SubsystemArrivals)
	direct := rand.New(rand.NewSource(seed))

	// THEN they produce identical sequences
	for i := 0; i < 10; i++ {
		assert.Equal(t, direct.Float64(), arrivals.Float64(), "value %d", i)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	assert.Same(t, rng.ForSubsystem(SubsystemReneging), rng.ForSubsystem(SubsystemReneging))
}

func TestPartitionedRNG_Key(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(12345))
	assert.Equal(t, SimulationKey(12345), rng.Key())
}

func TestPartitionedRNG_FailureStreamsDifferPerResource(t *testing.T) {
	// GIVEN failure streams for two resources
	rng := NewPartitionedRNG(NewSimulationKey(7))

	// WHEN the first value of each is drawn
	a := rng.ForSubsystem(SubsystemFailures("triage")).Float64()
	b := rng.ForSubsystem(SubsystemFailures("doctor")).Float64()

	// THEN the streams are independent
	assert.NotEqual(t, a, b)
	assert.Equal(t, "failures_triage", SubsystemFailures("triage"))
}

func TestFnv1a64_Deterministic(t *testing.T) {
	assert.Equal(t, fnv1a64(SubsystemService), fnv1a64(SubsystemService))
	assert.NotEqual(t, fnv1a64(SubsystemService), fnv1a64(SubsystemBalking))
}

// === Benchmark ===

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemService)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemService)
	}
}
