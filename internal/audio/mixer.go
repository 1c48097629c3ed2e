package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Branch identifies a mixer input
type Branch int

const (
	BranchSystem Branch = iota
	BranchMicrophone
)

func (b Branch) String() string {
	if b == BranchMicrophone {
		return "microphone"
	}
	return "system"
}

// Gain is a gain node whose value may be changed while audio flows through it
type Gain struct {
	bits atomic.Uint64
}

// NewGain creates a gain node with the given linear value
func NewGain(v float64) *Gain {
	g := &Gain{}
	g.Set(v)
	return g
}

// Set changes the gain; it applies from the next processed frame
func (g *Gain) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Value returns the current gain
func (g *Gain) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Apply returns a scaled copy of samples
func (g *Gain) Apply(samples []int16) []int16 {
	v := g.Value()
	out := make([]int16, len(samples))
	if v == 0 {
		return out
	}
	for i, s := range samples {
		out[i] = clip(float64(s) * v)
	}
	return out
}

// Mixer sums the system and microphone branches into a single mono stream.
// Samples are paired in arrival order; when one branch runs more than
// maxLag samples ahead of the other, its backlog is emitted alone and the
// lagging branch is treated as silent for that span. Samples the lagging
// branch delivers later for the same span are skipped, keeping both
// branches aligned.
type Mixer struct {
	gains   [2]*Gain
	pending [2][]int16
	skip    [2]int
	maxLag  int

	mu sync.Mutex
}

// NewMixer creates a mixer over the two branch gain nodes
func NewMixer(system, microphone *Gain, maxLag int) *Mixer {
	return &Mixer{
		gains:  [2]*Gain{system, microphone},
		maxLag: maxLag,
	}
}

// Push adds samples to a branch and returns whatever output became ready
func (m *Mixer) Push(branch Branch, samples []int16) []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if skip := min(m.skip[branch], len(samples)); skip > 0 {
		samples = samples[skip:]
		m.skip[branch] -= skip
	}
	m.pending[branch] = append(m.pending[branch], samples...)

	sys, mic := m.gains[BranchSystem].Value(), m.gains[BranchMicrophone].Value()

	n := min(len(m.pending[BranchSystem]), len(m.pending[BranchMicrophone]))
	out := make([]int16, 0, n)
	for i := 0; i < n; i++ {
		v := float64(m.pending[BranchSystem][i])*sys + float64(m.pending[BranchMicrophone][i])*mic
		out = append(out, clip(v))
	}
	m.pending[BranchSystem] = m.pending[BranchSystem][n:]
	m.pending[BranchMicrophone] = m.pending[BranchMicrophone][n:]

	if len(m.pending[branch]) > m.maxLag {
		out = append(out, m.gains[branch].Apply(m.pending[branch])...)
		m.skip[other(branch)] += len(m.pending[branch])
		m.pending[branch] = nil
	}

	return out
}

// Skipped returns how many late samples of a branch are still to be skipped
func (m *Mixer) Skipped(branch Branch) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skip[branch]
}

func other(b Branch) Branch {
	if b == BranchSystem {
		return BranchMicrophone
	}
	return BranchSystem
}

// Drain emits every buffered sample as if the other branch were silent
func (m *Mixer) Drain() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []int16
	for _, b := range []Branch{BranchSystem, BranchMicrophone} {
		if len(m.pending[b]) > 0 {
			out = append(out, m.gains[b].Apply(m.pending[b])...)
			m.pending[b] = nil
		}
	}
	return out
}
