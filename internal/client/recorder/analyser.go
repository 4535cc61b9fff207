package recorder

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Analyser meters the live input level as RMS over the latest buffer,
// normalised to 0..1. It is the waveform source of the panel.
type Analyser struct {
	level  atomic.Uint64
	closed atomic.Bool
}

func newAnalyser() *Analyser { return &Analyser{} }

// Write consumes S16LE samples.
func (a *Analyser) Write(pcm []byte) {
	if a.closed.Load() || len(pcm) < 2 {
		return
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / math.MaxInt16
		sum += s * s
	}
	a.level.Store(math.Float64bits(math.Min(1, math.Sqrt(sum/float64(n)))))
}

func (a *Analyser) Level() float64 {
	if a.closed.Load() {
		return 0
	}
	return math.Float64frombits(a.level.Load())
}

// Close reports whether this call closed the analyser.
func (a *Analyser) Close() bool {
	if !a.closed.CompareAndSwap(false, true) {
		return false
	}
	a.level.Store(0)
	return true
}
