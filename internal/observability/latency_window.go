package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Latency stages recorded on the broadcast path.
const (
	StageIngestAppend  = "ingest_append"
	StageStreamPoll    = "stream_poll"
	StageDeliveryLag   = "delivery_lag"
	StageTranslate     = "provider_translate"
	StageSynthesize    = "provider_tts"
	defaultWindowSlots = 256
)

type LatencyStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []LatencyStats `json:"stages"`
}

// latencyWindow keeps the most recent samples per stage in a ring.
type latencyWindow struct {
	mu     sync.RWMutex
	size   int
	stages map[string]*ring
}

type ring struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultWindowSlots
	}
	return &latencyWindow{
		size:   size,
		stages: make(map[string]*ring),
	}
}

func (w *latencyWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.stages[stage]
	if !ok {
		r = &ring{values: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.values[r.next] = ms
	r.last = ms
	r.next++
	if r.next == len(r.values) {
		r.next = 0
		r.filled = true
	}
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	snap := LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []LatencyStats{}}
	if w == nil {
		return snap
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap.WindowSize = w.size

	names := make([]string, 0, len(w.stages))
	for name := range w.stages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := w.stages[name]
		n := r.next
		if r.filled {
			n = len(r.values)
		}
		if n == 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, r.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		snap.Stages = append(snap.Stages, LatencyStats{
			Stage:       name,
			Samples:     n,
			LastMS:      round2(r.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: targetP95MS(name),
		})
	}
	return snap
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Delivery lag includes one poll interval, so its target sits just under a second.
func targetP95MS(stage string) float64 {
	switch stage {
	case StageIngestAppend:
		return 50
	case StageStreamPoll:
		return 50
	case StageDeliveryLag:
		return 800
	default:
		return 0
	}
}
