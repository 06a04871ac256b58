// Package metric exposes render counters of graph components with expvar.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/audiograph/signal"
)

const componentsLabel = "audiograph.components"

const (
	// BlockCounter measures number of rendered blocks.
	BlockCounter = "Blocks"
	// FrameCounter measures number of rendered frames.
	FrameCounter = "Frames"
	// LatencyCounter measures time between render calls.
	LatencyCounter = "Latency"
	// ProcessCounter measures time spent rendering the last block.
	ProcessCounter = "ProcessTime"
	// DurationCounter counts what's the duration of rendered signal.
	DurationCounter = "Duration"
	// ClipCounter counts detected clips.
	ClipCounter = "Clips"
	// UnderrunCounter counts blocks that were not fully delivered by a
	// device or a file.
	UnderrunCounter = "Underruns"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		BlockCounter,
		FrameCounter,
		LatencyCounter,
		ProcessCounter,
		DurationCounter,
		ClipCounter,
		UnderrunCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component type.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone
// metrics capture until component is actually rendering.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a block is rendered. Elapsed is the time
// spent rendering it.
type MeasureFunc func(frames int64, elapsed time.Duration)

// Meter creates new meter closure to capture component counters.
func Meter(component interface{}, sampleRate int) ResetFunc {
	metric := components.get(getType(component))
	metric.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			blockSize     int64
			blockDuration time.Duration
		)
		return func(frames int64, elapsed time.Duration) {
			metric.latency.set(time.Since(calledAt))
			metric.process.set(elapsed)
			metric.blocks.Add(1)
			metric.frames.Add(frames)
			// recalculate block duration only when block size has changed
			if blockSize != frames {
				blockSize = frames
				blockDuration = signal.DurationOf(sampleRate, frames)
			}
			metric.duration.add(blockDuration)
			calledAt = time.Now()
		}
	}
}

// Events counts discrete render events of a component type. Counters are
// registered when Events is created, so it's safe to use from the audio
// goroutine.
type Events struct {
	metric *metric
}

// NewEvents returns event counters of the component type.
func NewEvents(component interface{}) Events {
	return Events{metric: components.get(getType(component))}
}

// Clip increments clip counter.
func (e Events) Clip() {
	if e.metric != nil {
		e.metric.clips.Add(1)
	}
}

// Underrun increments underrun counter.
func (e Events) Underrun() {
	if e.metric != nil {
		e.metric.underruns.Add(1)
	}
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(componentType string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		return metric
	}
	metric := newMetric(componentType)
	m.m[componentType] = metric
	return metric
}

type metric struct {
	components *expvar.Int
	blocks     *expvar.Int
	frames     *expvar.Int
	clips      *expvar.Int
	underruns  *expvar.Int
	latency    *duration
	process    *duration
	duration   *duration
}

func newMetric(componentType string) *metric {
	m := metric{
		components: expvar.NewInt(key(componentType, ComponentCounter)),
		blocks:     expvar.NewInt(key(componentType, BlockCounter)),
		frames:     expvar.NewInt(key(componentType, FrameCounter)),
		clips:      expvar.NewInt(key(componentType, ClipCounter)),
		underruns:  expvar.NewInt(key(componentType, UnderrunCounter)),
		latency:    &duration{},
		process:    &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(componentType, LatencyCounter), m.latency)
	expvar.Publish(key(componentType, ProcessCounter), m.process)
	expvar.Publish(key(componentType, DurationCounter), m.duration)
	return &m
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter)
}

func getType(component interface{}) string {
	t := reflect.TypeOf(component)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(v.d.Load()).String())
}

func (v *duration) add(delta time.Duration) {
	v.d.Add(int64(delta))
}

func (v *duration) set(value time.Duration) {
	v.d.Store(int64(value))
}
