package audiograph

import (
	"math"
	"sync/atomic"

	"pipelined.dev/audiograph/signal"
)

// rampEpsilon absorbs rounding of ramp frames, so the last sample of ramp
// gets its end value.
const rampEpsilon = 1e-9

// Param is a control value of node. It can be set immediately, ramped or
// driven by a processor node. Param is evaluated once per block by the
// node that owns it.
type Param struct {
	owner     *Node
	value     atomic.Uint64
	ramps     []*Ramp
	processor *Node

	values       []float64
	processorBuf signal.Float64
}

// NewParam creates a param owned by node.
func NewParam(owner Linkable, value float64) *Param {
	n := owner.node()
	p := &Param{owner: n}
	p.value.Store(math.Float64bits(value))
	if !n.locked(func(*Context) { n.params = append(n.params, p) }) {
		n.params = append(n.params, p)
	}
	return p
}

func (p *Param) locked(fn func(ctx *Context)) bool {
	return p.owner.locked(fn)
}

func (p *Param) store(v float64) {
	p.value.Store(math.Float64bits(v))
}

// Value returns the current value.
func (p *Param) Value() float64 {
	return math.Float64frombits(p.value.Load())
}

// ValueArray returns per-sample values of the last evaluated block. It's
// valid only after Eval has returned true.
func (p *Param) ValueArray() []float64 {
	return p.values
}

// SetValue cancels ramps and processor and sets the value.
func (p *Param) SetValue(v float64) {
	if !p.locked(func(*Context) {
		p.resetLocked()
		p.store(v)
	}) {
		p.store(v)
	}
}

// Reset cancels ramps and processor. Value is kept.
func (p *Param) Reset() {
	p.locked(func(*Context) { p.resetLocked() })
}

func (p *Param) resetLocked() {
	for _, r := range p.ramps {
		r.canceled.Store(true)
	}
	clear(p.ramps)
	p.ramps = p.ramps[:0]
	p.processor = nil
}

// ApplyRamp replaces pending ramps with a ramp from the current value to
// valueEnd, lasting duration seconds.
func (p *Param) ApplyRamp(valueEnd, duration float64, opts ...RampOption) *Ramp {
	return p.ApplyRampFrom(p.Value(), valueEnd, duration, opts...)
}

// ApplyRampFrom replaces pending ramps with a ramp from valueBegin to
// valueEnd, lasting duration seconds.
func (p *Param) ApplyRampFrom(valueBegin, valueEnd, duration float64, opts ...RampOption) *Ramp {
	r := newRamp(valueBegin, valueEnd, opts)
	if !p.locked(func(ctx *Context) {
		p.resetLocked()
		p.appendLocked(ctx, r, float64(ctx.numProcessedFrames.Load()), duration)
	}) {
		r.Cancel()
	}
	return r
}

// AppendRamp adds a ramp to valueEnd that starts where the last pending
// ramp ends, or now if there are none.
func (p *Param) AppendRamp(valueEnd, duration float64, opts ...RampOption) *Ramp {
	r := newRamp(0, valueEnd, opts)
	if !p.locked(func(ctx *Context) {
		begin := float64(ctx.numProcessedFrames.Load())
		r.valueBegin = p.Value()
		if last := p.lastRamp(); last != nil {
			begin = max(begin, last.frameEnd)
			r.valueBegin = last.valueEnd
		}
		p.appendLocked(ctx, r, begin, duration)
	}) {
		r.Cancel()
	}
	return r
}

// AppendRampFrom adds a ramp from valueBegin to valueEnd that starts where
// the last pending ramp ends, or now if there are none.
func (p *Param) AppendRampFrom(valueBegin, valueEnd, duration float64, opts ...RampOption) *Ramp {
	r := newRamp(valueBegin, valueEnd, opts)
	if !p.locked(func(ctx *Context) {
		begin := float64(ctx.numProcessedFrames.Load())
		if last := p.lastRamp(); last != nil {
			begin = max(begin, last.frameEnd)
		}
		p.appendLocked(ctx, r, begin, duration)
	}) {
		r.Cancel()
	}
	return r
}

func (p *Param) appendLocked(ctx *Context, r *Ramp, begin, duration float64) {
	sampleRate := float64(ctx.SampleRate())
	r.frameBegin = begin + r.delay*sampleRate
	r.frameEnd = r.frameBegin + max(0, duration)*sampleRate
	// processor has priority over ramps
	p.processor = nil
	p.resize(ctx.FramesPerBlock())
	p.ramps = append(p.ramps, r)
}

func (p *Param) lastRamp() *Ramp {
	for i := len(p.ramps) - 1; i >= 0; i-- {
		if !p.ramps[i].canceled.Load() {
			return p.ramps[i]
		}
	}
	return nil
}

// TargetValue returns the end value of the last pending ramp, or the
// current value if there are none.
func (p *Param) TargetValue() float64 {
	v := p.Value()
	p.locked(func(*Context) {
		if last := p.lastRamp(); last != nil {
			v = last.valueEnd
		}
	})
	return v
}

// NumRamps returns the number of pending ramps.
func (p *Param) NumRamps() (num int) {
	p.locked(func(*Context) {
		for _, r := range p.ramps {
			if !r.canceled.Load() {
				num++
			}
		}
	})
	return
}

// SetProcessor makes node the source of value. Node is forced to mono and
// initialized. Pending ramps are canceled. Nil removes the processor.
func (p *Param) SetProcessor(node Linkable) {
	p.locked(func(ctx *Context) {
		p.resetLocked()
		if node == nil {
			return
		}
		n := node.node()
		n.channelMode = Specified
		n.setNumChannels(1)
		n.initialize()
		p.processorBuf = signal.Resize(p.processorBuf, 1, ctx.FramesPerBlock())
		p.processor = n
	})
}

// Processor returns the node that drives the value, nil if there's none.
func (p *Param) Processor() (n *Node) {
	p.locked(func(*Context) { n = p.processor })
	return
}

// HasProcessor reports if value is driven by a node.
func (p *Param) HasProcessor() bool {
	return p.Processor() != nil
}

// resize allocates per-block arrays.
func (p *Param) resize(framesPerBlock int) {
	if len(p.values) != framesPerBlock {
		p.values = make([]float64, framesPerBlock)
	}
	if p.processor != nil {
		p.processorBuf = signal.Resize(p.processorBuf, 1, framesPerBlock)
	}
}

// Eval computes values of the current block. It returns true if values
// vary within the block and ValueArray must be used, false if Value holds
// for the whole block. Processor driven values are constant within a block
// and take the last sample rendered by processor. Must be called from
// Process of the owner node.
func (p *Param) Eval() bool {
	if p.processor != nil {
		p.evalProcessor()
		return false
	}
	if len(p.ramps) == 0 {
		return false
	}
	ctx := p.owner.context()
	if ctx == nil {
		return false
	}
	return p.evalRamps(float64(ctx.numProcessedFrames.Load()))
}

func (p *Param) evalProcessor() {
	buf := p.processorBuf
	size := buf.Size()
	if size == 0 {
		return
	}
	p.processor.pullInputs(buf)
	if !p.processor.processInPlace {
		signal.Mix(buf, p.processor.internal)
	}
	p.store(buf[0][size-1])
}

// evalRamps renders ramps overlapping the block that starts at blockBegin.
// Gaps are filled with the value in effect. Finished and canceled ramps
// are removed.
func (p *Param) evalRamps(blockBegin float64) bool {
	values := p.values
	size := len(values)
	if size == 0 {
		return false
	}
	blockEnd := blockBegin + float64(size)
	value := p.Value()
	written := 0

	i := 0
	for ; i < len(p.ramps); i++ {
		r := p.ramps[i]
		if r.canceled.Load() {
			continue
		}
		if r.frameEnd < blockBegin {
			value = r.valueEnd
			continue
		}
		if r.frameBegin >= blockEnd {
			break
		}

		start := 0
		if r.frameBegin > blockBegin {
			start = int(math.Ceil(r.frameBegin - blockBegin - rampEpsilon))
		}
		start = max(start, written)
		end := int(math.Floor(r.frameEnd-blockBegin+rampEpsilon)) + 1
		completed := end <= size
		end = min(end, size)
		if start >= end {
			if completed {
				value = r.valueEnd
				continue
			}
			break
		}

		for j := written; j < start; j++ {
			values[j] = value
		}
		tBegin, tStep := 1.0, 0.0
		if duration := r.frameEnd - r.frameBegin; duration > 0 {
			tStep = 1 / duration
			tBegin = (blockBegin + float64(start) - r.frameBegin) * tStep
		}
		r.fn(values[start:end], tBegin, tStep, r.valueBegin, r.valueEnd)
		written = end
		value = values[end-1]
		if !completed {
			break
		}
		value = r.valueEnd
		values[end-1] = r.valueEnd
	}

	// ramps before i are finished or canceled
	n := copy(p.ramps, p.ramps[i:])
	clear(p.ramps[n:])
	p.ramps = p.ramps[:n]
	p.store(value)

	if written == 0 {
		return false
	}
	for j := written; j < size; j++ {
		values[j] = value
	}
	return true
}
