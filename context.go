package audiograph

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/signal"
)

const (
	// DefaultSampleRate is used by contexts without output.
	DefaultSampleRate = 44100
	// DefaultFramesPerBlock is used by contexts without output.
	DefaultFramesPerBlock = 512
)

// Context owns the graph. It serializes topology changes with block
// rendering, counts processed frames and fires scheduled events.
type Context struct {
	mu     sync.Mutex
	name   string
	logger log.Logger

	sampleRate         atomic.Int64
	framesPerBlock     atomic.Int64
	enabled            atomic.Bool
	numProcessedFrames atomic.Uint64
	lastBlockDuration  atomic.Int64

	output         *OutputNode
	autoPulled     []*Node
	pulling        []*Node
	autoPullBuffer signal.Float64
	events         []scheduledEvent
	firing         []scheduledEvent

	meter      metric.ResetFunc
	measure    metric.MeasureFunc
	blockStart time.Time
}

// scheduledEvent is a callback bound to a frame of processed time.
type scheduledEvent struct {
	frame             uint64
	node              *Node
	callBeforeProcess bool
	fn                func()
}

// NewContext returns a new context without output.
func NewContext(opts ...Option) (*Context, error) {
	ctx := &Context{
		name: "ctx-" + newUID(),
	}
	ctx.sampleRate.Store(DefaultSampleRate)
	ctx.framesPerBlock.Store(DefaultFramesPerBlock)
	for _, opt := range opts {
		if err := opt(ctx); err != nil {
			return nil, err
		}
	}
	if ctx.logger == nil {
		ctx.logger = log.GetLogger()
	}
	ctx.meter = metric.Meter(ctx, ctx.SampleRate())
	ctx.logger.Debug(fmt.Sprintf("%s: created, sample rate %d, frames per block %d", ctx.name, ctx.SampleRate(), ctx.FramesPerBlock()))
	return ctx, nil
}

// Name returns the name of context.
func (ctx *Context) Name() string {
	return ctx.name
}

// Logger returns the logger of context.
func (ctx *Context) Logger() log.Logger {
	return ctx.logger
}

// Mutex returns the mutex that guards graph topology and parameters.
func (ctx *Context) Mutex() *sync.Mutex {
	return &ctx.mu
}

// SampleRate returns sample rate of output, or the configured one if
// there's no output.
func (ctx *Context) SampleRate() int {
	return int(ctx.sampleRate.Load())
}

// FramesPerBlock returns block size of output, or the configured one if
// there's no output.
func (ctx *Context) FramesPerBlock() int {
	return int(ctx.framesPerBlock.Load())
}

// NumProcessedFrames returns the number of frames rendered so far.
func (ctx *Context) NumProcessedFrames() uint64 {
	return ctx.numProcessedFrames.Load()
}

// NumProcessedSeconds returns the duration of rendered signal in seconds.
func (ctx *Context) NumProcessedSeconds() float64 {
	return float64(ctx.numProcessedFrames.Load()) / float64(ctx.SampleRate())
}

// LastBlockDuration returns the time spent rendering the last block.
func (ctx *Context) LastBlockDuration() time.Duration {
	return time.Duration(ctx.lastBlockDuration.Load())
}

// Output returns the output node of context.
func (ctx *Context) Output() *OutputNode {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.output
}

// SetOutput makes out the root of the graph. Inputs of the previous output
// are moved to the new one. Nodes are reinitialized if block format has
// changed. Output can't be replaced while context is enabled.
func (ctx *Context) SetOutput(out *OutputNode) error {
	if out == nil {
		return ErrNoOutput
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.enabled.Load() {
		return ErrDeviceRunning
	}
	if ctx.output == out {
		return nil
	}
	var inputs []*Node
	if old := ctx.output; old != nil {
		inputs = append(inputs, old.inputs...)
		old.disconnectAllInputsLocked()
	}
	ctx.output = out
	changed := ctx.setFormatLocked(out.device.SampleRate(), out.device.FramesPerBlock())
	for _, in := range inputs {
		if err := in.connectLocked(ctx, out.Node); err != nil {
			return err
		}
	}
	if changed {
		ctx.reinitializeLocked()
	}
	ctx.logger.Info(fmt.Sprintf("%s: output set to %s, sample rate %d, frames per block %d", ctx.name, out.name, ctx.SampleRate(), ctx.FramesPerBlock()))
	return nil
}

// setFormatLocked updates block format and reports if it has changed.
func (ctx *Context) setFormatLocked(sampleRate, framesPerBlock int) bool {
	changed := false
	if sampleRate > 0 && ctx.SampleRate() != sampleRate {
		ctx.sampleRate.Store(int64(sampleRate))
		ctx.meter = metric.Meter(ctx, sampleRate)
		ctx.measure = nil
		changed = true
	}
	if framesPerBlock > 0 && ctx.FramesPerBlock() != framesPerBlock {
		ctx.framesPerBlock.Store(int64(framesPerBlock))
		changed = true
	}
	return changed
}

// IsEnabled reports if output device of context is running.
func (ctx *Context) IsEnabled() bool {
	return ctx.enabled.Load()
}

// Enable starts the output device.
func (ctx *Context) Enable() error {
	ctx.mu.Lock()
	out := ctx.output
	if out == nil {
		ctx.mu.Unlock()
		return ErrNoOutput
	}
	if ctx.enabled.Load() {
		ctx.mu.Unlock()
		return nil
	}
	out.enableLocked()
	ctx.enabled.Store(true)
	ctx.measure = nil
	ctx.mu.Unlock()

	// device may render synchronously, so it's started without the lock
	if err := out.device.Start(out); err != nil {
		ctx.mu.Lock()
		out.disableLocked()
		ctx.enabled.Store(false)
		ctx.mu.Unlock()
		ctx.logger.Warn(fmt.Sprintf("%s: failed to start %s: %v", ctx.name, out.device.Name(), err))
		return fmt.Errorf("start device %s: %w", out.device.Name(), err)
	}
	ctx.logger.Info(fmt.Sprintf("%s: started %s", ctx.name, out.device.Name()))
	return nil
}

// Disable stops the output device.
func (ctx *Context) Disable() error {
	ctx.mu.Lock()
	out := ctx.output
	if out == nil || !ctx.enabled.Load() {
		ctx.mu.Unlock()
		return nil
	}
	ctx.enabled.Store(false)
	out.disableLocked()
	ctx.mu.Unlock()

	if err := out.device.Stop(); err != nil {
		return fmt.Errorf("stop device %s: %w", out.device.Name(), err)
	}
	ctx.logger.Info(fmt.Sprintf("%s: stopped %s", ctx.name, out.device.Name()))
	return nil
}

// SetEnabled enables or disables context.
func (ctx *Context) SetEnabled(enabled bool) error {
	if enabled {
		return ctx.Enable()
	}
	return ctx.Disable()
}

// Close disables context, disconnects output and drops auto-pulled nodes
// and pending events.
func (ctx *Context) Close() error {
	err := ctx.Disable()
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.output != nil {
		ctx.output.disconnectAllInputsLocked()
	}
	for _, n := range ctx.autoPulled {
		n.pulledByContext = false
	}
	ctx.autoPulled = nil
	ctx.events = nil
	return err
}

// ScheduleEvent calls fn when the processed frames reach when seconds.
// It's called before the block that contains that frame is processed if
// callBeforeProcess is set and after it otherwise. Fn is called with the
// context mutex held. Events with the same frame fire in the order they
// were scheduled.
func (ctx *Context) ScheduleEvent(when float64, node Linkable, callBeforeProcess bool, fn func()) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.scheduleEventLocked(when, node.node(), callBeforeProcess, fn)
}

func (ctx *Context) scheduleEventLocked(when float64, n *Node, callBeforeProcess bool, fn func()) {
	frame := uint64(signal.FramesOf(ctx.SampleRate(), max(0, when)))
	frame = max(frame, ctx.numProcessedFrames.Load())
	i, _ := slices.BinarySearchFunc(ctx.events, frame+1, func(e scheduledEvent, f uint64) int {
		if e.frame < f {
			return -1
		}
		return 1
	})
	ctx.events = slices.Insert(ctx.events, i, scheduledEvent{
		frame:             frame,
		node:              n,
		callBeforeProcess: callBeforeProcess,
		fn:                fn,
	})
}

// CancelScheduledEvents removes all pending events of node.
func (ctx *Context) CancelScheduledEvents(node Linkable) {
	n := node.node()
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.cancelScheduledEventsLocked(n)
}

func (ctx *Context) cancelScheduledEventsLocked(n *Node) {
	ctx.events = slices.DeleteFunc(ctx.events, func(e scheduledEvent) bool {
		return e.node == n
	})
}

// NumScheduledEvents returns the number of pending events.
func (ctx *Context) NumScheduledEvents() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return len(ctx.events)
}

// processEventsLocked fires events due in the current block. Before
// processing only events marked to be called before are fired, after
// processing all remaining due events are fired.
func (ctx *Context) processEventsLocked(beforeProcess bool) {
	if len(ctx.events) == 0 {
		return
	}
	blockEnd := ctx.numProcessedFrames.Load() + uint64(ctx.FramesPerBlock())
	kept := ctx.events[:0]
	for _, e := range ctx.events {
		if e.frame < blockEnd && (e.callBeforeProcess || !beforeProcess) {
			ctx.firing = append(ctx.firing, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(ctx.events[len(kept):])
	ctx.events = kept
	for _, e := range ctx.firing {
		e.fn()
	}
	clear(ctx.firing)
	ctx.firing = ctx.firing[:0]
}

// AddAutoPulledNode makes context pull node after the output every block.
func (ctx *Context) AddAutoPulledNode(node Linkable) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.addAutoPulledNodeLocked(node.node())
}

// RemoveAutoPulledNode stops pulling node by context.
func (ctx *Context) RemoveAutoPulledNode(node Linkable) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.removeAutoPulledNodeLocked(node.node())
}

func (ctx *Context) addAutoPulledNodeLocked(n *Node) {
	n.pulledByContext = true
	ctx.ensureAutoPullBufferLocked(n.numChannels)
	if slices.Contains(ctx.autoPulled, n) {
		return
	}
	ctx.autoPulled = append(ctx.autoPulled, n)
}

func (ctx *Context) removeAutoPulledNodeLocked(n *Node) {
	n.pulledByContext = false
	ctx.autoPulled = slices.DeleteFunc(ctx.autoPulled, func(p *Node) bool {
		return p == n
	})
}

// ensureAutoPullBufferLocked grows the buffer auto-pulled nodes render
// into.
func (ctx *Context) ensureAutoPullBufferLocked(numChannels int) {
	numChannels = max(numChannels, ctx.autoPullBuffer.NumChannels())
	ctx.autoPullBuffer = signal.Resize(ctx.autoPullBuffer, numChannels, ctx.FramesPerBlock())
}

// NumAutoPulledNodes returns the number of nodes pulled by context.
func (ctx *Context) NumAutoPulledNodes() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return len(ctx.autoPulled)
}

func (ctx *Context) processAutoPulledLocked() {
	ctx.pulling = append(ctx.pulling, ctx.autoPulled...)
	for _, n := range ctx.pulling {
		buf := ctx.autoPullBuffer.Channels(n.numChannels)
		n.pullInputs(buf)
		if n.processInPlace {
			signal.Mix(n.internal, buf)
		}
	}
	clear(ctx.pulling)
	ctx.pulling = ctx.pulling[:0]
}

// PreProcess starts a block. Due events marked to be called before
// processing are fired. Must be called with the mutex held.
func (ctx *Context) PreProcess() {
	ctx.blockStart = time.Now()
	if ctx.measure == nil {
		ctx.measure = ctx.meter()
	}
	ctx.processEventsLocked(true)
}

// PostProcess finishes a block. Auto-pulled nodes are pulled, remaining due
// events are fired and processed frames counter is advanced. Must be
// called with the mutex held.
func (ctx *Context) PostProcess() {
	ctx.processAutoPulledLocked()
	ctx.processEventsLocked(false)
	framesPerBlock := ctx.FramesPerBlock()
	ctx.numProcessedFrames.Add(uint64(framesPerBlock))
	elapsed := time.Since(ctx.blockStart)
	ctx.lastBlockDuration.Store(int64(elapsed))
	if ctx.measure != nil {
		ctx.measure(int64(framesPerBlock), elapsed)
	}
}

// InitializeNode initializes node eagerly, so its setup cost isn't paid
// when it's connected.
func (ctx *Context) InitializeNode(node Linkable) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	node.node().initialize()
}

// UninitializeNode releases node resources. Node is disabled.
func (ctx *Context) UninitializeNode(node Linkable) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	node.node().uninitialize()
}

// InitializeAllNodes initializes every node reachable from output and
// auto-pulled nodes.
func (ctx *Context) InitializeAllNodes() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.initializeAllLocked()
}

// UninitializeAllNodes uninitializes every node reachable from output and
// auto-pulled nodes.
func (ctx *Context) UninitializeAllNodes() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.uninitializeAllLocked()
}

// walkLocked calls fn for every node reachable from the roots, inputs and
// param processors first.
func (ctx *Context) walkLocked(fn func(*Node)) {
	visited := make(map[*Node]struct{})
	var walk func(n *Node)
	walk = func(n *Node) {
		if _, ok := visited[n]; ok {
			return
		}
		visited[n] = struct{}{}
		for _, in := range n.inputs {
			walk(in)
		}
		for _, p := range n.params {
			if p.processor != nil {
				walk(p.processor)
			}
		}
		fn(n)
	}
	if ctx.output != nil {
		walk(ctx.output.Node)
	}
	for _, n := range ctx.autoPulled {
		walk(n)
	}
}

func (ctx *Context) initializeAllLocked() {
	ctx.walkLocked(func(n *Node) {
		n.configureConnections()
	})
	for _, n := range ctx.autoPulled {
		ctx.ensureAutoPullBufferLocked(n.numChannels)
	}
}

func (ctx *Context) uninitializeAllLocked() {
	ctx.walkLocked(func(n *Node) {
		n.uninitialize()
	})
}

// reinitializeLocked rebuilds buffers of all nodes after format change.
// Enabled nodes stay enabled.
func (ctx *Context) reinitializeLocked() {
	var enabled []*Node
	ctx.walkLocked(func(n *Node) {
		if n.enabled.Load() {
			enabled = append(enabled, n)
		}
	})
	ctx.uninitializeAllLocked()
	ctx.autoPullBuffer = nil
	ctx.initializeAllLocked()
	for _, n := range enabled {
		n.enableLocked()
	}
}

// PrintGraph returns a text dump of the graph reachable from output and
// auto-pulled nodes.
func (ctx *Context) PrintGraph() string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	var b strings.Builder
	var dump func(n *Node, depth int, path map[*Node]bool)
	dump = func(n *Node, depth int, path map[*Node]bool) {
		mode := "in-place"
		if !n.processInPlace {
			mode = "summing"
		}
		enabled := "disabled"
		if n.enabled.Load() {
			enabled = "enabled"
		}
		fmt.Fprintf(&b, "%s%s [%d ch, %s, %s, %s]", strings.Repeat("\t", depth), n.name, n.numChannels, n.channelMode, mode, enabled)
		if path[n] {
			b.WriteString(" (cycle)\n")
			return
		}
		b.WriteString("\n")
		path[n] = true
		for _, in := range n.inputs {
			dump(in, depth+1, path)
		}
		delete(path, n)
	}
	if ctx.output != nil {
		dump(ctx.output.Node, 0, map[*Node]bool{})
	}
	for _, n := range ctx.autoPulled {
		b.WriteString("auto-pulled:\n")
		dump(n, 1, map[*Node]bool{})
	}
	return b.String()
}
