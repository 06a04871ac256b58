package audiograph

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"weak"

	"github.com/rs/xid"

	"pipelined.dev/audiograph/signal"
)

// ChannelMode defines how node resolves its number of channels when it's
// connected.
type ChannelMode int

const (
	// Specified nodes keep the number of channels they were created with.
	Specified ChannelMode = iota
	// MatchesInput nodes adopt the largest number of channels of inputs.
	MatchesInput
	// MatchesOutput nodes adopt the number of channels of their output.
	MatchesOutput
)

func (m ChannelMode) String() string {
	switch m {
	case Specified:
		return "specified"
	case MatchesInput:
		return "matches input"
	case MatchesOutput:
		return "matches output"
	default:
		return fmt.Sprintf("ChannelMode(%d)", int(m))
	}
}

// Linkable is a vertex of the graph. All node types implement it by
// embedding *Node.
type Linkable interface {
	node() *Node
}

// Hooks that node implementations may provide. They are called with the
// context mutex held, so they must not call locking methods.
type (
	processor interface {
		// Process renders one block in place.
		Process(signal.Float64)
	}
	initializer interface {
		Initialize()
	}
	uninitializer interface {
		Uninitialize()
	}
	cycleSupporter interface {
		SupportsCycles() bool
	}
	inPlaceSupporter interface {
		SupportsProcessInPlace() bool
	}
	processingEnabler interface {
		EnableProcessing()
	}
	processingDisabler interface {
		DisableProcessing()
	}
)

// Node is a vertex of audio graph. It holds the connections and buffers,
// while processing is done by the implementation passed to MakeNode.
type Node struct {
	id   string
	name string
	ctx  weak.Pointer[Context]
	impl interface{}
	proc processor

	numChannels     int
	channelMode     ChannelMode
	autoEnabled     bool
	autoPull        bool
	terminal        bool
	initialized     bool
	processInPlace  bool
	pulledByContext bool
	enabled         atomic.Bool

	inputs  []*Node
	outputs []weak.Pointer[Node]
	params  []*Param

	internal           signal.Float64
	summing            signal.Float64
	pulled             signal.Float64
	lastProcessedFrame uint64
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// MakeNode creates a node bound to this context. Impl provides processing
// and optional lifecycle hooks. Concrete node types embed the returned node
// and pass themselves as impl. Node is created disconnected and
// uninitialized, with one channel matching its inputs.
func (ctx *Context) MakeNode(impl interface{}, opts ...NodeOption) *Node {
	n := &Node{
		id:                 newUID(),
		ctx:                weak.Make(ctx),
		impl:               impl,
		numChannels:        1,
		channelMode:        MatchesInput,
		autoEnabled:        true,
		processInPlace:     true,
		lastProcessedFrame: math.MaxUint64,
	}
	if p, ok := impl.(processor); ok {
		n.proc = p
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.name == "" {
		n.name = typeName(impl)
	}
	ctx.logger.Debug(fmt.Sprintf("%s: created %s (%s)", ctx.name, n.name, n.id))
	return n
}

func typeName(impl interface{}) string {
	if impl == nil {
		return "Node"
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", impl), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (n *Node) node() *Node {
	return n
}

func (n *Node) context() *Context {
	return n.ctx.Value()
}

// locked runs fn with the context mutex held. It returns false if the
// context is gone.
func (n *Node) locked(fn func(ctx *Context)) bool {
	ctx := n.context()
	if ctx == nil {
		return false
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	fn(ctx)
	return true
}

// ID returns unique id of node.
func (n *Node) ID() string {
	return n.id
}

// Name returns the name of node.
func (n *Node) Name() string {
	return n.name
}

func (n *Node) String() string {
	return n.name
}

// Context returns the context node belongs to, nil if it's gone.
func (n *Node) Context() *Context {
	return n.context()
}

// SampleRate returns sample rate of node's context.
func (n *Node) SampleRate() int {
	if ctx := n.context(); ctx != nil {
		return ctx.SampleRate()
	}
	return 0
}

// FramesPerBlock returns block size of node's context.
func (n *Node) FramesPerBlock() int {
	if ctx := n.context(); ctx != nil {
		return ctx.FramesPerBlock()
	}
	return 0
}

// NumChannels returns number of channels node processes.
func (n *Node) NumChannels() (numChannels int) {
	n.locked(func(*Context) { numChannels = n.numChannels })
	return
}

// ChannelMode returns how node resolves its number of channels.
func (n *Node) ChannelMode() (mode ChannelMode) {
	n.locked(func(*Context) { mode = n.channelMode })
	return
}

// IsEnabled reports if node processes its samples.
func (n *Node) IsEnabled() bool {
	return n.enabled.Load()
}

// IsInitialized reports if node has allocated its buffers.
func (n *Node) IsInitialized() (initialized bool) {
	n.locked(func(*Context) { initialized = n.initialized })
	return
}

// IsProcessingInPlace reports if node processes the buffer of its output
// instead of summing inputs into its own.
func (n *Node) IsProcessingInPlace() (inPlace bool) {
	n.locked(func(*Context) { inPlace = n.processInPlace })
	return
}

// IsAutoPulled reports if context pulls this node every block.
func (n *Node) IsAutoPulled() (pulled bool) {
	n.locked(func(*Context) { pulled = n.pulledByContext })
	return
}

// NumConnectedInputs returns number of inputs.
func (n *Node) NumConnectedInputs() (num int) {
	n.locked(func(*Context) { num = len(n.inputs) })
	return
}

// NumConnectedOutputs returns number of alive outputs.
func (n *Node) NumConnectedOutputs() (num int) {
	n.locked(func(*Context) { num = n.numConnectedOutputs() })
	return
}

// Inputs returns a copy of node inputs.
func (n *Node) Inputs() (inputs []*Node) {
	n.locked(func(*Context) { inputs = append(inputs, n.inputs...) })
	return
}

// Outputs returns alive outputs of node.
func (n *Node) Outputs() (outputs []*Node) {
	n.locked(func(*Context) { outputs = n.liveOutputs() })
	return
}

// IsConnectedToInput reports if input feeds this node.
func (n *Node) IsConnectedToInput(input Linkable) (connected bool) {
	in := input.node()
	n.locked(func(*Context) { connected = n.hasInput(in) })
	return
}

// IsConnectedToOutput reports if this node feeds output.
func (n *Node) IsConnectedToOutput(output Linkable) (connected bool) {
	out := output.node()
	n.locked(func(*Context) { connected = out.hasInput(n) })
	return
}

// InternalBuffer returns the buffer node renders into when it doesn't
// process in place. It's owned by the rendering goroutine.
func (n *Node) InternalBuffer() (buf signal.Float64) {
	n.locked(func(*Context) { buf = n.internal })
	return
}

// SummingBuffer returns the buffer inputs are summed into, nil if node
// processes in place.
func (n *Node) SummingBuffer() (buf signal.Float64) {
	n.locked(func(*Context) {
		if !n.processInPlace {
			buf = n.summing
		}
	})
	return
}

// Connect makes this node an input of output. Connection is ignored if
// output is nil, is this node or is already connected. CycleError is
// returned if connection closes a loop without a node that supports
// cycles.
func (n *Node) Connect(output Linkable) error {
	if output == nil {
		return nil
	}
	out := output.node()
	if out == nil {
		return nil
	}
	ctx := n.context()
	if ctx == nil {
		return ErrNoContext
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return n.connectLocked(ctx, out)
}

func (n *Node) connectLocked(ctx *Context, out *Node) error {
	if n.terminal || !out.canConnectToInput(n) {
		return nil
	}
	if checkCycle(n, out) {
		err := &CycleError{Source: n.name, Dest: out.name}
		ctx.logger.Warn(err)
		return err
	}
	n.pruneOutputs()
	n.outputs = append(n.outputs, weak.Make(out))
	out.inputs = append(out.inputs, n)
	out.configureConnections()
	n.connectionsDidChange()
	out.connectionsDidChange()
	ctx.logger.Debug(fmt.Sprintf("%s: connected %s -> %s", ctx.name, n.name, out.name))
	return nil
}

// Chain connects every node to the next one.
func Chain(nodes ...Linkable) error {
	for i := 1; i < len(nodes); i++ {
		if err := nodes[i-1].node().Connect(nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes connection to output.
func (n *Node) Disconnect(output Linkable) {
	if output == nil {
		return
	}
	out := output.node()
	n.locked(func(*Context) { n.disconnectLocked(out) })
}

// DisconnectInput removes connection from input.
func (n *Node) DisconnectInput(input Linkable) {
	if input == nil {
		return
	}
	in := input.node()
	n.locked(func(*Context) { in.disconnectLocked(n) })
}

// DisconnectAll removes all connections of node.
func (n *Node) DisconnectAll() {
	n.locked(func(*Context) {
		n.disconnectAllInputsLocked()
		n.disconnectAllOutputsLocked()
	})
}

// DisconnectAllInputs removes connections from all inputs.
func (n *Node) DisconnectAllInputs() {
	n.locked(func(*Context) { n.disconnectAllInputsLocked() })
}

// DisconnectAllOutputs removes connections to all outputs.
func (n *Node) DisconnectAllOutputs() {
	n.locked(func(*Context) { n.disconnectAllOutputsLocked() })
}

func (n *Node) disconnectLocked(out *Node) {
	for i, o := range n.outputs {
		if o.Value() != out {
			continue
		}
		n.outputs = append(n.outputs[:i], n.outputs[i+1:]...)
		out.removeInput(n)
		out.configureConnections()
		n.configureConnections()
		n.connectionsDidChange()
		out.connectionsDidChange()
		if ctx := n.context(); ctx != nil {
			ctx.logger.Debug(fmt.Sprintf("%s: disconnected %s -> %s", ctx.name, n.name, out.name))
		}
		return
	}
}

func (n *Node) disconnectAllInputsLocked() {
	inputs := n.inputs
	n.inputs = nil
	for _, in := range inputs {
		in.removeOutput(n)
		in.configureConnections()
		in.connectionsDidChange()
	}
	n.configureConnections()
	n.connectionsDidChange()
}

func (n *Node) disconnectAllOutputsLocked() {
	for _, out := range n.liveOutputs() {
		n.disconnectLocked(out)
	}
	n.outputs = nil
	n.connectionsDidChange()
}

func (n *Node) removeInput(in *Node) {
	for i := range n.inputs {
		if n.inputs[i] == in {
			n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
			return
		}
	}
}

func (n *Node) removeOutput(out *Node) {
	for i := range n.outputs {
		if n.outputs[i].Value() == out {
			n.outputs = append(n.outputs[:i], n.outputs[i+1:]...)
			return
		}
	}
}

func (n *Node) hasInput(in *Node) bool {
	for _, i := range n.inputs {
		if i == in {
			return true
		}
	}
	return false
}

func (n *Node) canConnectToInput(in *Node) bool {
	if in == nil || in == n || in.ctx != n.ctx {
		return false
	}
	return !n.hasInput(in)
}

// pruneOutputs drops outputs that were collected.
func (n *Node) pruneOutputs() {
	alive := n.outputs[:0]
	for _, o := range n.outputs {
		if o.Value() != nil {
			alive = append(alive, o)
		}
	}
	clear(n.outputs[len(alive):])
	n.outputs = alive
}

func (n *Node) liveOutputs() []*Node {
	var outputs []*Node
	for _, o := range n.outputs {
		if out := o.Value(); out != nil {
			outputs = append(outputs, out)
		}
	}
	return outputs
}

func (n *Node) numConnectedOutputs() int {
	var num int
	for _, o := range n.outputs {
		if o.Value() != nil {
			num++
		}
	}
	return num
}

// checkCycle reports if dest is reachable walking the inputs of source.
// Walk stops at nodes that support cycles.
func checkCycle(source, dest *Node) bool {
	if source == dest {
		return true
	}
	if source.supportsCycles() || dest.supportsCycles() {
		return false
	}
	for _, in := range source.inputs {
		if checkCycle(in, dest) {
			return true
		}
	}
	return false
}

func (n *Node) supportsCycles() bool {
	if s, ok := n.impl.(cycleSupporter); ok {
		return s.SupportsCycles()
	}
	return false
}

func (n *Node) supportsProcessInPlace() bool {
	if s, ok := n.impl.(inPlaceSupporter); ok {
		return s.SupportsProcessInPlace()
	}
	return true
}

func (n *Node) inputChannelsAreUnequal() bool {
	for i := 1; i < len(n.inputs); i++ {
		if n.inputs[i].numChannels != n.inputs[0].numChannels {
			return true
		}
	}
	return false
}

func (n *Node) maxInputChannels() int {
	var result int
	for _, in := range n.inputs {
		result = max(result, in.numChannels)
	}
	return result
}

// configureConnections decides if node and its neighbours process in place
// and negotiates number of channels. Inputs and node itself are
// initialized.
func (n *Node) configureConnections() {
	n.processInPlace = n.supportsProcessInPlace()
	if len(n.inputs) > 1 || n.numConnectedOutputs() > 1 {
		n.processInPlace = false
	}

	unequal := n.inputChannelsAreUnequal()
	for _, in := range n.inputs {
		inputInPlace := true
		if in.numChannels != n.numChannels {
			switch {
			case n.channelMode == MatchesInput:
				n.setNumChannels(n.maxInputChannels())
			case in.channelMode == MatchesOutput:
				in.setNumChannels(n.numChannels)
				in.configureConnections()
			default:
				n.processInPlace = false
				inputInPlace = false
			}
		}
		// input feeding several outputs can't share their buffers
		if in.processInPlace && in.numConnectedOutputs() > 1 {
			inputInPlace = false
		}
		if unequal {
			inputInPlace = false
		}
		// node in a feedback loop must not read a neighbour buffer that
		// was already overwritten this block
		if !n.processInPlace && n.supportsCycles() {
			inputInPlace = false
		}
		if !inputInPlace {
			in.setupProcessWithSumming()
		}
		in.initialize()
	}

	for _, out := range n.liveOutputs() {
		if out.numChannels == n.numChannels {
			continue
		}
		if out.channelMode == MatchesInput {
			out.setNumChannels(n.numChannels)
			out.configureConnections()
		} else {
			n.processInPlace = false
		}
	}

	if !n.processInPlace {
		n.setupProcessWithSumming()
	}
	n.initialize()
}

func (n *Node) setNumChannels(numChannels int) {
	if n.numChannels == numChannels || numChannels < 1 {
		return
	}
	n.uninitialize()
	n.numChannels = numChannels
}

func (n *Node) setupProcessWithSumming() {
	n.processInPlace = false
	ctx := n.context()
	if ctx == nil {
		return
	}
	framesPerBlock := ctx.FramesPerBlock()
	n.internal = signal.Resize(n.internal, n.numChannels, framesPerBlock)
	n.summing = signal.Resize(n.summing, n.numChannels, framesPerBlock)
	n.pulled = signal.Resize(n.pulled, n.numChannels, framesPerBlock)
}

func (n *Node) initialize() {
	if n.initialized {
		return
	}
	ctx := n.context()
	if ctx == nil {
		return
	}
	if n.processInPlace && !n.supportsProcessInPlace() {
		n.setupProcessWithSumming()
	}
	framesPerBlock := ctx.FramesPerBlock()
	n.internal = signal.Resize(n.internal, n.numChannels, framesPerBlock)
	if !n.processInPlace {
		n.summing = signal.Resize(n.summing, n.numChannels, framesPerBlock)
		n.pulled = signal.Resize(n.pulled, n.numChannels, framesPerBlock)
	}
	for _, p := range n.params {
		p.resize(framesPerBlock)
	}
	if h, ok := n.impl.(initializer); ok {
		h.Initialize()
	}
	n.initialized = true
	if n.autoEnabled {
		n.enableLocked()
	}
}

func (n *Node) uninitialize() {
	if !n.initialized {
		return
	}
	n.disableLocked()
	if h, ok := n.impl.(uninitializer); ok {
		h.Uninitialize()
	}
	n.initialized = false
}

// Enable starts processing. Node is initialized if needed. Pending
// scheduled events of node are canceled.
func (n *Node) Enable() {
	n.locked(func(ctx *Context) {
		ctx.cancelScheduledEventsLocked(n)
		n.enableLocked()
	})
}

// Disable stops processing. Pending scheduled events of node are
// canceled.
func (n *Node) Disable() {
	n.locked(func(ctx *Context) {
		ctx.cancelScheduledEventsLocked(n)
		n.disableLocked()
	})
}

// SetEnabled enables or disables node.
func (n *Node) SetEnabled(enabled bool) {
	if enabled {
		n.Enable()
	} else {
		n.Disable()
	}
}

// EnableAt enables node at the start of the block that contains the frame
// at when seconds of processed time.
func (n *Node) EnableAt(when float64) {
	if ctx := n.context(); ctx != nil {
		ctx.ScheduleEvent(when, n, true, n.enableLocked)
	}
}

// DisableAt disables node at the end of the block that contains the frame
// at when seconds of processed time.
func (n *Node) DisableAt(when float64) {
	if ctx := n.context(); ctx != nil {
		ctx.ScheduleEvent(when, n, false, n.disableLocked)
	}
}

func (n *Node) enableLocked() {
	if !n.initialized {
		n.initialize()
	}
	if n.enabled.Load() {
		return
	}
	n.enabled.Store(true)
	if h, ok := n.impl.(processingEnabler); ok {
		h.EnableProcessing()
	}
	n.connectionsDidChange()
}

func (n *Node) disableLocked() {
	if !n.enabled.Load() {
		return
	}
	n.enabled.Store(false)
	if h, ok := n.impl.(processingDisabler); ok {
		h.DisableProcessing()
	}
	n.connectionsDidChange()
}

// connectionsDidChange keeps auto-pulled nodes registered in context.
func (n *Node) connectionsDidChange() {
	if !n.autoPull {
		return
	}
	ctx := n.context()
	if ctx == nil {
		return
	}
	required := n.enabled.Load() && len(n.inputs) > 0 && n.numConnectedOutputs() == 0
	switch {
	case required && !n.pulledByContext:
		ctx.addAutoPulledNodeLocked(n)
	case !required && n.pulledByContext:
		ctx.removeAutoPulledNodeLocked(n)
	case required:
		ctx.ensureAutoPullBufferLocked(n.numChannels)
	}
}

// pullInputs renders one block of node. In-place nodes render into buf,
// summing nodes render into their internal buffer once per block.
func (n *Node) pullInputs(buf signal.Float64) {
	if n.processInPlace {
		if len(n.inputs) == 0 {
			if n.enabled.Load() && n.proc != nil {
				n.proc.Process(buf)
			} else {
				buf.Zero()
			}
			return
		}
		in := n.inputs[0]
		in.pullInputs(buf)
		if !in.processInPlace {
			signal.Mix(buf, in.internal)
		}
		if n.enabled.Load() && n.proc != nil {
			n.proc.Process(buf)
		}
		return
	}

	ctx := n.context()
	if ctx == nil {
		return
	}
	frame := ctx.numProcessedFrames.Load()
	if n.lastProcessedFrame == frame {
		return
	}
	n.lastProcessedFrame = frame
	n.summing.Zero()
	n.sumInputs()
}

// sumInputs pulls every input and sums the buffer it rendered into.
// Internal buffer keeps the previous block until the sum is done, so inputs
// in a feedback loop read it regardless of their order.
func (n *Node) sumInputs() {
	for _, in := range n.inputs {
		in.pullInputs(n.pulled)
		processed := n.pulled
		if !in.processInPlace {
			processed = in.internal
		}
		signal.Sum(n.summing, processed)
	}
	if n.enabled.Load() && n.proc != nil {
		n.proc.Process(n.summing)
	}
	signal.Mix(n.internal, n.summing)
}
