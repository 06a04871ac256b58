package audiograph

import (
	"fmt"

	"pipelined.dev/audiograph/log"
)

// Option configures a Context.
type Option func(*Context) error

// WithLogger sets the logger of context and its nodes.
func WithLogger(l log.Logger) Option {
	return func(ctx *Context) error {
		ctx.logger = l
		return nil
	}
}

// WithName sets the name of context.
func WithName(name string) Option {
	return func(ctx *Context) error {
		ctx.name = name
		return nil
	}
}

// WithSampleRate sets the sample rate used until an output is set.
func WithSampleRate(sampleRate int) Option {
	return func(ctx *Context) error {
		if sampleRate <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
		}
		ctx.sampleRate.Store(int64(sampleRate))
		return nil
	}
}

// WithFramesPerBlock sets the block size used until an output is set.
func WithFramesPerBlock(framesPerBlock int) Option {
	return func(ctx *Context) error {
		if framesPerBlock <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidFrames, framesPerBlock)
		}
		ctx.framesPerBlock.Store(int64(framesPerBlock))
		return nil
	}
}

// NodeOption configures a Node at creation.
type NodeOption func(*Node)

// WithChannels fixes the number of channels of node. Values below 1 are
// ignored.
func WithChannels(numChannels int) NodeOption {
	return func(n *Node) {
		if numChannels < 1 {
			return
		}
		n.numChannels = numChannels
		n.channelMode = Specified
	}
}

// WithChannelMode sets how node resolves its number of channels.
func WithChannelMode(mode ChannelMode) NodeOption {
	return func(n *Node) {
		n.channelMode = mode
	}
}

// WithAutoEnable defines if node is enabled as soon as it's initialized.
func WithAutoEnable(autoEnable bool) NodeOption {
	return func(n *Node) {
		n.autoEnabled = autoEnable
	}
}

// WithNodeName sets the name of node.
func WithNodeName(name string) NodeOption {
	return func(n *Node) {
		n.name = name
	}
}

// WithAutoPull makes context pull the node every block while it's enabled,
// has inputs and has no outputs.
func WithAutoPull() NodeOption {
	return func(n *Node) {
		n.autoPull = true
	}
}

// sourceDefaults are prepended to options of nodes without inputs.
func sourceDefaults(opts []NodeOption) []NodeOption {
	return append([]NodeOption{WithChannelMode(Specified), WithAutoEnable(false)}, opts...)
}
