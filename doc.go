/*
Package audiograph is a pull-based real-time audio processing graph.

A graph is built from nodes that are created by a Context:

	ctx, err := audiograph.NewContext()
	out, err := audiograph.NewOutputNode(ctx, device)
	err = ctx.SetOutput(out)
	sine := audiograph.NewSine(ctx, 440)
	gain := audiograph.NewGain(ctx, 0)
	err = audiograph.Chain(sine, gain, out)
	sine.Enable()
	gain.Param().ApplyRamp(1, 0.5)
	err = ctx.Enable()

Every processing block the output device calls Render on the output node.
It pulls its inputs recursively, so every node's inputs are processed
before the node itself. Nodes with a single input and output process the
block in place, other nodes sum their inputs into a private buffer.

Topology and parameter changes are made from user goroutines and are
serialized with the block rendering by a single mutex owned by the
Context. Hot values like enabled state, processed frames counter and
parameter values are atomics and can be read at any time.

Inputs of a node are strong references and outputs are weak. A node is
alive while it is reachable from the context output, from the set of
auto-pulled nodes or from a user handle.
*/
package audiograph
