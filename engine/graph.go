package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Node is a stage of a network together with its inputs and its output shape.
type Node struct {
	ID     int
	Name   string
	Op     Op
	Inputs []*Node
	Shape  Shape
}

// Builder assembles a network for a fixed input shape.
// Every stage checks its shape contract when it is added; the first
// violation is kept and returned by Err and Build, later calls are no-ops.
type Builder struct {
	nodes  []*Node
	input  *Node
	counts map[string]int
	err    error
}

// NewBuilder returns a builder whose input stage has the specified shape.
func NewBuilder(input Shape) *Builder {
	b := &Builder{
		counts: map[string]int{},
	}
	if !input.Valid() {
		b.err = &ShapeError{Stage: "input_layer", Got: input, Msg: "every dimension must be positive"}
		return b
	}
	b.input = b.add("input_layer", inputOp{}, nil, input)
	return b
}

// Err returns the first error encountered while building.
func (b *Builder) Err() error {
	return b.err
}

// Input returns the input stage.
func (b *Builder) Input() *Node {
	return b.input
}

// uniqueName returns prefix, prefix_1, prefix_2, ... on successive calls.
func (b *Builder) uniqueName(prefix string) string {
	n := b.counts[prefix]
	b.counts[prefix]++
	if n == 0 {
		return prefix
	}
	return fmt.Sprintf("%s_%d", prefix, n)
}

func (b *Builder) add(name string, op Op, in []*Node, shape Shape) *Node {
	n := &Node{
		ID:     len(b.nodes),
		Name:   name,
		Op:     op,
		Inputs: in,
		Shape:  shape,
	}
	b.nodes = append(b.nodes, n)
	return n
}

// stage creates a named stage with the op returned by mk and checks its shape contract.
func (b *Builder) stage(prefix string, mk func(name string, in []Shape) Op, in ...*Node) *Node {
	if b.err != nil {
		return nil
	}
	shapes := make([]Shape, len(in))
	for i, n := range in {
		if n == nil {
			b.err = fmt.Errorf("%s: input %d is nil", prefix, i)
			return nil
		}
		shapes[i] = n.Shape
	}
	name := b.uniqueName(prefix)
	op := mk(name, shapes)
	out, err := op.OutputShape(shapes)
	if err != nil {
		var se *ShapeError
		if errors.As(err, &se) {
			se.Stage = name
			b.err = se
		} else {
			b.err = errors.Wrap(err, name)
		}
		return nil
	}
	return b.add(name, op, in, out)
}

// Conv2D adds a same padded, stride 1 convolution.
func (b *Builder) Conv2D(x *Node, filters, size int, act Activation) *Node {
	return b.stage("conv2d", func(name string, in []Shape) Op {
		return newConv2D(name, in[0].C, filters, size, act)
	}, x)
}

// BatchNorm adds an inference batch normalization.
func (b *Builder) BatchNorm(x *Node) *Node {
	return b.stage("batch_normalization", func(name string, in []Shape) Op {
		return newBatchNorm(name, in[0].C)
	}, x)
}

// MaxPool2D adds a 2x2 max pooling that halves the spatial size.
func (b *Builder) MaxPool2D(x *Node) *Node {
	return b.stage("max_pooling2d", func(string, []Shape) Op { return maxPool2D{} }, x)
}

// UpSample2D adds a 2x2 nearest neighbor upsampling that doubles the spatial size.
func (b *Builder) UpSample2D(x *Node) *Node {
	return b.stage("up_sampling2d", func(string, []Shape) Op { return upSample2D{} }, x)
}

// Concat adds a channel-wise concatenation of xs in order.
func (b *Builder) Concat(xs ...*Node) *Node {
	return b.stage("concatenate", func(string, []Shape) Op { return concat{} }, xs...)
}

// Add adds an element-wise sum of xs.
func (b *Builder) Add(xs ...*Node) *Node {
	return b.stage("add", func(string, []Shape) Op { return add{} }, xs...)
}

// Clip adds a stage that clamps values to [lo, hi].
func (b *Builder) Clip(x *Node, lo, hi float32) *Node {
	return b.stage("clip", func(string, []Shape) Op { return clip{lo: lo, hi: hi} }, x)
}

// Build returns the network that computes output from the input stage.
func (b *Builder) Build(name string, output *Node) (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}
	if output == nil {
		return nil, errors.New("build: output is nil")
	}
	net := &Network{
		Name:     name,
		nodes:    b.nodes,
		input:    b.input,
		output:   output,
		lastUse:  make([]int, len(b.nodes)),
		paramMap: map[string]*Param{},
	}
	for _, n := range b.nodes {
		net.lastUse[n.ID] = n.ID
		for _, in := range n.Inputs {
			net.lastUse[in.ID] = n.ID
		}
		for _, p := range n.Op.Params() {
			if _, dup := net.paramMap[p.Name]; dup {
				return nil, errors.Errorf("build: duplicated parameter %q", p.Name)
			}
			net.params = append(net.params, p)
			net.paramMap[p.Name] = p
		}
	}
	net.lastUse[output.ID] = len(b.nodes)
	return net, nil
}

// Network is a directed acyclic graph of stages built for one input shape.
type Network struct {
	Name     string
	nodes    []*Node // topologically ordered
	input    *Node
	output   *Node
	lastUse  []int
	params   []*Param
	paramMap map[string]*Param
}

// InputShape returns the shape the network accepts.
func (n *Network) InputShape() Shape {
	return n.input.Shape
}

// OutputShape returns the shape the network produces.
func (n *Network) OutputShape() Shape {
	return n.output.Shape
}

// Nodes returns the stages in evaluation order.
func (n *Network) Nodes() []*Node {
	return n.nodes
}

// Params returns the learned parameters in construction order.
func (n *Network) Params() []*Param {
	return n.params
}

// Param returns the parameter of the specified name.
func (n *Network) Param(name string) (*Param, bool) {
	p, ok := n.paramMap[name]
	return p, ok
}

// NumParams returns the total number of learned values.
func (n *Network) NumParams() int {
	var ret int
	for _, p := range n.params {
		ret += p.Len()
	}
	return ret
}

// Forward evaluates the network on x. The input is not modified.
// Intermediate tensors are released after their last consumer has run.
func (n *Network) Forward(ctx context.Context, x *Tensor, opt ExecOptions) (*Tensor, error) {
	if x.Shape != n.input.Shape {
		return nil, &ShapeError{Stage: n.input.Name, Want: n.input.Shape, Got: x.Shape}
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	values := make([]*Tensor, len(n.nodes))
	values[n.input.ID] = x
	in := make([]*Tensor, 0, 2)
	for _, node := range n.nodes {
		if node == n.input {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in = in[:0]
		for _, src := range node.Inputs {
			in = append(in, values[src.ID])
		}
		start := time.Now()
		out, err := node.Op.Forward(ctx, opt, in)
		if err != nil {
			return nil, errors.Wrap(err, node.Name)
		}
		if out.Shape != node.Shape {
			return nil, &ShapeError{Stage: node.Name, Want: node.Shape, Got: out.Shape}
		}
		values[node.ID] = out
		logger.Debug("stage done",
			zap.String("stage", node.Name),
			zap.Stringer("shape", out.Shape),
			zap.Duration("elapsed", time.Since(start)))
		for _, src := range node.Inputs {
			if n.lastUse[src.ID] == node.ID && src != n.input {
				values[src.ID] = nil
			}
		}
	}
	return values[n.output.ID], nil
}
