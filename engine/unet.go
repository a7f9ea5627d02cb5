package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ModelName is the name of the deblurring network.
const ModelName = "unet_deblurring_cnn"

// Architecture describes the U-Net deblurring network for a fixed input size.
type Architecture struct {
	Width  int
	Height int
	// Filters are the filter counts of the encoder blocks, shallowest first.
	// The decoder blocks use them in reverse order.
	Filters []int
	// Bottleneck is the filter count of the lowest resolution convolutions.
	Bottleneck int
}

// DefaultArchitecture returns the architecture of the pretrained model.
func DefaultArchitecture(width, height int) Architecture {
	return Architecture{
		Width:      width,
		Height:     height,
		Filters:    []int{64, 128},
		Bottleneck: 256,
	}
}

// Factor returns the number the input width and height must be divisible by.
func (a Architecture) Factor() int {
	return 1 << len(a.Filters)
}

// InputShape returns the batched input shape of the network.
func (a Architecture) InputShape() Shape {
	return Shape{N: 1, H: a.Height, W: a.Width, C: Channels}
}

// Build constructs the network with every parameter at its initial value:
// zero kernels and biases, unit batch normalization.
// With initial values the network maps its input to the clipped input.
func (a Architecture) Build() (*Network, error) {
	if len(a.Filters) == 0 || a.Bottleneck <= 0 {
		return nil, fmt.Errorf("invalid architecture: filters=%v, bottleneck=%d", a.Filters, a.Bottleneck)
	}
	b := NewBuilder(a.InputShape())
	inputs := b.Input()

	// encoder: full -> 1/2 -> 1/4 ...
	skips := make([]*Node, 0, len(a.Filters))
	x := inputs
	for _, f := range a.Filters {
		var skip *Node
		skip, x = EncoderBlock(b, x, f)
		skips = append(skips, skip)
	}

	// bottleneck
	x = b.Conv2D(x, a.Bottleneck, 3, ReLU)
	x = b.Conv2D(x, a.Bottleneck, 3, ReLU)

	// decoder
	for i := len(a.Filters) - 1; i >= 0; i-- {
		x = DecoderBlock(b, x, skips[i], a.Filters[i])
	}

	// residual head
	x = b.Conv2D(x, Channels, 1, Linear)
	x = b.Add(x, inputs)
	x = b.Clip(x, 0, 1)

	if err := b.Err(); err != nil {
		var se *ShapeError
		if errors.As(err, &se) && isResolutionStage(se.Stage) {
			return nil, fmt.Errorf("input %dx%d must be divisible by %d: %w", a.Width, a.Height, a.Factor(), err)
		}
		return nil, err
	}
	if x.Shape != inputs.Shape {
		return nil, &ShapeError{Stage: x.Name, Want: inputs.Shape, Got: x.Shape}
	}
	return b.Build(ModelName, x)
}

// isResolutionStage reports whether a stage fails on sizes that do not
// survive the pooling and upsampling round trip.
func isResolutionStage(name string) bool {
	return strings.HasPrefix(name, "max_pooling2d") || strings.HasPrefix(name, "concatenate")
}

// EncoderBlock adds conv -> batch norm -> conv -> max pool.
// It returns the feature map before pooling (the skip) and after pooling.
func EncoderBlock(b *Builder, x *Node, filters int) (skip, pooled *Node) {
	c := b.Conv2D(x, filters, 3, ReLU)
	c = b.BatchNorm(c)
	c = b.Conv2D(c, filters, 3, ReLU)
	return c, b.MaxPool2D(c)
}

// DecoderBlock adds upsample -> concat with skip -> conv -> conv.
func DecoderBlock(b *Builder, x, skip *Node, filters int) *Node {
	u := b.UpSample2D(x)
	u = b.Concat(u, skip)
	c := b.Conv2D(u, filters, 3, ReLU)
	return b.Conv2D(c, filters, 3, ReLU)
}
