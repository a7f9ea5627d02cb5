package engine

import (
	"context"
	"math/rand"
	"testing"
)

func BenchmarkDeblur(b *testing.B) {
	net, err := DefaultArchitecture(256, 256).Build()
	if err != nil {
		b.Fatalf("build network, %v", err)
	}
	r := rand.New(rand.NewSource(1))
	randomize(r, net, 0.05)
	img := NewImage(256, 256)
	for i := range img.Pix {
		img.Pix[i] = r.Float32()
	}
	d, err := NewDeblurrer(net)
	if err != nil {
		b.Fatalf("new deblurrer, %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Deblur(context.Background(), img); err != nil {
			b.Fatalf("unexpected deblur error, %v", err)
		}
	}
}

func BenchmarkConv2D(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	l := newConv2D("conv", 64, 64, 3, ReLU)
	for i := range l.kernel.Data {
		l.kernel.Data[i] = r.Float32() - 0.5
	}
	x := randomTensor(r, Shape{N: 1, H: 128, W: 128, C: 64}, 0, 1)
	for _, bb := range []struct {
		name     string
		parallel int
	}{
		{name: "sequential", parallel: 1},
		{name: "parallel", parallel: 4},
	} {
		opt := ExecOptions{Parallel: bb.parallel}
		b.Run(bb.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := l.Forward(context.Background(), opt, []*Tensor{x}); err != nil {
					b.Fatalf("unexpected conv error, %v", err)
				}
			}
		})
	}
}
