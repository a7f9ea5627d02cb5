package engine

import (
	"os"

	"github.com/pkg/errors"
)

// LoadModel builds the architecture and binds the weights stored in the file
// named by path. It returns either a fully populated network or an error:
// ErrModelNotFound when the file does not exist, *LoadError otherwise.
func LoadModel(path string, arch Architecture) (*Network, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrModelNotFound, path)
		}
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	net, err := arch.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build architecture")
	}
	w, err := ReadWeightsFile(path)
	if err != nil {
		return nil, &LoadError{Kind: LoadCorrupt, Err: err}
	}
	if err := BindWeights(net, w); err != nil {
		return nil, err
	}
	return net, nil
}

// BindWeights assigns the stored tensors to the parameters of the network.
// The names and shapes of the file must match the parameters exactly.
// Every tensor is decoded and checked before the first assignment, so on
// error the network keeps its previous parameters.
func BindWeights(net *Network, w *Weights) error {
	staged := make(map[*Param][]float32, len(net.Params()))
	for _, p := range net.Params() {
		t, ok := w.Tensors[p.Name]
		if !ok {
			return &LoadError{Kind: LoadMissingParam, Param: p.Name}
		}
		if !equalDims(t.Shape, p.Dims) {
			return &LoadError{
				Kind:  LoadShapeMismatch,
				Param: p.Name,
				Err:   errors.Errorf("want %v, got %v", p.Dims, t.Shape),
			}
		}
		v, err := t.Float32()
		if err != nil {
			return &LoadError{Kind: LoadCorrupt, Param: p.Name, Err: err}
		}
		staged[p] = v
	}
	for _, name := range w.Names() {
		if _, ok := net.Param(name); !ok {
			return &LoadError{Kind: LoadUnexpectedParam, Param: name}
		}
	}
	for p, v := range staged {
		copy(p.Data, v)
	}
	return nil
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LayerSummary is a row of a network summary.
type LayerSummary struct {
	Name   string
	Kind   string
	Shape  Shape
	Params int
	Inputs []string
}

// Summary returns one row per stage in evaluation order.
func (n *Network) Summary() []LayerSummary {
	ret := make([]LayerSummary, 0, len(n.nodes))
	for _, node := range n.nodes {
		s := LayerSummary{
			Name:  node.Name,
			Kind:  node.Op.Kind(),
			Shape: node.Shape,
		}
		for _, p := range node.Op.Params() {
			s.Params += p.Len()
		}
		for _, in := range node.Inputs {
			s.Inputs = append(s.Inputs, in.Name)
		}
		ret = append(ret, s)
	}
	return ret
}
