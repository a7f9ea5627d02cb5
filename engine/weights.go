package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/nlpodyssey/safetensors"
	"github.com/pkg/errors"
)

// DType is the element type of a stored tensor.
type DType string

// Supported element types.
const (
	F32 DType = "F32"
	F64 DType = "F64"
)

// Size returns the byte size of an element, 0 for unsupported types.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case F64:
		return 8
	}
	return 0
}

func dtypeOf(d safetensors.DType) DType {
	switch d {
	case safetensors.F32:
		return F32
	case safetensors.F64:
		return F64
	}
	return DType(fmt.Sprintf("%v", d))
}

// StoredTensor is a tensor read from a weights file.
type StoredTensor struct {
	Name  string
	DType DType
	Shape []int
	Data  []byte
}

// Float32 decodes the tensor data.
func (t StoredTensor) Float32() ([]float32, error) {
	size := t.DType.Size()
	if size == 0 {
		return nil, errors.Errorf("tensor %q: unsupported dtype %s", t.Name, t.DType)
	}
	n := numElements(t.Shape)
	if len(t.Data) != n*size {
		return nil, errors.Errorf("tensor %q: %d bytes for %d elements of %s", t.Name, len(t.Data), n, t.DType)
	}
	ret := make([]float32, n)
	for i := range ret {
		switch t.DType {
		case F32:
			ret[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
		case F64:
			ret[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(t.Data[i*8:])))
		}
	}
	return ret, nil
}

// Weights is the content of a safetensors weights file.
type Weights struct {
	Tensors map[string]StoredTensor
}

// Names returns the sorted tensor names.
func (w *Weights) Names() []string {
	ret := make([]string, 0, len(w.Tensors))
	for name := range w.Tensors {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// ReadWeightsFile reads a weights file.
func ReadWeightsFile(path string) (*Weights, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadWeights(fp)
}

// ReadWeights reads weights in safetensors format from r.
func ReadWeights(r io.Reader) (*Weights, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read weights")
	}
	st, err := safetensors.Deserialize(b)
	if err != nil {
		return nil, errors.Wrap(err, "parse weights")
	}
	w := &Weights{
		Tensors: make(map[string]StoredTensor, st.Len()),
	}
	for _, nt := range st.Tensors() {
		tv := nt.TensorView
		shape := make([]int, len(tv.Shape()))
		for i, d := range tv.Shape() {
			shape[i] = int(d)
		}
		w.Tensors[nt.Name] = StoredTensor{
			Name:  nt.Name,
			DType: dtypeOf(tv.DType()),
			Shape: shape,
			Data:  tv.Data(),
		}
	}
	return w, nil
}

// WriteWeights writes the parameters of the network in safetensors format as F32.
func WriteWeights(w io.Writer, params []*Param, metadata map[string]string) error {
	views := make(map[string]safetensors.TensorView, len(params))
	for _, p := range params {
		shape := make([]uint64, len(p.Dims))
		for i, d := range p.Dims {
			shape[i] = uint64(d)
		}
		data := make([]byte, 0, p.Len()*F32.Size())
		for _, v := range p.Data {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
		tv, err := safetensors.NewTensorView(safetensors.F32, shape, data)
		if err != nil {
			return errors.Wrapf(err, "tensor %q", p.Name)
		}
		if _, dup := views[p.Name]; dup {
			return errors.Errorf("duplicated tensor %q", p.Name)
		}
		views[p.Name] = tv
	}
	return safetensors.SerializeToWriter(views, metadata, w)
}

// SaveWeights writes the parameters of the network to the file named by path.
func SaveWeights(path string, net *Network, metadata map[string]string) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWeights(fp, net.Params(), metadata); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
