package recognizer

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/scanerr"
)

// classIndex resolves a rune to its CTC class index in a charset.
func classIndex(t *testing.T, cs *Charset, r rune) int {
	t.Helper()
	for i := 1; i <= cs.Size(); i++ {
		if c, ok := cs.Char(i); ok && c == r {
			return i
		}
	}
	t.Fatalf("rune %q not in charset", r)
	return -1
}

// oneHotLogits builds a [1,T,C] probability tensor emitting the given
// class per timestep.
func oneHotLogits(classes []int, numClasses int) onnx.Tensor {
	data := make([]float32, len(classes)*numClasses)
	for t, cls := range classes {
		data[t*numClasses+cls] = 1
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(len(classes)), int64(numClasses)}}
}

func TestDecodeCTCGreedyCollapses(t *testing.T) {
	cs := DefaultSerialCharset()
	numClasses := cs.Size() + 1
	c := classIndex(t, cs, 'C')
	zero := classIndex(t, cs, '0')
	two := classIndex(t, cs, '2')

	// C C <blank> 0 0 2 collapses to C 0 2.
	tensor := oneHotLogits([]int{c, c, 0, zero, zero, two}, numClasses)
	d := DecodeCTCGreedy(tensor.Data, tensor.Shape, cs.BlankIndex())
	require.NotNil(t, d)
	assert.Equal(t, []int{c, zero, two}, d.Indices)
	assert.Equal(t, []int{0, 3, 5}, d.Timesteps)
	assert.Equal(t, 6, d.TotalT)
	for _, p := range d.Probs {
		assert.InDelta(t, 1.0, p, 1e-6)
	}
}

func TestDecodeCTCGreedyRepeatAfterBlank(t *testing.T) {
	cs := DefaultSerialCharset()
	numClasses := cs.Size() + 1
	a := classIndex(t, cs, 'A')

	// A <blank> A decodes to two As; the blank separates the repeat.
	tensor := oneHotLogits([]int{a, 0, a}, numClasses)
	d := DecodeCTCGreedy(tensor.Data, tensor.Shape, cs.BlankIndex())
	require.NotNil(t, d)
	assert.Equal(t, []int{a, a}, d.Indices)
}

func TestDecodeCTCGreedyRejectsBadShape(t *testing.T) {
	assert.Nil(t, DecodeCTCGreedy([]float32{1, 2, 3}, []int64{1, 3}, 0))
	assert.Nil(t, DecodeCTCGreedy(nil, []int64{1, 4, 37}, 0))
}

func TestProbOfIndexSoftmax(t *testing.T) {
	// Raw logits get a softmax; equal logits share the mass.
	p := probOfIndex([]float32{2, 2, 2, 2}, 0)
	assert.InDelta(t, 0.25, p, 1e-6)

	// Probability-like inputs pass through.
	p = probOfIndex([]float32{0.7, 0.2, 0.1}, 0)
	assert.InDelta(t, 0.7, p, 1e-6)
}

func TestSequenceConfidence(t *testing.T) {
	assert.Zero(t, SequenceConfidence(nil))
	assert.InDelta(t, 0.8, SequenceConfidence([]float64{0.9, 0.7}), 1e-9)
}

func TestCharsetRenderBoxes(t *testing.T) {
	cs := DefaultSerialCharset()
	a := classIndex(t, cs, 'A')
	one := classIndex(t, cs, '1')
	d := &Decoded{
		Indices:   []int{a, one},
		Probs:     []float64{0.9, 0.8},
		Timesteps: []int{0, 2},
		TotalT:    4,
	}

	text, boxes, confs := cs.Render(d, 2.0, 20, 100)
	assert.Equal(t, "A1", text)
	require.Len(t, boxes, 2)
	// Each timestep spans 25 input columns, doubled by scaleX.
	assert.InDelta(t, 0, boxes[0].MinX, 1e-9)
	assert.InDelta(t, 50, boxes[0].MaxX, 1e-9)
	assert.InDelta(t, 100, boxes[1].MinX, 1e-9)
	assert.InDelta(t, 20, boxes[1].MaxY, 1e-9)
	assert.Equal(t, []float64{0.9, 0.8}, confs)
}

func TestLoadCharsetFiltersAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("A\nB\n\n7\n*\nz\n"), 0o644))

	cs, err := LoadCharset(path)
	require.NoError(t, err)
	// * and lowercase z fall outside the restricted alphabet.
	assert.Equal(t, 3, cs.Size())
	assert.True(t, cs.Contains('A'))
	assert.True(t, cs.Contains('7'))
	assert.False(t, cs.Contains('Z'))
}

func TestLoadCharsetRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("A\nA\n"), 0o644))
	_, err := LoadCharset(path)
	assert.Error(t, err)
}

// ctcStubRunner replays a fixed logits tensor.
type ctcStubRunner struct {
	out    onnx.Tensor
	lastIn onnx.Tensor
}

func (s *ctcStubRunner) Predict(_ context.Context, in onnx.Tensor) (onnx.Tensor, error) {
	s.lastIn = in
	return s.out, nil
}
func (s *ctcStubRunner) InputShape() []int64 { return []int64{1, 1, -1, -1} }
func (s *ctcStubRunner) Close() error        { return nil }

func TestRecognizeEndToEnd(t *testing.T) {
	cs := DefaultSerialCharset()
	numClasses := cs.Size() + 1
	c := classIndex(t, cs, 'C')
	zero := classIndex(t, cs, '0')
	two := classIndex(t, cs, '2')

	runner := &ctcStubRunner{out: oneHotLogits([]int{c, c, 0, zero, zero, two}, numClasses)}
	r, err := NewCTC(DefaultConfig(), runner, nil)
	require.NoError(t, err)

	region := imaging.New(240, 20, color.White)
	got, err := r.Recognize(context.Background(), region)
	require.NoError(t, err)

	assert.Equal(t, "C02", got.Text)
	require.Len(t, got.CharBoxes, 3)
	require.Len(t, got.CharConfs, 3)
	assert.InDelta(t, 1.0, got.Confidence, 1e-6)

	// Accurate mode normalizes to the tall input height.
	require.Len(t, runner.lastIn.Shape, 4)
	assert.Equal(t, int64(48), runner.lastIn.Shape[2])

	// Glyph boxes stay within the original crop.
	for _, b := range got.CharBoxes {
		assert.GreaterOrEqual(t, b.MinX, 0.0)
		assert.LessOrEqual(t, b.MaxX, 240.0+1e-6)
		assert.InDelta(t, 20, b.MaxY, 1e-9)
	}
}

func TestRecognizeFastMode(t *testing.T) {
	cs := DefaultSerialCharset()
	runner := &ctcStubRunner{out: oneHotLogits([]int{classIndex(t, cs, 'A')}, cs.Size()+1)}

	cfg := DefaultConfig()
	cfg.Accuracy = AccuracyFast
	r, err := NewCTC(cfg, runner, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), imaging.New(120, 24, color.White))
	require.NoError(t, err)
	assert.Equal(t, int64(32), runner.lastIn.Shape[2])
}

func TestRecognizeDegraded(t *testing.T) {
	r, err := NewCTC(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), imaging.New(120, 24, color.White))
	assert.ErrorIs(t, err, scanerr.ErrModelNotReady)

	withRunner, err := NewCTC(DefaultConfig(), &ctcStubRunner{}, nil)
	require.NoError(t, err)
	_, err = withRunner.Recognize(context.Background(), nil)
	assert.ErrorIs(t, err, scanerr.ErrInvalidInput)
}
