package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/patloader/types"
)

type modelFunc func(Tensor) (Tensor, error)

func (f modelFunc) Forward(in Tensor) (Tensor, error) { return f(in) }

func shapeModel(shape ...int) Model {
	return modelFunc(func(Tensor) (Tensor, error) {
		return NewTensor(shape...), nil
	})
}

type validationRecord struct {
	size    Size
	check   string
	success bool
	code    types.ErrorCode
}

type validationSink struct {
	NopSink
	mu      sync.Mutex
	records []validationRecord
}

func (s *validationSink) RecordValidation(size Size, check string, success bool, code types.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, validationRecord{size, check, success, code})
}

func TestVerifier_Digest(t *testing.T) {
	sha := NewVerifier(AlgorithmSHA256, nil, nil)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sha.Digest([]byte("abc")))

	b3 := NewVerifier(AlgorithmBLAKE3, nil, nil)
	d := b3.Digest([]byte("abc"))
	assert.Len(t, d, 64)
	assert.NotEqual(t, sha.Digest([]byte("abc")), d)
	assert.Equal(t, d, b3.Digest([]byte("abc")))
}

func TestVerifier_VerifyFileIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact_small_v1.bin")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))

	v := NewVerifier("", nil, nil)
	assert.Equal(t, AlgorithmSHA256, v.Algorithm())

	sum1, data1, err := v.VerifyFile(path)
	require.NoError(t, err)
	sum2, data2, err := v.VerifyFile(path)
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2)
	assert.Equal(t, []byte("weights"), data1)
	assert.Equal(t, data1, data2)
	assert.Equal(t, v.Digest(data1), sum1)

	_, _, err = v.VerifyFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerifier_CheckPinned(t *testing.T) {
	v := NewVerifier(AlgorithmSHA256, map[string]string{"small:3": " ABCDEF "}, nil)

	assert.NoError(t, v.CheckPinned(SizeSmall, "3", "abcdef"))
	assert.ErrorIs(t, v.CheckPinned(SizeSmall, "3", "000000"), ErrChecksumMismatch)
	assert.NoError(t, v.CheckPinned(SizeSmall, "4", "anything"), "no pin means record only")

	pin, ok := v.Pinned(SizeSmall, "3")
	assert.True(t, ok)
	assert.Equal(t, "abcdef", pin)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("BLAKE3")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBLAKE3, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSHA256, a)

	_, err = ParseAlgorithm("md5")
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestVerifier_Validate(t *testing.T) {
	cfg := SizeSmall.Config()

	tests := []struct {
		name    string
		model   Model
		wantErr error
	}{
		{name: "expected shape", model: shapeModel(1, 560, 96)},
		{name: "wrong patches", model: shapeModel(1, 561, 96), wantErr: ErrShapeMismatch},
		{name: "wrong rank", model: shapeModel(560, 96), wantErr: ErrShapeMismatch},
		{
			name: "forward error",
			model: modelFunc(func(Tensor) (Tensor, error) {
				return Tensor{}, errors.New("kernel failed")
			}),
		},
		{
			name: "forward panics",
			model: modelFunc(func(Tensor) (Tensor, error) {
				panic("index out of range")
			}),
		},
		{
			name: "data does not match shape",
			model: modelFunc(func(Tensor) (Tensor, error) {
				return Tensor{Shape: []int{1, 560, 96}, Data: make([]float32, 3)}, nil
			}),
		},
		{name: "nil model", model: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &validationSink{}
			v := NewVerifier(AlgorithmSHA256, nil, sink)

			shape, err := v.Validate(context.Background(), SizeSmall, tt.model, cfg)

			require.Len(t, sink.records, 1)
			rec := sink.records[0]
			assert.Equal(t, ValidationCheck, rec.check)

			if tt.name == "expected shape" {
				require.NoError(t, err)
				assert.Equal(t, []int{1, 560, 96}, shape)
				assert.True(t, rec.success)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.False(t, rec.success)
			assert.Equal(t, types.ErrValidationFailed, rec.code)
		})
	}
}

func TestVerifier_ValidateUsesDeterministicInput(t *testing.T) {
	cfg := SizeSmall.Config()
	var inputs []Tensor
	model := modelFunc(func(in Tensor) (Tensor, error) {
		inputs = append(inputs, in)
		return NewTensor(cfg.ExpectedOutputShape()...), nil
	})

	v := NewVerifier(AlgorithmSHA256, nil, nil)
	_, err := v.Validate(context.Background(), SizeSmall, model, cfg)
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), SizeSmall, model, cfg)
	require.NoError(t, err)

	require.Len(t, inputs, 2)
	assert.Equal(t, []int{1, 10080}, inputs[0].Shape)
	assert.Equal(t, inputs[0].Data, inputs[1].Data)
}

func TestVerifier_ValidateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewVerifier(AlgorithmSHA256, nil, nil)
	_, err := v.Validate(ctx, SizeSmall, shapeModel(1, 560, 96), SizeSmall.Config())
	assert.ErrorIs(t, err, context.Canceled)
}
