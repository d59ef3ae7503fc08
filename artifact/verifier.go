package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/BaSui01/patloader/types"
)

// Algorithm 摘要算法
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmBLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm 解析摘要算法名，空字符串视为 sha256
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBLAKE3:
		return AlgorithmBLAKE3, nil
	default:
		return "", types.NewError(types.ErrConfiguration, fmt.Sprintf("unsupported checksum algorithm %q", s))
	}
}

// ValidationCheck 前向自检在 sink 中的检查名
const ValidationCheck = "forward_pass"

// 自检输入的固定种子，保证同一文件每次自检使用相同输入
const validationSeed uint64 = 0x5041_5420

// Verifier 完整性校验：计算摘要、比对可选的固定摘要、执行结构自检
type Verifier struct {
	algorithm Algorithm
	pins      map[string]string
	sink      MetricsSink
}

// NewVerifier 创建校验器。pins 的键为 CacheKey(size, version)，值为十六进制摘要；
// 为空时只记录摘要而不比对。
func NewVerifier(algorithm Algorithm, pins map[string]string, sink MetricsSink) *Verifier {
	if algorithm == "" {
		algorithm = AlgorithmSHA256
	}
	if sink == nil {
		sink = NopSink{}
	}
	normalized := make(map[string]string, len(pins))
	for k, v := range pins {
		normalized[k] = strings.ToLower(strings.TrimSpace(v))
	}
	return &Verifier{
		algorithm: algorithm,
		pins:      normalized,
		sink:      sink,
	}
}

// Algorithm 返回当前摘要算法
func (v *Verifier) Algorithm() Algorithm {
	return v.algorithm
}

// Digest 计算十六进制摘要
func (v *Verifier) Digest(data []byte) string {
	switch v.algorithm {
	case AlgorithmBLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// VerifyFile 一次性读取文件并返回摘要和读到的字节。
// 调用方必须用返回的字节加载模型，摘要与加载内容因此必然一致。
func (v *Verifier) VerifyFile(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return v.Digest(data), data, nil
}

// Pinned 返回 (size, version) 的固定摘要
func (v *Verifier) Pinned(size Size, version string) (string, bool) {
	pin, ok := v.pins[CacheKey(size, version)]
	return pin, ok
}

// CheckPinned 存在固定摘要时比对，不存在时直接通过
func (v *Verifier) CheckPinned(size Size, version, checksum string) error {
	pin, ok := v.Pinned(size, version)
	if !ok {
		return nil
	}
	if !strings.EqualFold(pin, checksum) {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, pin, checksum)
	}
	return nil
}

// Validate 用确定性的合成输入执行一次前向计算，校验输出形状为 (1, patches, embed)。
// Forward 内部的 panic 被恢复并作为校验失败返回。
func (v *Verifier) Validate(ctx context.Context, size Size, model Model, cfg ArtifactConfig) ([]int, error) {
	shape, err := v.validate(ctx, model, cfg)
	code := types.ErrorCode("")
	if err != nil {
		code = types.ErrValidationFailed
	}
	v.sink.RecordValidation(size, ValidationCheck, err == nil, code)
	return shape, err
}

func (v *Verifier) validate(ctx context.Context, model Model, cfg ArtifactConfig) (shape []int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("self-test: nil model")
	}

	defer func() {
		if r := recover(); r != nil {
			shape = nil
			err = fmt.Errorf("self-test panicked: %v", r)
		}
	}()

	out, err := model.Forward(syntheticInput(cfg.InputSize))
	if err != nil {
		return nil, fmt.Errorf("self-test forward: %w", err)
	}

	want := cfg.ExpectedOutputShape()
	if !equalShape(out.Shape, want) {
		return out.Shape, fmt.Errorf("%w: want %v, got %v", ErrShapeMismatch, want, out.Shape)
	}
	if err := out.Validate(); err != nil {
		return out.Shape, fmt.Errorf("self-test output: %w", err)
	}
	return out.Shape, nil
}

// syntheticInput 生成形状为 [1, n] 的标准正态输入
func syntheticInput(n int) Tensor {
	rng := rand.New(rand.NewPCG(validationSeed, uint64(n)))
	t := NewTensor(1, n)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}
