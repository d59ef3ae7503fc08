package artifact

import "fmt"

// Tensor 稠密 float32 张量，按行主序存储
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"-"`
}

// NewTensor 创建指定形状的零张量
func NewTensor(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numElements(shape))}
}

// NumElements 返回元素总数
func (t Tensor) NumElements() int {
	return numElements(t.Shape)
}

// Validate 校验 Data 长度与 Shape 一致
func (t Tensor) Validate() error {
	if n := t.NumElements(); n != len(t.Data) {
		return fmt.Errorf("tensor shape %v wants %d elements, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

func numElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Model 已加载到内存、可执行前向计算的产物
type Model interface {
	Forward(input Tensor) (Tensor, error)
}

// Runtime 将字节解析为可执行模型。
// 解析失败意味着权重损坏或与配置不匹配。
type Runtime interface {
	Load(cfg ArtifactConfig, data []byte) (Model, error)
}

// RuntimeFunc 函数适配器
type RuntimeFunc func(cfg ArtifactConfig, data []byte) (Model, error)

// Load implements Runtime.
func (f RuntimeFunc) Load(cfg ArtifactConfig, data []byte) (Model, error) {
	return f(cfg, data)
}

// Artifact 返回给调用方并存入缓存的产物句柄
type Artifact struct {
	Model       Model           `json:"-"`
	Config      ArtifactConfig  `json:"config"`
	Version     ArtifactVersion `json:"version"`
	Path        string          `json:"path"`
	OutputShape []int           `json:"output_shape"`
}

func equalShape(a, b []int) bool {
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
