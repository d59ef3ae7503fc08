package artifact

import (
	"fmt"
	"strings"

	"github.com/BaSui01/patloader/types"
)

// Size 模型规格档位（封闭枚举）
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// ArtifactConfig 每个规格对应的固定结构参数
type ArtifactConfig struct {
	Name      string  `json:"name" yaml:"name"`
	InputSize int     `json:"input_size" yaml:"input_size"`
	PatchSize int     `json:"patch_size" yaml:"patch_size"`
	EmbedDim  int     `json:"embed_dim" yaml:"embed_dim"`
	NumLayers int     `json:"num_layers" yaml:"num_layers"`
	NumHeads  int     `json:"num_heads" yaml:"num_heads"`
	FFDim     int     `json:"ff_dim" yaml:"ff_dim"`
	Dropout   float64 `json:"dropout" yaml:"dropout"`
}

// NumPatches 返回输入被切分后的 patch 数量
func (c ArtifactConfig) NumPatches() int {
	if c.PatchSize <= 0 {
		return 0
	}
	return c.InputSize / c.PatchSize
}

// ExpectedOutputShape 返回自检前向传播应产出的形状 (1, patches, embed)
func (c ArtifactConfig) ExpectedOutputShape() []int {
	return []int{1, c.NumPatches(), c.EmbedDim}
}

// 10080 = 7 天 × 每分钟一个采样点
var sizeConfigs = map[Size]ArtifactConfig{
	SizeSmall: {
		Name:      "PAT-S",
		InputSize: 10080,
		PatchSize: 18,
		EmbedDim:  96,
		NumLayers: 1,
		NumHeads:  6,
		FFDim:     256,
		Dropout:   0.1,
	},
	SizeMedium: {
		Name:      "PAT-M",
		InputSize: 10080,
		PatchSize: 18,
		EmbedDim:  96,
		NumLayers: 2,
		NumHeads:  12,
		FFDim:     256,
		Dropout:   0.1,
	},
	SizeLarge: {
		Name:      "PAT-L",
		InputSize: 10080,
		PatchSize: 9,
		EmbedDim:  96,
		NumLayers: 4,
		NumHeads:  12,
		FFDim:     256,
		Dropout:   0.1,
	},
}

// Sizes 按从小到大的顺序返回全部规格
func Sizes() []Size {
	return []Size{SizeSmall, SizeMedium, SizeLarge}
}

// Valid 判断规格是否属于封闭枚举
func (s Size) Valid() bool {
	_, ok := sizeConfigs[s]
	return ok
}

// Config 返回规格对应的结构配置；未知规格返回零值
func (s Size) Config() ArtifactConfig {
	return sizeConfigs[s]
}

func (s Size) String() string {
	return string(s)
}

// ParseSize 解析规格字符串（大小写不敏感）
func ParseSize(s string) (Size, error) {
	size := Size(strings.ToLower(strings.TrimSpace(s)))
	if !size.Valid() {
		return "", types.NewError(types.ErrConfiguration, fmt.Sprintf("unknown artifact size %q", s))
	}
	return size, nil
}
