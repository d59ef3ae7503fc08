package weights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/patloader/artifact"
)

// 张量名
const (
	tensorPatchWeight = "patch_embed.weight"
	tensorPatchBias   = "patch_embed.bias"
	tensorPosEmbed    = "pos_embed"
)

func blockTensor(i int, name string) string {
	return fmt.Sprintf("blocks.%d.%s", i, name)
}

// ExpectedTensors 返回配置要求的完整张量集合及形状
func ExpectedTensors(cfg artifact.ArtifactConfig) map[string][]int {
	e, p, n, f := cfg.EmbedDim, cfg.PatchSize, cfg.NumPatches(), cfg.FFDim
	shapes := map[string][]int{
		tensorPatchWeight: {e, p},
		tensorPatchBias:   {e},
		tensorPosEmbed:    {n, e},
	}
	for i := 0; i < cfg.NumLayers; i++ {
		shapes[blockTensor(i, "ff1.weight")] = []int{f, e}
		shapes[blockTensor(i, "ff1.bias")] = []int{f}
		shapes[blockTensor(i, "ff2.weight")] = []int{e, f}
		shapes[blockTensor(i, "ff2.bias")] = []int{e}
	}
	return shapes
}

// PatchEmbedRuntime 默认运行时：解析权重文件并构建 patch 嵌入模型。
// 张量集合必须与配置严格一致，缺失、多余或形状不符都会报错。
type PatchEmbedRuntime struct{}

var _ artifact.Runtime = PatchEmbedRuntime{}

// Load implements artifact.Runtime.
func (PatchEmbedRuntime) Load(cfg artifact.ArtifactConfig, data []byte) (artifact.Model, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	f, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := checkTensors(cfg, f.Tensors); err != nil {
		return nil, err
	}

	m := &PatchEmbedModel{
		cfg:      cfg,
		patchW:   f.Tensors[tensorPatchWeight].Data,
		patchB:   f.Tensors[tensorPatchBias].Data,
		pos:      f.Tensors[tensorPosEmbed].Data,
		blocks:   make([]ffBlock, cfg.NumLayers),
		metadata: f.Metadata,
	}
	for i := range m.blocks {
		m.blocks[i] = ffBlock{
			w1: f.Tensors[blockTensor(i, "ff1.weight")].Data,
			b1: f.Tensors[blockTensor(i, "ff1.bias")].Data,
			w2: f.Tensors[blockTensor(i, "ff2.weight")].Data,
			b2: f.Tensors[blockTensor(i, "ff2.bias")].Data,
		}
	}
	return m, nil
}

func checkConfig(cfg artifact.ArtifactConfig) error {
	switch {
	case cfg.PatchSize <= 0 || cfg.EmbedDim <= 0 || cfg.NumHeads <= 0:
		return fmt.Errorf("weights: invalid config %s: non-positive dimension", cfg.Name)
	case cfg.EmbedDim%cfg.NumHeads != 0:
		return fmt.Errorf("weights: invalid config %s: embed dim %d not divisible by %d heads",
			cfg.Name, cfg.EmbedDim, cfg.NumHeads)
	case cfg.InputSize%cfg.PatchSize != 0:
		return fmt.Errorf("weights: invalid config %s: input size %d not divisible by patch size %d",
			cfg.Name, cfg.InputSize, cfg.PatchSize)
	}
	return nil
}

func checkTensors(cfg artifact.ArtifactConfig, tensors map[string]artifact.Tensor) error {
	expected := ExpectedTensors(cfg)

	var problems []string
	for name, shape := range expected {
		t, ok := tensors[name]
		if !ok {
			problems = append(problems, "missing "+name)
			continue
		}
		if !sameShape(t.Shape, shape) {
			problems = append(problems, fmt.Sprintf("%s has shape %v, want %v", name, t.Shape, shape))
		}
	}
	for name := range tensors {
		if _, ok := expected[name]; !ok {
			problems = append(problems, "unexpected "+name)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("weights: tensors do not match %s: %s", cfg.Name, strings.Join(problems, "; "))
	}
	return nil
}

func sameShape(a, b []int) bool {
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

type ffBlock struct {
	w1, b1, w2, b2 []float32
}

// PatchEmbedModel 将 [1, input] 切分为 patch，线性投影、加位置编码后经过残差前馈块。
// 不建模注意力。
type PatchEmbedModel struct {
	cfg      artifact.ArtifactConfig
	patchW   []float32
	patchB   []float32
	pos      []float32
	blocks   []ffBlock
	metadata map[string]string
}

// Metadata 返回权重文件中的元数据
func (m *PatchEmbedModel) Metadata() map[string]string {
	return m.metadata
}

// Forward implements artifact.Model.
func (m *PatchEmbedModel) Forward(input artifact.Tensor) (artifact.Tensor, error) {
	cfg := m.cfg
	if len(input.Shape) != 2 || input.Shape[0] != 1 || input.Shape[1] != cfg.InputSize {
		return artifact.Tensor{}, fmt.Errorf("weights: input shape %v, want [1 %d]", input.Shape, cfg.InputSize)
	}
	if err := input.Validate(); err != nil {
		return artifact.Tensor{}, err
	}

	n, p, e, f := cfg.NumPatches(), cfg.PatchSize, cfg.EmbedDim, cfg.FFDim
	out := artifact.NewTensor(1, n, e)
	hidden := make([]float32, f)

	for i := 0; i < n; i++ {
		patch := input.Data[i*p : (i+1)*p]
		x := out.Data[i*e : (i+1)*e]

		for j := 0; j < e; j++ {
			acc := m.patchB[j] + m.pos[i*e+j]
			row := m.patchW[j*p : (j+1)*p]
			for k, v := range patch {
				acc += row[k] * v
			}
			x[j] = acc
		}

		for _, b := range m.blocks {
			for h := 0; h < f; h++ {
				acc := b.b1[h]
				row := b.w1[h*e : (h+1)*e]
				for j, v := range x {
					acc += row[j] * v
				}
				if acc < 0 {
					acc = 0
				}
				hidden[h] = acc
			}
			for j := 0; j < e; j++ {
				acc := b.b2[j]
				row := b.w2[j*f : (j+1)*f]
				for h, v := range hidden {
					acc += row[h] * v
				}
				x[j] += acc
			}
		}
	}

	return out, nil
}
