package weights

import (
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/BaSui01/patloader/artifact"
)

// SynthesizeTensors 为配置生成完整的随机张量集合，权重按 1/sqrt(fan_in) 缩放
func SynthesizeTensors(cfg artifact.ArtifactConfig, seed uint64) map[string]artifact.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	shapes := ExpectedTensors(cfg)
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	// 固定遍历顺序，同一 seed 产出相同字节
	sort.Strings(names)

	out := make(map[string]artifact.Tensor, len(shapes))
	for _, name := range names {
		shape := shapes[name]
		t := artifact.NewTensor(shape...)
		scale := 0.02
		if len(shape) == 2 && name != tensorPosEmbed {
			scale = 1 / math.Sqrt(float64(shape[1]))
		}
		for i := range t.Data {
			t.Data[i] = float32(rng.NormFloat64() * scale)
		}
		out[name] = t
	}
	return out
}

// Synthesize 生成一个可以通过加载与自检的权重文件
func Synthesize(cfg artifact.ArtifactConfig, seed uint64) ([]byte, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	return Encode(SynthesizeTensors(cfg, seed), map[string]string{
		"name":       cfg.Name,
		"input_size": strconv.Itoa(cfg.InputSize),
		"patch_size": strconv.Itoa(cfg.PatchSize),
		"embed_dim":  strconv.Itoa(cfg.EmbedDim),
		"num_layers": strconv.Itoa(cfg.NumLayers),
		"seed":       strconv.FormatUint(seed, 10),
	})
}
