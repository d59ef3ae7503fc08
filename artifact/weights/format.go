package weights

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/BaSui01/patloader/artifact"
)

// DTypeF32 唯一支持的数据类型
const DTypeF32 = "F32"

const (
	headerLenSize = 8
	metadataKey   = "__metadata__"
	// 头部 JSON 上限，防止损坏文件导致巨量分配
	maxHeaderSize = 100 << 20
)

// ErrInvalidFormat 文件不是合法的权重文件
var ErrInvalidFormat = errors.New("weights: invalid format")

// TensorInfo 头部中单个张量的描述
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File 解码后的权重文件
type File struct {
	Metadata map[string]string
	Tensors  map[string]artifact.Tensor
}

// Names 返回按字典序排列的张量名
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode 解析 safetensors 布局：8 字节小端头长度、JSON 头、原始数据区
func Decode(data []byte) (*File, error) {
	if len(data) < headerLenSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrInvalidFormat, len(data))
	}

	n := binary.LittleEndian.Uint64(data[:headerLenSize])
	if n == 0 || n > maxHeaderSize || n > uint64(len(data)-headerLenSize) {
		return nil, fmt.Errorf("%w: header length %d out of range", ErrInvalidFormat, n)
	}

	header := data[headerLenSize : headerLenSize+int(n)]
	body := data[headerLenSize+int(n):]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}

	f := &File{
		Metadata: map[string]string{},
		Tensors:  make(map[string]artifact.Tensor, len(raw)),
	}

	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidFormat, err)
			}
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidFormat, name, err)
		}
		t, err := decodeTensor(name, info, body)
		if err != nil {
			return nil, err
		}
		f.Tensors[name] = t
	}

	return f, nil
}

func decodeTensor(name string, info TensorInfo, body []byte) (artifact.Tensor, error) {
	if info.DType != DTypeF32 {
		return artifact.Tensor{}, fmt.Errorf("%w: tensor %s has unsupported dtype %q", ErrInvalidFormat, name, info.DType)
	}
	empty := false
	for _, d := range info.Shape {
		if d < 0 {
			return artifact.Tensor{}, fmt.Errorf("%w: tensor %s has negative dimension", ErrInvalidFormat, name)
		}
		empty = empty || d == 0
	}

	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin < 0 || end < begin || end > int64(len(body)) {
		return artifact.Tensor{}, fmt.Errorf("%w: tensor %s offsets [%d, %d) outside data (%d bytes)",
			ErrInvalidFormat, name, begin, end, len(body))
	}

	// 元素数不能超过数据区容纳的数量，逐维检查以免乘法溢出
	limit := int((end - begin) / 4)
	count := 1
	if empty {
		count = 0
	} else {
		for _, d := range info.Shape {
			if count > limit/d {
				return artifact.Tensor{}, fmt.Errorf("%w: tensor %s shape %v exceeds data (%d bytes)",
					ErrInvalidFormat, name, info.Shape, end-begin)
			}
			count *= d
		}
	}
	if int64(count)*4 != end-begin {
		return artifact.Tensor{}, fmt.Errorf("%w: tensor %s shape %v needs %d bytes, has %d",
			ErrInvalidFormat, name, info.Shape, int64(count)*4, end-begin)
	}

	raw := body[begin:end]
	values := make([]float32, count)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return artifact.Tensor{Shape: append([]int{}, info.Shape...), Data: values}, nil
}

// Encode 按 safetensors 布局编码张量，张量按名字排序，头部补齐到 8 字节
func Encode(tensors map[string]artifact.Tensor, metadata map[string]string) ([]byte, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return nil, fmt.Errorf("weights: tensor name %q is reserved", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, name := range names {
		t := tensors[name]
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("weights: tensor %s: %w", name, err)
		}
		size := int64(len(t.Data)) * 4
		header[name] = TensorInfo{
			DType:       DTypeF32,
			Shape:       append([]int{}, t.Shape...),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("weights: encode header: %w", err)
	}
	for len(headerJSON)%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	out := make([]byte, headerLenSize, headerLenSize+len(headerJSON)+int(offset))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)

	var buf [4]byte
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			out = append(out, buf[:]...)
		}
	}
	return out, nil
}
