package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/patloader/artifact"
)

// HTTPClient *http.Client 满足该接口
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPStore 通过 GET {base}/{key} 下载对象
type HTTPStore struct {
	baseURL    string
	client     HTTPClient
	onProgress func(delta int64)
}

// HTTPOption 配置 HTTPStore
type HTTPOption func(*HTTPStore)

// WithHTTPClient 替换默认 HTTP 客户端
func WithHTTPClient(c HTTPClient) HTTPOption {
	return func(s *HTTPStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithProgress 设置下载进度回调，参数为本次读取的字节增量
func WithProgress(fn func(delta int64)) HTTPOption {
	return func(s *HTTPStore) {
		s.onProgress = fn
	}
}

// NewHTTPStore 创建 HTTP 存储
func NewHTTPStore(baseURL string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Download implements artifact.ObjectStore.
func (s *HTTPStore) Download(ctx context.Context, key string) ([]byte, error) {
	url := s.baseURL + "/" + strings.TrimLeft(key, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("object %s: %w", key, artifact.ErrObjectNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", key, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if s.onProgress != nil {
		reader = &progressReader{reader: resp.Body, onProgress: s.onProgress}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, fmt.Errorf("reading %s: partial transfer, got %d of %d bytes", key, len(data), resp.ContentLength)
	}
	return data, nil
}

func (s *HTTPStore) String() string {
	return s.baseURL
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
