package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/patloader/types"
)

// Sentinel errors for artifact loading.
// Use errors.Is() to check for specific conditions through a LoadError.
var (
	// ErrObjectNotFound indicates the remote store has no object for the key.
	ErrObjectNotFound = errors.New("artifact: object not found in remote store")

	// ErrNoRemoteStore indicates a fetch was required but no store is configured.
	ErrNoRemoteStore = errors.New("artifact: no remote store configured")

	// ErrChecksumMismatch indicates the digest differs from a pinned value.
	ErrChecksumMismatch = errors.New("artifact: checksum does not match pinned value")

	// ErrShapeMismatch indicates the self-test produced an unexpected output shape.
	ErrShapeMismatch = errors.New("artifact: output shape mismatch")

	// ErrNoCurrentVersion indicates fallback was requested before any successful load.
	ErrNoCurrentVersion = errors.New("artifact: no current version to fall back from")

	// ErrInvalidVersion indicates a version string that cannot name a file safely.
	ErrInvalidVersion = errors.New("artifact: invalid version")

	// ErrNoPreviousVersion indicates no earlier version can be derived.
	ErrNoPreviousVersion = errors.New("artifact: no previous version")
)

// LoadError 加载失败的统一错误类型，携带错误码、规格、版本与失败阶段
type LoadError struct {
	Code    types.ErrorCode
	Size    Size
	Version string
	Stage   Stage
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s:%s failed at %s [%s]: %v", e.Size, e.Version, e.Stage, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrorCode implements types.Coder.
func (e *LoadError) ErrorCode() types.ErrorCode {
	return e.Code
}

func newLoadError(code types.ErrorCode, size Size, version string, stage Stage, err error) *LoadError {
	return &LoadError{
		Code:    code,
		Size:    size,
		Version: version,
		Stage:   stage,
		Err:     err,
	}
}

// asLoadError 将任意错误规整为 LoadError；已是 LoadError 的保留原错误码与阶段
func asLoadError(err error, fallbackCode types.ErrorCode, size Size, version string, stage Stage) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newLoadError(types.ErrCanceled, size, version, stage, err)
	}
	return newLoadError(fallbackCode, size, version, stage, err)
}
