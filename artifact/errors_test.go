package artifact

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/patloader/types"
)

func TestLoadError(t *testing.T) {
	cause := fmt.Errorf("fetch models/pat/small/v3.bin: %w", ErrObjectNotFound)
	err := newLoadError(types.ErrArtifactNotFound, SizeSmall, "3", StageDownload, cause)

	assert.Equal(t, "load small:3 failed at download [ARTIFACT_NOT_FOUND]: fetch models/pat/small/v3.bin: artifact: object not found in remote store", err.Error())
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, types.ErrArtifactNotFound, types.GetErrorCode(err))

	wrapped := fmt.Errorf("outer: %w", err)
	var le *LoadError
	assert.True(t, errors.As(wrapped, &le))
	assert.Equal(t, StageDownload, le.Stage)
}

func TestAsLoadError(t *testing.T) {
	existing := newLoadError(types.ErrCorruptArtifact, SizeSmall, "1", StageLoad, errors.New("bad"))
	assert.Same(t, existing, asLoadError(existing, types.ErrInternalError, SizeLarge, "9", StageInit))

	canceled := asLoadError(fmt.Errorf("wait: %w", context.Canceled), types.ErrValidationFailed, SizeSmall, "1", StageValidate)
	assert.Equal(t, types.ErrCanceled, canceled.Code)

	deadline := asLoadError(context.DeadlineExceeded, types.ErrTransferFailed, SizeSmall, "1", StageDownload)
	assert.Equal(t, types.ErrCanceled, deadline.Code)

	other := asLoadError(errors.New("boom"), types.ErrValidationFailed, SizeMedium, "2", StageValidate)
	assert.Equal(t, types.ErrValidationFailed, other.Code)
	assert.Equal(t, SizeMedium, other.Size)
	assert.Equal(t, StageValidate, other.Stage)
}
