package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageNamesSubjectAndCause(t *testing.T) {
	err := New(KindProcessSpawn, "start", "env-1", errors.New("executable file not found"))

	assert.Equal(t, "start env-1: executable file not found", err.Error())
}

func TestErrorMessageIncludesDiagnostics(t *testing.T) {
	err := New(KindStaging, "stage", "kernel", errors.New("tar exited with status 2"))
	err.Diagnostics = "tar: Unexpected EOF in archive\n"

	assert.Contains(t, err.Error(), "tar exited with status 2")
	assert.Contains(t, err.Error(), "Unexpected EOF")
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := NotFound("get", "env-9")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, "env-9", SubjectOf(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestFromContext(t *testing.T) {
	canceled := FromContext("fetch", "kernel", context.Canceled)
	assert.Equal(t, KindCanceled, canceled.Kind)
	assert.True(t, errors.Is(canceled, context.Canceled))

	expired := FromContext("fetch", "kernel", fmt.Errorf("wait: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, expired.Kind)
}
