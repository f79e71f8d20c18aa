package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrGroupFull, "group g-1 is full")
	assert.True(t, stderrors.Is(err, ErrGroupFull))
	assert.False(t, stderrors.Is(err, ErrGroupClosed))
	assert.Equal(t, "group g-1 is full", err.Error())
	assert.Equal(t, "group is at capacity", ErrGroupFull.Message)
}

func TestWrappedCauseMatchesBothCodes(t *testing.T) {
	err := Wrap(ErrRequestNotInReview, ErrInvalidStateTransition.Code, ErrInvalidStateTransition.Status, "PENDING -> APPROVED")
	assert.True(t, stderrors.Is(err, ErrInvalidStateTransition))
	assert.True(t, stderrors.Is(err, ErrRequestNotInReview))
	assert.False(t, stderrors.Is(err, ErrRequestAlreadyApproved))
}

func TestFromErrorNormalisesUntyped(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := fmt.Errorf("context: %w", Clone(ErrSameGroup, ""))
	assert.Equal(t, ErrSameGroup.Code, FromError(typed).Code)
	assert.Equal(t, ErrSameGroup.Code, CodeOf(typed))
	assert.Nil(t, FromError(nil))
}
