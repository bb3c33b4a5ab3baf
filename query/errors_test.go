package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"hermannm.dev/wrap"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("connection refused"))))
	assert.True(t, IsTransient(wrap.Error(context.DeadlineExceeded, "query timed out")))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.False(t, IsTransient(nil))
	assert.Nil(t, Transient(nil))
}
