package framework

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	assert.NoError(t, errs.Add(nil, nil).Aggregate())

	errs.Add(io.EOF)
	assert.Equal(t, "EOF", errs.Aggregate().Error())

	errs.Add(nil, io.ErrClosedPipe)
	err := errs.Aggregate()
	assert.Equal(t, "multiple errors:\n  EOF\n  io: read/write on closed pipe", err.Error())
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.False(t, errors.Is(err, io.ErrUnexpectedEOF))
}
