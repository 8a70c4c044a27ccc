package multierror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiError(t *testing.T) {
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	var m MultiError
	assert.NoError(t, m.ErrorOrNil())

	Append(&m, errFirst)
	Append(&m, nil)
	Append(&m, errSecond)

	err := m.ErrorOrNil()
	assert.Error(t, err)
	assert.Len(t, m, 2)
	assert.Equal(t, "first\nsecond", err.Error())
	assert.True(t, errors.Is(err, errSecond))
	assert.False(t, errors.Is(err, errors.New("first")))
}
