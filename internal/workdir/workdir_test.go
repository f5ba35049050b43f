package workdir

import (
	"os"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCreateAndClose(t *testing.T) {
	w, err := Create("sio2box-test")
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(w.Path(), "sio2box-test-"))

	info, err := os.Stat(w.Path())
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	assert.NilError(t, w.Close())
	_, err = os.Stat(w.Path())
	assert.Assert(t, os.IsNotExist(err))
}

func TestRandomSuffixLength(t *testing.T) {
	assert.Equal(t, len(randomSuffix()), 6)
}
