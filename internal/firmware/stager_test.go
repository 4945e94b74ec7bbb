package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func createTestStager(t *testing.T) *Stager {
	// port 0 keeps parallel test runs from fighting over a socket
	return NewStager(t.TempDir(), 0)
}

func TestStageWritesTheImage(t *testing.T) {
	// GIVEN
	stager := createTestStager(t)
	blob := []byte("firmware image bytes")

	// WHEN
	size, err := stager.Stage("fangrid-v2.8.bin", blob)

	// THEN the image is on disk with the reported size
	assert.NoError(t, err)
	assert.Equal(t, int64(len(blob)), size)
	assert.Equal(t, "fangrid-v2.8.bin", stager.Filename())

	written, err := os.ReadFile(filepath.Join(stager.stagingDir, "fangrid-v2.8.bin"))
	assert.NoError(t, err)
	assert.Equal(t, blob, written)
}

func TestStageReplacesPreviousImage(t *testing.T) {
	// GIVEN an already staged image
	stager := createTestStager(t)
	_, err := stager.Stage("fangrid-v2.7.bin", []byte("old"))
	assert.NoError(t, err)

	// WHEN a newer image is staged
	_, err = stager.Stage("fangrid-v2.8.bin", []byte("new"))

	// THEN the stager serves the new one
	assert.NoError(t, err)
	assert.Equal(t, "fangrid-v2.8.bin", stager.Filename())
}

func TestClearRemovesTheImage(t *testing.T) {
	// GIVEN
	stager := createTestStager(t)
	_, err := stager.Stage("fangrid-v2.8.bin", []byte("firmware"))
	assert.NoError(t, err)
	path := filepath.Join(stager.stagingDir, "fangrid-v2.8.bin")

	// WHEN
	err = stager.Clear()

	// THEN the file is gone and the stager is empty
	assert.NoError(t, err)
	assert.Equal(t, "", stager.Filename())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestClearWithoutStagedImageIsANoOp(t *testing.T) {
	// GIVEN
	stager := createTestStager(t)

	// WHEN
	err := stager.Clear()
	errAgain := stager.Clear()

	// THEN
	assert.NoError(t, err)
	assert.NoError(t, errAgain)
}
