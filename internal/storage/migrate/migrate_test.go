package migrate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUp(t *testing.T) {
	t.Run("up and down", func(t *testing.T) {
		content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"
		assert.Equal(t, "\nCREATE TABLE a (id TEXT);\n", ExtractUp(content))
	})

	t.Run("up only", func(t *testing.T) {
		assert.Equal(t, "\nCREATE TABLE a (id TEXT);", ExtractUp("-- +migrate Up\nCREATE TABLE a (id TEXT);"))
	})

	t.Run("no markers", func(t *testing.T) {
		assert.Equal(t, "CREATE TABLE a (id TEXT);", ExtractUp("CREATE TABLE a (id TEXT);"))
	})
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(errors.New("table accounts already exists")))
	assert.True(t, IsAlreadyExists(errors.New("duplicate column name: active")))
	assert.False(t, IsAlreadyExists(errors.New("syntax error")))
}
