package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickers(t *testing.T) {
	out := ParseTickers("aapl, MSFT\n$googl msft\tBRK.B")
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "BRK.B"}, out)
}

func TestParseTickersEmpty(t *testing.T) {
	assert.Empty(t, ParseTickers("  \n , ,\t"))
}

func TestLoadTickerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte("aapl\nmsft, AAPL\n"), 0644))

	out, err := LoadTickerFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, out)
}

func TestLoadTickerFileMissing(t *testing.T) {
	_, err := LoadTickerFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
