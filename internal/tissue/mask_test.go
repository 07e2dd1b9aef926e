package tissue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMaskNormalises(t *testing.T) {
	m, err := NewMask(3, 2, 1, []uint8{0, 1, 7, 255, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, []uint8{0, 255, 255, 255, 0, 0}, m.Pix())
	assert.Equal(t, 1, m.Level)
	assert.InDelta(t, 0.5, m.TissueFraction(), 1e-9)
}

func TestNewMaskRejectsBadInput(t *testing.T) {
	_, err := NewMask(0, 2, 0, nil)
	assert.Error(t, err)

	_, err = NewMask(2, 2, 0, []uint8{0, 0, 0})
	assert.Error(t, err)
}

func TestMaskAt(t *testing.T) {
	m, err := NewMask(2, 2, 0, []uint8{255, 0, 0, 255})
	require.NoError(t, err)

	assert.True(t, m.At(0, 0))
	assert.False(t, m.At(1, 0))
	assert.True(t, m.At(1, 1))
	assert.False(t, m.At(-1, 0), "out of bounds is background")
	assert.False(t, m.At(2, 2), "out of bounds is background")
}

func TestMaskMatRoundTrip(t *testing.T) {
	pix := []uint8{
		0, 255, 0,
		255, 255, 0,
	}
	m, err := NewMask(3, 2, 2, pix)
	require.NoError(t, err)

	mat, err := m.Mat()
	require.NoError(t, err)
	defer mat.Close()

	assert.Equal(t, 3, mat.Cols())
	assert.Equal(t, 2, mat.Rows())

	back, err := maskFromMat(mat, 2)
	require.NoError(t, err)
	assert.Equal(t, m.Pix(), back.Pix())
}
