package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyWindow(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestWindowEvictsOldest(t *testing.T) {
	w, err := New(4)
	require.NoError(t, err)

	_, ok := w.Latest()
	assert.False(t, ok)
	assert.Empty(t, w.Snapshot(nil))

	for i := 1; i <= 3; i++ {
		w.Push(float64(i))
	}
	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Full())
	assert.Equal(t, []float64{1, 2, 3}, w.Snapshot(nil))

	for i := 4; i <= 10; i++ {
		w.Push(float64(i))
	}
	assert.True(t, w.Full())
	assert.Equal(t, 4, w.Len())
	assert.Equal(t, []float64{7, 8, 9, 10}, w.Snapshot(nil))

	latest, ok := w.Latest()
	assert.True(t, ok)
	assert.Equal(t, 10.0, latest)
}

func TestSnapshotReusesBuffer(t *testing.T) {
	w, err := New(3)
	require.NoError(t, err)
	for i := range 5 {
		w.Push(float64(i))
	}

	buf := make([]float64, 0, 8)
	out := w.Snapshot(buf)
	assert.Equal(t, []float64{2, 3, 4}, out)
	assert.Same(t, &buf[:1][0], &out[0])
}

func TestReset(t *testing.T) {
	w, err := New(2)
	require.NoError(t, err)
	w.Push(1)
	w.Push(2)
	w.Reset()

	assert.Equal(t, 0, w.Len())
	w.Push(5)
	assert.Equal(t, []float64{5}, w.Snapshot(nil))
}
