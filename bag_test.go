package taskhive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBag_SetNormalizes(t *testing.T) {
	b := Bag{}
	require.NoError(t, b.Set("i", 7))
	require.NoError(t, b.Set("u", uint16(3)))
	require.NoError(t, b.Set("f", float32(1.5)))
	require.NoError(t, b.Set("s", "x"))
	require.NoError(t, b.Set("b", true))
	require.NoError(t, b.Set("n", nil))

	assert.Equal(t, int64(7), b["i"])
	assert.Equal(t, int64(3), b["u"])
	assert.Equal(t, float64(1.5), b["f"])
	assert.Equal(t, "x", b.String("s"))
	n, ok := b.Int("i")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []string{"b", "f", "i", "n", "s", "u"}, b.Keys())
}

func TestBag_RejectsNonScalar(t *testing.T) {
	b := Bag{}
	require.ErrorIs(t, b.Set("", 1), ErrInvalidKey)
	require.ErrorIs(t, b.Set("m", map[string]int{"a": 1}), ErrInvalidValue)
	require.ErrorIs(t, b.Set("s", []int{1}), ErrInvalidValue)

	_, err := NewBag(map[string]any{"ok": 1, "bad": struct{}{}})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestBag_RejectsUnencodableNumbers(t *testing.T) {
	b := Bag{}
	require.ErrorIs(t, b.Set("nan", math.NaN()), ErrInvalidValue)
	require.ErrorIs(t, b.Set("inf", math.Inf(1)), ErrInvalidValue)
	require.ErrorIs(t, b.Set("ninf", float32(math.Inf(-1))), ErrInvalidValue)
	require.ErrorIs(t, b.Set("big", uint64(math.MaxUint64)), ErrInvalidValue)
	require.ErrorIs(t, b.Set("over", uint64(math.MaxInt64)+1), ErrInvalidValue)
	require.Empty(t, b)

	require.NoError(t, b.Set("max", uint64(math.MaxInt64)))
	assert.Equal(t, int64(math.MaxInt64), b["max"])

	_, err := NewTask(noopJob("j"), WithParams(map[string]any{"x": math.NaN()}))
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestBag_CloneIsIndependent(t *testing.T) {
	b, err := NewBag(map[string]any{"a": 1})
	require.NoError(t, err)
	c := b.Clone()
	require.NoError(t, c.Set("a", 2))
	assert.Equal(t, int64(1), b["a"])

	var nilBag Bag
	assert.NotNil(t, nilBag.Clone())
}

func TestBag_Missing(t *testing.T) {
	b := Bag{"a": int64(1)}
	k, ok := b.missing([]string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, "b", k)
	_, ok = b.missing([]string{"a"})
	require.False(t, ok)
}
