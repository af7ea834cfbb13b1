package color

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, label string, candidates []string) (string, error) {
	args := m.Called(ctx, label, candidates)
	return args.String(0), args.Error(1)
}

func TestPalette(t *testing.T) {
	assert.Len(t, Palette, 60)
	assert.Len(t, CanonicalNames(), 60)

	c, ok := Lookup("  NAVY blue ")
	assert.True(t, ok)
	assert.Equal(t, "藏蓝色", c)

	c, ok = Lookup("黑色")
	assert.True(t, ok)
	assert.Equal(t, "黑色", c)

	_, ok = Lookup("Midnight Ocean")
	assert.False(t, ok)
	assert.True(t, IsCanonical(Multicolor))
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("palette hit never calls the classifier", func(t *testing.T) {
		classifier := new(MockClassifier)
		r := NewResolver(nil, classifier, nil)

		assert.Equal(t, "黑色", r.Resolve(ctx, "black"))
		assert.Equal(t, "红白色", r.Resolve(ctx, "Red and White"))
		classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("classifier result is cached", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "color_cache.txt")
		cache, err := OpenCache(path)
		require.NoError(t, err)

		classifier := new(MockClassifier)
		classifier.On("Classify", mock.Anything, "Midnight Ocean", mock.Anything).Return("藏蓝色", nil).Once()
		r := NewResolver(cache, classifier, nil)

		assert.Equal(t, "藏蓝色", r.Resolve(ctx, "Midnight Ocean"))
		assert.Equal(t, "藏蓝色", r.Resolve(ctx, "Midnight Ocean"))
		classifier.AssertNumberOfCalls(t, "Classify", 1)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "Midnight Ocean_藏蓝色\n", string(data))

		// A new process reuses the file without calling the classifier.
		reopened, err := OpenCache(path)
		require.NoError(t, err)
		fresh := new(MockClassifier)
		assert.Equal(t, "藏蓝色", NewResolver(reopened, fresh, nil).Resolve(ctx, "Midnight Ocean"))
		fresh.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("case and whitespace variants share one entry", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "color_cache.txt")
		cache, err := OpenCache(path)
		require.NoError(t, err)

		classifier := new(MockClassifier)
		classifier.On("Classify", mock.Anything, "Midnight\nOcean", mock.Anything).Return("藏蓝色", nil).Once()
		r := NewResolver(cache, classifier, nil)

		for _, label := range []string{"Midnight\nOcean", "midnight ocean", "MIDNIGHT   Ocean", "Midnight\r\nOcean"} {
			assert.Equal(t, "藏蓝色", r.Resolve(ctx, label), label)
		}
		classifier.AssertNumberOfCalls(t, "Classify", 1)
		assert.Equal(t, 1, cache.Len())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "Midnight Ocean_藏蓝色\n", string(data), "newlines never split the record")

		reopened, err := OpenCache(path)
		require.NoError(t, err)
		c, ok := reopened.Get("midnight\nocean")
		assert.True(t, ok)
		assert.Equal(t, "藏蓝色", c)
	})

	t.Run("english answer is mapped to canonical", func(t *testing.T) {
		classifier := new(MockClassifier)
		classifier.On("Classify", mock.Anything, "Sky", mock.Anything).Return("Baby Blue", nil)

		assert.Equal(t, "淡蓝色", NewResolver(nil, classifier, nil).Resolve(ctx, "Sky"))
	})

	t.Run("failures fall back to multicolor without caching", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "color_cache.txt")
		cache, err := OpenCache(path)
		require.NoError(t, err)

		classifier := new(MockClassifier)
		classifier.On("Classify", mock.Anything, "Glitter", mock.Anything).Return("", errors.New("402 payment required"))
		classifier.On("Classify", mock.Anything, "Neon", mock.Anything).Return("Electric Lime", nil)
		r := NewResolver(cache, classifier, nil)

		assert.Equal(t, Multicolor, r.Resolve(ctx, "Glitter"))
		assert.Equal(t, Multicolor, r.Resolve(ctx, "Neon"))
		assert.Equal(t, Multicolor, r.Resolve(ctx, "Glitter"))
		classifier.AssertNumberOfCalls(t, "Classify", 3)

		assert.Equal(t, 0, cache.Len())
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("empty label", func(t *testing.T) {
		assert.Equal(t, Multicolor, NewResolver(nil, nil, nil).Resolve(ctx, "  "))
	})
}

func TestOpenCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "color_cache.txt")
	content := "Sea_Green_绿色\nbroken line\n_黑色\nDeep Wine_酒红色\nRetired_紫罗兰灰\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cache, err := OpenCache(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	c, ok := cache.Get("Sea_Green")
	assert.True(t, ok, "labels keep inner separators")
	assert.Equal(t, "绿色", c)

	c, _ = cache.Get("Deep Wine")
	assert.Equal(t, "酒红色", c)

	_, ok = cache.Get("Retired")
	assert.False(t, ok, "off-palette entries are dropped")

	c, ok = cache.Get("  deep   WINE ")
	assert.True(t, ok, "lookups ignore case and spacing")
	assert.Equal(t, "酒红色", c)
}
