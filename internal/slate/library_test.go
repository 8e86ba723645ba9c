package slate

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, v uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			shade := v
			if (x+y)%7 == 0 {
				shade = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))

	return "file://" + path
}

func TestLibrary_LoadAndFindBestMatch(t *testing.T) {
	dir := t.TempDir()
	slateURL := writePNG(t, dir, "slate.png", 40)
	otherURL := writePNG(t, dir, "other.png", 200)

	lib, err := Load([]string{slateURL, otherURL})
	require.NoError(t, err)
	require.Equal(t, 2, lib.Len())

	img, err := Decode(mustRead(t, slateURL))
	require.NoError(t, err)
	fp := Compute(img)

	match, ok := lib.FindBestMatch(fp, 0.95)
	require.True(t, ok)
	require.NotEmpty(t, match.SlateID)
}

func TestLibrary_Load_DeduplicatesURLs(t *testing.T) {
	dir := t.TempDir()
	slateURL := writePNG(t, dir, "slate.png", 50)

	lib, err := Load([]string{slateURL, slateURL})
	require.NoError(t, err)
	require.Equal(t, 1, lib.Len())
}

func TestLibrary_Load_RejectsUnsupportedScheme(t *testing.T) {
	_, err := Load([]string{"https://example.com/slate.png"})
	require.Error(t, err)
}

func TestLibrary_Load_RejectsMissingFile(t *testing.T) {
	_, err := Load([]string{"file:///does/not/exist.png"})
	require.Error(t, err)
}

func mustRead(t *testing.T, u string) []byte {
	t.Helper()
	b, err := fetch(u)
	require.NoError(t, err)
	return b
}
