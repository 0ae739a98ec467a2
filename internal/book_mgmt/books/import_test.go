package books

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImportCSV(t *testing.T) {
	payload := []byte("title,author,publisher,year,copies\n" +
		"Clean Architecture,Robert C. Martin,Pearson,2017,3\n" +
		"The Go Programming Language,,,2015,\n")

	records, err := parseImportCSV(payload)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Clean Architecture", records[0].Title)
	assert.Equal(t, "Robert C. Martin", records[0].Author)
	assert.Equal(t, "Pearson", records[0].Publisher)
	assert.Equal(t, "2017", records[0].Year)
	assert.Equal(t, "3", records[0].Copies)

	assert.Equal(t, "The Go Programming Language", records[1].Title)
	assert.Empty(t, records[1].Author)
	assert.Empty(t, records[1].Copies)
}

func TestParseImportCSV_NoHeader(t *testing.T) {
	payload := []byte("Some Book,Someone,,,2\n")
	records, err := parseImportCSV(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Some Book", records[0].Title)
}

func TestParseImportCSV_ShortRows(t *testing.T) {
	payload := []byte("title\nOnly Title\n")
	records, err := parseImportCSV(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Only Title", records[0].Title)
	assert.Empty(t, records[0].Author)
}

func TestDecodeToUTF8(t *testing.T) {
	t.Run("plain utf-8", func(t *testing.T) {
		got, err := decodeToUTF8([]byte("タイトル,著者"))
		require.NoError(t, err)
		assert.Equal(t, "タイトル,著者", string(got))
	})

	t.Run("utf-8 with BOM", func(t *testing.T) {
		got, err := decodeToUTF8(append([]byte{0xEF, 0xBB, 0xBF}, []byte("title,author")...))
		require.NoError(t, err)
		assert.Equal(t, "title,author", string(got))
	})

	t.Run("shift-jis", func(t *testing.T) {
		// 「本」のShift-JIS表現 0x96 0x7B
		got, err := decodeToUTF8([]byte{0x96, 0x7B})
		require.NoError(t, err)
		assert.Equal(t, "本", string(got))
	})

	t.Run("utf-16le with BOM", func(t *testing.T) {
		// "ab" in UTF-16LE with BOM
		got, err := decodeToUTF8([]byte{0xFF, 0xFE, 0x61, 0x00, 0x62, 0x00})
		require.NoError(t, err)
		assert.Equal(t, "ab", string(got))
	})
}
