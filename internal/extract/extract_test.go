package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name, contentType string
		data              string
		want              Format
	}{
		{"notes.txt", "text/plain", "hello", FormatText},
		{"paper.PDF", "", "", FormatPDF},
		{"upload", "application/pdf", "", FormatPDF},
		{"blob", "", "%PDF-1.7 ...", FormatPDF},
		{"page.html", "", "<p>x</p>", FormatHTML},
		{"page", "text/html; charset=utf-8", "<p>x</p>", FormatHTML},
		{"data.json", "application/json", "{}", FormatText},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectFormat(tc.name, tc.contentType, []byte(tc.data)), tc.name)
	}
}

func TestExtract_PlainText(t *testing.T) {
	text, err := Extractor{}.Extract("notes.md", "", []byte("# Title\n\nSome notes."))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nSome notes.", text)

	text, err = Extractor{}.Extract("notes.txt", "", []byte("  short notes \n"))
	require.NoError(t, err)
	assert.Equal(t, "short notes", text)
}

func TestExtract_NoText(t *testing.T) {
	_, err := Extractor{}.Extract("blank.txt", "", []byte(" \n\t "))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = Extractor{}.Extract("binary.bin", "", []byte{0xff, 0xfe, 0x00, 0x81})
	assert.ErrorIs(t, err, ErrNoText)

	_, err = Extractor{}.Extract("empty.html", "", []byte("<html><body><script>var x = 1;</script></body></html>"))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtract_TooLarge(t *testing.T) {
	data := []byte(strings.Repeat("a", 11))
	_, err := Extractor{MaxBytes: 10}.Extract("big.txt", "", data)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Extractor{MaxBytes: 11}.Extract("ok.txt", "", data)
	assert.NoError(t, err)

	huge := make([]byte, MaxDocumentBytes+1)
	_, err = Extractor{}.Extract("huge.txt", "", huge)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExtract_HTML(t *testing.T) {
	page := `<html><head><title>T</title><style>p{color:red}</style></head>
<body>
  <h1>Heading</h1>
  <script>alert("nope")</script>
  <p>First paragraph.</p>
  <p>Second paragraph.</p>
</body></html>`

	text, err := Extractor{}.Extract("page.html", "", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Heading\nFirst paragraph.\nSecond paragraph.", text)
}

func TestExtract_BrokenPDF(t *testing.T) {
	_, err := Extractor{}.Extract("broken.pdf", "application/pdf", []byte("%PDF-1.4 not really a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read file")
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0o644))

	text, err := Extractor{}.ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file body", text)

	_, err = Extractor{MaxBytes: 4}.ExtractFile(path)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Extractor{}.ExtractFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	_, err = Extractor{}.ExtractFile(dir)
	assert.Error(t, err)
}

func TestWatch_ReextractsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(path, []byte("version one"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 4)
	err := Extractor{}.Watch(ctx, path, func(text string, err error) {
		if err == nil {
			changes <- text
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))

	select {
	case text := <-changes:
		assert.Equal(t, "version two", text)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}
