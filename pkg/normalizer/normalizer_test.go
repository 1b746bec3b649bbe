package normalizer

import (
	"errors"
	"strings"
	"testing"

	"unifydata-backend/pkg/pipelineerr"
)

func TestNormalizePlainText(t *testing.T) {
	got, err := Normalize("notes.txt", []byte("Hello   world.\r\n\r\n\r\n\r\nSecond   paragraph."))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := "Hello world.\n\nSecond paragraph."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeHTML(t *testing.T) {
	html := `<html><head><style>body{color:red}</style></head>
<body><h1>Title</h1><p>First para.</p><script>alert(1)</script><p>Second para.</p></body></html>`

	got, err := Normalize("page.html", []byte(html))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, want := range []string{"Title", "First para.", "Second para."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
	for _, forbidden := range []string{"alert", "color:red"} {
		if strings.Contains(got, forbidden) {
			t.Errorf("output leaked %q: %q", forbidden, got)
		}
	}
}

func TestNormalizeMarkdown(t *testing.T) {
	md := "# Heading\n\nSome **bold** text with a [link](https://example.com) inline.\n"
	got, err := Normalize("readme.md", []byte(md))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if strings.Contains(got, "#") || strings.Contains(got, "**") || strings.Contains(got, "https://example.com") {
		t.Errorf("markup survived stripping: %q", got)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "bold") || !strings.Contains(got, "link") {
		t.Errorf("prose lost: %q", got)
	}
}

func TestNormalizeJSON(t *testing.T) {
	payload := []byte(`{"title":"Q3 Report","owner":"finance","tags":["a","b"]}`)
	got, err := Normalize("report.json", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(got, "title: Q3 Report") || !strings.Contains(got, "owner: finance") {
		t.Errorf("unexpected flattening: %q", got)
	}

	// Map key order must not leak into the output.
	again, _ := Normalize("report.json", payload)
	if got != again {
		t.Error("identical json normalized differently")
	}
}

func TestNormalizeCSV(t *testing.T) {
	got, err := Normalize("data.csv", []byte("name,amount\nwidget,42\n"))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(got, "name amount") || !strings.Contains(got, "widget 42") {
		t.Errorf("unexpected csv output: %q", got)
	}
}

func TestNormalizeUnsupportedFormat(t *testing.T) {
	_, err := Normalize("image.png", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0})
	if !errors.Is(err, pipelineerr.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNormalizePayloadTooLarge(t *testing.T) {
	data := make([]byte, MaxPayloadBytes+1)
	_, err := Normalize("big.txt", data)
	if !errors.Is(err, pipelineerr.ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	got, err := Normalize("empty.txt", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestExtractReportsStructure(t *testing.T) {
	res, err := Extract("notes.txt", []byte("Three little words."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Format != "txt" {
		t.Errorf("format = %q", res.Format)
	}
	if res.WordCount != 3 {
		t.Errorf("word count = %d, want 3", res.WordCount)
	}
	if res.CharCount != len(res.Text) {
		t.Errorf("char count = %d, text length %d", res.CharCount, len(res.Text))
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	messy := "  a\tb  \n\n\n\n c "
	once := Clean(messy)
	twice := Clean(once)
	if once != twice {
		t.Errorf("Clean not idempotent: %q vs %q", once, twice)
	}
}
