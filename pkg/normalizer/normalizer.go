// Package normalizer turns provider payloads of any supported format into
// clean plain text for chunking. One document in, one text out; a document
// that cannot be fully normalized produces an error, never partial text.
package normalizer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"

	"unifydata-backend/pkg/pipelineerr"
)

// MaxPayloadBytes caps single-document input at 50MB.
const MaxPayloadBytes = 50 << 20

// Result is the normalized document: clean text plus the structural facts
// extraction learned along the way.
type Result struct {
	Text      string
	Format    string
	WordCount int
	CharCount int
}

// Normalize extracts plain text from data.
func Normalize(filename string, data []byte) (string, error) {
	res, err := Extract(filename, data)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Extract normalizes data and reports its structure. The format is detected
// from the payload bytes first, falling back to the filename extension for
// formats that sniff as generic text or zip.
func Extract(filename string, data []byte) (*Result, error) {
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", pipelineerr.ErrPayloadTooLarge, len(data), MaxPayloadBytes)
	}
	if len(data) == 0 {
		return &Result{}, nil
	}

	var (
		text string
		err  error
	)
	kind := detectFormat(filename, data)
	switch kind {
	case "pdf":
		text, err = extractPDF(data)
	case "docx":
		text, err = extractDOCX(data)
	case "xlsx":
		text, err = extractXLSX(data)
	case "html":
		text, err = extractHTML(data)
	case "json":
		text, err = extractJSON(data)
	case "csv":
		text, err = extractCSV(data)
	case "md":
		text, err = extractMarkdown(data)
	case "txt":
		text, err = decodeText(data)
	default:
		return nil, fmt.Errorf("%w: %s", pipelineerr.ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", filename, err)
	}

	clean := Clean(text)
	return &Result{
		Text:      clean,
		Format:    kind,
		WordCount: len(strings.Fields(clean)),
		CharCount: len(clean),
	}, nil
}

func detectFormat(filename string, data []byte) string {
	switch mimetype.Detect(data).String() {
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case "text/html; charset=utf-8":
		return "html"
	case "application/json":
		return "json"
	case "text/csv":
		return "csv"
	}

	// Plain-looking payloads: trust the extension.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".xlsx":
		return "xlsx"
	case ".html", ".htm":
		return "html"
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	case ".md", ".markdown":
		return "md"
	case ".txt", "":
		if isTextual(data) {
			return "txt"
		}
	default:
		if isTextual(data) {
			return "txt"
		}
	}
	return ""
}

func isTextual(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "text/")
}

// decodeText converts legacy charsets to UTF-8.
func decodeText(data []byte) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/plain")
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(decoded), nil
}

func extractJSON(data []byte) (string, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	var b strings.Builder
	flattenJSON(&b, value)
	return b.String(), nil
}

// flattenJSON walks the value and emits scalar leaves as lines, keeping key
// context so chunks remain searchable. Keys are sorted so the same payload
// always normalizes to the same text.
func flattenJSON(b *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			switch item := v[key]; item.(type) {
			case map[string]any, []any:
				flattenJSON(b, item)
			default:
				fmt.Fprintf(b, "%s: %v\n", key, item)
			}
		}
	case []any:
		for _, item := range v {
			flattenJSON(b, item)
		}
	default:
		fmt.Fprintf(b, "%v\n", v)
	}
}

func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		b.WriteString(strings.Join(record, " "))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

var (
	mdHeading  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile("[*_`~]{1,3}")
	mdFence    = regexp.MustCompile("(?m)^```.*$")
)

// extractMarkdown strips markup rather than rendering it; the prose is what
// matters for retrieval.
func extractMarkdown(data []byte) (string, error) {
	text, err := decodeText(data)
	if err != nil {
		return "", err
	}
	text = mdFence.ReplaceAllString(text, "")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "")
	return text, nil
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// Clean collapses whitespace so identical content always produces identical
// text regardless of source formatting.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
