package corpus

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Parser converts a source file into a Tree.
type Parser interface {
	Parse(r io.Reader, filename string) (*Tree, error)
}

// ParserFor returns the parser for filename's extension.
func ParserFor(filename string, pdfFallback bool) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".tex", ".srt", ".vtt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: pdfFallback}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// Supported reports whether filename has a parsable extension.
func Supported(filename string) bool {
	_, err := ParserFor(filename, false)
	return err == nil
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
