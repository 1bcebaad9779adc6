package main

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

type DocumentKind int

const (
	DocumentUnknown DocumentKind = iota
	DocumentPDF
	DocumentDOCX
	DocumentPlainText
)

func (k DocumentKind) String() string {
	switch k {
	case DocumentPDF:
		return "pdf"
	case DocumentDOCX:
		return "docx"
	case DocumentPlainText:
		return "text"
	default:
		return "unknown"
	}
}

// DetectDocumentKind maps a declared media type onto one of the supported kinds.
// The filename extension is only consulted when the client sent no useful type.
func DetectDocumentKind(contentType, filename string) (DocumentKind, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == mimePDF:
		return DocumentPDF, nil
	case strings.Contains(mediaType, "wordprocessingml"):
		return DocumentDOCX, nil
	case mediaType == mimeText, mediaType == "text/markdown":
		return DocumentPlainText, nil
	case mediaType == "", mediaType == "application/octet-stream":
		switch strings.ToLower(path.Ext(filename)) {
		case ".pdf":
			return DocumentPDF, nil
		case ".docx":
			return DocumentDOCX, nil
		case ".txt", ".md":
			return DocumentPlainText, nil
		}
	}

	if mediaType == "" {
		mediaType = "unknown"
	}
	return DocumentUnknown, fmt.Errorf("%w: %s", ErrUnsupportedDocument, mediaType)
}

// ExtractResumeText turns an uploaded document into plain text.
func ExtractResumeText(kind DocumentKind, data []byte) (string, error) {
	switch kind {
	case DocumentPlainText:
		if !utf8.Valid(data) {
			return "", errors.New("text file is not valid UTF-8")
		}
		return string(data), nil

	case DocumentPDF:
		return extractPDFText(bytes.NewReader(data))

	case DocumentDOCX:
		return extractDocxText(bytes.NewReader(data))

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, kind)
	}
}

func extractPDFText(reader io.ReaderAt) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	pdfReader, err := pdf.NewReader(reader, lenReader(reader))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}
	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		textBuilder.WriteString(pageText)
	}
	return textBuilder.String(), nil
}

func extractDocxText(reader io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	_, err := io.Copy(buf, reader)
	if err != nil {
		return "", err
	}
	r := bytes.NewReader(buf.Bytes())

	doc, err := docx.ReadDocxFromMemory(r, int64(buf.Len()))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return docxPlainText(doc.Editable().GetContent())
}

// docxPlainText reduces WordprocessingML to its raw text: one line per paragraph,
// tabs and breaks kept.
func docxPlainText(documentXML string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(documentXML))
	var out strings.Builder
	inText := false
	// pPr and rPr hold formatting only; their w:tab children are tab stops
	propsDepth := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr", "rPr":
				propsDepth++
			case "t":
				inText = propsDepth == 0
			case "tab":
				if propsDepth == 0 {
					out.WriteByte('\t')
				}
			case "br", "cr":
				if propsDepth == 0 {
					out.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "pPr", "rPr":
				propsDepth--
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// Utility: get reader length for PDF
func lenReader(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case *bytes.Reader:
		return v.Size()
	default:
		return 0
	}
}

// monotonicClock hands out millisecond stamps that never repeat within the process,
// so two uploads from one owner in the same millisecond still get distinct keys.
type monotonicClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{now: time.Now}
}

func (c *monotonicClock) NextMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}

// objectKey builds <owner>/<millis>-<filename>.
func objectKey(ownerID string, millis int64, filename string) string {
	name := sanitizeKeySegment(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if name == "" || name == "." || name == "_" {
		name = "resume"
	}
	return fmt.Sprintf("%s/%d-%s", sanitizeKeySegment(ownerID), millis, name)
}

func sanitizeKeySegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(s))
}
