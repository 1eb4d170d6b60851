package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxExtractedChars caps text pulled out of documents the backend cannot read natively.
const maxExtractedChars = 20000

// Attachment is one binary input sent alongside a prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// prepare validates the attachment and converts it into something the
// backend accepts: either the raw bytes with a resolved MIME type, or text
// appended to the prompt.
func (g *Gateway) prepare(id, prompt string, att *Attachment) (Request, error) {
	req := Request{ID: id, Prompt: prompt}
	if att == nil {
		return req, nil
	}
	if len(att.Data) == 0 {
		return req, fmt.Errorf("%w: %q is empty", ErrUnsupportedAttachment, att.Name)
	}
	if int64(len(att.Data)) > g.maxAttachment {
		return req, fmt.Errorf("%w: %d bytes, limit %d", ErrAttachmentTooLarge, len(att.Data), g.maxAttachment)
	}

	mimeType := DetectMIME(att.Name, att.MIMEType, att.Data)
	if g.accepts(mimeType) {
		req.Attachment = &Attachment{Name: att.Name, MIMEType: mimeType, Data: att.Data}
		return req, nil
	}

	text, err := extractText(mimeType, att.Data)
	if err != nil {
		return req, err
	}
	req.Prompt = appendDocument(prompt, att.Name, text)
	return req, nil
}

func (g *Gateway) accepts(mimeType string) bool {
	if a, ok := g.backend.(MediaAccepter); ok {
		return a.Accepts(mimeType)
	}
	return strings.HasPrefix(mimeType, "image/")
}

// DetectMIME resolves the media type of an attachment from, in order, the
// declared type, the file extension and the content itself. Parameters such
// as charset are stripped.
func DetectMIME(name, declared string, data []byte) string {
	candidates := []string{declared}
	if ext := filepath.Ext(name); ext != "" {
		candidates = append(candidates, mime.TypeByExtension(strings.ToLower(ext)))
	}
	for _, c := range candidates {
		if mt := baseType(c); mt != "" && mt != "application/octet-stream" {
			return mt
		}
	}
	return baseType(http.DetectContentType(data))
}

func baseType(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return ""
	}
	return mt
}

func extractText(mimeType string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch {
	case mimeType == "application/pdf":
		text, err = pdfText(data)
	case mimeType == "text/html" || mimeType == "application/xhtml+xml":
		text, err = htmlText(data)
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/json", mimeType == "application/xml":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupportedAttachment, mimeType)
		}
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAttachment, mimeType)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no readable text in %s", ErrUnsupportedAttachment, mimeType)
	}
	return truncateRunes(text, maxExtractedChars), nil
}

func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", ErrUnsupportedAttachment, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: reading pdf: %v", ErrUnsupportedAttachment, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extracting pdf text: %v", ErrUnsupportedAttachment, err)
	}
	b, err := io.ReadAll(io.LimitReader(plain, maxExtractedChars*4))
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

// htmlText returns the visible text of an HTML document, skipping script
// and style content.
func htmlText(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", fmt.Errorf("parsing html: %w", err)
			}
			return strings.Join(strings.Fields(b.String()), " "), nil
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style" || name == "noscript"
}

func appendDocument(prompt, name, text string) string {
	if name == "" {
		name = "attachment"
	}
	return fmt.Sprintf("%s\n\n--- %s ---\n%s", prompt, name, text)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
