package ingest

import (
	"fmt"
	"os"
	"strings"

	"aiweb-backend-go/internal/services"

	"github.com/fumiama/go-docx"
)

// readDocx joins the non-empty paragraphs and tables of a .docx body.
func readDocx(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.WrapError(services.KindValidation, err, "Failed to open DOCX file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, services.WrapError(services.KindValidation, err, "Failed to open DOCX file")
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, services.WrapError(services.KindValidation, err, "Failed to parse DOCX file")
	}

	var blocks []string
	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			if text := strings.TrimSpace(fmt.Sprint(item)); text != "" {
				blocks = append(blocks, text)
			}
		}
	}
	if len(blocks) == 0 {
		return nil, services.NewError(services.KindValidation, "No text content found in DOCX file")
	}
	return &Document{Text: strings.Join(blocks, "\n")}, nil
}
