package ingest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/services"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const (
	StrategyImage = "image"
	StrategyText  = "text"
	StrategyDocx  = "docx"
	StrategyDoc   = "doc"
	StrategyHTML  = "html"
	StrategyPDF   = "pdf"
)

const (
	DocumentSystemPrompt = "You are an expert document analyzer. Provide detailed analysis, summaries, and extract key insights from documents."
	ImageSystemPrompt    = "You are an expert image analyst. Provide detailed descriptions and analysis of images, including objects, people, scenes, colors, composition, and artistic elements."
	ImagePrompt          = "Please analyze this image in detail. Describe what you see, including objects, scenery, colors, and any text present."
)

// DocumentPrompt wraps extracted text in the fixed analysis request.
func DocumentPrompt(content string) string {
	return "Please analyze the following document and provide a comprehensive summary, key points, and insights:\n\n" + content
}

var strategies = map[string]string{
	"png":  StrategyImage,
	"jpg":  StrategyImage,
	"jpeg": StrategyImage,
	"gif":  StrategyImage,
	"tif":  StrategyImage,
	"tiff": StrategyImage,
	"txt":  StrategyText,
	"md":   StrategyText,
	"docx": StrategyDocx,
	"doc":  StrategyDoc,
	"html": StrategyHTML,
	"htm":  StrategyHTML,
	"pdf":  StrategyPDF,
}

// Classify returns the strategy for a file extension, or "" when unsupported.
func Classify(ext string) string {
	return strategies[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// SupportedFormats lists every extension the dispatcher handles.
func SupportedFormats() []string {
	formats := make([]string, 0, len(strategies))
	for ext := range strategies {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// Model is the text model used to analyze extracted content.
type Model interface {
	Invoke(ctx context.Context, prompt, system string, image *cloud.Image) cloud.Result
}

// Inspector runs label detection and quick OCR on raw image bytes.
type Inspector interface {
	DetectLabels(ctx context.Context, data []byte) ([]cloud.Label, error)
	DetectText(ctx context.Context, data []byte) ([]string, error)
}

type Captioner interface {
	Caption(ctx context.Context, data []byte) string
}

// Document is text pulled out of an uploaded file.
type Document struct {
	Text     string
	Strategy string
	Pages    int
	Partial  bool
	Warning  string
}

// Analysis is the final answer for one uploaded file.
type Analysis struct {
	Strategy string
	Result   cloud.Result
	Partial  bool
	Warning  string
}

type Options struct {
	MaxChars       int
	ImageSummarize bool
	Logger         *zap.Logger
}

// Dispatcher routes an uploaded file to the extraction strategy for its
// extension and sends the text through the model.
type Dispatcher struct {
	Model      Model
	Inspector  Inspector
	Captioner  Captioner
	PDF        *PDFRunner
	Extractors []TextExtractor

	opts Options
	log  *zap.Logger
}

func NewDispatcher(model Model, inspector Inspector, captioner Captioner, pdf *PDFRunner, opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Model:      model,
		Inspector:  inspector,
		Captioner:  captioner,
		PDF:        pdf,
		Extractors: DefaultExtractors(),
		opts:       opts,
		log:        log,
	}
}

// CheckSupported fails with the unsupported-type error when no strategy
// handles ext.
func CheckSupported(ext string) error {
	if Classify(ext) == "" {
		return unsupported(ext)
	}
	return nil
}

func unsupported(ext string) error {
	label := ext
	if label == "" {
		label = "(none)"
	}
	return services.NewError(services.KindUnsupported, fmt.Sprintf(
		"Unsupported file type: %s. Supported formats: %s", label, strings.Join(SupportedFormats(), ", ")))
}

// Analyze extracts the file at path and asks the model about it. name is the
// client-facing file name and decides the strategy. Extraction failures are
// returned as errors; model failures come back in Analysis.Result.
func (d *Dispatcher) Analyze(ctx context.Context, path, name string) (*Analysis, error) {
	ext := services.Extension(name)
	strategy := Classify(ext)
	if strategy == "" {
		return nil, unsupported(ext)
	}
	log := d.log.With(zap.String("file", name), zap.String("strategy", strategy))

	if strategy == StrategyImage {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Internal(err, "Failed to read uploaded image")
		}
		return d.AnalyzeImage(ctx, name, data)
	}

	doc, err := d.Extract(ctx, path, name)
	if err != nil {
		log.Warn("document extraction failed", zap.Error(err))
		return nil, err
	}
	log.Info("document extracted", zap.Int("chars", utf8.RuneCountInString(doc.Text)), zap.Bool("partial", doc.Partial))
	result := d.Model.Invoke(ctx, DocumentPrompt(doc.Text), DocumentSystemPrompt, nil)
	return &Analysis{Strategy: strategy, Result: result, Partial: doc.Partial, Warning: doc.Warning}, nil
}

// Extract runs the text strategy for name without calling the model.
func (d *Dispatcher) Extract(ctx context.Context, path, name string) (*Document, error) {
	ext := services.Extension(name)
	strategy := Classify(ext)
	var doc *Document
	var err error
	switch strategy {
	case StrategyText:
		doc, err = readPlain(path)
	case StrategyDocx:
		doc, err = readDocx(path)
	case StrategyDoc:
		doc, err = d.readLegacyDoc(ctx, path)
	case StrategyHTML:
		doc, err = readHTML(path)
	case StrategyPDF:
		if d.PDF == nil {
			return nil, services.NewError(services.KindToolMissing, pdfBucketMessage)
		}
		doc, err = d.PDF.Extract(ctx, path, name)
	case StrategyImage:
		return nil, services.NewError(services.KindUnsupported, "Images are analyzed directly and have no text extraction step")
	default:
		return nil, unsupported(ext)
	}
	if err != nil {
		return nil, err
	}
	doc.Strategy = strategy
	d.truncate(doc)
	return doc, nil
}

func (d *Dispatcher) truncate(doc *Document) {
	if d.opts.MaxChars <= 0 || utf8.RuneCountInString(doc.Text) <= d.opts.MaxChars {
		return
	}
	runes := []rune(doc.Text)
	doc.Text = string(runes[:d.opts.MaxChars])
	note := fmt.Sprintf("Document truncated to the first %d characters", d.opts.MaxChars)
	if doc.Warning == "" {
		doc.Warning = note
	} else {
		doc.Warning += "; " + note
	}
}

func readPlain(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Internal(err, "Failed to read uploaded file")
	}
	return &Document{Text: strings.ToValidUTF8(string(data), "")}, nil
}

func readHTML(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Internal(err, "Failed to read uploaded file")
	}
	defer f.Close()
	article, err := readability.FromReader(f, nil)
	if err != nil {
		return nil, services.WrapError(services.KindValidation, err, "Failed to parse HTML document")
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, services.NewError(services.KindValidation, "No readable text found in HTML document")
	}
	if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return &Document{Text: text}, nil
}
