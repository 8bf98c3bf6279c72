package ingest

import (
	"context"
	"fmt"
	"strings"

	"aiweb-backend-go/internal/cloud"

	"go.uber.org/zap"
)

// AnalyzeImage runs label detection, quick OCR and an optional caption on the
// image, then composes a sectioned report. When summarizing is enabled the
// report is handed to the text model; otherwise it is the answer itself.
func (d *Dispatcher) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	log := d.log.With(zap.String("file", name))

	labels, labelErr := d.Inspector.DetectLabels(ctx, data)
	if labelErr != nil {
		log.Warn("label detection failed", zap.Error(labelErr))
	}
	lines, textErr := d.Inspector.DetectText(ctx, data)
	if textErr != nil {
		log.Warn("image text detection failed", zap.Error(textErr))
	}
	if labelErr != nil && textErr != nil {
		return nil, labelErr
	}

	caption := cloud.NoCaption
	if d.Captioner != nil {
		caption = d.Captioner.Caption(ctx, data)
	}

	report := composeImageReport(name, labels, labelErr, caption, lines, textErr)
	analysis := &Analysis{Strategy: StrategyImage}
	if labelErr != nil || textErr != nil {
		analysis.Partial = true
		analysis.Warning = "Some image analysis steps failed; the report is incomplete"
	}
	if !d.opts.ImageSummarize {
		analysis.Result = cloud.Result{Response: report}
		return analysis, nil
	}
	prompt := "Please analyze this image based on the following automated analysis and provide a concise summary:\n\n" + report
	analysis.Result = d.Model.Invoke(ctx, prompt, ImageSystemPrompt, nil)
	return analysis, nil
}

func composeImageReport(name string, labels []cloud.Label, labelErr error, caption string, lines []string, textErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Image: %s\n\n", name)

	b.WriteString("Detected labels:\n")
	switch {
	case labelErr != nil:
		b.WriteString("- unavailable\n")
	case len(labels) == 0:
		b.WriteString("- none\n")
	default:
		for _, label := range labels {
			fmt.Fprintf(&b, "- %s (%.1f%%)\n", label.Name, label.Confidence)
		}
	}

	fmt.Fprintf(&b, "\nCaption:\n%s\n", caption)

	b.WriteString("\nExtracted text:\n")
	switch {
	case textErr != nil:
		b.WriteString("unavailable\n")
	case len(lines) == 0:
		b.WriteString("no text detected\n")
	default:
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
