package ingest

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"aiweb-backend-go/internal/services"

	"go.uber.org/zap"
)

const legacyDocMessage = "Legacy .doc files require an external converter: install antiword or catdoc " +
	"(for example 'apt-get install antiword catdoc'), or save the file as .docx and upload it again"

// TextExtractor is an external converter that turns a file into plain text.
type TextExtractor interface {
	Name() string
	Available() bool
	Extract(ctx context.Context, path string) (string, error)
}

// commandExtractor shells out to a converter that prints text on stdout.
type commandExtractor struct {
	name     string
	args     []string
	lookPath func(string) (string, error)
}

func (c commandExtractor) Name() string { return c.name }

func (c commandExtractor) Available() bool {
	_, err := c.lookPath(c.name)
	return err == nil
}

func (c commandExtractor) Extract(ctx context.Context, path string) (string, error) {
	bin, err := c.lookPath(c.name)
	if err != nil {
		return "", err
	}
	args := append(append([]string{}, c.args...), path)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", services.WrapError(services.KindInternal, err, c.name+": "+msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// DefaultExtractors returns the .doc converters in preference order.
func DefaultExtractors() []TextExtractor {
	return []TextExtractor{
		commandExtractor{name: "antiword", lookPath: exec.LookPath},
		commandExtractor{name: "catdoc", args: []string{"-w"}, lookPath: exec.LookPath},
	}
}

// LegacyDocSupported reports whether any .doc converter is installed.
func (d *Dispatcher) LegacyDocSupported() bool {
	for _, ex := range d.Extractors {
		if ex.Available() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) readLegacyDoc(ctx context.Context, path string) (*Document, error) {
	var available []TextExtractor
	for _, ex := range d.Extractors {
		if ex.Available() {
			available = append(available, ex)
		}
	}
	if len(available) == 0 {
		return nil, services.NewError(services.KindToolMissing, legacyDocMessage)
	}
	var lastErr error
	for _, ex := range available {
		text, err := ex.Extract(ctx, path)
		if err != nil {
			d.log.Warn("doc converter failed", zap.String("tool", ex.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return &Document{Text: text}, nil
		}
		d.log.Info("doc converter produced no text", zap.String("tool", ex.Name()))
	}
	if lastErr != nil {
		return nil, services.WrapError(services.KindInternal, lastErr, "Failed to extract text from .doc file")
	}
	return nil, services.NewError(services.KindValidation, "No text content found in .doc file")
}
