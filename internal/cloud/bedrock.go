package cloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"
	"github.com/aws/aws-sdk-go/service/bedrockruntime/bedrockruntimeiface"
	"go.uber.org/zap"
)

const (
	FormatAuto       = "auto"
	FormatMessages   = "messages"
	FormatCompletion = "completion"

	anthropicVersion  = "bedrock-2023-05-31"
	negativeImageText = "low quality, blurry, distorted"
	NoCaption         = "no caption available"
	rawFallbackLimit  = 2000
)

// Result is the outcome of a model call. Exactly one of Response, Image or
// Error is set.
type Result struct {
	Response string `json:"response,omitempty"`
	Image    string `json:"image,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

func failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Image is an inline image attached to a text request.
type Image struct {
	MediaType string
	Data      []byte
}

type InvokerOptions struct {
	TextModelID   string
	TextFormat    string
	ImageModelID  string
	VisionModelID string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	Logger        *zap.Logger
	// Observe, when set, is called after every model call.
	Observe func(modelID, outcome string, elapsed time.Duration)
}

// Invoker speaks the request and response envelopes of the hosted models.
// It never returns a Go error: provider failures come back as Result.Error.
type Invoker struct {
	runtime bedrockruntimeiface.BedrockRuntimeAPI
	opts    InvokerOptions
	log     *zap.Logger
}

// NewInvoker builds an invoker. runtime may be nil when no credentials were
// resolved; every call then reports that the client is not initialized.
func NewInvoker(runtime bedrockruntimeiface.BedrockRuntimeAPI, opts InvokerOptions) *Invoker {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Invoker{runtime: runtime, opts: opts, log: log}
}

func (i *Invoker) Available() bool {
	return i != nil && i.runtime != nil
}

func (i *Invoker) TextModelID() string {
	return i.opts.TextModelID
}

// TextFormat resolves the request family of the text model.
func (i *Invoker) TextFormat() string {
	return ResolveTextFormat(i.opts.TextModelID, i.opts.TextFormat)
}

// SupportsImages reports whether the text model accepts inline images.
func (i *Invoker) SupportsImages() bool {
	return i.TextFormat() == FormatMessages
}

func ResolveTextFormat(modelID, override string) string {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case FormatMessages:
		return FormatMessages
	case FormatCompletion:
		return FormatCompletion
	}
	if strings.Contains(modelID, "anthropic.") {
		return FormatMessages
	}
	return FormatCompletion
}

// Invoke sends prompt with system instructions to the text model.
func (i *Invoker) Invoke(ctx context.Context, prompt, system string, image *Image) Result {
	if !i.Available() {
		return failure("AWS Bedrock client not initialized")
	}
	format := i.TextFormat()
	if image != nil && format != FormatMessages {
		return failure("Model %s does not accept image input", i.opts.TextModelID)
	}
	var body []byte
	var err error
	if format == FormatMessages {
		body, err = json.Marshal(i.messagesRequest(prompt, system, image))
	} else {
		body, err = json.Marshal(completionRequest{
			Prompt:      fmt.Sprintf("System: %s\nUser: %s\nAssistant:", system, prompt),
			MaxGenLen:   i.opts.MaxTokens,
			Temperature: i.opts.Temperature,
			TopP:        i.opts.TopP,
		})
	}
	if err != nil {
		return failure("Unexpected error: %v", err)
	}
	raw, errResult := i.call(ctx, i.opts.TextModelID, body)
	if errResult != nil {
		return *errResult
	}
	if format == FormatMessages {
		return decodeMessages(raw)
	}
	return Result{Response: decodeCompletion(raw)}
}

func (i *Invoker) messagesRequest(prompt, system string, image *Image) messagesRequest {
	var content interface{} = prompt
	if image != nil {
		content = []contentBlock{
			{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: image.MediaType,
					Data:      base64.StdEncoding.EncodeToString(image.Data),
				},
			},
			{Type: "text", Text: prompt},
		}
	}
	return messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        i.opts.MaxTokens,
		Temperature:      i.opts.Temperature,
		System:           system,
		Messages:         []message{{Role: "user", Content: content}},
	}
}

// GenerateImage renders prompt with the image model and returns base64 PNG data.
func (i *Invoker) GenerateImage(ctx context.Context, prompt string) Result {
	if !i.Available() {
		return failure("AWS Bedrock client not initialized")
	}
	req := titanImageRequest{TaskType: "TEXT_IMAGE"}
	req.TextToImageParams.Text = prompt
	req.TextToImageParams.NegativeText = negativeImageText
	req.ImageGenerationConfig = imageGenerationConfig{
		NumberOfImages: 1,
		Height:         512,
		Width:          512,
		CfgScale:       8.0,
		Seed:           42,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return failure("Unexpected error: %v", err)
	}
	raw, errResult := i.call(ctx, i.opts.ImageModelID, body)
	if errResult != nil {
		return *errResult
	}
	var out titanImageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failure("Unexpected error: %v", err)
	}
	if len(out.Images) == 0 {
		if out.Error != nil && *out.Error != "" {
			return failure("AWS Bedrock error: %s", *out.Error)
		}
		return failure("Image model returned no images")
	}
	return Result{Image: out.Images[0]}
}

// Caption asks the vision model for a one-line description. Any failure
// yields NoCaption.
func (i *Invoker) Caption(ctx context.Context, data []byte) string {
	if !i.Available() || i.opts.VisionModelID == "" {
		return NoCaption
	}
	body, err := json.Marshal(captionRequest{
		InputText:  "Describe this image in one or two sentences.",
		InputImage: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return NoCaption
	}
	raw, errResult := i.call(ctx, i.opts.VisionModelID, body)
	if errResult != nil {
		i.log.Warn("caption model failed", zap.String("error", errResult.Error))
		return NoCaption
	}
	var out captionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return NoCaption
	}
	if text := strings.TrimSpace(out.OutputText); text != "" {
		return text
	}
	if len(out.Results) > 0 {
		if text := strings.TrimSpace(out.Results[0].OutputText); text != "" {
			return text
		}
	}
	return NoCaption
}

func (i *Invoker) call(ctx context.Context, modelID string, body []byte) ([]byte, *Result) {
	start := time.Now()
	out, err := i.runtime.InvokeModelWithContext(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	elapsed := time.Since(start)
	if err != nil {
		i.observe(modelID, "error", elapsed)
		i.log.Error("model invocation failed", zap.String("model", modelID), zap.Error(err))
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			res := failure("AWS Bedrock error: %s: %s", aerr.Code(), aerr.Message())
			return nil, &res
		}
		res := failure("Unexpected error: %v", err)
		return nil, &res
	}
	i.observe(modelID, "success", elapsed)
	i.log.Debug("model invoked", zap.String("model", modelID), zap.Duration("elapsed", elapsed))
	return out.Body, nil
}

func (i *Invoker) observe(modelID, outcome string, elapsed time.Duration) {
	if i.opts.Observe != nil {
		i.opts.Observe(modelID, outcome, elapsed)
	}
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

// message.Content is a plain string or a []contentBlock.
type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func decodeMessages(raw []byte) Result {
	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failure("Unexpected error: %v", err)
	}
	if len(out.Content) == 0 {
		return failure("Model returned no content")
	}
	return Result{Response: out.Content[0].Text}
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// completionResponse covers both completion envelopes: a top-level
// generation field, or an outputs array carrying text or generation.
type completionResponse struct {
	Generation *string `json:"generation"`
	Outputs    []struct {
		Text       *string `json:"text"`
		Generation *string `json:"generation"`
	} `json:"outputs"`
}

func decodeCompletion(raw []byte) string {
	var out completionResponse
	if err := json.Unmarshal(raw, &out); err == nil {
		switch {
		case out.Generation != nil:
			return *out.Generation
		case len(out.Outputs) > 0 && out.Outputs[0].Text != nil:
			return *out.Outputs[0].Text
		case len(out.Outputs) > 0 && out.Outputs[0].Generation != nil:
			return *out.Outputs[0].Generation
		}
	}
	text := strings.ToValidUTF8(string(raw), "")
	if utf8.RuneCountInString(text) > rawFallbackLimit {
		text = string([]rune(text)[:rawFallbackLimit])
	}
	return text
}

type titanImageRequest struct {
	TaskType          string `json:"taskType"`
	TextToImageParams struct {
		Text         string `json:"text"`
		NegativeText string `json:"negativeText"`
	} `json:"textToImageParams"`
	ImageGenerationConfig imageGenerationConfig `json:"imageGenerationConfig"`
}

type imageGenerationConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	CfgScale       float64 `json:"cfgScale"`
	Seed           int     `json:"seed"`
}

type titanImageResponse struct {
	Images []string `json:"images"`
	Error  *string  `json:"error"`
}

type captionRequest struct {
	InputText  string `json:"inputText"`
	InputImage string `json:"inputImage"`
}

type captionResponse struct {
	OutputText string `json:"outputText"`
	Results    []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}
