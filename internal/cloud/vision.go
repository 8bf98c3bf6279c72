package cloud

import (
	"context"
	"errors"
	"fmt"

	"aiweb-backend-go/internal/services"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/aws/aws-sdk-go/service/textract/textractiface"
)

type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Vision wraps the synchronous image calls: label detection and quick OCR.
type Vision struct {
	Rekognition rekognitioniface.RekognitionAPI
	Textract    textractiface.TextractAPI
	MaxLabels   int64
	MinScore    float64
}

func (v *Vision) DetectLabels(ctx context.Context, data []byte) ([]Label, error) {
	if v.Rekognition == nil {
		return nil, services.NewError(services.KindNoCredentials, "AWS Rekognition client not initialized")
	}
	maxLabels := v.MaxLabels
	if maxLabels <= 0 {
		maxLabels = 15
	}
	minScore := v.MinScore
	if minScore <= 0 {
		minScore = 70
	}
	out, err := v.Rekognition.DetectLabelsWithContext(ctx, &rekognition.DetectLabelsInput{
		Image:         &rekognition.Image{Bytes: data},
		MaxLabels:     aws.Int64(maxLabels),
		MinConfidence: aws.Float64(minScore),
	})
	if err != nil {
		return nil, ProviderError("Rekognition", err)
	}
	labels := make([]Label, 0, len(out.Labels))
	for _, label := range out.Labels {
		labels = append(labels, Label{
			Name:       aws.StringValue(label.Name),
			Confidence: aws.Float64Value(label.Confidence),
		})
	}
	return labels, nil
}

// DetectText returns the LINE blocks Textract finds in a single image.
func (v *Vision) DetectText(ctx context.Context, data []byte) ([]string, error) {
	if v.Textract == nil {
		return nil, services.NewError(services.KindNoCredentials, "AWS Textract client not initialized")
	}
	out, err := v.Textract.DetectDocumentTextWithContext(ctx, &textract.DetectDocumentTextInput{
		Document: &textract.Document{Bytes: data},
	})
	if err != nil {
		return nil, ProviderError("Textract", err)
	}
	lines := []string{}
	for _, block := range out.Blocks {
		if aws.StringValue(block.BlockType) == textract.BlockTypeLine {
			if text := aws.StringValue(block.Text); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return lines, nil
}

// ProviderError converts an SDK error into a provider failure that keeps the
// AWS error code in its message.
func ProviderError(service string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return services.WrapError(services.KindProvider, err, fmt.Sprintf("AWS %s error: %s: %s", service, aerr.Code(), aerr.Message()))
	}
	return services.WrapError(services.KindProvider, err, fmt.Sprintf("AWS %s error", service))
}
