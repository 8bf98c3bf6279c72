package ingest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/services"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/aws/aws-sdk-go/service/textract/textractiface"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pdfBucketMessage = "PDF processing requires configuring TEXTRACT_S3_BUCKET with an S3 bucket Textract can read"

type PDFOptions struct {
	Bucket       string
	Prefix       string
	PollInterval time.Duration
	Timeout      time.Duration
	Cleanup      bool
	Logger       *zap.Logger
	// Observe, when set, receives the terminal status of every job.
	Observe func(status string)
}

// PDFRunner uploads a PDF to S3, runs an asynchronous Textract text
// detection job and collects the pages once the job is terminal.
type PDFRunner struct {
	Uploader s3manageriface.UploaderAPI
	S3       s3iface.S3API
	Textract textractiface.TextractAPI

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	opts PDFOptions
	log  *zap.Logger
}

func NewPDFRunner(clients cloud.Clients, opts PDFOptions) *PDFRunner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	return &PDFRunner{
		Uploader: clients.Uploader,
		S3:       clients.S3,
		Textract: clients.Textract,
		Now:      time.Now,
		Sleep:    sleepContext,
		opts:     opts,
		log:      log,
	}
}

// Configured reports whether a bucket is set.
func (r *PDFRunner) Configured() bool {
	return r != nil && r.opts.Bucket != ""
}

func (r *PDFRunner) Extract(ctx context.Context, path, name string) (*Document, error) {
	if r.opts.Bucket == "" {
		return nil, services.NewError(services.KindToolMissing, pdfBucketMessage)
	}
	if r.Uploader == nil || r.Textract == nil {
		return nil, services.NewError(services.KindNoCredentials, "AWS Textract client not initialized")
	}

	key := r.objectKey(name)
	log := r.log.With(zap.String("bucket", r.opts.Bucket), zap.String("key", key))
	if err := r.upload(ctx, path, key); err != nil {
		return nil, err
	}
	if r.opts.Cleanup {
		defer r.deleteObject(log, key)
	}

	started, err := r.Textract.StartDocumentTextDetectionWithContext(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &textract.DocumentLocation{
			S3Object: &textract.S3Object{Bucket: aws.String(r.opts.Bucket), Name: aws.String(key)},
		},
	})
	if err != nil {
		return nil, cloud.ProviderError("Textract", err)
	}
	jobID := aws.StringValue(started.JobId)
	log = log.With(zap.String("job_id", jobID))
	log.Info("textract job started")

	first, err := r.wait(ctx, jobID)
	if err != nil {
		log.Warn("textract job did not complete", zap.Error(err))
		return nil, err
	}
	status := aws.StringValue(first.JobStatus)
	r.observe(status)

	doc, err := r.collect(ctx, jobID, first)
	if err != nil {
		return nil, err
	}
	if status == textract.JobStatusPartialSuccess {
		doc.Partial = true
		doc.Warning = "Textract returned partial results; some pages may be missing"
		if msg := aws.StringValue(first.StatusMessage); msg != "" {
			doc.Warning += ": " + msg
		}
	}
	log.Info("textract job finished", zap.String("status", status), zap.Int("pages", doc.Pages))
	return doc, nil
}

func (r *PDFRunner) objectKey(name string) string {
	stamp := r.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s%s_%s_%s", r.opts.Prefix, stamp, uuid.NewString(), services.SanitizeFilename(name))
}

func (r *PDFRunner) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Internal(err, "Failed to read uploaded file")
	}
	defer f.Close()
	_, err = r.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(r.opts.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return cloud.ProviderError("S3", err)
	}
	return nil
}

func (r *PDFRunner) deleteObject(log *zap.Logger, key string) {
	if r.S3 == nil {
		return
	}
	_, err := r.S3.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(r.opts.Bucket), Key: aws.String(key)})
	if err != nil {
		log.Warn("failed to delete textract source object", zap.Error(err))
	}
}

// wait polls the job until it leaves IN_PROGRESS and returns the first
// result page of the terminal response.
func (r *PDFRunner) wait(ctx context.Context, jobID string) (*textract.GetDocumentTextDetectionOutput, error) {
	deadline := r.Now().Add(r.opts.Timeout)
	for {
		out, err := r.Textract.GetDocumentTextDetectionWithContext(ctx, &textract.GetDocumentTextDetectionInput{JobId: aws.String(jobID)})
		if err != nil {
			return nil, cloud.ProviderError("Textract", err)
		}
		switch aws.StringValue(out.JobStatus) {
		case textract.JobStatusSucceeded, textract.JobStatusPartialSuccess:
			return out, nil
		case textract.JobStatusFailed:
			r.observe(textract.JobStatusFailed)
			msg := aws.StringValue(out.StatusMessage)
			if msg == "" {
				msg = "no reason given"
			}
			return nil, services.NewError(services.KindProvider, "Textract job failed: "+msg)
		}
		if !r.Now().Before(deadline) {
			r.observe("TIMEOUT")
			return nil, services.NewError(services.KindTimeout,
				fmt.Sprintf("Textract job %s did not finish within %s", jobID, r.opts.Timeout))
		}
		if err := r.Sleep(ctx, r.opts.PollInterval); err != nil {
			return nil, services.WrapError(services.KindTimeout, err, "Stopped waiting for Textract job")
		}
	}
}

// collect follows NextToken from the first page and groups LINE blocks by
// page number.
func (r *PDFRunner) collect(ctx context.Context, jobID string, out *textract.GetDocumentTextDetectionOutput) (*Document, error) {
	pages := map[int64][]string{}
	for {
		for _, block := range out.Blocks {
			if aws.StringValue(block.BlockType) != textract.BlockTypeLine {
				continue
			}
			page := aws.Int64Value(block.Page)
			if page == 0 {
				page = 1
			}
			pages[page] = append(pages[page], aws.StringValue(block.Text))
		}
		next := aws.StringValue(out.NextToken)
		if next == "" {
			break
		}
		var err error
		out, err = r.Textract.GetDocumentTextDetectionWithContext(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: aws.String(next),
		})
		if err != nil {
			return nil, cloud.ProviderError("Textract", err)
		}
	}
	if len(pages) == 0 {
		return nil, services.NewError(services.KindValidation, "No text content found in PDF file")
	}

	numbers := make([]int64, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	sections := make([]string, 0, len(numbers))
	for _, n := range numbers {
		sections = append(sections, fmt.Sprintf("--- Page %d ---\n%s", n, strings.Join(pages[n], "\n")))
	}
	return &Document{Text: strings.Join(sections, "\n\n"), Pages: len(numbers)}, nil
}

func (r *PDFRunner) observe(status string) {
	if r.opts.Observe != nil {
		r.opts.Observe(status)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
