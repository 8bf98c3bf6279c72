package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/services"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/aws/aws-sdk-go/service/textract/textractiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	s3manageriface.UploaderAPI
	keys []string
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.keys = append(f.keys, aws.StringValue(in.Key))
	return &s3manager.UploadOutput{}, nil
}

type fakeS3 struct {
	s3iface.S3API
	deleted []string
}

func (f *fakeS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// fakeTextract answers status polls from statuses, then serves pages keyed
// by NextToken.
type fakeTextract struct {
	textractiface.TextractAPI
	statuses []string
	message  string
	pages    map[string]*textract.GetDocumentTextDetectionOutput
	polls    int
	started  []*textract.StartDocumentTextDetectionInput
}

func (f *fakeTextract) StartDocumentTextDetectionWithContext(_ aws.Context, in *textract.StartDocumentTextDetectionInput, _ ...request.Option) (*textract.StartDocumentTextDetectionOutput, error) {
	f.started = append(f.started, in)
	return &textract.StartDocumentTextDetectionOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeTextract) GetDocumentTextDetectionWithContext(_ aws.Context, in *textract.GetDocumentTextDetectionInput, _ ...request.Option) (*textract.GetDocumentTextDetectionOutput, error) {
	if token := aws.StringValue(in.NextToken); token != "" {
		return f.pages[token], nil
	}
	status := f.statuses[len(f.statuses)-1]
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	if status == textract.JobStatusInProgress || status == textract.JobStatusFailed {
		return &textract.GetDocumentTextDetectionOutput{JobStatus: aws.String(status), StatusMessage: aws.String(f.message)}, nil
	}
	first := *f.pages[""]
	first.JobStatus = aws.String(status)
	first.StatusMessage = aws.String(f.message)
	return &first, nil
}

func line(page int64, text string) *textract.Block {
	return &textract.Block{BlockType: aws.String(textract.BlockTypeLine), Page: aws.Int64(page), Text: aws.String(text)}
}

func word(page int64, text string) *textract.Block {
	return &textract.Block{BlockType: aws.String(textract.BlockTypeWord), Page: aws.Int64(page), Text: aws.String(text)}
}

type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

func newTestRunner(tx *fakeTextract, opts PDFOptions) (*PDFRunner, *fakeUploader, *fakeS3, *fakeClock) {
	uploader := &fakeUploader{}
	store := &fakeS3{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := NewPDFRunner(cloud.Clients{Uploader: uploader, S3: store, Textract: tx}, opts)
	r.Now = clock.Now
	r.Sleep = clock.Sleep
	return r, uploader, store, clock
}

func twoPageResult() map[string]*textract.GetDocumentTextDetectionOutput {
	return map[string]*textract.GetDocumentTextDetectionOutput{
		"": {
			Blocks:    []*textract.Block{line(1, "Invoice 42"), word(1, "Invoice"), line(1, "Total: 10")},
			NextToken: aws.String("t2"),
		},
		"t2": {
			Blocks: []*textract.Block{line(2, "Thank you")},
		},
	}
}

func TestPDFWithoutBucketNeverUploads(t *testing.T) {
	tx := &fakeTextract{}
	r, uploader, _, _ := newTestRunner(tx, PDFOptions{})
	path := writeFile(t, "scan.pdf", "%PDF-1.4")

	_, err := r.Extract(context.Background(), path, "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires configuring TEXTRACT_S3_BUCKET")
	assert.Empty(t, uploader.keys)
	assert.Empty(t, tx.started)

	d, _, _ := newTestDispatcher(Options{})
	_, err = d.Analyze(context.Background(), path, "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires configuring TEXTRACT_S3_BUCKET")
}

func TestPDFPollsAndPaginates(t *testing.T) {
	tx := &fakeTextract{
		statuses: []string{textract.JobStatusInProgress, textract.JobStatusInProgress, textract.JobStatusSucceeded},
		pages:    twoPageResult(),
	}
	var observed []string
	r, uploader, store, clock := newTestRunner(tx, PDFOptions{
		Bucket:       "docs",
		Prefix:       "uploads/textract/",
		PollInterval: 2 * time.Second,
		Timeout:      time.Minute,
		Cleanup:      true,
		Observe:      func(status string) { observed = append(observed, status) },
	})
	path := writeFile(t, "scan.pdf", "%PDF-1.4")

	doc, err := r.Extract(context.Background(), path, "My Scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nInvoice 42\nTotal: 10\n\n--- Page 2 ---\nThank you", doc.Text)
	assert.Equal(t, 2, doc.Pages)
	assert.False(t, doc.Partial)
	assert.Equal(t, 2, clock.sleeps)
	assert.Equal(t, []string{textract.JobStatusSucceeded}, observed)

	require.Len(t, uploader.keys, 1)
	key := uploader.keys[0]
	assert.True(t, strings.HasPrefix(key, "uploads/textract/20260301T120000Z_"), key)
	assert.True(t, strings.HasSuffix(key, "_My_Scan.pdf"), key)
	assert.Equal(t, key, aws.StringValue(tx.started[0].DocumentLocation.S3Object.Name))
	assert.Equal(t, []string{key}, store.deleted)
}

func TestPDFTimesOut(t *testing.T) {
	tx := &fakeTextract{statuses: []string{textract.JobStatusInProgress}}
	r, _, store, clock := newTestRunner(tx, PDFOptions{
		Bucket:       "docs",
		PollInterval: 2 * time.Second,
		Timeout:      10 * time.Second,
		Cleanup:      true,
	})
	path := writeFile(t, "scan.pdf", "%PDF-1.4")

	_, err := r.Extract(context.Background(), path, "scan.pdf")
	require.Error(t, err)
	assert.Equal(t, services.KindTimeout, services.KindOf(err))
	assert.Equal(t, 5, clock.sleeps)
	assert.Len(t, store.deleted, 1)
}

func TestPDFJobFailure(t *testing.T) {
	tx := &fakeTextract{statuses: []string{textract.JobStatusFailed}, message: "unsupported document"}
	r, _, _, _ := newTestRunner(tx, PDFOptions{Bucket: "docs"})
	path := writeFile(t, "scan.pdf", "%PDF-1.4")

	_, err := r.Extract(context.Background(), path, "scan.pdf")
	require.Error(t, err)
	assert.Equal(t, services.KindProvider, services.KindOf(err))
	assert.Contains(t, err.Error(), "unsupported document")
}

func TestPDFPartialSuccessIsFlagged(t *testing.T) {
	tx := &fakeTextract{
		statuses: []string{textract.JobStatusPartialSuccess},
		message:  "page 3 could not be read",
		pages:    twoPageResult(),
	}
	r, _, store, _ := newTestRunner(tx, PDFOptions{Bucket: "docs"})
	path := writeFile(t, "scan.pdf", "%PDF-1.4")

	doc, err := r.Extract(context.Background(), path, "scan.pdf")
	require.NoError(t, err)
	assert.True(t, doc.Partial)
	assert.Contains(t, doc.Warning, "page 3 could not be read")
	assert.Contains(t, doc.Text, "--- Page 2 ---")
	assert.Empty(t, store.deleted)
}
