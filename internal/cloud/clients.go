package cloud

import (
	"github.com/aws/aws-sdk-go/service/bedrockruntime"
	"github.com/aws/aws-sdk-go/service/bedrockruntime/bedrockruntimeiface"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/aws/aws-sdk-go/service/textract/textractiface"
)

// Clients holds the service clients built from one resolved session.
// Every field is nil when no credentials are available.
type Clients struct {
	Runtime     bedrockruntimeiface.BedrockRuntimeAPI
	Rekognition rekognitioniface.RekognitionAPI
	Textract    textractiface.TextractAPI
	S3          s3iface.S3API
	Uploader    s3manageriface.UploaderAPI
}

func NewClients(handle *Handle) Clients {
	if handle == nil || handle.Session == nil {
		return Clients{}
	}
	sess := handle.Session
	s3Client := s3.New(sess)
	return Clients{
		Runtime:     bedrockruntime.New(sess),
		Rekognition: rekognition.New(sess),
		Textract:    textract.New(sess),
		S3:          s3Client,
		Uploader:    s3manager.NewUploaderWithClient(s3Client),
	}
}
