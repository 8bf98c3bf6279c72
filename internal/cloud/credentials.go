package cloud

import (
	"context"
	"errors"
	"sync"

	"aiweb-backend-go/internal/services"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrock"
	"github.com/aws/aws-sdk-go/service/bedrock/bedrockiface"
	"github.com/aws/aws-sdk-go/service/sts"
	"go.uber.org/zap"
)

const noCredentialsMessage = "No valid AWS credentials found. Please configure credentials using:\n" +
	"1. AWS CLI: 'aws configure'\n" +
	"2. AWS profiles: 'aws configure --profile <profile-name>'\n" +
	"3. IAM roles (for EC2/ECS deployments)\n" +
	"4. Environment variables (less secure)"

// Identity is the caller identity reported by STS.
type Identity struct {
	Account string
	UserID  string
	Arn     string
}

// Handle is an authenticated session plus where its credentials came from.
type Handle struct {
	Session  *session.Session
	Source   string
	Identity Identity
}

// Candidate is one credential source tried by the resolver.
type Candidate struct {
	Name  string
	Build func() (*session.Session, error)
}

type ResolverOptions struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	Logger          *zap.Logger
}

// Resolver finds working AWS credentials once per process. It tries the named
// profile, then the default chain, then static keys, and keeps the first
// verified session. A failed resolution is remembered as well.
type Resolver struct {
	opts ResolverOptions
	log  *zap.Logger

	Candidates func() []Candidate
	Verify     func(ctx context.Context, sess *session.Session) (Identity, error)
	NewBedrock func(sess *session.Session) bedrockiface.BedrockAPI

	once   sync.Once
	handle *Handle
	err    error
}

func NewResolver(opts ResolverOptions) *Resolver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resolver{opts: opts, log: log}
	r.Candidates = r.defaultCandidates
	r.Verify = verifyWithSTS
	r.NewBedrock = func(sess *session.Session) bedrockiface.BedrockAPI { return bedrock.New(sess) }
	return r
}

// Resolve returns the memoized handle, resolving on first use.
func (r *Resolver) Resolve(ctx context.Context) (*Handle, error) {
	r.once.Do(func() {
		r.handle, r.err = r.resolve(ctx)
	})
	return r.handle, r.err
}

// Available reports whether resolution succeeded.
func (r *Resolver) Available(ctx context.Context) bool {
	handle, err := r.Resolve(ctx)
	return err == nil && handle != nil
}

func (r *Resolver) resolve(ctx context.Context) (*Handle, error) {
	for _, candidate := range r.Candidates() {
		log := r.log.With(zap.String("source", candidate.Name))
		log.Info("trying aws credentials")
		sess, err := candidate.Build()
		if err != nil {
			log.Warn("aws credential source unavailable", zap.Error(err))
			continue
		}
		identity, err := r.Verify(ctx, sess)
		if err != nil {
			if isCredentialError(err) {
				log.Warn("aws credentials rejected", zap.Error(err))
				continue
			}
			log.Error("aws credential check failed", zap.Error(err))
			return nil, services.WrapError(services.KindProvider, err, "Failed to verify AWS credentials")
		}
		source := candidate.Name
		if candidate.Name == sourceDefaultChain {
			if value, err := sess.Config.Credentials.GetWithContext(ctx); err == nil && value.ProviderName != "" {
				source = sourceDefaultChain + ": " + value.ProviderName
			}
		}
		log.Info("using aws credentials", zap.String("resolved_source", source), zap.String("account", MaskAccount(identity.Account)))
		return &Handle{Session: sess, Source: source, Identity: identity}, nil
	}
	r.log.Error("no usable aws credentials")
	return nil, services.NewError(services.KindNoCredentials, noCredentialsMessage)
}

const (
	sourceDefaultChain = "AWS Credential Chain"
	sourceEnvironment  = "Environment Variables"
)

func (r *Resolver) defaultCandidates() []Candidate {
	region := aws.String(r.opts.Region)
	candidates := []Candidate{}
	if r.opts.Profile != "" {
		profile := r.opts.Profile
		candidates = append(candidates, Candidate{
			Name: "AWS Profile: " + profile,
			Build: func() (*session.Session, error) {
				return session.NewSessionWithOptions(session.Options{
					Profile:           profile,
					SharedConfigState: session.SharedConfigEnable,
					Config:            aws.Config{Region: region},
				})
			},
		})
	}
	candidates = append(candidates, Candidate{
		Name: sourceDefaultChain,
		Build: func() (*session.Session, error) {
			return session.NewSessionWithOptions(session.Options{
				SharedConfigState: session.SharedConfigEnable,
				Config:            aws.Config{Region: region},
			})
		},
	})
	if r.opts.AccessKeyID != "" && r.opts.SecretAccessKey != "" {
		id, secret := r.opts.AccessKeyID, r.opts.SecretAccessKey
		candidates = append(candidates, Candidate{
			Name: sourceEnvironment,
			Build: func() (*session.Session, error) {
				return session.NewSession(&aws.Config{
					Region:      region,
					Credentials: credentials.NewStaticCredentials(id, secret, ""),
				})
			},
		})
	}
	return candidates
}

func verifyWithSTS(ctx context.Context, sess *session.Session) (Identity, error) {
	out, err := sts.New(sess).GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Account: aws.StringValue(out.Account),
		UserID:  aws.StringValue(out.UserId),
		Arn:     aws.StringValue(out.Arn),
	}, nil
}

var credentialErrorCodes = map[string]bool{
	"NoCredentialProviders":             true,
	"SharedConfigProfileNotExistsError": true,
	"SharedConfigLoadError":             true,
	"InvalidUserID.NotFound":            true,
	"InvalidClientTokenId":              true,
	"AccessDenied":                      true,
	"SignatureDoesNotMatch":             true,
	"ExpiredToken":                      true,
	"ExpiredTokenException":             true,
	"UnrecognizedClientException":       true,
}

func isCredentialError(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return credentialErrorCodes[aerr.Code()]
	}
	return false
}

// CredentialsInfo describes the resolved identity for status endpoints.
type CredentialsInfo struct {
	Source    string `json:"source"`
	Region    string `json:"region"`
	AccountID string `json:"account_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Arn       string `json:"arn,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r *Resolver) CredentialsInfo(ctx context.Context) CredentialsInfo {
	handle, err := r.Resolve(ctx)
	if err != nil {
		return CredentialsInfo{
			Source:  "Unknown",
			Region:  r.opts.Region,
			Profile: r.opts.Profile,
			Error:   services.PublicMessage(err),
		}
	}
	return CredentialsInfo{
		Source:    handle.Source,
		Region:    r.opts.Region,
		AccountID: handle.Identity.Account,
		UserID:    handle.Identity.UserID,
		Arn:       handle.Identity.Arn,
		Profile:   r.opts.Profile,
	}
}

// BedrockProbe is the outcome of a model listing call.
type BedrockProbe struct {
	Success           bool   `json:"success"`
	ModelsAvailable   int    `json:"models_available,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	Error             string `json:"error,omitempty"`
	CredentialsSource string `json:"credentials_source,omitempty"`
	Region            string `json:"region"`
}

// TestBedrockAccess lists foundation models with the resolved credentials.
func (r *Resolver) TestBedrockAccess(ctx context.Context) BedrockProbe {
	probe := BedrockProbe{Region: r.opts.Region}
	handle, err := r.Resolve(ctx)
	if err != nil {
		probe.Error = services.PublicMessage(err)
		return probe
	}
	probe.CredentialsSource = handle.Source
	out, err := r.NewBedrock(handle.Session).ListFoundationModelsWithContext(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			probe.ErrorCode = aerr.Code()
			probe.ErrorMessage = aerr.Message()
		} else {
			probe.Error = err.Error()
		}
		return probe
	}
	probe.Success = true
	probe.ModelsAvailable = len(out.ModelSummaries)
	return probe
}

// MaskAccount keeps the first eight characters of an account id.
func MaskAccount(account string) string {
	if account == "" {
		return ""
	}
	if len(account) > 8 {
		account = account[:8]
	}
	return account + "****"
}
