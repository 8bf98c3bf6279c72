package cloud

import (
	"context"
	"errors"
	"testing"

	"aiweb-backend-go/internal/services"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrock"
	"github.com/aws/aws-sdk-go/service/bedrock/bedrockiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String("us-east-1"),
		Credentials: credentials.NewStaticCredentials("AKIDEXAMPLE", "secret", ""),
	})
	require.NoError(t, err)
	return sess
}

func newTestResolver(candidates []Candidate, verify func(context.Context, *session.Session) (Identity, error)) *Resolver {
	r := NewResolver(ResolverOptions{Region: "us-east-1", Profile: "dev"})
	r.Candidates = func() []Candidate { return candidates }
	r.Verify = verify
	return r
}

func TestResolverFallsThroughCredentialErrors(t *testing.T) {
	sess := staticSession(t)
	var tried []string
	candidates := []Candidate{
		{Name: "AWS Profile: dev", Build: func() (*session.Session, error) {
			tried = append(tried, "profile")
			return nil, errors.New("profile not found")
		}},
		{Name: "AWS Credential Chain", Build: func() (*session.Session, error) {
			tried = append(tried, "chain")
			return sess, nil
		}},
		{Name: "Environment Variables", Build: func() (*session.Session, error) {
			tried = append(tried, "env")
			return sess, nil
		}},
	}
	calls := 0
	r := newTestResolver(candidates, func(context.Context, *session.Session) (Identity, error) {
		calls++
		if calls == 1 {
			return Identity{}, awserr.New("ExpiredToken", "token expired", nil)
		}
		return Identity{Account: "123456789012", UserID: "AIDA", Arn: "arn:aws:iam::123456789012:user/dev"}, nil
	})

	handle, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Environment Variables", handle.Source)
	assert.Equal(t, "123456789012", handle.Identity.Account)
	assert.Equal(t, []string{"profile", "chain", "env"}, tried)
}

func TestResolverMemoizesOutcome(t *testing.T) {
	builds := 0
	r := newTestResolver([]Candidate{{Name: "Environment Variables", Build: func() (*session.Session, error) {
		builds++
		return nil, errors.New("missing")
	}}}, nil)

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, services.KindNoCredentials, services.KindOf(err))
	assert.Contains(t, err.Error(), "aws configure")

	_, err = r.Resolve(context.Background())
	require.Error(t, err)
	assert.False(t, r.Available(context.Background()))
	assert.Equal(t, 1, builds)
}

func TestResolverAbortsOnUnexpectedError(t *testing.T) {
	sess := staticSession(t)
	reached := false
	r := newTestResolver([]Candidate{
		{Name: "AWS Credential Chain", Build: func() (*session.Session, error) { return sess, nil }},
		{Name: "Environment Variables", Build: func() (*session.Session, error) {
			reached = true
			return sess, nil
		}},
	}, func(context.Context, *session.Session) (Identity, error) {
		return Identity{}, awserr.New("Throttling", "slow down", nil)
	})

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, services.KindProvider, services.KindOf(err))
	assert.False(t, reached)
}

func TestDefaultCandidatesOrder(t *testing.T) {
	r := NewResolver(ResolverOptions{Region: "us-east-1", Profile: "dev", AccessKeyID: "id", SecretAccessKey: "secret"})
	var names []string
	for _, c := range r.defaultCandidates() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"AWS Profile: dev", "AWS Credential Chain", "Environment Variables"}, names)

	r = NewResolver(ResolverOptions{Region: "us-east-1"})
	names = names[:0]
	for _, c := range r.defaultCandidates() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"AWS Credential Chain"}, names)
}

type fakeBedrock struct {
	bedrockiface.BedrockAPI
	models int
	err    error
}

func (f *fakeBedrock) ListFoundationModelsWithContext(aws.Context, *bedrock.ListFoundationModelsInput, ...request.Option) (*bedrock.ListFoundationModelsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &bedrock.ListFoundationModelsOutput{}
	for i := 0; i < f.models; i++ {
		out.ModelSummaries = append(out.ModelSummaries, &bedrock.FoundationModelSummary{ModelId: aws.String("m")})
	}
	return out, nil
}

func TestBedrockProbe(t *testing.T) {
	sess := staticSession(t)
	verify := func(context.Context, *session.Session) (Identity, error) {
		return Identity{Account: "123456789012"}, nil
	}
	candidates := []Candidate{{Name: "Environment Variables", Build: func() (*session.Session, error) { return sess, nil }}}

	r := newTestResolver(candidates, verify)
	r.NewBedrock = func(*session.Session) bedrockiface.BedrockAPI { return &fakeBedrock{models: 3} }
	probe := r.TestBedrockAccess(context.Background())
	assert.True(t, probe.Success)
	assert.Equal(t, 3, probe.ModelsAvailable)
	assert.Equal(t, "Environment Variables", probe.CredentialsSource)

	r = newTestResolver(candidates, verify)
	r.NewBedrock = func(*session.Session) bedrockiface.BedrockAPI {
		return &fakeBedrock{err: awserr.New("AccessDeniedException", "not allowed", nil)}
	}
	probe = r.TestBedrockAccess(context.Background())
	assert.False(t, probe.Success)
	assert.Equal(t, "AccessDeniedException", probe.ErrorCode)
	assert.Equal(t, "not allowed", probe.ErrorMessage)

	info := r.CredentialsInfo(context.Background())
	assert.Equal(t, "123456789012", info.AccountID)
	assert.Equal(t, "dev", info.Profile)
}

func TestMaskAccount(t *testing.T) {
	assert.Equal(t, "12345678****", MaskAccount("123456789012"))
	assert.Equal(t, "", MaskAccount(""))
}
