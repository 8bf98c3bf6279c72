package httpapi

import (
	"context"
	"net/http"
	"time"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/ingest"
	"aiweb-backend-go/internal/services"
)

type HealthCredentials struct {
	Source    string `json:"source"`
	Region    string `json:"region"`
	AccountID string `json:"account_id"`
	Profile   string `json:"profile"`
}

type DocumentSupport struct {
	Formats     []string `json:"formats"`
	PDF         bool     `json:"pdf"`
	LegacyDoc   bool     `json:"legacy_doc"`
	ImageInline bool     `json:"image_inline"`
}

type HealthResponse struct {
	Status                string                `json:"status"`
	BedrockAvailable      bool                  `json:"bedrock_available"`
	DatabaseConnected     bool                  `json:"database_connected"`
	AuthenticationEnabled bool                  `json:"authentication_enabled"`
	AWSCredentials        HealthCredentials     `json:"aws_credentials"`
	DocumentSupport       DocumentSupport       `json:"document_support"`
	Host                  services.HostSnapshot `json:"host"`
}

// Health is public. Credential fields come from the memoized resolution, so
// repeated calls agree with each other until the process restarts.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	connected := s.DB.PingContext(ctx) == nil

	info := s.Resolver.CredentialsInfo(r.Context())
	support := DocumentSupport{
		Formats:     ingest.SupportedFormats(),
		ImageInline: s.Invoker.SupportsImages(),
	}
	if s.Dispatcher != nil {
		support.PDF = s.Dispatcher.PDF.Configured()
		support.LegacyDoc = s.Dispatcher.LegacyDocSupported()
	}
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:                "healthy",
		BedrockAvailable:      s.Invoker.Available(),
		DatabaseConnected:     connected,
		AuthenticationEnabled: true,
		AWSCredentials: HealthCredentials{
			Source:    info.Source,
			Region:    info.Region,
			AccountID: cloud.MaskAccount(info.AccountID),
			Profile:   info.Profile,
		},
		DocumentSupport: support,
		Host:            services.CaptureHost(s.Config.UploadFolder),
	})
}

type AWSStatusResponse struct {
	Credentials cloud.CredentialsInfo `json:"credentials"`
	Bedrock     cloud.BedrockProbe    `json:"bedrock"`
}

// AWSStatus reports the full identity and a live model listing probe.
func (s *Server) AWSStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, AWSStatusResponse{
		Credentials: s.Resolver.CredentialsInfo(r.Context()),
		Bedrock:     s.Resolver.TestBedrockAccess(r.Context()),
	})
}
