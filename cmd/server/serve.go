package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aiweb-backend-go/internal/cloud"
	httpapi "aiweb-backend-go/internal/http"
	"aiweb-backend-go/internal/ingest"
	"aiweb-backend-go/internal/migrations"
	"aiweb-backend-go/internal/services"

	"go.uber.org/zap"
)

func serve(parent context.Context) error {
	rt, err := open()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, log := rt.cfg, rt.log

	if cfg.UsesDevSecret() {
		log.Warn("SECRET_KEY is not set; using the development signing key")
	}
	applied, err := migrations.Apply(rt.db, rt.dialect)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", zap.Strings("versions", applied))
	}
	if _, err := services.EnsureUploadDir(cfg.UploadFolder); err != nil {
		return fmt.Errorf("upload folder: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	hub := services.NewActivityHub()
	go hub.Run(ctx)

	tokens := services.TokenService{Secret: []byte(cfg.SecretKey), Issuer: "aiweb-backend", TTL: cfg.SessionTTL}
	audit := services.NewAuditLog(rt.db, hub)
	directory := services.NewDirectory(rt.db, tokens, audit)
	created, err := directory.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		log.Info("bootstrap admin ready", zap.String("username", cfg.BootstrapAdminUsername))
	}

	metrics := httpapi.NewMetrics()
	resolver := cloud.NewResolver(cloud.ResolverOptions{
		Region:          cfg.AWSRegion,
		Profile:         cfg.AWSProfile,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Logger:          log.Named("aws"),
	})
	handle, err := resolver.Resolve(ctx)
	if err != nil {
		log.Warn("AI features disabled until credentials are configured", zap.String("reason", services.PublicMessage(err)))
	}
	clients := cloud.NewClients(handle)

	invoker := cloud.NewInvoker(clients.Runtime, cloud.InvokerOptions{
		TextModelID:   cfg.TextModelID,
		TextFormat:    cfg.TextModelFormat,
		ImageModelID:  cfg.ImageModelID,
		VisionModelID: cfg.VisionModelID,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		Logger:        log.Named("bedrock"),
		Observe:       metrics.ObserveInvoke,
	})
	var pdf *ingest.PDFRunner
	if cfg.TextractBucket != "" {
		pdf = ingest.NewPDFRunner(clients, ingest.PDFOptions{
			Bucket:       cfg.TextractBucket,
			Prefix:       cfg.TextractPrefix,
			PollInterval: cfg.TextractPollInterval,
			Timeout:      cfg.TextractTimeout,
			Cleanup:      cfg.TextractCleanup,
			Logger:       log.Named("textract"),
			Observe:      metrics.ObserveOCRJob,
		})
	}
	vision := &cloud.Vision{Rekognition: clients.Rekognition, Textract: clients.Textract}
	dispatcher := ingest.NewDispatcher(invoker, vision, invoker, pdf, ingest.Options{
		MaxChars:       cfg.MaxDocumentChars,
		ImageSummarize: cfg.ImageSummarize,
		Logger:         log.Named("ingest"),
	})
	log.Info("model adapter ready",
		zap.Bool("available", invoker.Available()),
		zap.String("text_model", invoker.TextModelID()),
		zap.String("format", invoker.TextFormat()),
		zap.Bool("pdf_ocr", pdf.Configured()),
		zap.Bool("legacy_doc", dispatcher.LegacyDocSupported()),
	)

	server := &httpapi.Server{
		DB:         rt.db,
		Config:     cfg,
		Log:        log,
		Tokens:     tokens,
		Directory:  directory,
		Audit:      audit,
		Hub:        hub,
		Resolver:   resolver,
		Invoker:    invoker,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(stop)
	select {
	case <-stop:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
