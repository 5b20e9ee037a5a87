package commands

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rossigee/veo-video-proxy/internal/api"
	"github.com/rossigee/veo-video-proxy/internal/auth"
	"github.com/rossigee/veo-video-proxy/internal/chat"
	"github.com/rossigee/veo-video-proxy/internal/jobs"
	"github.com/rossigee/veo-video-proxy/internal/metrics"
	"github.com/rossigee/veo-video-proxy/internal/minio"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP generation API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "listen address")
	flags.Int("port", 8080, "listen port")
	flags.String("tls-cert", "", "TLS certificate file")
	flags.String("tls-key", "", "TLS key file")
	flags.String("client-ca", "", "CA bundle for client certificate authentication")
	flags.String("api-tokens-file", "", "file with one API token per line")
	flags.Int("max-concurrent-jobs", 2, "generations running at once")
	flags.Duration("job-timeout", 30*time.Minute, "upper bound on a running job, excluding time queued")
	flags.Bool("allow-private-attachment-hosts", false, "allow attachment URLs on loopback and private networks")

	bindFlags(flags.Lookup, "host", "port", "tls-cert", "tls-key", "client-ca",
		"api-tokens-file", "max-concurrent-jobs", "job-timeout", "allow-private-attachment-hosts")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	service, err := newService()
	if err != nil {
		return fmt.Errorf("failed to initialize video service: %w", err)
	}

	opts := jobs.Options{
		MaxConcurrent:   cfg.MaxConcurrentJobs,
		JobTimeout:      cfg.JobTimeout,
		SampleCount:     cfg.SampleCount,
		AspectRatio:     cfg.AspectRatio,
		DurationSeconds: cfg.DurationSeconds,
		Metrics:         metrics.Default,
	}

	if mc := cfg.Minio(); mc.Enabled() {
		minioClient, err := minio.NewClient(mc)
		if err != nil {
			return fmt.Errorf("failed to initialize MinIO client: %w", err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		err = minioClient.EnsureBucket(ctx)
		cancel()
		if err != nil {
			return err
		}
		opts.Publisher = minioClient
	}

	authValidator, err := auth.NewValidator(cfg.Auth())
	if err != nil {
		return fmt.Errorf("failed to initialize auth validator: %w", err)
	}

	if cfg.AllowPrivateAttachmentHosts {
		logrus.Warn("Attachment downloads from private networks are allowed")
	}
	fetcher := chat.NewFetcher(chat.NewHTTPClient(cfg.AllowPrivateAttachmentHosts), cfg.MaxImageBytes)
	jobManager := jobs.NewManager(service, fetcher, opts)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewHandler(jobManager, cfg.MaxConcurrentJobs), authValidator.Middleware())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	useTLS := cfg.TLSCert != ""
	if useTLS {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if authValidator.IsClientCALoaded() {
			srv.TLSConfig.ClientAuth = tls.VerifyClientCertIfGiven
			srv.TLSConfig.ClientCAs = authValidator.GetClientCAs()
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"tls":     useTLS,
			"model":   cfg.Model,
			"project": cfg.ProjectID,
		}).Info("Starting veo-proxy server")

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-quit:
	}
	logrus.Info("Shutting down server...")

	// Give outstanding requests and jobs 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	if err := jobManager.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Jobs still running at exit")
	}

	logrus.Info("Server exited")
	return nil
}
