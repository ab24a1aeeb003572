package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
)

type Config struct {
	EnableHTTP       bool          `envconfig:"HTTP_ENABLED" default:"true"`
	EnableGRPC       bool          `envconfig:"GRPC_ENABLED" default:"true"`
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort         string        `envconfig:"GRPC_PORT" default:"9090"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// PublicBaseURL prefixes generated links. Empty derives it from the request.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`

	MTLSEnabled    bool   `envconfig:"MTLS_ENABLED" default:"false"`
	MTLSCACert     string `envconfig:"MTLS_CA_CERT"`
	MTLSServerCert string `envconfig:"MTLS_SERVER_CERT"`
	MTLSServerKey  string `envconfig:"MTLS_SERVER_KEY"`
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
	grpcSrv *grpc.Server
	httpSrv *http.Server
}

func New(cfg Config, logger *slog.Logger, handler http.Handler, grpcSrv *grpc.Server) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		handler: handler,
		grpcSrv: grpcSrv,
	}
}

// Start serves until ctx is done, then shuts down gracefully. A listener
// failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 2)

	if s.cfg.EnableHTTP {
		s.httpSrv = &http.Server{
			Addr:              ":" + s.cfg.HTTPPort,
			Handler:           s.handler,
			ReadTimeout:       s.cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      s.cfg.HTTPWriteTimeout,
			IdleTimeout:       120 * time.Second,
		}

		if s.cfg.MTLSEnabled {
			tlsConfig, err := loadMTLSConfig(s.cfg.MTLSCACert)
			if err != nil {
				return fmt.Errorf("failed to load mTLS config: %w", err)
			}
			s.httpSrv.TLSConfig = tlsConfig
		}

		go func() {
			s.logger.Info("HTTP server starting", "port", s.cfg.HTTPPort, "mtls", s.cfg.MTLSEnabled)
			var err error
			if s.cfg.MTLSEnabled {
				err = s.httpSrv.ListenAndServeTLS(s.cfg.MTLSServerCert, s.cfg.MTLSServerKey)
			} else {
				err = s.httpSrv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("http server failed: %w", err)
			}
		}()
	}

	if s.cfg.EnableGRPC && s.grpcSrv != nil {
		lis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("failed to listen grpc: %w", err)
		}
		go func() {
			s.logger.Info("gRPC server starting", "port", s.cfg.GRPCPort)
			if err := s.grpcSrv.Serve(lis); err != nil {
				errChan <- fmt.Errorf("grpc server failed: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down servers...")
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return err
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if herr := s.httpSrv.Shutdown(shutdownCtx); herr != nil {
			s.logger.Error("HTTP shutdown error", "error", herr)
			err = herr
		}
	}

	if s.grpcSrv != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			s.grpcSrv.Stop()
		}
	}

	return err
}

func loadMTLSConfig(caPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("could not read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA cert")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}
