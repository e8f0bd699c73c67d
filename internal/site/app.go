package site

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kuitang/mango3-e2e/internal/auth"
	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/db"
	"github.com/kuitang/mango3-e2e/internal/email"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/s3client"
)

const (
	// uploadsBucket is the bucket used by the in-memory S3 fake.
	uploadsBucket = "mango3-uploads"

	sessionSweepInterval = 10 * time.Minute
)

// App is a listening reference application with its backing services.
type App struct {
	*Server

	// Mailbox captures emails when the mock email service is in use.
	Mailbox *email.MockEmailService

	listener net.Listener
	http     *http.Server
	closers  []func()
}

// Listen binds cfg.ListenAddr and builds the application. A zero
// cfg.PublicPort is replaced by the bound port, so "127.0.0.1:0" yields a
// working topology on a random port.
func Listen(ctx context.Context, cfg *config.Config) (*App, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	if cfg.PublicPort == 0 {
		cfg.PublicPort = ln.Addr().(*net.TCPAddr).Port
	}
	app := &App{listener: ln}
	if err := app.build(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	app.http = &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	var dbOpts []db.Option
	if cfg.DatabaseKey != "" {
		dbOpts = append(dbOpts, db.WithKey(cfg.DatabaseKey))
	}
	store, err := db.Open(cfg.DatabasePath, dbOpts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { store.Close() })

	var uploads *s3client.Client
	if cfg.NoS3 {
		client, closeFn, err := s3client.NewInMemory(ctx, uploadsBucket, "")
		if err != nil {
			return err
		}
		uploads = client
		a.closers = append(a.closers, closeFn)
	} else {
		uploads, err = s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
		})
		if err != nil {
			return err
		}
	}

	var mailer email.EmailService
	if cfg.NoEmail {
		a.Mailbox = email.NewMockEmailService()
		mailer = a.Mailbox
	} else {
		mailer = email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}

	var hasher auth.PasswordHasher = auth.Argon2Hasher{}
	if cfg.TestMode {
		hasher = auth.FakeInsecureHasher{}
	}

	server, err := New(Options{
		Topology:        cfg.Topology(),
		DB:              store,
		S3:              uploads,
		Email:           mailer,
		Hasher:          hasher,
		SessionDuration: cfg.SessionDuration,
		OverlayDelay:    cfg.OverlayDelay,
		LoginRateLimit:  cfg.LoginRateLimit,
	})
	if err != nil {
		return err
	}
	a.Server = server
	a.closers = append(a.closers, server.Close)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		sweepSessions(sweepCtx, server.Sessions(), sessionSweepInterval)
	}()
	a.closers = append(a.closers, func() { stopSweep(); <-swept })

	if _, err := server.Users().EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

// sweepSessions deletes expired sessions every interval until ctx ends.
func sweepSessions(ctx context.Context, sessions *auth.SessionService, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := sessions.Cleanup(ctx)
			if err != nil {
				obs.Pkg("site").Warn("session_sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				obs.Pkg("site").Debug("sessions_swept", "removed", n)
			}
		}
	}
}

// Addr is the bound listener address.
func (a *App) Addr() net.Addr {
	return a.listener.Addr()
}

// Serve accepts connections until Shutdown. It never returns nil.
func (a *App) Serve() error {
	obs.Pkg("site").Info("serving", "addr", a.Addr().String(), "home", a.Topology().HomeURL().String())
	return a.http.Serve(a.listener)
}

// Start serves in the background.
func (a *App) Start() {
	go func() {
		if err := a.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Pkg("site").Error("serve_failed", "error", err)
		}
	}()
}

// Shutdown stops serving and releases every backing service.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.http != nil {
		err = a.http.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases the listener and backing services without draining.
func (a *App) Close() {
	if a.listener != nil {
		a.listener.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
