// Package app builds the gateway's object graph from configuration. The
// server and every CLI command share it, so both see the same session store,
// refresh timer and clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-web/internal/analytics"
	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/cache"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/config"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/guards"
	httpapi "github.com/tbourn/go-docqa-web/internal/http"
	"github.com/tbourn/go-docqa-web/internal/http/handlers"
	"github.com/tbourn/go-docqa-web/internal/observability"
	"github.com/tbourn/go-docqa-web/internal/qa"
	"github.com/tbourn/go-docqa-web/internal/repo"
	"github.com/tbourn/go-docqa-web/internal/security"
	"github.com/tbourn/go-docqa-web/internal/session"
)

// shutdownTimeout bounds graceful HTTP shutdown and the final flushes.
const shutdownTimeout = 10 * time.Second

// Options tunes New.
type Options struct {
	Service string
	Version string
	// LogOutput replaces stderr as the console sink.
	LogOutput io.Writer
	// Navigator is told when the session ends, after the chat transcript and
	// caches were reset. Nil logs the redirect.
	Navigator auth.Navigator
	// APIURL overrides the configured upstream base URL when set.
	APIURL string
}

// App holds every long-lived component.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	DB        *gorm.DB
	API       *apiclient.Client
	Store     *session.Store
	Auth      *auth.Manager
	Cache     *cache.Cache
	Files     *security.Validator
	QA        *qa.Client
	Documents *documents.Client
	Chat      *chat.Controller
	Analytics *analytics.Service
	Perf      *analytics.Monitor
	Guards    *guards.Table

	closers []func(context.Context) error
}

// New wires the components and restores any persisted session.
func New(ctx context.Context, cfg config.Config, o Options) (*App, error) {
	if o.Service == "" {
		o.Service = cfg.OTEL.ServiceName
	}
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}

	log, logCloser := observability.NewLogger(observability.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		File:    cfg.LogFile,
		Console: o.LogOutput,
		Service: o.Service,
	})
	a := &App{Config: cfg, Log: log}
	a.onClose(func(context.Context) error { return logCloser.Close() })

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, o.Version)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.onClose(shutdownTracing)

	db, err := repo.OpenSQLite(cfg.StorePath, repo.Options{Tracing: cfg.OTEL.Enabled, Silent: true})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open store %q: %w", cfg.StorePath, err)
	}
	a.DB = db
	a.onClose(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := repo.AutoMigrate(db); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	// Ending a session drops per-user state before the redirect so the next
	// user starts clean.
	redirect := o.Navigator
	nav := auth.NavigatorFunc(func() {
		a.endSession()
		if redirect != nil {
			redirect.NavigateToLogin()
			return
		}
		log.Info().Str("redirect", cfg.LoginPath).Msg("session ended")
	})

	a.API = apiclient.New(cfg.APIURL, cfg.HTTPTimeout, log.With().Str("component", "apiclient").Logger())
	a.Store = session.NewStore(repo.NewStorage(db), session.WithLogger(log.With().Str("component", "session").Logger()))
	a.Auth = auth.NewManager(auth.Config{
		API:         a.API,
		Store:       a.Store,
		Navigator:   nav,
		Logger:      log.With().Str("component", "auth").Logger(),
		RefreshLead: cfg.RefreshLead,
	})
	a.API.Tokens = a.Auth.TokenSource()
	a.onClose(func(context.Context) error { a.Auth.Close(); return nil })

	a.Analytics = analytics.NewService(a.API, cfg.Analytics.BatchSize, cfg.Analytics.Enabled, log.With().Str("component", "analytics").Logger())
	a.Perf = analytics.NewMonitor(a.API, cfg.Analytics.PerfBatchSize, cfg.Analytics.Enabled, log.With().Str("component", "performance").Logger())
	a.API.Obs = a.Perf

	a.Cache = cache.New(cfg.CacheTTL)
	a.Files = security.NewValidator(cfg.UploadMaxBytes)
	a.QA = qa.New(a.API, a.Cache, cfg.CacheTTL, log.With().Str("component", "qa").Logger())
	a.Documents = documents.New(a.API, a.Files, a.Cache, cfg.CacheTTL, log.With().Str("component", "documents").Logger())
	a.Chat = chat.New(a.QA, a.Analytics, a.Store, log.With().Str("component", "chat").Logger())
	a.onClose(func(context.Context) error { a.Chat.Close(); return nil })

	a.Guards = guards.NewTable(guards.Paths{Login: cfg.LoginPath, Unauthorized: cfg.UnauthorizedPath}, guards.DefaultRoutes)

	if _, err := a.Auth.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore session")
	}
	return a, nil
}

// endSession clears the chat transcript and every cached response.
func (a *App) endSession() {
	if a.Chat != nil {
		a.Chat.Reset()
	}
	if a.Cache != nil {
		a.Cache.Clear()
	}
}

func (a *App) onClose(f func(context.Context) error) { a.closers = append(a.closers, f) }

// Deps exposes the components to the HTTP handlers.
func (a *App) Deps() handlers.Deps {
	return handlers.Deps{
		Auth:      a.Auth,
		Session:   a.Store,
		Chat:      a.Chat,
		QA:        a.QA,
		Documents: a.Documents,
		Analytics: a.Analytics,
		Perf:      a.Perf,
		Files:     a.Files,
		Guards:    a.Guards,
	}
}

// Router builds the gateway engine.
func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.Deps(), a.Log, a.Config)
	return r
}

// Server returns the configured HTTP server for Router.
func (a *App) Server() *http.Server {
	c := a.Config
	return &http.Server{
		Addr:              ":" + c.Port,
		Handler:           a.Router(),
		ReadTimeout:       c.ReadTimeout,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       c.IdleTimeout,
		MaxHeaderBytes:    c.MaxHeaderBytes,
	}
}

// RunBatchers flushes analytics on the configured interval until ctx ends.
func (a *App) RunBatchers(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { a.Analytics.Run(ctx, a.Config.Analytics.FlushInterval); return nil })
	g.Go(func() error { a.Perf.Run(ctx, a.Config.Analytics.FlushInterval); return nil })
	_ = g.Wait()
}

// Serve runs the HTTP server and the batchers until ctx is cancelled, then
// shuts both down gracefully.
func (a *App) Serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info().Str("addr", srv.Addr).Str("api", a.Config.APIURL).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.RunBatchers(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.Log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Flush ships whatever telemetry is still buffered.
func (a *App) Flush(ctx context.Context) {
	if err := a.Analytics.Flush(ctx); err != nil {
		a.Log.Debug().Err(err).Msg("flush analytics")
	}
	if err := a.Perf.Flush(ctx); err != nil {
		a.Log.Debug().Err(err).Msg("flush performance")
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
