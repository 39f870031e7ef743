package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/config"
	"github.com/panyam/authkit/email"
	"github.com/panyam/authkit/logging"
	"github.com/panyam/authkit/metrics"
	"github.com/panyam/authkit/oauth2"
	"github.com/panyam/authkit/ratelimit"
	"github.com/panyam/authkit/stores/fs"
	"github.com/panyam/authkit/stores/gae"
	gormstore "github.com/panyam/authkit/stores/gorm"
	"github.com/panyam/authkit/stores/memory"
	mongostore "github.com/panyam/authkit/stores/mongo"
)

// App is a fully wired server built from a config.Config.
type App struct {
	Config     *config.Config
	Store      authkit.UserStore
	Service    *authkit.AuthService
	Controller *authkit.AuthController
	Metrics    *metrics.Metrics
	Limiter    ratelimit.Limiter
	Handler    http.Handler

	closers []func(context.Context) error
	log     *zap.Logger
}

// NewApp opens the configured store and wires every component. Registry may
// be nil. Close releases whatever NewApp opened.
func NewApp(ctx context.Context, cfg *config.Config, registry *prometheus.Registry) (_ *App, err error) {
	app := &App{Config: cfg, log: logging.Named("app")}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	proxies, err := authkit.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if app.Store, err = app.openStore(ctx); err != nil {
		return nil, err
	}
	if app.Metrics, err = metrics.New(registry); err != nil {
		return nil, err
	}

	app.Service, err = authkit.NewAuthService(authkit.Options{
		Store: app.Store,
		Tokens: &authkit.TokenIssuer{
			AccessSecret:  cfg.JWT.Secret,
			RefreshSecret: cfg.JWT.RefreshSecret,
			AccessExpiry:  cfg.JWT.ExpiresIn.Std(),
			RefreshExpiry: cfg.JWT.RefreshExpiresIn.Std(),
			Issuer:        cfg.JWT.Issuer,
		},
		EmailSender:       app.emailSender(),
		RefreshGuard:      authkit.NewRefreshGuard(cfg.JWT.RefreshExpiresIn.Std()),
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		BcryptCost:        cfg.Auth.BcryptCost,
		OnEvent:           app.Metrics.EventHook(),
	})
	if err != nil {
		return nil, err
	}

	app.Controller = &authkit.AuthController{
		Service:            app.Service,
		Production:         cfg.IsProduction(),
		CookieDomain:       cfg.Auth.CookieDomain,
		ResetURL:           cfg.Auth.ResetURL,
		SuccessRedirectURL: cfg.Auth.SuccessRedirectURL,
		TrustedProxies:     proxies,
	}
	app.Controller.OAuth = app.oauthFlows()

	if cfg.RateLimit.Enabled {
		app.Limiter = app.limiter()
	}

	app.Handler = NewRouter(RouterOptions{
		Controller:       app.Controller,
		APIPrefix:        cfg.APIPrefix,
		Metrics:          app.Metrics,
		Limiter:          app.Limiter,
		RateLimitMessage: rateLimitMessage(cfg.RateLimit.Window.Std()),
		TrustedProxies:   proxies,
	})
	return app, nil
}

// Run serves on the configured port until ctx is done.
func (a *App) Run(ctx context.Context) error {
	srv := New(a.Handler, a.Config.ShutdownTimeout.Std())
	return srv.ListenAndServe(ctx, a.Config.Addr())
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

func (a *App) openStore(ctx context.Context) (authkit.UserStore, error) {
	s := a.Config.Storage
	a.log.Info("opening user store", logging.String("driver", s.Driver))

	switch s.Driver {
	case "memory", "":
		return memory.New(), nil

	case "fs":
		return fs.NewFSUserStore(s.Path), nil

	case "sqlite", "postgres":
		db, err := gormstore.Open(s.Driver, s.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return sqlDB.Close() })
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return gormstore.NewUserStore(db), nil

	case "mongo":
		store, client, err := mongostore.Connect(ctx, s.MongoURI, s.MongoDatabase)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Disconnect)
		return store, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, s.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("datastore client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		return gae.NewUserStore(client, s.Namespace), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
}

func (a *App) emailSender() authkit.EmailSender {
	e := a.Config.Email
	if e.Host == "" {
		a.log.Warn("EMAIL_HOST not set, password reset emails will only be logged")
		return &authkit.ConsoleEmailSender{}
	}
	return email.FromConfig(e.Host, e.Port, e.From, e.User, e.Pass, e.TLSMode, e.Secure)
}

func (a *App) oauthFlows() []authkit.OAuthFlow {
	o := a.Config.OAuth
	sessions := oauth2.NewSessionManager(a.Config.IsProduction())

	var flows []authkit.OAuthFlow
	add := func(p *oauth2.Provider) {
		flows = append(flows, oauth2.NewHandler(p, sessions, a.Controller))
		a.log.Info("oauth provider enabled", logging.Provider(p.Name))
	}
	if o.EnableGitHub {
		add(oauth2.NewGitHubProvider(o.GitHub.ClientID, o.GitHub.ClientSecret, o.GitHub.CallbackURL))
	}
	if o.EnableGoogle {
		add(oauth2.NewGoogleProvider(o.Google.ClientID, o.Google.ClientSecret, o.Google.CallbackURL))
	}
	if o.EnableFacebook {
		add(oauth2.NewFacebookProvider(o.Facebook.ClientID, o.Facebook.ClientSecret, o.Facebook.CallbackURL))
	}
	return flows
}

func (a *App) limiter() ratelimit.Limiter {
	rl := a.Config.RateLimit
	if rl.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(rl.Max, rl.Window.Std())
	}
	client := rdb.NewClient(&rdb.Options{Addr: rl.RedisAddr})
	a.onClose(func(context.Context) error { return client.Close() })
	a.log.Info("rate limiting through redis", logging.String("addr", rl.RedisAddr))
	return ratelimit.NewRedisLimiter(client, "", rl.Max, rl.Window.Std())
}

func rateLimitMessage(window time.Duration) string {
	if window <= 0 || window == ratelimit.DefaultWindow {
		return ratelimit.DefaultMessage
	}
	return "Too many requests from this IP, please try again after " + window.String()
}
