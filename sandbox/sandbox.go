package sandbox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	"github.com/MrEthical07/rolecalc/internal/rate"
	"github.com/MrEthical07/rolecalc/jwt"
	"github.com/MrEthical07/rolecalc/password"
	"github.com/MrEthical07/rolecalc/permission"
)

// Code kinds reported to Config.OnCode.
const (
	CodeConfirmSignUp   = "confirm_sign_up"
	CodeSMSMFA          = "sms_mfa"
	CodeCustomChallenge = "custom_challenge"
)

// CodeEvent is a one-time code the provider would deliver out of band.
type CodeEvent struct {
	Kind        string
	Username    string
	Destination string
	Code        string
}

// Config configures a [Sandbox]. Zero durations take the defaults noted.
type Config struct {
	ClientID string
	// SigningKey is the HS256 key for issued tokens. Empty generates one.
	SigningKey []byte
	// TokenTTL defaults to one hour.
	TokenTTL time.Duration
	// ChallengeTTL bounds an open challenge session; defaults to three minutes.
	ChallengeTTL time.Duration
	// ConfirmationTTL bounds a sign-up code; defaults to 24 hours.
	ConfirmationTTL time.Duration
	// MaxMFAAttempts wrong MFA codes are allowed on one session; defaults to 3.
	MaxMFAAttempts int
	// SingleGroupAsScalar issues a one-group claim as a bare string.
	SingleGroupAsScalar bool
	// ProviderRateLimit caps provider requests per IP per minute. Zero
	// disables the limit.
	ProviderRateLimit int
	// Redis enables the failed sign-in lockout.
	Redis             redis.UniversalClient
	MaxSignInFailures int
	LockoutWindow     time.Duration

	Password password.Config
	TOTP     TOTPConfig
	Logger   *slog.Logger
	// OnCode receives every generated one-time code.
	OnCode func(CodeEvent)
	Now    func() time.Time
}

// Sandbox is an in-process identity provider plus calculation and admin
// service speaking the same wire protocols as the hosted ones.
type Sandbox struct {
	cfg      Config
	dir      *Directory
	issuer   *jwt.Issuer
	hasher   *password.Argon2
	totp     *TOTP
	registry *permission.Registry
	validate *validator.Validate
	lockout  *rate.Limiter
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*authSession
}

// New validates cfg and returns a Sandbox with an empty directory.
func New(cfg Config) (*Sandbox, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("sandbox client id required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 3 * time.Minute
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	if cfg.MaxMFAAttempts <= 0 {
		cfg.MaxMFAAttempts = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DefaultConfig()
	}

	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{
		TTL:           cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.SigningKey,
		Issuer:        "rolecalc-sandbox",
		Audience:      cfg.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Sandbox{
		cfg:      cfg,
		dir:      NewDirectory(),
		issuer:   issuer,
		hasher:   hasher,
		totp:     NewTOTP(cfg.TOTP),
		registry: permission.DefaultRegistry(),
		validate: validate,
		logger:   cfg.Logger,
		sessions: make(map[string]*authSession),
	}
	s.dir.now = cfg.Now
	if cfg.Redis != nil {
		s.lockout = rate.New(cfg.Redis, rate.Config{
			MaxAttempts: cfg.MaxSignInFailures,
			Window:      cfg.LockoutWindow,
			Prefix:      "sandbox:signin",
		})
	}
	return s, nil
}

// Directory exposes the user, role and history state.
func (s *Sandbox) Directory() *Directory { return s.dir }

// Issuer returns the token issuer; its Verify guards the service.
func (s *Sandbox) Issuer() *jwt.Issuer { return s.issuer }

func (s *Sandbox) TOTP() *TOTP { return s.totp }

// Handler serves the provider at /idp and the service under /api.
func (s *Sandbox) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders(s.logger))

	r.Group(func(r chi.Router) {
		if s.cfg.ProviderRateLimit > 0 {
			r.Use(httprate.Limit(s.cfg.ProviderRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeProviderError(w, &providerError{
						status:  http.StatusBadRequest,
						code:    "TooManyRequestsException",
						message: "Rate exceeded",
					})
				}),
			))
		}
		r.Post("/idp", s.serveProvider)
		r.Post("/idp/", s.serveProvider)
	})
	r.Mount("/api", s.serviceRouter())
	return r
}

func secureHeaders(logger *slog.Logger) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				logger.Warn("secure headers blocked request", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserSpec seeds a confirmed account directly, bypassing sign-up.
type UserSpec struct {
	Username string
	Password string
	Email    string
	Phone    string
	Groups   []string
	MFA      MFAMode
	Disabled bool
}

// AddUser hashes the password and stores a confirmed user. A TOTP user gets a
// fresh secret, readable through Directory.
func (s *Sandbox) AddUser(spec UserSpec) (User, error) {
	if strings.TrimSpace(spec.Username) == "" {
		return User{}, errors.New("username required")
	}
	u := User{
		Username:  spec.Username,
		Email:     spec.Email,
		Phone:     spec.Phone,
		Groups:    normalizeGroups(spec.Groups),
		Enabled:   !spec.Disabled,
		Confirmed: true,
		MFA:       spec.MFA,
	}
	if len(u.Groups) > 0 {
		u.CustomRole = u.Groups[0]
	}
	if spec.Password != "" {
		hash, err := s.hasher.Hash(spec.Password)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = hash
	}
	if spec.MFA == MFATOTP {
		secret, _, err := s.totp.GenerateSecret()
		if err != nil {
			return User{}, err
		}
		u.TOTPSecret = secret
	}
	return s.dir.Put(u), nil
}

// IssueToken signs an ID token for the named user with the groups it holds
// now.
func (s *Sandbox) IssueToken(username string) (string, error) {
	u, ok := s.dir.User(username)
	if !ok {
		return "", fmt.Errorf("user %q not found", username)
	}
	return s.issue(u, jwt.TokenUseID)
}

func (s *Sandbox) issue(u User, use string) (string, error) {
	return s.issuer.Issue(jwt.IssueInput{
		Subject:             u.Sub,
		Username:            u.Username,
		Email:               u.Email,
		PhoneNumber:         u.Phone,
		Groups:              u.Groups,
		CustomRole:          u.CustomRole,
		TokenUse:            use,
		SingleGroupAsScalar: s.cfg.SingleGroupAsScalar,
	})
}

func (s *Sandbox) emitCode(ev CodeEvent) {
	s.logger.Info("one-time code issued", "kind", ev.Kind, "username", ev.Username, "destination", ev.Destination, "code", ev.Code)
	if s.cfg.OnCode != nil {
		s.cfg.OnCode(ev)
	}
}
