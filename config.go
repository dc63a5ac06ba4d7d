package account

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds the auth options consumed by the HTTP boundary
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetContextKey() string
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// MailSettings configures the SMTP transport and sender identity
type MailSettings struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@localhost"`
}

// AssetSettings configures where profile images live. When Bucket is set the
// S3 store is used, otherwise assets go to Dir on the local filesystem.
type AssetSettings struct {
	Dir          string `env:"DIR" envDefault:"media"`
	Bucket       string `env:"S3_BUCKET"`
	Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	BaseEndpoint string `env:"S3_ENDPOINT"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
}

// Settings is the process configuration: loaded once at start, immutable
// afterwards, handed to components at construction. Business logic never
// reaches for ambient globals.
type Settings struct {
	SigningKey            string        `env:"SIGNING_KEY,required,notEmpty"`
	TokenExpiration       int           `env:"TOKEN_EXPIRATION" envDefault:"24"`
	ExtendedTokenDuration int           `env:"EXTENDED_TOKEN_DURATION" envDefault:"720"`
	ContextKey            string        `env:"CONTEXT_KEY" envDefault:"user"`
	Issuer                string        `env:"ISSUER" envDefault:"go-account"`
	Audience              []string      `env:"AUDIENCE" envDefault:"web"`
	RejectedRouteKey      string        `env:"REJECTED_ROUTE_KEY" envDefault:"rejected_route"`
	RejectedRouteDefault  string        `env:"REJECTED_ROUTE_DEFAULT" envDefault:"/"`
	BaseURL               string        `env:"BASE_URL" envDefault:"http://127.0.0.1:8000"`
	ActivationTokenTTL    time.Duration `env:"ACTIVATION_TOKEN_TTL" envDefault:"72h"`
	BcryptCost            int           `env:"BCRYPT_COST" envDefault:"12"`
	DSN                   string        `env:"DSN" envDefault:"file::memory:?cache=shared"`

	Mail   MailSettings  `envPrefix:"SMTP_"`
	Assets AssetSettings `envPrefix:"ASSETS_"`
}

var _ Config = (*Settings)(nil)

// LoadSettings reads configuration from the environment, using the ACCOUNT_
// prefix for every variable.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, env.Options{Prefix: "ACCOUNT_"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment configuration")
	}
	return s, nil
}

func (s *Settings) GetSigningKey() string         { return s.SigningKey }
func (s *Settings) GetTokenExpiration() int       { return s.TokenExpiration }
func (s *Settings) GetExtendedTokenDuration() int { return s.ExtendedTokenDuration }
func (s *Settings) GetContextKey() string         { return s.ContextKey }
func (s *Settings) GetIssuer() string             { return s.Issuer }
func (s *Settings) GetAudience() []string         { return s.Audience }
func (s *Settings) GetRejectedRouteKey() string   { return s.RejectedRouteKey }
func (s *Settings) GetRejectedRouteDefault() string {
	return s.RejectedRouteDefault
}

// ActivationLink builds the absolute URL a user follows to activate their
// account.
func (s *Settings) ActivationLink(encodedUserID, token string) string {
	return s.BaseURL + "/account/active/" + encodedUserID + "/" + token
}
