package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"signin-token-sync/internal/models"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigFilename = "config.yaml"

	DefaultSignInURL          = "https://app.sarvinarck.com/sign-in"
	DefaultSignInPathFragment = "sign-in"
	DefaultLoginSelector      = `input[name="loginId"]`
	DefaultPasswordSelector   = `input[name="password"]`
	DefaultCodeSelector       = `input[name="code"]`
	DefaultKeystrokeDelay     = 20 * time.Millisecond
	DefaultCodeKeystrokeDelay = 50 * time.Millisecond
	DefaultNavigationTimeout  = 60 * time.Second
	DefaultCodePromptTimeout  = 45 * time.Second
	DefaultAuthTimeout        = 60 * time.Second

	DefaultImapServer  = "imap.gmail.com:993"
	DefaultMailBox     = "INBOX"
	DefaultMailWindow  = 5 * time.Minute
	DefaultMailBuffer  = 30 * time.Second
	DefaultMailPoll    = 5 * time.Second
	DefaultMailTries   = 12
	DefaultMaxMessages = 5
	maxMailTries       = 60

	DefaultCookieName      = "apiToken"
	DefaultCookieInterval  = 2 * time.Second
	DefaultCookieAttempts  = 15
	DefaultResponseField   = "access_token"
	DefaultNetworkInterval = time.Second
	DefaultNetworkTimeout  = 30 * time.Second

	DefaultForwardTimeout  = 15 * time.Second
	DefaultPipelineTimeout = 4 * time.Minute
	DefaultServerAddr      = ":10000"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	ProviderIMAP    = "imap"
	ProviderGmail   = "gmail"
	StrategyCookie  = "cookie"
	StrategyNetwork = "network"
	DriverRod       = "rod"
	DriverChromedp  = "chromedp"
)

var (
	ErrMissingCredentials = errors.New("login id and password are required")
	ErrMissingTokenStore  = errors.New("token store url is required")
	ErrInvalidTokenStore  = errors.New("token store url must be an absolute http(s) url")
	ErrMissingMailbox     = errors.New("mailbox credentials are required")
	ErrUnknownProvider    = errors.New("unknown mail provider")
	ErrUnknownStrategy    = errors.New("unknown token strategy")
	ErrUnknownDriver      = errors.New("unknown browser driver")
	ErrInvalidAttempts    = errors.New("mail maxAttempts must be between 1 and 60")
	ErrMissingResponseURL = errors.New("token.responseUrlContains is required for the network strategy")
	ErrNegativeDuration   = errors.New("durations must not be negative")
)

// envBindings maps config keys to the environment variables that override them, first match wins
var envBindings = map[string][]string{
	"site.signInUrl":            {"SIGNIN_URL"},
	"site.credentials.loginId":  {"SARVINARCK_EMAIL", "SIGNIN_LOGIN_ID"},
	"site.credentials.password": {"SARVINARCK_PASSWORD", "SIGNIN_PASSWORD"},
	"mail.provider":             {"SIGNIN_MAIL_PROVIDER"},
	"mail.imap":                 {"SIGNIN_IMAP_SERVER"},
	"mail.login":                {"SIGNIN_IMAP_LOGIN", "GMAIL_USER"},
	"mail.password":             {"SIGNIN_IMAP_PASSWORD", "GMAIL_APP_PASSWORD"},
	"mail.gmail.user":           {"GMAIL_USER"},
	"mail.gmail.clientId":       {"GMAIL_CLIENT_ID"},
	"mail.gmail.clientSecret":   {"GMAIL_CLIENT_SECRET"},
	"mail.gmail.refreshToken":   {"GMAIL_REFRESH_TOKEN"},
	"token.strategy":            {"SIGNIN_TOKEN_STRATEGY"},
	"tokenStore.url":            {"SUPABASE_FUNCTION_URL", "SIGNIN_TOKEN_STORE_URL"},
	"browser.driver":            {"SIGNIN_BROWSER_DRIVER"},
	"browser.bin":               {"SIGNIN_BROWSER_BIN"},
	"history.path":              {"SIGNIN_HISTORY_PATH"},
	"notify.resendApiKey":       {"RESEND_API_KEY"},
	"notify.from":               {"SIGNIN_NOTIFY_FROM"},
	"notify.to":                 {"SIGNIN_NOTIFY_TO"},
	"log.level":                 {"SIGNIN_LOG_LEVEL"},
	"log.format":                {"SIGNIN_LOG_FORMAT"},
	"server.port":               {"PORT"},
}

// Load reads the configuration from the specified YAML file, applies environment overrides and validates the result.
// An empty filepath skips the file and builds the configuration from the environment alone.
func Load(filepath string) (*models.Config, error) {
	var config models.Config

	if filepath != "" {
		configFile, err := os.ReadFile(filepath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(configFile, &config); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(cfg *models.Config) error {
	v := viper.New()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	set := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	set("site.signInUrl", &cfg.Site.SignInURL)
	set("site.credentials.loginId", &cfg.Site.Credentials.LoginID)
	set("site.credentials.password", &cfg.Site.Credentials.Password)
	set("mail.provider", &cfg.Mail.Provider)
	set("mail.imap", &cfg.Mail.Imap)
	set("mail.login", &cfg.Mail.Login)
	set("mail.password", &cfg.Mail.Password)
	set("mail.gmail.user", &cfg.Mail.Gmail.User)
	set("mail.gmail.clientId", &cfg.Mail.Gmail.ClientID)
	set("mail.gmail.clientSecret", &cfg.Mail.Gmail.ClientSecret)
	set("mail.gmail.refreshToken", &cfg.Mail.Gmail.RefreshToken)
	set("token.strategy", &cfg.Token.Strategy)
	set("tokenStore.url", &cfg.TokenStore.URL)
	set("browser.driver", &cfg.Browser.Driver)
	set("browser.bin", &cfg.Browser.Bin)
	set("history.path", &cfg.History.Path)
	set("notify.resendApiKey", &cfg.Notify.ResendAPIKey)
	set("notify.from", &cfg.Notify.From)
	set("notify.to", &cfg.Notify.To)
	set("log.level", &cfg.Log.Level)
	set("log.format", &cfg.Log.Format)

	if v.IsSet("server.port") {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v.GetString("server.port"), ":")
	}

	// A Gmail OAuth refresh token in the environment selects the Gmail API unless a provider is set.
	if cfg.Mail.Provider == "" && cfg.Mail.Gmail.RefreshToken != "" && cfg.Mail.Password == "" {
		cfg.Mail.Provider = ProviderGmail
	}

	return nil
}

// Validate fills defaults into unset fields and checks required values and ranges
func Validate(cfg *models.Config) error {
	applyDefaults(cfg)

	if cfg.Site.Credentials.LoginID == "" || cfg.Site.Credentials.Password == "" {
		return ErrMissingCredentials
	}

	if cfg.TokenStore.URL == "" {
		return ErrMissingTokenStore
	}
	u, err := url.Parse(cfg.TokenStore.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTokenStore
	}

	switch cfg.Mail.Provider {
	case ProviderIMAP:
		if cfg.Mail.Login == "" || cfg.Mail.Password == "" {
			return fmt.Errorf("%w: imap login and password", ErrMissingMailbox)
		}
	case ProviderGmail:
		g := cfg.Mail.Gmail
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return fmt.Errorf("%w: gmail client id, client secret and refresh token", ErrMissingMailbox)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Mail.Provider)
	}

	if cfg.Mail.MaxAttempts < 1 || cfg.Mail.MaxAttempts > maxMailTries {
		return ErrInvalidAttempts
	}

	switch cfg.Token.Strategy {
	case StrategyCookie:
	case StrategyNetwork:
		if cfg.Token.ResponseURLContains == "" {
			return ErrMissingResponseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Token.Strategy)
	}

	switch cfg.Browser.Driver {
	case DriverRod, DriverChromedp:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Browser.Driver)
	}

	for _, d := range []time.Duration{
		cfg.Site.SettleDelay, cfg.Site.KeystrokeDelay, cfg.Site.CodeKeystrokeDelay,
		cfg.Mail.Window, cfg.Mail.Buffer, cfg.Mail.Interval,
	} {
		if d < 0 {
			return ErrNegativeDuration
		}
	}

	return nil
}

func applyDefaults(cfg *models.Config) {
	s := &cfg.Site
	orString(&s.SignInURL, DefaultSignInURL)
	orString(&s.SignInPathFragment, DefaultSignInPathFragment)
	orString(&s.LoginSelector, DefaultLoginSelector)
	orString(&s.PasswordSelector, DefaultPasswordSelector)
	orString(&s.CodeSelector, DefaultCodeSelector)
	orDuration(&s.KeystrokeDelay, DefaultKeystrokeDelay)
	orDuration(&s.CodeKeystrokeDelay, DefaultCodeKeystrokeDelay)
	orDuration(&s.NavigationTimeout, DefaultNavigationTimeout)
	orDuration(&s.CodePromptTimeout, DefaultCodePromptTimeout)
	orDuration(&s.AuthTimeout, DefaultAuthTimeout)

	m := &cfg.Mail
	if m.Provider == "" {
		m.Provider = ProviderIMAP
	}
	orString(&m.Imap, DefaultImapServer)
	orString(&m.MailBox, DefaultMailBox)
	orString(&m.Gmail.User, m.Login)
	orString(&m.Gmail.User, "me")
	orDuration(&m.Window, DefaultMailWindow)
	orDuration(&m.Buffer, DefaultMailBuffer)
	orDuration(&m.Interval, DefaultMailPoll)
	if m.MaxAttempts == 0 {
		m.MaxAttempts = DefaultMailTries
	}
	if m.MaxMessages <= 0 {
		m.MaxMessages = DefaultMaxMessages
	}

	t := &cfg.Token
	orString(&t.Strategy, StrategyCookie)
	orString(&t.CookieName, DefaultCookieName)
	orDuration(&t.CookieInterval, DefaultCookieInterval)
	if t.CookieAttempts <= 0 {
		t.CookieAttempts = DefaultCookieAttempts
	}
	orString(&t.ResponseField, DefaultResponseField)
	orDuration(&t.NetworkInterval, DefaultNetworkInterval)
	orDuration(&t.NetworkTimeout, DefaultNetworkTimeout)

	orDuration(&cfg.TokenStore.Timeout, DefaultForwardTimeout)
	orString(&cfg.Browser.Driver, DriverRod)
	orString(&cfg.Browser.UserAgent, DefaultUserAgent)
	orDuration(&cfg.Pipeline.Timeout, DefaultPipelineTimeout)
	orString(&cfg.Server.Addr, DefaultServerAddr)
}

func orString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func orDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
