package models

import "time"

// Config represents the application configuration
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Mail       MailConfig       `yaml:"mail"`
	Token      TokenConfig      `yaml:"token"`
	TokenStore TokenStoreConfig `yaml:"tokenStore"`
	Browser    BrowserConfig    `yaml:"browser"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Server     ServerConfig     `yaml:"server"`
	History    HistoryConfig    `yaml:"history"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
}

// Credentials represents the target site account
type Credentials struct {
	LoginID  string `yaml:"loginId"`
	Password string `yaml:"password"`
}

// SiteConfig describes the sign-in page of the target site and how long each step may take
type SiteConfig struct {
	SignInURL          string        `yaml:"signInUrl"`
	SignInPathFragment string        `yaml:"signInPathFragment"`
	Credentials        Credentials   `yaml:"credentials"`
	LoginSelector      string        `yaml:"loginSelector"`
	PasswordSelector   string        `yaml:"passwordSelector"`
	CodeSelector       string        `yaml:"codeSelector"`
	SettleDelay        time.Duration `yaml:"settleDelay"`
	KeystrokeDelay     time.Duration `yaml:"keystrokeDelay"`
	CodeKeystrokeDelay time.Duration `yaml:"codeKeystrokeDelay"`
	NavigationTimeout  time.Duration `yaml:"navigationTimeout"`
	CodePromptTimeout  time.Duration `yaml:"codePromptTimeout"`
	AuthTimeout        time.Duration `yaml:"authTimeout"`
}

// MailConfig represents mailbox access and verification email polling
type MailConfig struct {
	Provider      string        `yaml:"provider"`
	Imap          string        `yaml:"imap"`
	Login         string        `yaml:"login"`
	Password      string        `yaml:"password"`
	MailBox       string        `yaml:"mailbox"`
	Gmail         GmailConfig   `yaml:"gmail"`
	Window        time.Duration `yaml:"window"`
	Buffer        time.Duration `yaml:"buffer"`
	Interval      time.Duration `yaml:"interval"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	MaxMessages   int           `yaml:"maxMessages"`
	FromFilter    string        `yaml:"fromFilter"`
	SubjectFilter string        `yaml:"subjectFilter"`
}

// GmailConfig represents Gmail API access through an OAuth refresh token
type GmailConfig struct {
	User         string `yaml:"user"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
	// Endpoint overrides the API base URL, empty means the public Gmail endpoint.
	Endpoint string `yaml:"endpoint"`
}

// TokenConfig selects how the session token is read after sign-in
type TokenConfig struct {
	Strategy            string        `yaml:"strategy"`
	CookieName          string        `yaml:"cookieName"`
	CookieInterval      time.Duration `yaml:"cookieInterval"`
	CookieAttempts      int           `yaml:"cookieAttempts"`
	ResponseURLContains string        `yaml:"responseUrlContains"`
	ResponseField       string        `yaml:"responseField"`
	NetworkInterval     time.Duration `yaml:"networkInterval"`
	NetworkTimeout      time.Duration `yaml:"networkTimeout"`
}

// TokenStoreConfig represents the downstream endpoint receiving the session token
type TokenStoreConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrowserConfig represents headless browser launch options
type BrowserConfig struct {
	Driver    string `yaml:"driver"`
	Bin       string `yaml:"bin"`
	UserAgent string `yaml:"userAgent"`
	// Headful shows the browser window, for debugging only.
	Headful bool `yaml:"headful"`
	// LoadAllResources disables blocking of images, stylesheets, fonts and media.
	LoadAllResources bool `yaml:"loadAllResources"`
}

// PipelineConfig represents the overall run budget
type PipelineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig represents the HTTP trigger listener
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig represents the run history database, an empty path disables it
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig represents failure notifications sent through Resend, an empty API key disables them
type NotifyConfig struct {
	ResendAPIKey string `yaml:"resendApiKey"`
	From         string `yaml:"from"`
	To           string `yaml:"to"`
}

// LogConfig represents logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
