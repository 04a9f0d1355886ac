package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"socialops/infrastructure/logger"
)

type Config struct {
	App         App         `json:"app"`
	Database    Database    `json:"database"`
	RedisClient RedisClient `json:"redisClient"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	Logger      Logger      `json:"logger"`
	Security    Security    `json:"security"`
	OAuth       OAuth       `json:"oauth"`
	Platform    Platform    `json:"platform"`
	Retry       Retry       `json:"retry"`
	RateLimit   RateLimit   `json:"rateLimit"`
	Publish     Publish     `json:"publish"`
	Metrics     Metrics     `json:"metrics"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
	// FrontendURL receives the connect-flow outcome redirect.
	FrontendURL string `json:"frontendURL"`
	// PublicBaseURL is this service's externally reachable origin, used to
	// derive OAuth callback URLs.
	PublicBaseURL string   `json:"publicBaseURL"`
	CorsOrigins   []string `json:"corsOrigins"`
	// InternalToken guards the internal backfill trigger.
	InternalToken string `json:"internalToken"`
}

type Database struct {
	Psql  Db `json:"psql"`
	MySql Db `json:"mysql"`
	Mongo Db `json:"mongo"`
	Mssql Db `json:"mssql"`
	// Vendor selects the credential store: "postgres" (default) or "mssql".
	Vendor string `json:"vendor"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
}

func (r RedisClient) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	TopicID   string `json:"topicID"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	QueueName string `json:"queueName"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

type Security struct {
	// EncryptionKey is the 32-byte master key, hex or base64.
	EncryptionKey string `json:"encryptionKey"`
}

type OAuth struct {
	Twitter  OAuthClient `json:"twitter"`
	LinkedIn OAuthClient `json:"linkedin"`
}

type OAuthClient struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RedirectURI  string   `json:"redirectURI"`
	Scopes       []string `json:"scopes"`
	// RefreshTokens marks apps the platform issues refresh tokens to (LinkedIn).
	RefreshTokens bool `json:"refreshTokens"`
}

func (o OAuthClient) Enabled() bool { return o.ClientID != "" }

type Platform struct {
	CallTimeout time.Duration `json:"callTimeout"`
}

type Retry struct {
	MaxRetries int           `json:"maxRetries"`
	BaseDelay  time.Duration `json:"baseDelay"`
	MaxDelay   time.Duration `json:"maxDelay"`
}

type RateLimit struct {
	Twitter  PlatformRate `json:"twitter"`
	LinkedIn PlatformRate `json:"linkedin"`
}

type PlatformRate struct {
	PerSecond float64 `json:"perSecond"`
	Burst     int     `json:"burst"`
}

type Publish struct {
	NotifyTimeout time.Duration `json:"notifyTimeout"`
}

type Metrics struct {
	StaleAfter         time.Duration `json:"staleAfter"`
	BatchSize          int           `json:"batchSize"`
	Concurrency        int           `json:"concurrency"`
	BackfillInterval   time.Duration `json:"backfillInterval"`
	DailyCallBudget    int64         `json:"dailyCallBudget"`
	PerUserDailyBudget int64         `json:"perUserDailyBudget"`
}

var C Config

func init() {
	Reload()
}

// Reload rebuilds C from the config file and the environment. main calls it
// after loading env files.
func Reload() {
	C = Config{}
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initSecrets(&C)
	applyDefaults(&C)
	if C.App.TLSEnabled {
		for _, client := range []*OAuthClient{&C.OAuth.Twitter, &C.OAuth.LinkedIn} {
			if client.RedirectURI != "" && !hasHTTPS(client.RedirectURI) {
				client.RedirectURI = toHTTPSCallback(client.RedirectURI)
			}
		}
	}
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")

	C.Database.Mssql.Name = getConfigValue(C.Database.Mssql.Name, "MSSQL_DB_NAME", "")
	C.Database.Mssql.Host = getConfigValue(C.Database.Mssql.Host, "MSSQL_HOST", "localhost")
	C.Database.Mssql.Port = getConfigValue(C.Database.Mssql.Port, "MSSQL_PORT", "1433")
	C.Database.Mssql.User = getConfigValue(C.Database.Mssql.User, "MSSQL_USER", "")
	C.Database.Mssql.Password = getConfigValue(C.Database.Mssql.Password, "MSSQL_PASSWORD", "")

	C.Database.MySql.Host = getConfigValue(C.Database.MySql.Host, "CONTENT_DB_HOST", "")
	C.Database.MySql.Name = getConfigValue(C.Database.MySql.Name, "CONTENT_DB_NAME", "")
	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")

	C.Database.Vendor = strings.ToLower(getConfigValue(C.Database.Vendor, "DB_VENDOR", ""))
	if C.Database.Vendor == "" {
		env := os.Getenv("ENV")
		if env == "production" || env == "prod" {
			C.Database.Vendor = "mssql"
		} else {
			C.Database.Vendor = "postgres"
		}
	}

	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
}

func initApp(C *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order: APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	C.App.TLSCertFile = getConfigValue(C.App.TLSCertFile, "TLS_CERT_FILE", "")
	C.App.TLSKeyFile = getConfigValue(C.App.TLSKeyFile, "TLS_KEY_FILE", "")
	C.App.FrontendURL = getConfigValue(C.App.FrontendURL, "FRONTEND_URL", "")
	C.App.PublicBaseURL = getConfigValue(C.App.PublicBaseURL, "PUBLIC_BASE_URL", "")
	C.App.InternalToken = getConfigValue(C.App.InternalToken, "INTERNAL_TOKEN", "")
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initSecrets(C *Config) {
	C.Security.EncryptionKey = getConfigValue(C.Security.EncryptionKey, "ENCRYPTION_KEY", "")

	C.OAuth.Twitter.ClientID = getConfigValue(C.OAuth.Twitter.ClientID, "TWITTER_CLIENT_ID", "")
	C.OAuth.Twitter.ClientSecret = getConfigValue(C.OAuth.Twitter.ClientSecret, "TWITTER_CLIENT_SECRET", "")
	C.OAuth.Twitter.RedirectURI = getConfigValue(C.OAuth.Twitter.RedirectURI, "TWITTER_REDIRECT_URI", "")
	C.OAuth.LinkedIn.ClientID = getConfigValue(C.OAuth.LinkedIn.ClientID, "LINKEDIN_CLIENT_ID", "")
	C.OAuth.LinkedIn.ClientSecret = getConfigValue(C.OAuth.LinkedIn.ClientSecret, "LINKEDIN_CLIENT_SECRET", "")
	C.OAuth.LinkedIn.RedirectURI = getConfigValue(C.OAuth.LinkedIn.RedirectURI, "LINKEDIN_REDIRECT_URI", "")

	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
}

func applyDefaults(C *Config) {
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if C.App.PublicBaseURL == "" {
		scheme := "http"
		if C.App.TLSEnabled {
			scheme = "https"
		}
		C.App.PublicBaseURL = fmt.Sprintf("%s://localhost:%d", scheme, C.App.Port)
	}
	if C.App.FrontendURL == "" {
		C.App.FrontendURL = "http://localhost:3000/settings/connections"
	}
	if C.Pubsub.TopicID == "" {
		C.Pubsub.TopicID = "publication-events"
	}
	if C.ServiceBus.QueueName == "" {
		C.ServiceBus.QueueName = "publication-events"
	}
	if C.Platform.CallTimeout <= 0 {
		C.Platform.CallTimeout = 15 * time.Second
	}
	if C.Retry.MaxRetries <= 0 {
		C.Retry.MaxRetries = 3
	}
	if C.Retry.BaseDelay <= 0 {
		C.Retry.BaseDelay = time.Second
	}
	if C.Retry.MaxDelay <= 0 {
		C.Retry.MaxDelay = 2 * time.Minute
	}
	if C.RateLimit.Twitter.PerSecond <= 0 {
		C.RateLimit.Twitter = PlatformRate{PerSecond: 1, Burst: 5}
	}
	if C.RateLimit.LinkedIn.PerSecond <= 0 {
		C.RateLimit.LinkedIn = PlatformRate{PerSecond: 0.5, Burst: 2}
	}
	if C.Publish.NotifyTimeout <= 0 {
		C.Publish.NotifyTimeout = 5 * time.Second
	}
	if C.Metrics.StaleAfter <= 0 {
		C.Metrics.StaleAfter = 6 * time.Hour
	}
	if C.Metrics.BatchSize <= 0 {
		C.Metrics.BatchSize = 500
	}
	if C.Metrics.Concurrency <= 0 {
		C.Metrics.Concurrency = 4
	}
	if C.Metrics.BackfillInterval <= 0 {
		C.Metrics.BackfillInterval = 15 * time.Minute
	}
	if C.Metrics.DailyCallBudget <= 0 {
		C.Metrics.DailyCallBudget = 10000
	}
	if C.Metrics.PerUserDailyBudget <= 0 {
		C.Metrics.PerUserDailyBudget = 500
	}
}

// RedirectURI returns the configured callback for platform, or the one
// derived from PublicBaseURL.
func (c *Config) RedirectURI(platform string) string {
	var configured string
	switch platform {
	case "twitter":
		configured = c.OAuth.Twitter.RedirectURI
	case "linkedin":
		configured = c.OAuth.LinkedIn.RedirectURI
	}
	if configured != "" {
		return configured
	}
	return strings.TrimRight(c.App.PublicBaseURL, "/") + "/auth/" + platform + "/callback"
}

// getConfigValue prefers the environment, then a non-placeholder config value, then def.
func getConfigValue(configValue, envKey, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return def
}

func hasHTTPS(u string) bool { return strings.HasPrefix(u, "https://") }

func toHTTPSCallback(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
