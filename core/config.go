package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Unresolved registrant policies.
const (
	UnresolvedRegistrantCreate = "create"
	UnresolvedRegistrantFail   = "fail"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	SignalingConfig struct {
		RequireToken bool
		ICEURLs      []string
		PresenceTTL  time.Duration
	}

	RegistrationConfig struct {
		// UnresolvedRegistrant is one of UnresolvedRegistrantCreate or UnresolvedRegistrantFail.
		UnresolvedRegistrant string
	}

	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail string
		FrontendBaseURL  string

		Server       ServerConfig
		Database     DatabaseConfig
		Signaling    SignalingConfig
		Registration RegistrationConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether raw error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.Env == "PROD"
}

// NewConfig loads the configuration of the current ENV (DEV by default) from the environment,
// after loading `config/.env.<env>` if such a file exists.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, env)

	return newConfigFrom(v, env)
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("app.name", "Tutorias")
	v.SetDefault("build", "develop")
	v.SetDefault("secret.key", "tut0r1as-dev-secret-!change-me!")
	v.SetDefault("default.from.email", "noreply@localhost")
	v.SetDefault("frontend.base.url", "http://localhost:3000")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.debug.host", ":5010")
	v.SetDefault("server.shutdown.timeout", 5*time.Second)
	v.SetDefault("jwt.expiration.delta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tutordb")
	v.SetDefault("database.user", "tutorias")
	v.SetDefault("database.password", "tutorias")
	v.SetDefault("database.disable.tls", true)
	v.SetDefault("database.max.open.conns", 25)
	v.SetDefault("database.max.idle.conns", 5)

	v.SetDefault("signaling.require.token", false)
	v.SetDefault("signaling.ice.urls", "stun:stun.l.google.com:19302")
	v.SetDefault("presence.ttl", 2*time.Minute)

	v.SetDefault("registration.unresolved.registrant", UnresolvedRegistrantCreate)
}

func newConfigFrom(v *viper.Viper, env string) *Config {
	conf := &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("app.name"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secret.key"),
		RollbarToken:     v.GetString("rollbar.token"),
		SendgridAPIKey:   v.GetString("sendgrid.api.key"),
		DefaultFromEmail: v.GetString("default.from.email"),
		FrontendBaseURL:  v.GetString("frontend.base.url"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debug.host"),
			ShutdownTimeout:    v.GetDuration("server.shutdown.timeout"),
			JWTExpirationDelta: v.GetDuration("jwt.expiration.delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin.user"),
			AdminPassword: v.GetString("database.admin.password"),
			DisableTLS:    v.GetBool("database.disable.tls"),
			MaxOpenConns:  v.GetInt("database.max.open.conns"),
			MaxIdleConns:  v.GetInt("database.max.idle.conns"),
		},
		Signaling: SignalingConfig{
			RequireToken: v.GetBool("signaling.require.token"),
			ICEURLs:      splitList(v.GetString("signaling.ice.urls")),
			PresenceTTL:  v.GetDuration("presence.ttl"),
		},
		Registration: RegistrationConfig{
			UnresolvedRegistrant: CleanString(v.GetString("registration.unresolved.registrant"), true /* lower */),
		},
	}
	if conf.Registration.UnresolvedRegistrant != UnresolvedRegistrantFail {
		conf.Registration.UnresolvedRegistrant = UnresolvedRegistrantCreate
	}
	return conf
}

// NewTestConfig returns a config suitable for tests: debug, test mode and no external services.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v, "TEST")
	return newConfigFrom(v, "TEST")
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) String() string {
	return fmt.Sprintf("%s(%s) env=%s debug=%t", c.AppName, c.Build, c.Env, c.Debug)
}
