package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultBackendURL = "https://manage-quiz-fastapi.onrender.com"

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		WorkDir      string
		RollbarToken string

		Server   ServerConfig
		Backend  BackendConfig
		Session  SessionConfig
		Cache    CacheConfig
		Database DatabaseConfig
		CLI      CLIConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	// BackendConfig locates the REST backend which is the system of record.
	BackendConfig struct {
		BaseURL string
	}

	SessionConfig struct {
		Backend    string // memory | bolt | postgres
		BoltPath   string
		CookieName string
		MaxAge     time.Duration
	}

	CacheConfig struct {
		Backend   string // memory | redis
		RedisAddr string
		TTL       time.Duration
	}

	// CLIConfig is read by quizctl, whose session lives in a local bolt file.
	CLIConfig struct {
		SessionFile string
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file
// and the environment (prefixed with the upper-cased env name, eg. `DEV_BACKEND_BASEURL`).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetDefault("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.WorkDir = Getwd()
	conf.Backend.BaseURL = strings.TrimRight(conf.Backend.BaseURL, "/")
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Quizboard")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("backend.baseURL", DefaultBackendURL)

	v.SetDefault("session.backend", "bolt")
	v.SetDefault("session.boltPath", filepath.Join("data", "sessions.db"))
	v.SetDefault("session.cookieName", "quizboard_session")
	v.SetDefault("session.maxAge", 30*24*time.Hour)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redisAddr", "")
	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("cli.sessionFile", defaultCLISessionFile())

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "quizboard")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)
}

func defaultCLISessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("data", "quizctl.db")
	}
	return filepath.Join(home, ".quizboard", "quizctl.db")
}
