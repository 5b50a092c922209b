package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf holds the app configuration; loaded once at startup.
var Conf *Config

type Config struct {
	AppName         string
	Env             string // DEV (local; default), TEST, QA, PROD
	Debug           bool
	TestMode        bool
	Build           string
	SecretKey       []byte
	FrontendBaseURL string

	DefaultFromEmail mail.Address
	SendgridApiKey   string
	RollbarToken     string

	Server     ServerConfig
	Database   DatabaseConfig
	Attendance AttendanceConfig
	Presence   PresenceConfig
}

type ServerConfig struct {
	Host               string
	Addr               string
	ShutdownTimeout    time.Duration
	JWTExpirationDelta time.Duration
}

type DatabaseConfig struct {
	Engine        string
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	AdminUser     string
	AdminPassword string
	DisableTLS    bool
}

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// AttendanceConfig carries the attendance policy knobs.
type AttendanceConfig struct {
	// LateThreshold is how long after a session's start time a join is still
	// classified as "present"; any later join is "late".
	LateThreshold time.Duration
	// AllowRejoin controls whether a participant who left may open a new
	// record in the same session.
	AllowRejoin bool
}

type PresenceConfig struct {
	TickInterval        time.Duration
	CallTimeout         time.Duration
	SingleActiveTracker bool
}

func init() {
	Conf = NewConfig()
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "DNC Learning")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("build", "dev")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "dnclearning")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("attendance.lateThreshold", time.Duration(0))
	v.SetDefault("attendance.allowRejoin", true)

	v.SetDefault("presence.tickInterval", time.Second)
	v.SetDefault("presence.callTimeout", 5*time.Second)
	v.SetDefault("presence.singleActiveTracker", true)

	env := os.Getenv("ENV")
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        testMode,
		Build:           v.GetString("build"),
		SecretKey:       []byte(v.GetString("secretKey")),
		FrontendBaseURL: v.GetString("frontendBaseURL"),

		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Addr:               v.GetString("server.addr"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Attendance: AttendanceConfig{
			LateThreshold: v.GetDuration("attendance.lateThreshold"),
			AllowRejoin:   v.GetBool("attendance.allowRejoin"),
		},
		Presence: PresenceConfig{
			TickInterval:        v.GetDuration("presence.tickInterval"),
			CallTimeout:         v.GetDuration("presence.callTimeout"),
			SingleActiveTracker: v.GetBool("presence.singleActiveTracker"),
		},
	}
}
