package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/config"
	"github.com/md-rashed-zaman/clinicapi/libs/kafkax"
)

type settings struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	BcryptRounds int

	MaxLoginAttempts int
	LockoutWindow    time.Duration

	RateLimitMax     int
	RateLimitWindow  time.Duration
	AuthRateLimitMax int

	CORSOrigins      []string
	StrictReschedule bool
	MigrateOnStart   bool

	// Seed account for memory mode.
	AdminDocument string
	AdminPassword string
}

// loadSettings reads every key and reports all invalid ones together.
func loadSettings() (settings, error) {
	var (
		s    settings
		err  error
		errs []error
	)
	keep := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.Port, err = config.Port("PORT", "8080")
	keep(err)
	s.DatabaseURL = config.String("DATABASE_URL", "")
	s.RedisAddr = config.String("REDIS_ADDR", "")
	s.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	s.KafkaTopic = config.String("KAFKA_TOPIC", "clinic.appointments.v1")

	s.JWTSecret, err = config.RequiredString("JWT_SECRET")
	keep(err)
	s.AccessTTL, err = config.Duration("JWT_ACCESS_TTL", 24*time.Hour)
	keep(err)
	s.RefreshTTL, err = config.Duration("JWT_REFRESH_TTL", 7*24*time.Hour)
	keep(err)
	s.BcryptRounds, err = bcryptRounds()
	keep(err)

	s.MaxLoginAttempts, err = config.Int("MAX_LOGIN_ATTEMPTS", 5)
	keep(err)
	s.LockoutWindow, err = config.Duration("LOCKOUT_TIME", 15*time.Minute)
	keep(err)

	s.RateLimitMax, err = config.Int("RATE_LIMIT_MAX", 100)
	keep(err)
	s.RateLimitWindow, err = config.Duration("RATE_LIMIT_WINDOW", 15*time.Minute)
	keep(err)
	s.AuthRateLimitMax, err = config.Int("AUTH_RATE_LIMIT_MAX", 5)
	keep(err)

	s.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS", "http://localhost:4200")
	s.StrictReschedule, err = config.Bool("RESCHEDULE_CONFLICT_CHECK", false)
	keep(err)
	s.MigrateOnStart, err = config.Bool("MIGRATE_ON_START", true)
	keep(err)

	s.AdminDocument = config.String("ADMIN_DOCUMENT", "")
	s.AdminPassword = config.String("ADMIN_PASSWORD", "")

	if s.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be at least 1"))
	}
	if s.RateLimitMax < 1 || s.AuthRateLimitMax < 1 {
		errs = append(errs, errors.New("rate limits must be at least 1"))
	}
	return s, errors.Join(errs...)
}

func bcryptRounds() (int, error) {
	n, err := config.Int("BCRYPT_ROUNDS", 12)
	if err != nil {
		return 0, err
	}
	if n < 4 || n > 31 {
		return 0, errors.New("BCRYPT_ROUNDS must be between 4 and 31")
	}
	return n, nil
}

func (s settings) memoryMode() bool { return s.DatabaseURL == "" }
