package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"seatwatch.sqlite"`

	// Checking engine.
	CheckIntervalSecs        int  `env:"CHECK_INTERVAL_SECS" envDefault:"300"`
	NotifyOnFirstObservation bool `env:"NOTIFY_ON_FIRST_OBSERVATION" envDefault:"false"`

	Source struct {
		BaseURL          string `env:"SOURCE_BASE_URL" envDefault:"https://wish.wis.ntu.edu.sg/webexe/owa/aus_vacancy.check_vacancy2"`
		AcademicTerm     string `env:"ACADEMIC_TERM" envDefault:"2025;2"`
		TimeoutSecs      int    `env:"SOURCE_TIMEOUT_SECS" envDefault:"30"`
		CallSpacingSecs  int    `env:"SOURCE_CALL_SPACING_SECS" envDefault:"2"`
		ServiceOpenHour  int    `env:"SOURCE_SERVICE_OPEN_HOUR" envDefault:"8"`
		ServiceCloseHour int    `env:"SOURCE_SERVICE_CLOSE_HOUR" envDefault:"22"`
		Timezone         string `env:"SOURCE_TIMEZONE" envDefault:"Asia/Singapore"`
	}
	Telegram struct {
		BotToken    string `env:"TELEGRAM_BOT_TOKEN"`
		APIBaseURL  string `env:"TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`
		RegisterURL string `env:"REGISTER_URL" envDefault:"https://wish.wis.ntu.edu.sg/pls/webexe/ldap_login.login?w_url=https://wish.wis.ntu.edu.sg/pls/webexe/aus_stars_planner.main"`
	}
	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env == "development" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) CheckInterval() time.Duration {
	return time.Duration(cfg.CheckIntervalSecs) * time.Second
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
