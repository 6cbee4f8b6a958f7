package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=conversation,membership,moderator"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.guardbot"`
		DBName           string   `env:"DB_NAME,default=guardbot.db"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`

		AdminCacheTTL  time.Duration `env:"ADMIN_CACHE_TTL,default=1m"`
		CaptchaTimeout time.Duration `env:"CAPTCHA_TIMEOUT,default=3m"`

		LLM LLM
	}

	// LLM configures the optional advisory spam scorer. Disabled when
	// the API key is empty.
	LLM struct {
		APIKey  string `env:"LLM_API_KEY"`
		Model   string `env:"LLM_API_MODEL,default=gemini-2.5-flash-lite"`
		BaseURL string `env:"LLM_API_URL"`
		Type    string `env:"LLM_API_TYPE,default=gemini"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GB_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
