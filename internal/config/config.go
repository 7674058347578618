package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"` // vacío => /metrics en el listener principal
		// Prefijo de la ruta del popup (ej: "/oauth/popup").
		PopupPath string `yaml:"popup_path"`
	} `yaml:"server"`

	Popup struct {
		// Origin público del popup (scheme://host[:port]). Vacío => se deriva del request.
		PublicOrigin string `yaml:"public_origin"`
		// TrustForwardedHeaders habilita X-Forwarded-Proto/Host/For (origin, rate limit, HSTS).
		TrustForwardedHeaders bool          `yaml:"trust_forwarded_headers"`
		NotifyDelay           time.Duration `yaml:"notify_delay"`
		CloseDelay            time.Duration `yaml:"close_delay"`
		CloseWithoutOpener    *bool         `yaml:"close_without_opener"`
		Brand                 string        `yaml:"brand"`
	} `yaml:"popup"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Kind        string `yaml:"kind"` // memory | redis
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`
}

// Default devuelve la configuración con sane defaults, sin archivo ni env.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee el YAML (si path != ""), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PopupPath == "" {
		c.Server.PopupPath = "/oauth/popup"
	}
	c.Server.PopupPath = "/" + strings.Trim(c.Server.PopupPath, "/")
	if c.Popup.NotifyDelay == 0 {
		c.Popup.NotifyDelay = 1500 * time.Millisecond
	}
	if c.Popup.CloseDelay == 0 {
		c.Popup.CloseDelay = 1000 * time.Millisecond
	}
	if c.Popup.CloseWithoutOpener == nil {
		v := true
		c.Popup.CloseWithoutOpener = &v
	}
	c.Popup.PublicOrigin = strings.TrimRight(strings.TrimSpace(c.Popup.PublicOrigin), "/")
	if c.Popup.Brand == "" {
		c.Popup.Brand = "Shop Connect"
	}
	if c.Rate.Kind == "" {
		c.Rate.Kind = "memory"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "rl:popup:"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP / LOG
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := getEnvStr("POPUP_PATH"); ok {
		c.Server.PopupPath = v
	}

	// POPUP
	if v, ok := getEnvStr("POPUP_PUBLIC_ORIGIN"); ok {
		c.Popup.PublicOrigin = v
	}
	if v, ok := getEnvBool("POPUP_TRUST_FORWARDED_HEADERS"); ok {
		c.Popup.TrustForwardedHeaders = v
	}
	if v, ok := getEnvDur("POPUP_NOTIFY_DELAY"); ok {
		c.Popup.NotifyDelay = v
	}
	if v, ok := getEnvDur("POPUP_CLOSE_DELAY"); ok {
		c.Popup.CloseDelay = v
	}
	if v, ok := getEnvBool("POPUP_CLOSE_WITHOUT_OPENER"); ok {
		c.Popup.CloseWithoutOpener = &v
	}
	if v, ok := getEnvStr("POPUP_BRAND"); ok {
		c.Popup.Brand = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_KIND"); ok {
		c.Rate.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Rate.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
}

// RateWindow devuelve la ventana del rate limiter ya parseada.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.Rate.Window)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// CloseWithoutOpener devuelve el flag con default true.
func (c *Config) CloseWithoutOpener() bool {
	return c.Popup.CloseWithoutOpener == nil || *c.Popup.CloseWithoutOpener
}

// Validate valida los valores críticos.
func (c *Config) Validate() error {
	var errs []error

	if c.Popup.NotifyDelay < 0 {
		errs = append(errs, errors.New("popup.notify_delay must not be negative"))
	}
	if c.Popup.CloseDelay <= 0 {
		errs = append(errs, errors.New("popup.close_delay must be positive"))
	}
	if o := c.Popup.PublicOrigin; o != "" {
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" || u.RawQuery != "" {
			errs = append(errs, fmt.Errorf("popup.public_origin %q is not a scheme://host[:port] origin", o))
		}
	}
	if d, err := time.ParseDuration(c.Rate.Window); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("rate.window %q is not a positive duration", c.Rate.Window))
	}
	if c.Rate.MaxRequests < 0 {
		errs = append(errs, errors.New("rate.max_requests must not be negative"))
	}
	switch c.Rate.Kind {
	case "memory":
	case "redis":
		if c.Rate.Enabled && strings.TrimSpace(c.Rate.Redis.Addr) == "" {
			errs = append(errs, errors.New("rate.redis.addr is required when rate.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate.kind %q must be memory or redis", c.Rate.Kind))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
