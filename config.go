package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-version"

	"github.com/cephalon-sofis/wfbuddy/internal/refdata"
	"github.com/cephalon-sofis/wfbuddy/internal/session"
)

const defaultMinHealth = 0.3

type loginConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type extractorConfig struct {
	Planets   []string `yaml:"planets"`
	MinHealth float64  `yaml:"minHealth"` // ratio of current HP to durability
}

type apiConfig struct {
	BaseURL         string `yaml:"baseURL"`
	ManifestURL     string `yaml:"manifestURL"`
	AppVersion      string `yaml:"appVersion"`
	RequestInterval string `yaml:"requestInterval"` // minimum time between API requests, e.g. "500ms"
}

// config is the configuration of the app as read from the config file.
type config struct {
	Login     loginConfig     `yaml:"login"`
	Extractor extractorConfig `yaml:"extractor"`
	API       apiConfig       `yaml:"api"`
}

func defaultConfig() config {
	return config{
		Extractor: extractorConfig{MinHealth: defaultMinHealth},
		API: apiConfig{
			BaseURL:     session.DefaultBaseURL,
			ManifestURL: refdata.DefaultBaseURL,
			AppVersion:  session.DefaultAppVersion,
		},
	}
}

// loadConfig reads and validates a config file.
func loadConfig(path string) (config, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return config{}, err
	}
	return parseConfig(dat)
}

func parseConfig(dat []byte) (config, error) {
	c := defaultConfig()
	if err := yaml.UnmarshalWithOptions(dat, &c, yaml.DisallowUnknownField()); err != nil {
		return config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func (c config) validate() error {
	var errs []error
	if c.Login.Email == "" {
		errs = append(errs, errors.New("login.email is required"))
	}
	if c.Login.Password == "" {
		errs = append(errs, errors.New("login.password is required"))
	}
	if len(c.Extractor.Planets) == 0 {
		errs = append(errs, errors.New("extractor.planets is required"))
	}
	if c.Extractor.MinHealth < 0 || c.Extractor.MinHealth > 1 {
		errs = append(errs, fmt.Errorf("extractor.minHealth must be between 0 and 1: %v", c.Extractor.MinHealth))
	}
	for name, s := range map[string]string{"api.baseURL": c.API.BaseURL, "api.manifestURL": c.API.ManifestURL} {
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s is not a valid URL: %q", name, s))
		}
	}
	if _, err := version.NewVersion(c.API.AppVersion); err != nil {
		errs = append(errs, fmt.Errorf("api.appVersion: %w", err))
	}
	if _, err := c.requestInterval(); err != nil {
		errs = append(errs, fmt.Errorf("api.requestInterval: %w", err))
	}
	return errors.Join(errs...)
}

// requestInterval returns the minimum interval between API requests.
// Zero means requests are not limited.
func (c config) requestInterval() (time.Duration, error) {
	if c.API.RequestInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.API.RequestInterval)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative: %s", d)
	}
	return d, nil
}
