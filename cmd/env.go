package main

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v7"
)

// environment represents the configuration that is kept in the environment.
type environment struct {
	DataDir     string `env:"ADBLOCK_DATA_DIR" envDefault:"./data"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsAddr string `env:"ADBLOCK_METRICS_ADDR"`
	UserAgent   string `env:"ADBLOCK_USER_AGENT"`

	MaxListSize datasize.ByteSize `env:"ADBLOCK_MAX_LIST_SIZE" envDefault:"64MB"`

	RefreshIvl  timeutil.Duration `env:"ADBLOCK_REFRESH_INTERVAL" envDefault:"24h"`
	HTTPTimeout timeutil.Duration `env:"ADBLOCK_HTTP_TIMEOUT" envDefault:"1m"`

	CacheSize int `env:"ADBLOCK_CACHE_SIZE" envDefault:"10000"`

	LimitedEasyList strictBool `env:"ADBLOCK_LIMITED_EASYLIST" envDefault:"0"`
	LogTimestamp    strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
}

// parseEnvironment reads the configuration.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// type check
var _ validate.Interface = (*environment)(nil)

// Validate implements the [validate.Interface] interface for *environment.
func (envs *environment) Validate() (err error) {
	errs := []error{
		validate.NotEmpty("ADBLOCK_DATA_DIR", envs.DataDir),
		validate.Positive("ADBLOCK_MAX_LIST_SIZE", envs.MaxListSize),
		validate.Positive("ADBLOCK_REFRESH_INTERVAL", envs.RefreshIvl),
		validate.Positive("ADBLOCK_HTTP_TIMEOUT", envs.HTTPTimeout),
		validate.NotNegative("ADBLOCK_CACHE_SIZE", envs.CacheSize),
	}

	_, err = slogutil.NewFormat(envs.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %w", err))
	}

	return errors.Join(errs...)
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
