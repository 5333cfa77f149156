// Package config loads domain.Config from defaults, an optional YAML file,
// a .env file and OSPREY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// EnvPrefix prefixes every environment override: server.port is OSPREY_SERVER_PORT.
const EnvPrefix = "OSPREY"

// Shorthand variables kept from earlier releases.
var legacyEnv = map[string]string{
	"tier":              "OSPREY_TIER",
	"worker.enabled":    "OSPREY_ASYNC_WORKER",
	"worker.tenant_ids": "OSPREY_TENANTS",
}

// Load builds the configuration. The tier key picks the base defaults
// (DefaultConfig or ProConfig); the file and environment override them.
// An empty path skips the file.
func Load(path string) (*domain.Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, "", reflect.ValueOf(base).Elem())

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if os.Getenv("OSPREY_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("binding %s failed: %w", env, err)
		}
	}

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*domain.Config, error) {
	var cfg domain.Config
	if err := v.Unmarshal(&cfg, decodeOptions); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	return &cfg, nil
}

func decodeOptions(dc *mapstructure.DecoderConfig) {
	dc.WeaklyTypedInput = true
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var durationType = reflect.TypeOf(time.Duration(0))

// setDefaults registers every leaf of val under its mapstructure key so
// AutomaticEnv can override keys the file never mentions.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("mapstructure")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}) {
			setDefaults(v, key, fv)
			continue
		}
		if fv.Type() == durationType {
			v.SetDefault(key, fv.Interface().(time.Duration).String())
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("repository.driver %q is not supported", cfg.Repository.Driver))
	}
	ts := domain.ThresholdSet{Approve: cfg.Decision.ApproveThreshold, Block: cfg.Decision.BlockThreshold}
	if err := ts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Decision.Costs.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Ensemble.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Features.MaxWindow <= 0 {
		errs = append(errs, errors.New("features.max_window must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
