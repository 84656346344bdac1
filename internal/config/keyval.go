package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// KeyValue represents a config key and its value
type KeyValue struct {
	Key   string
	Value string
}

// getTOMLKey extracts the TOML key name from a struct field's tag.
// Returns "" if the field has no toml tag.
func getTOMLKey(field reflect.StructField) string {
	tag := field.Tag.Get("toml")
	if tag == "" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// IsValidKey returns true if the key is recognized by Config.
func IsValidKey(key string) bool {
	_, err := findField(reflect.ValueOf(Config{}), key)
	return err == nil
}

// GetConfigValue retrieves a value from a config struct by its TOML key.
func GetConfigValue(cfg *Config, key string) (string, error) {
	field, err := findField(reflect.ValueOf(cfg).Elem(), key)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

// SetConfigValue sets a value on a config struct by its TOML key.
// Converts the string value to the appropriate Go type.
func SetConfigValue(cfg *Config, key string, value string) error {
	field, err := findField(reflect.ValueOf(cfg).Elem(), key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field for key %q", key)
	}
	return setFieldValue(field, value)
}

// ListConfigKeys returns every key of the config with its current value.
func ListConfigKeys(cfg *Config) []KeyValue {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	var result []KeyValue
	for i := 0; i < t.NumField(); i++ {
		key := getTOMLKey(t.Field(i))
		if key == "" {
			continue
		}
		result = append(result, KeyValue{Key: key, Value: formatValue(v.Field(i))})
	}
	return result
}

func findField(v reflect.Value, key string) (reflect.Value, error) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if getTOMLKey(t.Field(i)) == key {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown config key: %q", key)
}

// formatValue converts a reflect.Value to its string representation
func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// setFieldValue sets a reflect.Value from a string, handling type conversion
func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %q", value)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %q", value)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// SetKeyInFile updates one key in the config file at path, leaving the
// other keys as stored. Environment overrides are not written back.
func SetKeyInFile(path, key, value string) error {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := SetConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return err
	}
	return SaveGlobalTo(path, cfg)
}

func validate(cfg *Config) error {
	if cfg.PollInterval != "" {
		d, err := time.ParseDuration(cfg.PollInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid poll_interval %q: want a positive duration like 2s", cfg.PollInterval)
		}
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.PageSize < 0 || cfg.PollMaxAttempts < 0 {
		return fmt.Errorf("page_size and poll_max_attempts must not be negative")
	}
	return nil
}
