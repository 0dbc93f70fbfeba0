// Package config loads shadercam settings and watches files that can change
// while the service runs.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "SHADERCAM_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts from the TOML file named by its Config field, then
// from SHADERCAM_* environment variables. Flags explicitly set on cmd win
// over both.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}
	skip := func(i int) bool {
		return changed[fieldNameToFlag(t.Field(i).Name)]
	}

	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := os.ReadFile(f.String())
		if err == nil {
			var tree map[string]any
			if err := toml.Unmarshal(data, &tree); err != nil {
				return fmt.Errorf("parse %s: %w", f.String(), err)
			}
			for i := 0; i < v.NumField(); i++ {
				path := t.Field(i).Tag.Get("toml")
				if path == "" || skip(i) {
					continue
				}
				if value := getNestedValue(tree, path); value != nil {
					setFieldValue(v.Field(i), value)
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		if key == "" || skip(i) {
			continue
		}
		if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
			setFieldValueFromString(v.Field(i), value)
		}
	}
	return nil
}

// fieldNameToFlag converts a struct field name to its CLI flag name:
// "LoggingLevel" becomes "logging-level".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue looks up a dotted path in a decoded TOML tree.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			if parsed, err := time.ParseDuration(d); err == nil {
				field.SetInt(int64(parsed))
			}
		case int64:
			field.SetInt(d * int64(time.Millisecond))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch i := value.(type) {
		case int64:
			field.SetInt(i)
		case int:
			field.SetInt(int64(i))
		}
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		slice := reflect.MakeSlice(field.Type(), 0, len(arr))
		for _, item := range arr {
			if s, isString := item.(string); isString {
				slice = reflect.Append(slice, reflect.ValueOf(s).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
	}
}

func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		// Comma separated
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				slice = reflect.Append(slice, reflect.ValueOf(part).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
	}
}

// LoadLoggingConfig reads the [logging] table of a config file. Keys other
// than level and format are per-module levels. A missing or unreadable file
// yields the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}
	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
