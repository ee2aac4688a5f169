package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// field is one settable leaf of the config, addressed by its json names.
type field struct {
	path  string
	value reflect.Value
}

// fieldName returns the json name of a struct field, without options.
func fieldName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" {
		return sf.Name
	}
	return name
}

// leaves walks cfg and returns every non-struct field in declaration order.
// Unlike a JSON round trip it also reports fields that omitempty would hide.
func leaves(cfg *Config) []field {
	var out []field
	var walk func(prefix string, v reflect.Value)
	walk = func(prefix string, v reflect.Value) {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			path := fieldName(t.Field(i))
			if prefix != "" {
				path = prefix + "." + path
			}
			fv := v.Field(i)
			if fv.Kind() == reflect.Struct {
				walk(path, fv)
				continue
			}
			out = append(out, field{path: path, value: fv})
		}
	}
	walk("", reflect.ValueOf(cfg).Elem())
	return out
}

// lookup resolves a dot path to a section or a leaf.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config path %q: %s is not a section", path, key)
		}
		t := v.Type()
		found := false
		for i := 0; i < t.NumField(); i++ {
			if fieldName(t.Field(i)) == key {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("unknown config path %q", path)
		}
	}
	return v, nil
}

// GetByPath returns the value of a section or field by dot path
// (e.g. "schedule" or "schedule.hour").
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses value into the type of the field at path. Sections and
// unknown paths are rejected. Lists take a JSON array or comma-separated text.
func SetByPath(cfg *Config, path, value string) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s expects a whole number, got %q", path, value)
		}
		v.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", path, value)
		}
		v.SetBool(b)
	case reflect.Slice:
		items, err := parseList(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		v.Set(reflect.ValueOf(items))
	case reflect.Struct:
		return fmt.Errorf("%s is a section; set one of its fields", path)
	default:
		return fmt.Errorf("%s cannot be set from the command line", path)
	}
	return nil
}

func parseList(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "[") {
		var items []string
		if err := json.Unmarshal([]byte(value), &items); err != nil {
			return nil, fmt.Errorf("invalid list: %w", err)
		}
		return items, nil
	}
	items := strings.Split(value, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items, nil
}

// Edit loads the raw config file, sets one field and saves it back. The file
// is left untouched when the edited config would not load.
func Edit(path, key, value string) error {
	cfg, err := LoadRaw(path)
	if err != nil {
		return err
	}
	if err := SetByPath(cfg, key, value); err != nil {
		return err
	}
	if err := ValidateRaw(cfg); err != nil {
		return err
	}
	return Save(ExpandPath(path), cfg)
}

// ValidateRaw checks a config as stored on disk. References are expanded
// from the current environment on a copy; ones that stay unresolved are
// accepted since they may be set where the bot runs.
func ValidateRaw(cfg *Config) error {
	expanded := *cfg
	for _, f := range leaves(&expanded) {
		if f.value.Kind() == reflect.String {
			f.value.SetString(ExpandEnvVars(f.value.String()))
		}
	}
	if err := ApplyEnv(&expanded); err != nil {
		return err
	}
	return validate(&expanded, false)
}

// Sanitize returns a copy of the config with tokens and keys masked.
func Sanitize(cfg *Config) *Config {
	masked := *cfg
	masked.Prompts.Questions = append([]string(nil), cfg.Prompts.Questions...)
	for _, secret := range []*string{
		&masked.Discord.Token,
		&masked.Telegram.Token,
		&masked.Slack.BotToken,
		&masked.Slack.AppToken,
		&masked.Provider.APIKey,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	return &masked
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	for _, f := range leaves(cfg) {
		out[f.path] = f.value.Interface()
	}
	return out
}

// SortedPaths returns the settable paths in alphabetical order.
func SortedPaths(cfg *Config) []string {
	fs := leaves(cfg)
	paths := make([]string, len(fs))
	for i, f := range fs {
		paths[i] = f.path
	}
	sort.Strings(paths)
	return paths
}
