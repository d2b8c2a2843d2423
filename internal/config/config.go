package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ListConfig is a list of names given either inline or as a path to a file
// with one name per line. Lines starting with '#' are ignored.
type ListConfig struct {
	Values []string `mapstructure:"-"`
	Path   string   `mapstructure:"path"`
}

// Set returns the list as a lookup set.
func (l ListConfig) Set() map[string]bool {
	set := make(map[string]bool, len(l.Values))
	for _, v := range l.Values {
		set[v] = true
	}
	return set
}

type GenerateConfig struct {
	Inputs       []string `mapstructure:"inputs"`
	Crates       []string `mapstructure:"crates"`
	Namespace    string   `mapstructure:"namespace"`
	ManagedDir   string   `mapstructure:"managed_dir"`
	NativeFile   string   `mapstructure:"native_file"`
	RegistryFile string   `mapstructure:"registry_file"`
	LockFile     string   `mapstructure:"lock_file"`
	Samples      string   `mapstructure:"samples"`
	CStyleEnums  bool     `mapstructure:"c_style_enums"`
}

type ExcludeConfig struct {
	// Types are never seeded for tracing.
	Types ListConfig `mapstructure:"types"`
	// Definitions are traced but their wire form is hand-authored on the
	// managed side, so no definition is emitted.
	Definitions ListConfig `mapstructure:"definitions"`
	// Functions are canonical keys dropped before ordinal assignment.
	Functions ListConfig `mapstructure:"functions"`
	// FunctionNames are short names dropped wherever they appear.
	FunctionNames ListConfig `mapstructure:"function_names"`
	// Unbound are canonical keys that keep their ordinal but get no invoker.
	Unbound ListConfig `mapstructure:"unbound"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Config struct {
	Generate   GenerateConfig    `mapstructure:"generate"`
	Exclude    ExcludeConfig     `mapstructure:"exclude"`
	Namespaces map[string]string `mapstructure:"namespaces"`
	History    HistoryConfig     `mapstructure:"history"`
}

// cacheBase returns the base cache directory for eguinet.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/eguinet as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "eguinet")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "eguinet")
	}
	return filepath.Join(os.TempDir(), "eguinet")
}

// DBPath returns the default path to the DuckDB history database.
func DBPath() string {
	return filepath.Join(cacheBase(), "history.db")
}

// JSONCacheDir returns the path to the rustdoc JSON cache directory.
func JSONCacheDir() string {
	return filepath.Join(cacheBase(), "json")
}

func InitializeViper() error {
	viper.SetConfigName("eguinet")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "eguinet"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "eguinet"))
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("EGUINET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("generate.inputs", []string{"egui.json"})
	v.SetDefault("generate.crates", DefaultCrates)
	v.SetDefault("generate.namespace", "Egui")
	v.SetDefault("generate.managed_dir", "g")
	v.SetDefault("generate.native_file", "egui_fn.rs")
	v.SetDefault("generate.registry_file", "registry.yaml")
	v.SetDefault("generate.lock_file", "ordinals.lock.yaml")
	v.SetDefault("generate.samples", "")
	v.SetDefault("generate.c_style_enums", true)

	v.SetDefault("exclude.types", DefaultExcludeTypes)
	v.SetDefault("exclude.definitions", DefaultExcludeDefinitions)
	v.SetDefault("exclude.functions", DefaultExcludeFunctions)
	v.SetDefault("exclude.function_names", DefaultExcludeFunctionNames)
	v.SetDefault("exclude.unbound", DefaultUnbound)

	v.SetDefault("namespaces", map[string]string{})

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "")
}

// stringToListConfigHookFunc accepts inline arrays, comma-separated strings,
// and file paths for any ListConfig field.
func stringToListConfigHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(ListConfig{}) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			s := data.(string)
			if looksLikePath(s) {
				return ListConfig{Path: s}, nil
			}
			return ListConfig{Values: splitList(s)}, nil
		case reflect.Slice:
			rv := reflect.ValueOf(data)
			values := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				values = append(values, fmt.Sprint(rv.Index(i).Interface()))
			}
			return ListConfig{Values: values}, nil
		}
		return data, nil
	}
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "~/")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return decode(viper.AllSettings())
}

func decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringToListConfigHookFunc(),
		Result:     &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	lists := map[string]*ListConfig{
		"exclude.types":          &config.Exclude.Types,
		"exclude.definitions":    &config.Exclude.Definitions,
		"exclude.functions":      &config.Exclude.Functions,
		"exclude.function_names": &config.Exclude.FunctionNames,
		"exclude.unbound":        &config.Exclude.Unbound,
	}
	keys := make([]string, 0, len(lists))
	for k := range lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := resolveList(lists[k]); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", k, err)
		}
	}

	return &config, nil
}

func resolveList(list *ListConfig) error {
	if list.Path == "" {
		return nil
	}
	path := list.Path
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read list from file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list.Values = append(list.Values, line)
	}
	return scanner.Err()
}

// Namespace returns the C# namespace for a Rust module path, using the
// longest matching prefix of the namespace map. Unmapped modules fall back
// to the root namespace.
func (c *Config) Namespace(modulePath []string) string {
	best, bestLen := c.Generate.Namespace, -1
	for prefix, ns := range c.Namespaces {
		segs := strings.Split(prefix, "::")
		if len(segs) > len(modulePath) || len(segs) <= bestLen {
			continue
		}
		match := true
		for i, s := range segs {
			if modulePath[i] != s {
				match = false
				break
			}
		}
		if match {
			best, bestLen = ns, len(segs)
		}
	}
	return best
}
