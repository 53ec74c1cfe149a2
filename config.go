package responder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bamgoo/base"
	"github.com/go-viper/mapstructure/v2"
)

const (
	configEnvPrefix = "RESPONDER_"
)

var (
	errConfigSourceNotFound = errors.New("config source not found")
)

var (
	configDrivers = &configRegistry{
		drivers: make(map[string]ConfigDriver, 0),
	}
)

type (
	// ConfigDriver loads a raw config document from params.
	ConfigDriver interface {
		Load(params base.Map) (base.Map, error)
	}

	configRegistry struct {
		mutex   sync.RWMutex
		drivers map[string]ConfigDriver
	}

	Config struct {
		Name        string            `json:"name"`
		ID          string            `json:"id"`
		Version     string            `json:"version"`
		Description string            `json:"description"`
		Metadata    map[string]string `json:"metadata"`

		Prefix     string `json:"prefix"`
		TypePrefix string `json:"type_prefix"`
		Micro      bool   `json:"micro"`

		Endpoints []EndpointConfig `json:"endpoints"`
		Bus       BusConfigs       `json:"bus"`
		Monitor   MonitorConfig    `json:"monitor"`
		Log       LogConfig        `json:"log"`
	}

	EndpointConfig struct {
		Name       string            `json:"name"`
		Subject    string            `json:"subject"`
		QueueGroup string            `json:"queue_group"`
		Metadata   map[string]string `json:"metadata"`
	}

	MonitorConfig struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
)

// RegisterConfigDriver registers a config driver by name.
func RegisterConfigDriver(name string, driver ConfigDriver) {
	configDrivers.mutex.Lock()
	defer configDrivers.mutex.Unlock()

	if name == "" {
		name = DEFAULT
	}
	if driver == nil {
		panic("Invalid config driver: " + name)
	}
	if _, ok := configDrivers.drivers[name]; ok {
		panic("Config driver already registered: " + name)
	}
	configDrivers.drivers[name] = driver
}

// ParseParams reads env (RESPONDER_*) then args (--key value, --key=value)
// and returns the merged params and the selected config driver. Without an
// explicit driver the first default config file selects the file driver.
func ParseParams(env []string, args []string) (base.Map, string, bool) {
	params := base.Map{}

	// env first
	for k, v := range parseEnv(env) {
		params[k] = v
	}
	// args override env
	for k, v := range parseArgs(args) {
		params[k] = v
	}

	driver := ""
	if v, ok := params["config_driver"].(string); ok && v != "" {
		driver = v
	}
	if driver == "" {
		if v, ok := params["driver"].(string); ok && v != "" {
			driver = v
		}
	}

	if driver == "" {
		file, _ := params["config"].(string)
		if file == "" {
			file, _ = params["file"].(string)
		}
		if file == "" {
			file = defaultConfigFile()
		}
		if file == "" {
			return params, "", false
		}
		params["file"] = file
		driver = "file"
	}

	return params, driver, true
}

// LoadConfig resolves the config source from env and args, loads it and
// decodes it. With no source it returns the defaults. The params "name",
// "id" and "version" override the loaded document.
func LoadConfig(env []string, args []string) (Config, error) {
	params, driverName, ok := ParseParams(env, args)

	raw := base.Map{}
	if ok {
		configDrivers.mutex.RLock()
		driver, found := configDrivers.drivers[driverName]
		configDrivers.mutex.RUnlock()
		if !found {
			return Config{}, fmt.Errorf("unknown config driver: %s", driverName)
		}

		loaded, err := driver.Load(params)
		if err != nil {
			return Config{}, fmt.Errorf("load config (%s): %w", driverName, err)
		}
		if loaded == nil {
			return Config{}, errConfigSourceNotFound
		}
		raw = loaded
	}

	cfg, err := ParseConfig(raw)
	if err != nil {
		return Config{}, err
	}

	if v, ok := params["name"].(string); ok && v != "" {
		cfg.Name = v
	}
	if v, ok := params["id"].(string); ok && v != "" {
		cfg.ID = v
	}
	if v, ok := params["version"].(string); ok && v != "" {
		cfg.Version = v
	}
	return cfg, nil
}

// ParseConfig decodes a raw config document. Scalars are converted weakly,
// so "8080" decodes into a port and "true" into a flag.
func ParseConfig(raw base.Map) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Service builds the service described by the config. handlers are matched
// to endpoints by name; endpoints without a handler reply not_implemented.
func (cfg Config) Service(handlers map[string]Handler) (*Service, error) {
	identity := Identity{
		Name:        cfg.Name,
		ID:          cfg.ID,
		Version:     cfg.Version,
		Description: cfg.Description,
		Metadata:    cfg.Metadata,
	}

	endpoints := make([]Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, Endpoint{
			Name:       ep.Name,
			Subject:    ep.Subject,
			QueueGroup: ep.QueueGroup,
			Metadata:   ep.Metadata,
			Handler:    handlers[ep.Name],
		})
	}
	return NewService(identity, endpoints...)
}

// Options returns the responder options selected by the config.
func (cfg Config) Options() []Option {
	opts := make([]Option, 0)
	if cfg.Micro {
		opts = append(opts, WithMicroCompat())
	}
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	if cfg.TypePrefix != "" {
		opts = append(opts, WithTypePrefix(cfg.TypePrefix))
	}
	return opts
}

func parseEnv(env []string) base.Map {
	params := base.Map{}
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		val := parts[1]
		if !strings.HasPrefix(key, configEnvPrefix) {
			continue
		}
		k := strings.ToLower(strings.TrimPrefix(key, configEnvPrefix))
		params[k] = val
	}
	return params
}

func parseArgs(args []string) base.Map {
	params := base.Map{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		kv := strings.TrimPrefix(arg, "--")
		if kv == "" {
			continue
		}
		if strings.Contains(kv, "=") {
			parts := strings.SplitN(kv, "=", 2)
			params[strings.ToLower(parts[0])] = parts[1]
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			params[strings.ToLower(kv)] = args[i+1]
			i++
		} else {
			params[strings.ToLower(kv)] = "true"
		}
	}
	return params
}

func defaultConfigFile() string {
	candidates := []string{"config.toml", "config.json", "config.yaml", "config.yml"}

	if len(os.Args) > 0 {
		if exe := filepath.Base(os.Args[0]); exe != "" {
			name := strings.TrimSuffix(exe, filepath.Ext(exe))
			candidates = append(candidates, name+".toml", name+".json", name+".yaml")
		}
	}

	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			return file
		}
	}
	return ""
}
