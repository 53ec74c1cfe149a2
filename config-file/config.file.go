package config_file

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bamgoo/base"
	"github.com/bamgoo/responder"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type fileConfigDriver struct{}

func init() {
	responder.RegisterConfigDriver("file", &fileConfigDriver{})
}

// Driver returns the file config driver.
func Driver() responder.ConfigDriver {
	return &fileConfigDriver{}
}

func (d *fileConfigDriver) Load(params base.Map) (base.Map, error) {
	file, _ := params["file"].(string)
	if file == "" {
		file, _ = params["path"].(string)
	}
	if file == "" {
		file, _ = params["config"].(string)
	}
	if file == "" {
		return nil, errors.New("Missing config file")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	format, _ := params["format"].(string)
	if format == "" {
		format = formatByExt(file)
	}
	if format == "" {
		format = detectFormat(data)
	}

	return decodeConfig(data, format)
}

func formatByExt(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return "json"
	case ".toml", ".tml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

func detectFormat(data []byte) string {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return "json"
	}
	return "toml"
}

func decodeConfig(data []byte, format string) (base.Map, error) {
	var out base.Map
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	case "toml":
		if err := toml.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errors.New("Unknown config format: " + format)
	}
}
