package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Instance InstanceConfig `yaml:"instance"`
}

type BridgeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type HTTPConfig struct {
	InsecureTLS  bool     `yaml:"insecure_tls"`
	MaxRedirects int      `yaml:"max_redirects"`
	Timeout      Duration `yaml:"timeout"`
}

// Duration accepts "30s" style values in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type LogConfig struct {
	Level   string   `yaml:"level"`
	Targets []string `yaml:"targets"`
	Dir     string   `yaml:"dir"`
}

type InstanceConfig struct {
	SocketPath string `yaml:"socket_path"`
}

func defaults() *Config {
	runtimeDir := filepath.Join(os.TempDir(), "skybridge")

	return &Config{
		Bridge: BridgeConfig{
			ListenAddr: "127.0.0.1:7420",
		},
		HTTP: HTTPConfig{
			// Matches the shipped desktop behavior: the forwarder and
			// the passthrough both accept invalid certificates unless
			// the user turns this off.
			InsecureTLS:  true,
			MaxRedirects: 15,
			Timeout:      Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:   "info",
			Targets: []string{"stdout", "file", "webview"},
			Dir:     runtimeDir,
		},
		Instance: InstanceConfig{
			SocketPath: filepath.Join(runtimeDir, "instance.sock"),
		},
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides on top of it. A missing file or .env is not an error;
// defaults cover everything.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if v := os.Getenv("BRIDGE_LISTEN_ADDR"); v != "" {
		cfg.Bridge.ListenAddr = v
	}
	if v := os.Getenv("HTTP_INSECURE_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.HTTP.InsecureTLS = b
		}
	}
	if v := os.Getenv("HTTP_MAX_REDIRECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.MaxRedirects = n
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("INSTANCE_SOCKET_PATH"); v != "" {
		cfg.Instance.SocketPath = v
	}

	return cfg, nil
}
