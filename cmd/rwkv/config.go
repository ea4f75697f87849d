package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional config file at $XDG_CONFIG_HOME/rwkv/config.yaml.
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Model    string      `yaml:"model"`
	Prefab   string      `yaml:"prefab"`
	Quant    QuantConfig `yaml:"quant"`
	Rescale  *int64      `yaml:"rescale"`
	Extended *bool       `yaml:"extended"`
	Seed     *uint64     `yaml:"seed"`

	Sampler SamplerConfig `yaml:"sampler"`
	Serve   ServeConfig   `yaml:"serve"`
	Log     LogConfig     `yaml:"log"`
}

type QuantConfig struct {
	Int8 *int64 `yaml:"int8"`
	NF4  *int64 `yaml:"nf4"`
	SF4  *int64 `yaml:"sf4"`
}

type SamplerConfig struct {
	Temp *float64 `yaml:"temp"`
	TopP *float64 `yaml:"top_p"`
	TopK *int64   `yaml:"top_k"`
}

type ServeConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rwkv", "config.yaml")
}

// LoadConfig reads the config file. It returns a zero Config if the file is
// missing or unreadable.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := readConfig(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyModelConfig fills the shared model flags from cfg where the flag was
// not given on the command line.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.Prefab != "" && !c.IsSet("prefab") {
		prefabPath = cfg.Prefab
	}
	if cfg.Quant.Int8 != nil && !c.IsSet("quant-int8") {
		quantInt8 = *cfg.Quant.Int8
	}
	if cfg.Quant.NF4 != nil && !c.IsSet("quant-nf4") {
		quantNF4 = *cfg.Quant.NF4
	}
	if cfg.Quant.SF4 != nil && !c.IsSet("quant-sf4") {
		quantSF4 = *cfg.Quant.SF4
	}
	if cfg.Rescale != nil && !c.IsSet("rescale") {
		rescale = *cfg.Rescale
	}
	if cfg.Extended != nil && !c.IsSet("extended") {
		extended = *cfg.Extended
	}
}

// applySamplerConfig fills sampler flags from cfg where they were not set.
func applySamplerConfig(c *cli.Command, cfg Config, temp, topP *float64, topK *int64, seed *uint64) {
	if cfg.Sampler.Temp != nil && !c.IsSet("temp") {
		*temp = *cfg.Sampler.Temp
	}
	if cfg.Sampler.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.Sampler.TopP
	}
	if cfg.Sampler.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.Sampler.TopK
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}
