package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Server  struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Gateway struct {
		WSURL   string `yaml:"wsUrl"`   // 会话通道基地址，如 ws://localhost:8000
		RESTURL string `yaml:"restUrl"` // 流程存储基地址，如 http://localhost:8000/api
		Token   string `yaml:"token"`   // Bearer 令牌，空表示匿名
	} `yaml:"gateway"`
	Sqlite struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
	} `yaml:"log"`
	Devices []Device `yaml:"devices"`
}

// Device 设备预设配置
type Device struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Type   string `yaml:"type"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Server.Listen = "127.0.0.1:8931"
	cfg.Gateway.WSURL = "ws://localhost:8000"
	cfg.Gateway.RESTURL = "http://localhost:8000/api"
	cfg.Sqlite.Db = "data.db"
	cfg.Sqlite.Prefix = "cognitest_"
	cfg.Log.Level = "debug"
	// file需要在console之前，部分终端环境下控制台写入失败会影响文件日志
	cfg.Log.Writer = []string{"file", "console"}
	cfg.Devices = DefaultDevices()
	return cfg
}

// Load 从 yaml 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = DefaultDevices()
	}
	return cfg, nil
}
