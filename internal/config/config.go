package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type WebRTC struct {
	AnnouncedIP string   `mapstructure:"announced_ip"`
	MinPort     uint16   `mapstructure:"min_port"`
	MaxPort     uint16   `mapstructure:"max_port"`
	ICEServers  []string `mapstructure:"ice_servers"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	Secret        string        `mapstructure:"secret"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	ChatPerMinute int           `mapstructure:"chat_per_minute"`
	RoomGC        bool          `mapstructure:"room_gc"`
	WebRTC        WebRTC        `mapstructure:"webrtc"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "dev-secret-change-me")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("chat_per_minute", 60)
	v.SetDefault("room_gc", true)
	v.SetDefault("webrtc.announced_ip", "")
	v.SetDefault("webrtc.min_port", 40000)
	v.SetDefault("webrtc.max_port", 49999)
	v.SetDefault("webrtc.ice_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
