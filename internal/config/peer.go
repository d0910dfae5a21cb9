package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ICEConfig struct {
	STUN         []string `mapstructure:"stun"`
	TURN         []string `mapstructure:"turn"`
	TURNUsername string   `mapstructure:"turn_username"`
	TURNPassword string   `mapstructure:"turn_password"`
}

// PeerConfig drives the participant CLI.
type PeerConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	UserID       string        `mapstructure:"user_id"`
	Username     string        `mapstructure:"username"`
	ICE          ICEConfig     `mapstructure:"ice"`
	OfferDelay   time.Duration `mapstructure:"offer_delay"`
	RestartGrace time.Duration `mapstructure:"restart_grace"`
	Quality      string        `mapstructure:"quality"`
	VideoDevice  string        `mapstructure:"video_device"`
	AudioDevice  string        `mapstructure:"audio_device"`
	Loop         bool          `mapstructure:"loop"`
	LogLevel     string        `mapstructure:"log_level"`
}

func setPeerDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "ws://localhost:8080")
	v.SetDefault("ice.stun", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("offer_delay", "100ms")
	v.SetDefault("restart_grace", "2s")
	v.SetDefault("quality", "high")
	v.SetDefault("loop", true)
	v.SetDefault("log_level", "info")
}

// LoadPeer merges defaults, an optional config file, MESH_PEER_* variables
// and the command line flags in fs, later sources winning. Flags use
// dashes where keys use underscores.
func LoadPeer(fs *pflag.FlagSet, file string) (*PeerConfig, error) {
	v := viper.New()
	setPeerDefaults(v)
	v.SetEnvPrefix("MESH_PEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	}
	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			key = strings.Replace(key, "ice_", "ice.", 1)
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
	}
	if cfg.Username == "" {
		cfg.Username = "peer-" + cfg.UserID[:min(8, len(cfg.UserID))]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *PeerConfig) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.RestartGrace <= 0 {
		return fmt.Errorf("restart_grace must be positive")
	}
	if c.OfferDelay < 0 {
		return fmt.Errorf("offer_delay must not be negative")
	}
	return nil
}
