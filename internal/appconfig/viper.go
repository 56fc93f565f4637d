// internal/appconfig/viper.go
package appconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults registers every default on v so config files, env and flags only need to
// override what they change.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.timeout", d.Server.TimeoutSeconds)
	v.SetDefault("server.insecure_skip_verify", true)
	v.SetDefault("server.ready_timeout", d.Server.ReadyTimeoutSeconds)
	v.SetDefault("server.config_yaml", d.Server.ConfigYAML)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.path", "")
	v.SetDefault("server.log_file", "")
	v.SetDefault("download.interval_ms", d.Download.IntervalMillis)
	v.SetDefault("download.timeout_minutes", d.Download.TimeoutMinutes)
	v.SetDefault("chat.provider", d.Chat.Provider)
	v.SetDefault("chat.max_new_tokens", d.Chat.MaxNewTokens)
	v.SetDefault("chat.temperature", *d.Chat.Temperature)
	v.SetDefault("chat.top_p", *d.Chat.TopP)
	v.SetDefault("chat.no_stream", false)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("debug", false)
}

// BindEnv wires KOLOSAL_* environment variables onto v. Nested keys use underscores,
// so server.api_key is read from KOLOSAL_SERVER_API_KEY.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes v into a Config and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
