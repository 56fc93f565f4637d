package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary. The API key is masked.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}
	if cfg == nil {
		d := Default()
		cfg = &d
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Server URL:       %s\n", cfg.BaseURL())
	fmt.Fprintf(out, "  API Key:          %s\n", maskSecret(cfg.Server.APIKey))
	fmt.Fprintf(out, "  Server Path:      %s\n", orDefault(cfg.Server.Path, "(auto-detect)"))
	fmt.Fprintf(out, "  Server Port:      %d\n", cfg.ServerPort())
	fmt.Fprintf(out, "  Server Log:       %s\n", cfg.ServerLogPath())
	fmt.Fprintf(out, "  Server Config:    %s\n", cfg.ServerConfigYAML())
	fmt.Fprintf(out, "  Request Timeout:  %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Ready Timeout:    %s\n", cfg.ReadyTimeout())
	fmt.Fprintf(out, "  Insecure TLS:     %v\n", cfg.InsecureTLS())
	fmt.Fprintf(out, "  Poll Interval:    %s\n", cfg.PollInterval())
	fmt.Fprintf(out, "  Download Timeout: %s\n", cfg.MonitorTimeout())
	fmt.Fprintf(out, "  Chat Provider:    %s\n", cfg.ChatProvider())
	fmt.Fprintf(out, "  Max New Tokens:   %d\n", cfg.MaxNewTokens())
	fmt.Fprintf(out, "  Temperature:      %.2f\n", cfg.Temperature())
	fmt.Fprintf(out, "  Top P:            %.2f\n", cfg.TopP())
	fmt.Fprintf(out, "  Log Level:        %s\n", cfg.LogLevel())
	fmt.Fprintf(out, "  Log File:         %s\n", orDefault(cfg.LogFilePath(), "(stderr only)"))
	fmt.Fprintf(out, "  Metrics Addr:     %s\n", orDefault(cfg.Metrics.Addr, "(disabled)"))
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return "(none)"
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****" + s[len(s)-2:]
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
