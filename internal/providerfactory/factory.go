// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/kolosalctl/internal/appconfig"
	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/metrics"
	"github.com/mwiater/kolosalctl/internal/providers"
	kolosalprovider "github.com/mwiater/kolosalctl/internal/providers/kolosal"
	openaiprovider "github.com/mwiater/kolosalctl/internal/providers/openai"
)

// NewChatProvider selects and configures the chat provider named by cfg.Chat.Provider.
// The native provider talks through client; the openai provider builds its own client
// against the same server. A non-nil collector wraps the result with metrics.
func NewChatProvider(cfg *appconfig.Config, client *kolosal.Client, collector *metrics.Collector) (providers.ChatProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	var provider providers.ChatProvider
	switch name := strings.ToLower(cfg.ChatProvider()); name {
	case kolosalprovider.Name:
		if client == nil {
			return nil, fmt.Errorf("kolosal provider needs a server client")
		}
		provider = kolosalprovider.New(client)
	case openaiprovider.Name:
		provider = openaiprovider.New(openaiprovider.Options{
			BaseURL:      cfg.BaseURL(),
			APIKey:       cfg.Server.APIKey,
			MaxNewTokens: cfg.MaxNewTokens(),
			Temperature:  cfg.Temperature(),
			TopP:         cfg.TopP(),
		})
	default:
		return nil, fmt.Errorf("unsupported chat provider %q", name)
	}
	logging.LogEvent("chat provider ready: %s", provider.Name())

	if collector != nil {
		provider = metrics.NewProvider(provider, collector)
	}
	return provider, nil
}
