// internal/providerfactory/factory_test.go
package providerfactory

import (
	"testing"

	"github.com/mwiater/kolosalctl/internal/appconfig"
	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/metrics"
	kolosalprovider "github.com/mwiater/kolosalctl/internal/providers/kolosal"
	openaiprovider "github.com/mwiater/kolosalctl/internal/providers/openai"
	"github.com/mwiater/kolosalctl/internal/transport"
)

func testClient() *kolosal.Client {
	return kolosal.New(kolosal.NewConnection("http://localhost:8080", ""), transport.New(transport.Options{}))
}

// TestNewChatProviderErrorsOnNilConfig verifies that a nil config is rejected.
func TestNewChatProviderErrorsOnNilConfig(t *testing.T) {
	if _, err := NewChatProvider(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

// TestNewChatProviderDefaultsToKolosal verifies that an empty provider name selects the kolosal provider.
func TestNewChatProviderDefaultsToKolosal(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Chat.Provider = ""

	provider, err := NewChatProvider(&cfg, testClient(), nil)
	if err != nil {
		t.Fatalf("NewChatProvider returned error: %v", err)
	}
	if _, ok := provider.(*kolosalprovider.Provider); !ok {
		t.Fatalf("expected kolosal.Provider, got %T", provider)
	}
}

// TestNewChatProviderKolosalNeedsClient verifies that the kolosal provider requires a client.
func TestNewChatProviderKolosalNeedsClient(t *testing.T) {
	cfg := appconfig.Default()
	if _, err := NewChatProvider(&cfg, nil, nil); err == nil {
		t.Fatal("expected error without a client")
	}
}

// TestNewChatProviderOpenAI verifies that the openai provider is built from config.
func TestNewChatProviderOpenAI(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Chat.Provider = "OpenAI"

	provider, err := NewChatProvider(&cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewChatProvider returned error: %v", err)
	}
	if _, ok := provider.(*openaiprovider.Provider); !ok {
		t.Fatalf("expected openai.Provider, got %T", provider)
	}
}

// TestNewChatProviderRejectsUnsupported verifies that unknown provider names are rejected.
func TestNewChatProviderRejectsUnsupported(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Chat.Provider = "ollama"
	if _, err := NewChatProvider(&cfg, testClient(), nil); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNewChatProviderWrapsWithMetrics verifies that a metrics recorder wraps the selected provider.
func TestNewChatProviderWrapsWithMetrics(t *testing.T) {
	cfg := appconfig.Default()
	provider, err := NewChatProvider(&cfg, testClient(), metrics.NewCollector())
	if err != nil {
		t.Fatalf("NewChatProvider returned error: %v", err)
	}
	if _, ok := provider.(*metrics.Provider); !ok {
		t.Fatalf("expected metrics.Provider, got %T", provider)
	}
	if provider.Name() != kolosalprovider.Name {
		t.Fatalf("expected wrapped name %q, got %q", kolosalprovider.Name, provider.Name())
	}
}
