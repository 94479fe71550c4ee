package profile

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration of the server, populated from
// flags and PERSONAKIT_* environment variables at startup.
type Profile struct {
	// Mode is "prod" or "dev".
	Mode string
	// Addr is the bind address, empty for all interfaces.
	Addr string
	// Port is the bind port.
	Port int
	// Data is the directory for local state (vector store files, sqlite db).
	Data string
	// Driver is the storage driver: "sqlite", "mysql" or "postgres".
	Driver string
	// DSN is the database connection string for mysql/postgres.
	DSN string
	// Secret signs and verifies access tokens.
	Secret string
	// OpenRouterAPIKey authenticates against the OpenRouter API.
	// AI chat is disabled when empty.
	OpenRouterAPIKey string
	// AIModel is the chat model identifier, e.g. "openai/gpt-4o-mini".
	AIModel string
	// EmbedModel is the embedding model used by the vector store.
	EmbedModel string
	// PersonaFile optionally points at a JSON file of persona definitions.
	// Built-in personas are used when empty.
	PersonaFile string
	// QuotaLimits maps a plan tier to its daily request limit.
	QuotaLimits map[string]int32
}

// DefaultTier is the tier assumed for tokens that carry no tier claim.
const DefaultTier = "free"

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// DailyLimit returns the daily request limit for the given tier,
// falling back to the default tier for unknown tiers.
func (p *Profile) DailyLimit(tier string) int32 {
	if limit, ok := p.QuotaLimits[tier]; ok {
		return limit
	}
	return p.QuotaLimits[DefaultTier]
}

// Validate normalizes the profile and fills in defaults.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Port == 0 {
		p.Port = 8081
	}
	if p.Data == "" {
		if p.IsDev() {
			p.Data = "./data"
		} else {
			p.Data = "/var/opt/personakit"
		}
	}
	if err := os.MkdirAll(p.Data, 0750); err != nil {
		return errors.Wrapf(err, "create data dir %s", p.Data)
	}
	p.Driver = strings.ToLower(p.Driver)
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.DSN == "" {
		return errors.Errorf("dsn is required for driver %q", p.Driver)
	}
	if p.Secret == "" {
		return errors.New("secret is required")
	}
	if p.AIModel == "" {
		p.AIModel = "openai/gpt-4o-mini"
	}
	if p.EmbedModel == "" {
		p.EmbedModel = "openai/text-embedding-3-small"
	}
	if p.QuotaLimits == nil {
		p.QuotaLimits = map[string]int32{}
	}
	if _, ok := p.QuotaLimits[DefaultTier]; !ok {
		p.QuotaLimits[DefaultTier] = 30
	}
	return nil
}
