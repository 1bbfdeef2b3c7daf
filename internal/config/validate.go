package config

import (
	"errors"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

var ErrMissingValue = errors.New("missing configuration value")

// DefaultValues binds the OAuth settings to their environment variables.
func DefaultValues() map[string]any {
	return map[string]any{
		"github.clientID.source":            "env",
		"github.clientID.env":               "CLIENT_ID",
		"github.clientSecret.source":        "env",
		"github.clientSecret.env":           "CLIENT_SECRET",
		"github.redirectURI.source":         "env",
		"github.redirectURI.env":            "REDIRECT_URI",
		"github.appURI.source":              "env",
		"github.appURI.env":                 "APP_URI",
		"sessionManager.stateSecret.source": "env",
		"sessionManager.stateSecret.env":    "STATE_SECRET",
	}
}

// OAuth holds the resolved OAuth application settings.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AppURI       string
	StateSecret  string
}

// LoadOAuth resolves the OAuth settings. Every value must be present.
func LoadOAuth(cfg *Config) (OAuth, error) {
	var o OAuth

	refs := []struct {
		name string
		ref  commoncfg.SourceRef
		into *string
	}{
		{"CLIENT_ID", cfg.GitHub.ClientID, &o.ClientID},
		{"CLIENT_SECRET", cfg.GitHub.ClientSecret, &o.ClientSecret},
		{"REDIRECT_URI", cfg.GitHub.RedirectURI, &o.RedirectURI},
		{"APP_URI", cfg.GitHub.AppURI, &o.AppURI},
		{"STATE_SECRET", cfg.SessionManager.StateSecret, &o.StateSecret},
	}

	for _, r := range refs {
		value, err := loadPresent(r.name, r.ref)
		if err != nil {
			return OAuth{}, err
		}

		*r.into = string(value)
	}

	return o, nil
}

// Validate checks that the settings required by the selected store and the
// OAuth application are present.
func (c *Config) Validate() error {
	if _, err := LoadOAuth(c); err != nil {
		return err
	}

	switch c.Store.Type {
	case StoreValKey:
		if _, err := loadPresent("valkey host", c.ValKey.Host); err != nil {
			return err
		}
	case StoreDatabase:
		if c.Database.Name == "" {
			return fmt.Errorf("%w: database name", ErrMissingValue)
		}
		if _, err := loadPresent("database host", c.Database.Host); err != nil {
			return err
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	return nil
}

func loadPresent(name string, ref commoncfg.SourceRef) ([]byte, error) {
	value, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}

	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingValue, name)
	}

	return value, nil
}
