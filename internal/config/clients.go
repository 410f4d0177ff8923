package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClientSeed is one entry of a CLIENTS_FILE document. Secret is the raw
// client secret; it is hashed before it is stored.
type ClientSeed struct {
	ID                   string   `yaml:"client_id"`
	Secret               string   `yaml:"client_secret"`
	Name                 string   `yaml:"client_name"`
	URI                  string   `yaml:"client_uri"`
	LogoURI              string   `yaml:"logo_uri"`
	RedirectURIs         []string `yaml:"redirect_uris"`
	Scopes               []string `yaml:"scopes"`
	GrantTypes           []string `yaml:"grant_types"`
	ResponseTypes        []string `yaml:"response_types"`
	Confidential         bool     `yaml:"confidential"`
	RequirePKCE          *bool    `yaml:"require_pkce"`
	AccessTokenLifetime  int      `yaml:"access_token_lifetime"`
	RefreshTokenLifetime int      `yaml:"refresh_token_lifetime"`
	RateLimit            int      `yaml:"rate_limit"`
}

// UserSeed is a resource owner known to the login system. Seeding users
// lets userinfo answer in development setups.
type UserSeed struct {
	ID            string `yaml:"id"`
	Username      string `yaml:"username"`
	Name          string `yaml:"name"`
	Picture       string `yaml:"picture"`
	Email         string `yaml:"email"`
	EmailVerified bool   `yaml:"email_verified"`
}

// Seed is a parsed CLIENTS_FILE document.
type Seed struct {
	Clients []ClientSeed `yaml:"clients"`
	Users   []UserSeed   `yaml:"users"`
}

// LoadSeedFile parses a YAML document of the form
//
//	clients:
//	  - client_id: web
//	    client_secret: s3cret
//	    confidential: true
//	    redirect_uris: [https://app.example/cb]
//	users:
//	  - id: alice
//	    email: alice@example.com
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}

	var doc Seed
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("parse clients file %s: %v", path, err)}
	}

	seen := make(map[string]bool, len(doc.Clients))
	for i, c := range doc.Clients {
		if c.ID == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("clients[%d]: client_id is required", i)}
		}
		if seen[c.ID] {
			return nil, &ConfigError{Message: fmt.Sprintf("clients[%d]: duplicate client_id %q", i, c.ID)}
		}
		seen[c.ID] = true
		if c.Confidential && c.Secret == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("client %q: confidential clients need client_secret", c.ID)}
		}
		if !c.Confidential && c.Secret != "" {
			return nil, &ConfigError{Message: fmt.Sprintf("client %q: public clients must not have client_secret", c.ID)}
		}
	}
	for i, u := range doc.Users {
		if u.ID == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("users[%d]: id is required", i)}
		}
	}
	return &doc, nil
}
