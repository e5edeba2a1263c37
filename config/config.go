// Package config loads server configuration from the environment and the
// optional queryables and item schema files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/stevemurr/stac-server/schema"
	"github.com/stevemurr/stac-server/stac"
	"github.com/stevemurr/stac-server/store"
)

// Config describes the server configuration.
type Config struct {
	Host    string `env:"STAC_HOST"     envDefault:"0.0.0.0"`
	Port    string `env:"STAC_PORT"     envDefault:"8080"`
	Backend string `env:"STAC_BACKEND"  envDefault:"sqlite"`
	DataDir string `env:"STAC_DATA_DIR" envDefault:"./data"`

	// SQLDriver selects the database/sql driver of the sqlite backend:
	// "sqlite3" (cgo) or "sqlite" (pure Go).
	SQLDriver string `env:"STAC_SQL_DRIVER" envDefault:"sqlite3"`

	ESURL         []string `env:"ES_URL"               envSeparator:"," envDefault:"http://localhost:9200"`
	ESKey         string   `env:"ES_KEY"`
	ESUsername    string   `env:"ES_USERNAME"`
	ESPassword    string   `env:"ES_PASSWORD"`
	ESIndexPrefix string   `env:"STAC_ES_INDEX_PREFIX" envDefault:"stac_"`
	ESRefresh     string   `env:"STAC_ES_REFRESH"      envDefault:"true"`

	Extensions      []string `env:"STAC_API_EXTENSIONS"   envSeparator:"," envDefault:"context,fields,query,sort,transaction"`
	DefaultIncludes []string `env:"STAC_DEFAULT_INCLUDES" envSeparator:","`
	DefaultLimit    int      `env:"STAC_DEFAULT_LIMIT"    envDefault:"10"`
	MaxLimit        int      `env:"STAC_MAX_LIMIT"        envDefault:"10000"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	JWTSecret      string   `env:"STAC_JWT_SECRET"`

	QueryablesFile string `env:"STAC_QUERYABLES_FILE"`
	ItemSchemaFile string `env:"STAC_ITEM_SCHEMA_FILE"`

	Title       string `env:"STAC_TITLE"       envDefault:"STAC API"`
	Description string `env:"STAC_DESCRIPTION"`

	OTelEndpoint string `env:"STAC_OTEL_ENDPOINT"`
}

var knownExtensions = map[string]bool{
	stac.ExtContext:     true,
	stac.ExtFields:      true,
	stac.ExtQuery:       true,
	stac.ExtSort:        true,
	stac.ExtTransaction: true,
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that env parsing cannot.
func (c *Config) Validate() error {
	exts := c.Extensions[:0]
	for _, e := range c.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !knownExtensions[e] {
			return fmt.Errorf("STAC_API_EXTENSIONS: unknown extension %q", e)
		}
		exts = append(exts, e)
	}
	c.Extensions = exts
	if c.DefaultLimit < 1 {
		return fmt.Errorf("STAC_DEFAULT_LIMIT must be positive, got %d", c.DefaultLimit)
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("STAC_MAX_LIMIT (%d) is below STAC_DEFAULT_LIMIT (%d)", c.MaxLimit, c.DefaultLimit)
	}
	switch c.ESRefresh {
	case "true", "false", "wait_for":
	default:
		return fmt.Errorf("STAC_ES_REFRESH must be true, false or wait_for, got %q", c.ESRefresh)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// StoreOptions maps the configuration onto store.Options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   c.Backend,
		DataDir:   c.DataDir,
		SQLDriver: c.SQLDriver,
		Elasticsearch: store.ElasticsearchOptions{
			Addresses:   c.ESURL,
			APIKey:      c.ESKey,
			Username:    c.ESUsername,
			Password:    c.ESPassword,
			IndexPrefix: c.ESIndexPrefix,
			Refresh:     c.ESRefresh,
		},
	}
}

// LoadQueryables reads the queryables file. Without a file the defaults
// apply. The file may be YAML, JSON or TOML:
//
//	queryables:
//	  gsd:
//	    type: number
//	    title: Ground Sample Distance
//	  platform:
//	    type: string
func (c *Config) LoadQueryables() (stac.Queryables, error) {
	if c.QueryablesFile == "" {
		return stac.DefaultQueryables(), nil
	}
	// Property names such as "proj:epsg" must not be split on dots.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(c.QueryablesFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read queryables %s: %w", c.QueryablesFile, err)
	}
	var q stac.Queryables
	if err := v.UnmarshalKey("queryables", &q); err != nil {
		return nil, fmt.Errorf("decode queryables %s: %w", c.QueryablesFile, err)
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("queryables %s: no queryables defined", c.QueryablesFile)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("queryables %s: %w", c.QueryablesFile, err)
	}
	return q, nil
}

// LoadItemSchema reads and compiles the optional extra JSON Schema items
// must satisfy. Without a file it returns nil.
func (c *Config) LoadItemSchema() (*schema.Schema, error) {
	if c.ItemSchemaFile == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.ItemSchemaFile)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("item schema %s: %w", c.ItemSchemaFile, err)
	}
	s, err := schema.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("item schema %s: %w", c.ItemSchemaFile, err)
	}
	return s, nil
}
