// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Store          Store           `yaml:"store"`
	Database       Database        `yaml:"database"`
	ValKey         ValKey          `yaml:"valkey"`
	GitHub         GitHub          `yaml:"github"`
	SessionManager SessionManager  `yaml:"sessionManager"`
	Housekeeper    Housekeeper     `yaml:"housekeeper"`
	Audit          commoncfg.Audit `yaml:"audit"`
}

type HTTPServer struct {
	Address           string        `yaml:"address" default:":3001"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" default:"5s"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" default:"10s"`
}

type StoreType string

const (
	StoreValKey   StoreType = "valkey"
	StoreDatabase StoreType = "database"
	StoreMemory   StoreType = "memory"
)

type Store struct {
	Type StoreType `yaml:"type" default:"valkey"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"repo-explorer"`
}

// GitHub configures the OAuth application and the REST API.
// ClientID, ClientSecret, RedirectURI and AppURI are read from the
// CLIENT_ID, CLIENT_SECRET, REDIRECT_URI and APP_URI environment
// variables unless the config file sets another source.
type GitHub struct {
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURI  commoncfg.SourceRef `yaml:"redirectURI"`
	AppURI       commoncfg.SourceRef `yaml:"appURI"`

	Scopes         []string      `yaml:"scopes"`
	AuthorizeURL   string        `yaml:"authorizeURL" default:"https://github.com/login/oauth/authorize"`
	TokenURL       string        `yaml:"tokenURL" default:"https://github.com/login/oauth/access_token"`
	APIBaseURL     string        `yaml:"apiBaseURL" default:"https://api.github.com/"`
	UserAgent      string        `yaml:"userAgent" default:"GitHub-Explorer-App"`
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`
}

type SessionManager struct {
	// SessionDuration applies to access tokens issued without a lifetime.
	SessionDuration time.Duration       `yaml:"sessionDuration" default:"8h"`
	StateSecret     commoncfg.SourceRef `yaml:"stateSecret"`
	StateMaxAge     time.Duration       `yaml:"stateMaxAge" default:"10m"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"1h"`
}

