package tree

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openfga/mpath/internal/concurrency"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/treepath"
)

// DeletePolicy decides what happens to the descendants of a removed node.
type DeletePolicy string

const (
	// OnDeleteDelete removes the whole subtree of a removed node.
	OnDeleteDelete DeletePolicy = "DELETE"

	// OnDeleteReparent promotes the children of a removed node to its own parent.
	OnDeleteReparent DeletePolicy = "REPARENT"
)

const (
	DefaultPathSeparator = treepath.DefaultSeparator
	DefaultOnDelete      = OnDeleteDelete
	DefaultNumWorkers    = concurrency.DefaultStreamWorkers
)

// ParseDeletePolicy parses a policy name, ignoring case.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToUpper(s)) {
	case OnDeleteDelete:
		return OnDeleteDelete, nil
	case OnDeleteReparent:
		return OnDeleteReparent, nil
	default:
		return "", fmt.Errorf("%w: unknown delete policy '%s'", ErrInvalidConfiguration, s)
	}
}

// Config holds the settings of one tree collection.
type Config struct {
	// PathSeparator joins the identifiers of a path. It must be a single character
	// that never occurs in a node identifier.
	PathSeparator string

	// OnDelete is applied to the descendants of removed nodes.
	OnDelete DeletePolicy

	// NumWorkers bounds the number of concurrent updates of a cascading rewrite.
	NumWorkers int

	Logger logger.Logger
}

// Option defines a function type used for configuring a Tree.
type Option func(*Config)

// WithPathSeparator returns an Option that sets the path separator.
func WithPathSeparator(sep string) Option {
	return func(cfg *Config) {
		cfg.PathSeparator = sep
	}
}

// WithOnDelete returns an Option that sets the delete policy.
func WithOnDelete(policy DeletePolicy) Option {
	return func(cfg *Config) {
		cfg.OnDelete = policy
	}
}

// WithNumWorkers returns an Option that sets the number of concurrent updates of a cascading rewrite.
func WithNumWorkers(n int) Option {
	return func(cfg *Config) {
		cfg.NumWorkers = n
	}
}

// WithLogger returns an Option that sets the Logger.
func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// NewConfig returns a Config with the default values and the options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		PathSeparator: DefaultPathSeparator,
		OnDelete:      DefaultOnDelete,
		NumWorkers:    DefaultNumWorkers,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}

// Verify returns ErrInvalidConfiguration if the Config cannot be used.
func (c *Config) Verify() error {
	if utf8.RuneCountInString(c.PathSeparator) != 1 {
		return fmt.Errorf("%w: path separator must be a single character, got '%s'", ErrInvalidConfiguration, c.PathSeparator)
	}

	if c.OnDelete != OnDeleteDelete && c.OnDelete != OnDeleteReparent {
		return fmt.Errorf("%w: unknown delete policy '%s'", ErrInvalidConfiguration, c.OnDelete)
	}

	if c.NumWorkers < 1 {
		return fmt.Errorf("%w: number of workers must be at least 1, got %d", ErrInvalidConfiguration, c.NumWorkers)
	}

	return nil
}
