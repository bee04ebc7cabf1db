package annex

import (
	"log/slog"

	"github.com/annex-dev/annex-host-sdk/capability"
)

type settings struct {
	instantiate bool
	strict      bool
	logger      *slog.Logger
	loader      Loader
	additional  func() []capability.Type
}

// Option defines a functional option for configuring an Annex.
type Option func(*settings)

// WithInstantiate controls whether qualifying capability types are
// constructed at load time (the default) or registered as types.
func WithInstantiate(instantiate bool) Option {
	return func(s *settings) {
		s.instantiate = instantiate
	}
}

// WithStrictErrors makes per-file load failures propagate to the caller of
// New and Reload instead of being logged and skipped.
func WithStrictErrors(strict bool) Option {
	return func(s *settings) {
		s.strict = strict
	}
}

// WithLogger sets the logger for registry state transitions and plugin log
// events. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithLoader replaces the default wazero-backed loader. The Annex does not
// close a loader it did not create.
func WithLoader(loader Loader) Option {
	return func(s *settings) {
		s.loader = loader
	}
}

// WithAdditionalTypes supplies capability types outside file discovery. The
// callback runs exactly once, during construction; its members join
// iteration and lookup but are never affected by Reload.
func WithAdditionalTypes(callback func() []capability.Type) Option {
	return func(s *settings) {
		s.additional = callback
	}
}
