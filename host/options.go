package host

import (
	"log/slog"

	"github.com/annex-dev/annex-host-sdk/capability"
	"github.com/annex-dev/annex-host-sdk/parser"
)

// Option defines a functional option for configuring the Loader.
type Option func(*Loader)

// WithLogger sets the logger used for loader and plugin log events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithManifestParser sets the parser applied to plugin manifest bytes.
// The default parses JSON.
func WithManifestParser(p parser.ManifestParser) Option {
	return func(l *Loader) {
		l.parser = p
	}
}

// WithInvokeMiddleware installs middleware around every capability
// invocation, in FIFO order.
func WithInvokeMiddleware(mws ...capability.Middleware) Option {
	return func(l *Loader) {
		l.middleware = append(l.middleware, mws...)
	}
}
