package modrun

import "context"

// Context is handed to every ModuleBase.Run call. It carries the ambient
// cancellation/deadline context.Context plus the opaque parallel-runtime
// handle the ModuleManager was configured with, so a module may parallelize
// its own work without the core ever spawning a goroutine itself — the core
// "never suspends," per the concurrency model; only a module's own Run body
// may choose to. Grounded on the shape of
// _examples/caddyserver-caddy/context.go's Context (which embeds
// context.Context and adds caddy-specific accessors); Runtime plays the
// role caddy's Context.cfg plays for HTTP apps.
type Context struct {
	context.Context
	runtime any
}

// Runtime returns the opaque parallel-runtime handle passed through from
// the owning ModuleManager. The core does not interpret it; modules that
// know its concrete type may type-assert it themselves.
func (c Context) Runtime() any { return c.runtime }

// newContext wraps a context.Context and a runtime handle for a single Run
// invocation.
func newContext(ctx context.Context, runtime any) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Context{Context: ctx, runtime: runtime}
}
