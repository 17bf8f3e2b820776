// Package config resolves serverkit's option values in priority order:
// environment variable (prefixed SERVERKIT_), then a project manifest
// discovered by walking upward from the working directory, then a
// built-in default.
//
// Unlike manager.Config/worker.Config (plain structs filled in once by
// a CLI flag parser), Resolver is itself a small stateful collaborator,
// constructed once via New and threaded through to every package that
// needs a configuration value rather than read from a hidden global.
package config
