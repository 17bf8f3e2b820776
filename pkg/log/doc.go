/*
Package log provides structured logging for serverkit using zerolog.

A single package-level Logger is initialized once via Init, keyed off
the DEBUG config value, and shared by the components that log
(platform, lockfile, download, supervisor). lockfile, download, and
supervisor get a child logger via WithComponent; platform logs through
Logger and Warn directly. Anything else worth tagging — a
binary version, a data path, a lock path — is added inline with
zerolog's own fluent field API at the call site, rather than through a
dedicated helper per field.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	dl := log.WithComponent("download")
	dl.Info().Str("version", req.Version).Msg("provisioning binary")
*/
package log
