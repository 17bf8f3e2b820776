// Package download provisions a server binary: it asks pkg/locate
// where the binary should live, and if it isn't there yet, acquires a
// pkg/lockfile lock, fetches the archive over HTTP, optionally verifies
// its MD5 against a vendor-published sidecar, extracts the single
// binary entry the archive ships, and installs it atomically.
//
// A Downloader owns the in-process state that makes repeat calls
// cheap: a version-to-path cache and the Locker serializing concurrent
// downloads of the same version. Construct one with NewDownloader and
// keep it around — callers sharing a Downloader for the same version
// download it once; the lockfile underneath additionally serializes
// across separate processes that don't share one.
package download
