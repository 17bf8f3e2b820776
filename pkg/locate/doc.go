// Package locate plans where a server binary lives, or should be
// downloaded to, without touching the filesystem beyond reads. It sits
// between pkg/platform (which names the binary) and pkg/download (which
// actually fetches and writes it).
package locate
