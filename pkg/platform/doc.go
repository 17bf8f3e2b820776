// Package platform classifies the host (pkg/platform.Descriptor),
// builds the download URL and on-disk binary name for a requested
// server version (ArchiveURL, BinaryName, ArchiveName), and translates
// that classification across the platform/arch/distro tables a vendor
// release index actually ships. Distro dispatch is table-driven
// (distroFamilies) rather than a chain of if/else branches, so adding a
// family is a one-entry change.
package platform
