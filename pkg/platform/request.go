package platform

// BinaryRequest describes everything needed to locate, download, or run a
// server binary. It is immutable after construction — callers build a new
// one rather than mutating an existing request mid-flight.
type BinaryRequest struct {
	Version      string
	OS           Descriptor
	Arch         string
	DownloadDir  string
	SystemBinary string
	CheckMD5     bool
}
