package common

import "time"

const (
	// receive batch bounds: out-of-range values are clamped, never rejected
	MinMessagesPerReceive = 1
	MaxMessagesPerReceive = 10

	DefaultVisibilityTimeout = 30 * time.Second

	// OS:
	WindowsOS = "windows"
	LinuxOS   = "linux"
	MacOS     = "darwin"

	// store backends:
	FileBackend   = "file"
	SqliteBackend = "sqlite"
)

var (
	SupportedBackends = map[string]bool{
		FileBackend:   true,
		SqliteBackend: true,
	}
)
