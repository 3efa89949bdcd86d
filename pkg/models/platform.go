// Package models defines the core domain models for platform-hosted workflow
// management and credit metering.
package models

// Platform identifies a supported upstream automation platform.
type Platform string

const (
	PlatformN8N    Platform = "n8n"
	PlatformMake   Platform = "make"
	PlatformZapier Platform = "zapier"
)

// Platforms returns every platform the system can dispatch to.
func Platforms() []Platform {
	return []Platform{PlatformN8N, PlatformMake, PlatformZapier}
}

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformN8N, PlatformMake, PlatformZapier:
		return true
	}

	return false
}
