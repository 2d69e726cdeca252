package marketplace

import "context"

// Provider resolves extension identifiers to gallery entries with all their
// published versions.
type Provider interface {
	Name() string
	Query(ctx context.Context, ids []string) ([]Extension, error)
}

// Type represents the type of marketplace
type Type string

const (
	TypeMicrosoft Type = "microsoft"
	TypeOpenVSX   Type = "open-vsx"
)
