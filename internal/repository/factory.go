// Package repository provides the data access layer for Gatehouse.
// This file contains the repository bundle and driver helpers; the actual
// construction happens in the driver packages to avoid import cycles.
package repository

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/config"
)

// Repositories holds all repository instances.
type Repositories struct {
	AccessLink AccessLinkRepository
	PrepAccess PrepAccessRepository
	User       UserRepository
}

// DatabaseHealth is an interface for database health checks.
// Satisfied by both the sqlite and postgres DB wrappers.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Factory resolves the configured database driver.
type Factory struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger
}

// NewFactory creates a new repository factory.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// Driver returns the configured database driver.
func (f *Factory) Driver() string {
	return f.cfg.Driver
}

// IsEmbedded returns true if using an embedded database.
func (f *Factory) IsEmbedded() bool {
	return f.cfg.IsEmbedded()
}
