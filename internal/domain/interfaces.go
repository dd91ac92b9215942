package domain

import (
	"context"
)

// CompatibilityScorer evaluates one donor against one patient. Implementations must be
// pure: no I/O, no shared mutable state, identical inputs give identical results.
type CompatibilityScorer interface {
	Evaluate(donor DonorProfile, patient PatientProfile) EvaluationResult
}

// DonorRepository lists registered donors.
type DonorRepository interface {
	ListAvailable(ctx context.Context, filter DonorFilter) ([]Donor, int, error)
	ListBloodDonors(ctx context.Context, filter DonorFilter) ([]BloodDonor, int, error)
	GetByID(ctx context.Context, id int64) (*Donor, error)
}

// PatientRepository resolves patient rows.
type PatientRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	GetByID(ctx context.Context, id int64) (*Patient, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
