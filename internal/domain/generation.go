package domain

import "time"

// GenerationState is the lifecycle state of a city slug.
type GenerationState string

const (
	StateNotStarted GenerationState = "NOT_STARTED"
	StateInProgress GenerationState = "IN_PROGRESS"
	StateReady      GenerationState = "READY"
	StateFailed     GenerationState = "FAILED"
)

// GenerationRecord tracks the generation state of one slug.
type GenerationRecord struct {
	Slug  string          `json:"slug"`
	City  string          `json:"city"`
	State GenerationState `json:"state"`
	Error string          `json:"error,omitempty"`
	// ArtifactRef is the generation id of the latest READY artifact, if any.
	ArtifactRef string    `json:"artifact_ref,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ready reports whether the record points at a usable artifact.
func (r GenerationRecord) Ready() bool {
	return r.State == StateReady
}

// KnownCity is one entry of the known-cities listing.
type KnownCity struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Ready bool   `json:"ready"`
}
