package service

import (
	"go.opentelemetry.io/otel"

	"github.com/smartcity/stationmap/internal/domain"
)

// Repository is re-exported from domain for convenience
type Repository = domain.Repository

// StationSource is re-exported from domain for convenience
type StationSource = domain.StationSource

var tracer = otel.Tracer("github.com/smartcity/stationmap/internal/service")
