package app

import (
	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/session"
	pkgsync "github.com/pinehappi/argon/internal/sync"
	"github.com/pinehappi/argon/internal/sync/coordinator"
	"github.com/pinehappi/argon/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Database is the in-memory class database
	Database *classdb.Database

	// SyncManager fetches and persists the class list
	SyncManager pkgsync.Manager

	// SyncCoordinator serializes refreshes and runs the periodic check
	SyncCoordinator coordinator.Coordinator

	// Session tracks the running sync session
	Session *session.Session

	// ClassService backs the HTTP API
	ClassService service.ClassService

	// Telemetry owns the meter provider and the metric instruments
	Telemetry *telemetry.Telemetry
}
