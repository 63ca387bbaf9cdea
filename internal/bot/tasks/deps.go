// Package tasks implements scheduled tasks for the firtigh Telegram bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"

	"github.com/firtigh/firtigh/internal/config"
	"github.com/firtigh/firtigh/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
// It provides access to logging, database, and configuration.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
