package handlers

import (
	"log/slog"

	"github.com/firtigh/firtigh/internal/config"
	"github.com/firtigh/firtigh/internal/database"
	"github.com/firtigh/firtigh/internal/gemini"
	"github.com/firtigh/firtigh/internal/groups"
	"github.com/firtigh/firtigh/internal/ledger"
	"github.com/firtigh/firtigh/internal/prompt"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	GeminiClient gemini.Client
	Groups       *groups.Manager
	Assembler    *prompt.Assembler
	Ledger       *ledger.Ledger
}
