package app

import (
	adminsvc "github.com/parcellink/backend/internal/app/services/admin"
	authsvc "github.com/parcellink/backend/internal/app/services/auth"
	"github.com/parcellink/backend/internal/app/services/credits"
	"github.com/parcellink/backend/internal/app/services/parcels"
	"github.com/parcellink/backend/internal/app/services/users"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/app/storage/memory"
	tokens "github.com/parcellink/backend/internal/auth"
	"github.com/parcellink/backend/internal/config"
	"github.com/parcellink/backend/internal/logging"
	"github.com/parcellink/backend/internal/session"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users   storage.UserStore
	Parcels storage.ParcelStore
	Ledger  storage.LedgerStore
	Stats   storage.StatsStore
}

// Application ties the domain services together.
type Application struct {
	log *logging.Logger

	Issuer *tokens.Issuer

	Auth    *authsvc.Service
	Users   *users.Service
	Credits *credits.Service
	Parcels *parcels.Service
	Admin   *adminsvc.Service
}

// New builds a fully initialised application with the provided stores. A nil
// sessions store defaults to the in-memory implementation.
func New(cfg *config.Config, stores Stores, sessions session.Store, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Parcels == nil {
		stores.Parcels = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Stats == nil {
		stores.Stats = mem
	}
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}

	issuer := tokens.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.UserTokenTTL.Std(), cfg.Auth.AdminTokenTTL.Std())

	userService := users.New(stores.Users, stores.Ledger, cfg.Pricing.StartingCredits, log)
	creditService := credits.New(stores.Ledger, log)
	parcelService := parcels.New(stores.Parcels, stores.Ledger, cfg.Pricing.PricePerRequest, log)
	adminService := adminsvc.New(stores.Stats, log)
	authService := authsvc.New(userService, issuer, sessions, cfg.Auth.BotToken, authsvc.AdminCredentials{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: cfg.Auth.AdminPasswordHash,
	}, log)

	return &Application{
		log:     log,
		Issuer:  issuer,
		Auth:    authService,
		Users:   userService,
		Credits: creditService,
		Parcels: parcelService,
		Admin:   adminService,
	}, nil
}
