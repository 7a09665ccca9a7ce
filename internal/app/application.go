// Package app wires stores, services and lifecycle management together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/greenchain/greenchain/internal/app/services/auth"
	"github.com/greenchain/greenchain/internal/app/services/claims"
	"github.com/greenchain/greenchain/internal/app/services/donations"
	verificationsvc "github.com/greenchain/greenchain/internal/app/services/verification"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/internal/app/storage/memory"
	"github.com/greenchain/greenchain/internal/app/system"
	"github.com/greenchain/greenchain/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users        storage.UserStore
	Donations    storage.DonationStore
	Claims       storage.ClaimStore
	Verification storage.VerificationStore
}

// Options tunes application construction.
type Options struct {
	// JWTSecret signs session tokens. Required outside of tests.
	JWTSecret string

	// SweepInterval is the expiry sweeper cadence. Zero disables the
	// sweeper entirely, which tests rely on.
	SweepInterval time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Auth         *auth.Service
	Donations    *donations.Service
	Claims       *claims.Service
	Verification *verificationsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Donations == nil {
		stores.Donations = mem
	}
	if stores.Claims == nil {
		stores.Claims = mem
	}
	if stores.Verification == nil {
		stores.Verification = mem
	}

	manager := system.NewManager()

	authService := auth.New(stores.Users, opts.JWTSecret, log)
	donationService := donations.New(stores.Donations, stores.Users, stores.Claims, stores.Verification, log)
	claimService := claims.New(stores.Claims, stores.Donations, log)
	verificationService := verificationsvc.New(stores.Verification, stores.Donations, log)

	if opts.SweepInterval > 0 {
		sweeper := donations.NewSweeper(stores.Donations, opts.SweepInterval, log)
		if err := manager.Register(sweeper); err != nil {
			return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
		}
	} else {
		log.Warn("sweep interval not set; donation expiry sweeper disabled")
	}

	return &Application{
		manager:      manager,
		log:          log,
		Auth:         authService,
		Donations:    donationService,
		Claims:       claimService,
		Verification: verificationService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
