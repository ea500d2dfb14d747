package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/store"
	"github.com/listenupapp/testimonials/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the document store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.New(cfg.Storage.DBPath, log.Logger, store.Options{})
	if err != nil {
		return nil, err
	}

	return &StoreHandle{Store: db}, nil
}

// LedgerHandle wraps the run ledger with shutdown capability.
type LedgerHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *LedgerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLedger provides the run history ledger.
func ProvideLedger(i do.Injector) (*LedgerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	ledger, err := sqlite.Open(cfg.Storage.LedgerPath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	log.Debug("run ledger opened", "path", cfg.Storage.LedgerPath)
	return &LedgerHandle{Store: ledger}, nil
}
