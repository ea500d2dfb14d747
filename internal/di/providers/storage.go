package providers

import (
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/testimonials/internal/avatar"
	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/logger"
)

// ProvideAvatarStorage provides the avatar file storage.
func ProvideAvatarStorage(i do.Injector) (*avatar.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)

	storage, err := avatar.NewStorageWithSubdir(filepath.Dir(cfg.Storage.AvatarPath), filepath.Base(cfg.Storage.AvatarPath))
	if err != nil {
		return nil, fmt.Errorf("avatar storage: %w", err)
	}
	return storage, nil
}

// AvatarResolverHandle wraps the resolver so its limiter cleanup stops on shutdown.
type AvatarResolverHandle struct {
	*avatar.Resolver
}

// Shutdown implements do.Shutdownable.
func (h *AvatarResolverHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideAvatarResolver provides the avatar resolver.
func ProvideAvatarResolver(i do.Injector) (*AvatarResolverHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storage := do.MustInvoke[*avatar.Storage](i)

	opts := avatar.DefaultOptions()
	opts.Timeout = cfg.Avatar.Timeout
	opts.MaxBytes = cfg.Avatar.MaxBytes
	opts.RatePerHost = cfg.Avatar.Rate

	return &AvatarResolverHandle{Resolver: avatar.NewResolver(storage, opts, log.Logger)}, nil
}
