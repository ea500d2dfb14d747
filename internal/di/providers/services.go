package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/export"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/pipeline"
	"github.com/listenupapp/testimonials/internal/rules"
)

// ProvidePipeline provides the import orchestrator.
func ProvidePipeline(i do.Injector) (*pipeline.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	set := do.MustInvoke[*rules.Set](i)
	st := do.MustInvoke[*StoreHandle](i)
	ledger := do.MustInvoke[*LedgerHandle](i)
	avatars := do.MustInvoke[*AvatarResolverHandle](i)

	return pipeline.New(st.Store, ledger.Store, avatars.Resolver, set, pipeline.Options{
		Workers:         cfg.Import.Workers,
		MetricsTextfile: cfg.Metrics.Textfile,
	}, log.Logger), nil
}

// ProvideExporter provides the artifact exporter.
func ProvideExporter(i do.Injector) (*export.Exporter, error) {
	log := do.MustInvoke[*logger.Logger](i)
	set := do.MustInvoke[*rules.Set](i)
	st := do.MustInvoke[*StoreHandle](i)

	return export.New(st.Store, set, log.Logger), nil
}
