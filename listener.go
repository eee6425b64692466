package copilot

import (
	"log/slog"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

// Listener receives coordinator lifecycle notifications. Callbacks run
// inline on the operation goroutine (catalog events on the refresh
// goroutine), so implementations must be fast and must not block.
// *observability.Collector satisfies it.
type Listener interface {
	OnCatalogSynced(stats catalog.Stats)
	OnCatalogError(err error)
	OnValidationPassed(res *validation.Result)
	OnValidationFailed(res *validation.Result)
	OnWorkflowCreated(id, name string)
	OnWorkflowDeleted(id string)
	OnRouteDecided(d router.Decision)
}

// NoopListener discards every notification. Embed it to implement only the
// callbacks a listener cares about.
type NoopListener struct{}

func (NoopListener) OnCatalogSynced(catalog.Stats)         {}
func (NoopListener) OnCatalogError(error)                  {}
func (NoopListener) OnValidationPassed(*validation.Result) {}
func (NoopListener) OnValidationFailed(*validation.Result) {}
func (NoopListener) OnWorkflowCreated(string, string)      {}
func (NoopListener) OnWorkflowDeleted(string)              {}
func (NoopListener) OnRouteDecided(router.Decision)        {}

// catalogEvents adapts the catalog's event surface onto the listener.
// Engine connectivity changes have no listener callback; they are logged.
type catalogEvents struct {
	listener Listener
	logger   *slog.Logger
}

func (e catalogEvents) CatalogSynced(stats catalog.Stats) { e.listener.OnCatalogSynced(stats) }

func (e catalogEvents) CatalogSyncError(err error) { e.listener.OnCatalogError(err) }

func (e catalogEvents) EngineConnected(version string) {
	e.logger.Info("engine connected", "version", version)
}

func (e catalogEvents) EngineDisconnected(err error) {
	e.logger.Warn("engine disconnected", "error", err)
}
