// Package di contains dependency injection tokens and typed accessors for
// the funding context.
package di

import (
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/broadcasthub"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/di"
)

// DI tokens for the funding module.
const (
	RatesCache  = "funding.RatesCache"
	Monitor     = "funding.Monitor"
	Tracker     = "funding.Tracker"
	Broadcaster = "funding.Broadcaster"
	Hub         = "funding.Hub"
)

// GetRatesCache resolves the shared rates cache singleton.
func GetRatesCache(sr di.ServiceRegistry) *app.RatesCache {
	return di.ResolveToken[*app.RatesCache](sr, RatesCache)
}

// GetMonitor resolves the monitor singleton.
func GetMonitor(sr di.ServiceRegistry) *app.Monitor {
	return di.ResolveToken[*app.Monitor](sr, Monitor)
}

// GetTracker resolves the opportunity tracker singleton.
func GetTracker(sr di.ServiceRegistry) *app.Tracker {
	return di.ResolveToken[*app.Tracker](sr, Tracker)
}

// GetBroadcaster resolves the broadcaster singleton.
func GetBroadcaster(sr di.ServiceRegistry) *app.Broadcaster {
	return di.ResolveToken[*app.Broadcaster](sr, Broadcaster)
}

// GetHub resolves the in-process pub/sub hub backing the broadcaster, so
// other composition-root consumers (e.g. a log subscriber, a future
// WebSocket gateway) can subscribe to it directly.
func GetHub(sr di.ServiceRegistry) *broadcasthub.Hub {
	return di.ResolveToken[*broadcasthub.Hub](sr, Hub)
}
