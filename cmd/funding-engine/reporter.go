package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/broadcasthub"
)

// logReporter is a trimmed, non-TUI consumer of the broadcast layer: it
// subscribes to both published channels and prints each message, purely to
// exercise the publish path end-to-end. A real dashboard or gateway would
// subscribe to the hub the same way, out of process.
type logReporter struct {
	out io.Writer
	hub *broadcasthub.Hub

	wg   sync.WaitGroup
	stop []func()
}

func newLogReporter(out io.Writer, hub *broadcasthub.Hub) *logReporter {
	return &logReporter{out: out, hub: hub}
}

// Start subscribes to both broadcast channels and begins printing updates.
func (r *logReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "Funding Engine Reporter Started")
	fmt.Fprintln(r.out, "================================")

	updates, unsubUpdates := r.hub.Subscribe(app.ChannelRatesUpdate)
	stats, unsubStats := r.hub.Subscribe(app.ChannelRatesStats)
	r.stop = []func(){unsubUpdates, unsubStats}

	r.wg.Add(2)
	go r.consume(ctx, updates, r.printUpdate)
	go r.consume(ctx, stats, r.printStats)

	return nil
}

func (r *logReporter) consume(ctx context.Context, ch <-chan []byte, handle func([]byte)) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			handle(payload)
		}
	}
}

func (r *logReporter) printUpdate(payload []byte) {
	var msg app.RatesUpdateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	fmt.Fprintf(r.out, "[%s] rates update: %d symbols\n", msg.Timestamp.Format("15:04:05"), len(msg.Rates))
	for _, p := range msg.Rates {
		fmt.Fprintf(r.out, "  %s status=%s exchanges=%d", p.Symbol, p.Status, p.ExchangeCount)
		if p.LongExchange != "" {
			fmt.Fprintf(r.out, " long=%s short=%s spread=%s%% apy=%s%%",
				p.LongExchange, p.ShortExchange, p.SpreadPercent, p.SpreadAnnualized)
		}
		fmt.Fprintln(r.out)
	}
}

func (r *logReporter) printStats(payload []byte) {
	var p app.RatesStatsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	fmt.Fprintf(r.out, "--- stats: symbols=%d opportunities=%d approaching=%d maxSpread=%s active=%d recorded=%d ended=%d errors=%d\n",
		p.TotalSymbols, p.OpportunityCount, p.ApproachingCount, p.MaxSpreadSymbol,
		p.Tracker.ActiveCount, p.Tracker.OpportunitiesRecorded, p.Tracker.OpportunitiesEnded, p.Tracker.Errors)
}

// Stop unsubscribes from both channels and waits for the consumer
// goroutines to drain.
func (r *logReporter) Stop() {
	for _, unsub := range r.stop {
		unsub()
	}
	r.wg.Wait()
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Funding Engine Reporter Stopped")
}
