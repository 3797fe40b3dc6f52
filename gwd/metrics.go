package gwd

import (
	"context"
	"encoding/json"
	"time"

	bridge "github.com/mcubridge/gatewayd"
)

// MetricsPublisher emits the three periodic status topics the daemon is
// responsible for: the full MetricsSnapshot on status_interval, the compact
// BridgeSummary on bridge_summary_interval, and the compact
// BridgeHandshakeSummary on bridge_handshake_interval. All three share one
// ticker loop so a single supervised task covers the whole publishing
// surface.
type MetricsPublisher struct {
	ctx   BridgeContext
	state *RuntimeState
	cfg   bridge.Config
	depth func() (spoolDepth, queueDepth int)
}

func NewMetricsPublisher(ctx BridgeContext, state *RuntimeState, cfg bridge.Config, depth func() (int, int)) *MetricsPublisher {
	return &MetricsPublisher{ctx: ctx, state: state, cfg: cfg, depth: depth}
}

// Run drives the three publish cadences off one shared 1-second tick,
// firing each topic only once its own interval has elapsed — avoids three
// independent tickers drifting against each other over a long uptime.
func (m *MetricsPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	statusInterval := time.Duration(m.cfg.StatusInterval) * time.Second
	summaryInterval := time.Duration(m.cfg.BridgeSummaryInterval) * time.Second
	handshakeInterval := time.Duration(m.cfg.BridgeHandshakeInterval) * time.Second

	var lastStatus, lastSummary, lastHandshake time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Sub(lastStatus) >= statusInterval {
				m.publishStatus()
				lastStatus = now
			}
			if now.Sub(lastSummary) >= summaryInterval {
				m.publishSummary(now)
				lastSummary = now
			}
			if now.Sub(lastHandshake) >= handshakeInterval {
				m.publishHandshake(now)
				lastHandshake = now
			}
		}
	}
}

func (m *MetricsPublisher) publishStatus() {
	spoolDepth, queueDepth := m.depth()
	m.state.SetMQTTDepths(spoolDepth, queueDepth)

	body, err := json.Marshal(m.state.Snapshot())
	if err != nil {
		m.ctx.Log().Error("marshaling metrics snapshot:", err)
		return
	}
	m.ctx.Publish("system/metrics", body, ResponseMeta{}, nil)
}

func (m *MetricsPublisher) publishSummary(now time.Time) {
	caps := m.state.Capabilities()
	summary := bridge.BridgeSummary{
		ProtocolVersion: bridge.ProtocolVersion,
		McuBoardArch:    caps.BoardArch,
		SerialSynced:    m.state.SerialSynced(),
		UptimeSeconds:   now.Sub(m.state.startedAt).Seconds(),
	}
	body, err := json.Marshal(summary)
	if err != nil {
		m.ctx.Log().Error("marshaling bridge summary:", err)
		return
	}
	m.ctx.Publish("system/bridge/summary/value", body, ResponseMeta{}, map[string]string{"bridge-snapshot": "summary"})
}

func (m *MetricsPublisher) publishHandshake(now time.Time) {
	snap := m.state.Snapshot()
	secondsSince := now.Sub(m.state.lastHandshakeAt).Seconds()
	handshake := bridge.BridgeHandshakeSummary{
		LastOutcome:      snap.HandshakeLastOutcome,
		Attempts:         snap.HandshakeAttempts,
		Failures:         snap.HandshakeFailures,
		SecondsSinceLast: secondsSince,
	}
	body, err := json.Marshal(handshake)
	if err != nil {
		m.ctx.Log().Error("marshaling handshake summary:", err)
		return
	}
	m.ctx.Publish("system/bridge/handshake/value", body, ResponseMeta{}, map[string]string{"bridge-snapshot": "handshake"})
}
