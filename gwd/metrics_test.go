package gwd

import (
	"context"
	"testing"
	"time"
)

func TestMetricsPublisherRunPublishesAllThreeTopicsOnTheirCadence(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	cfg := testConfig()
	cfg.StatusInterval = 1
	cfg.BridgeSummaryInterval = 1
	cfg.BridgeHandshakeInterval = 1

	depth := func() (int, int) { return 3, 7 }
	m := NewMetricsPublisher(ctx, state, cfg, depth)

	runCtx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	if err := m.Run(runCtx); err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}

	topics := map[string]int{}
	for _, msg := range ctx.publishedSnapshot() {
		topics[msg.topic]++
	}
	for _, want := range []string{"system/metrics", "system/bridge/summary/value", "system/bridge/handshake/value"} {
		if topics[want] == 0 {
			t.Errorf("topic %q was never published", want)
		}
	}
}

func TestMetricsPublisherPublishStatusUsesDepthCallback(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	cfg := testConfig()

	m := NewMetricsPublisher(ctx, state, cfg, func() (int, int) { return 5, 9 })
	m.publishStatus()

	if snap := state.Snapshot(); snap.MQTTSpoolDepth != 5 || snap.MQTTQueueDepth != 9 {
		t.Errorf("depths = %d, %d, want 5, 9", snap.MQTTSpoolDepth, snap.MQTTQueueDepth)
	}
	if len(ctx.published) != 1 || ctx.published[0].topic != "system/metrics" {
		t.Fatalf("unexpected publish: %+v", ctx.published)
	}
}

func TestMetricsPublisherPublishSummaryIncludesCapabilities(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	cfg := testConfig()

	m := NewMetricsPublisher(ctx, state, cfg, func() (int, int) { return 0, 0 })
	m.publishSummary(time.Now())

	if len(ctx.published) != 1 || ctx.published[0].topic != "system/bridge/summary/value" {
		t.Fatalf("unexpected publish: %+v", ctx.published)
	}
	if ctx.published[0].userProps["bridge-snapshot"] != "summary" {
		t.Errorf("bridge-snapshot = %q, want summary", ctx.published[0].userProps["bridge-snapshot"])
	}
}

func TestMetricsPublisherPublishHandshakeIncludesCounters(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	cfg := testConfig()

	m := NewMetricsPublisher(ctx, state, cfg, func() (int, int) { return 0, 0 })
	m.publishHandshake(time.Now())

	if len(ctx.published) != 1 || ctx.published[0].topic != "system/bridge/handshake/value" {
		t.Fatalf("unexpected publish: %+v", ctx.published)
	}
	if ctx.published[0].userProps["bridge-snapshot"] != "handshake" {
		t.Errorf("bridge-snapshot = %q, want handshake", ctx.published[0].userProps["bridge-snapshot"])
	}
}
