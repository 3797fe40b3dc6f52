package gwd

import (
	"context"
	"encoding/json"
	"time"

	bridge "github.com/mcubridge/gatewayd"
)

// SystemComponent answers system/version, system/free_memory and
// system/reset over MQTT by round-tripping the corresponding command
// through the flow controller, and drives the watchdog keepalive loop
// while watchdog_enabled.
type SystemComponent struct {
	ctx    BridgeContext
	state  *RuntimeState
	cfg    bridge.Config
	prefix string
}

func NewSystemComponent(ctx BridgeContext, state *RuntimeState, cfg bridge.Config, prefix string) *SystemComponent {
	return &SystemComponent{ctx: ctx, state: state, cfg: cfg, prefix: prefix}
}

// HandleFrame has nothing to do: CMD_GET_VERSION_RESP and
// CMD_GET_FREE_MEMORY_RESP are consumed by the flow controller as the
// gateway's own pending request completes, never reaching component
// dispatch.
func (s *SystemComponent) HandleFrame(frame bridge.Frame) bool { return false }

func (s *SystemComponent) HandleMQTT(topic string, payload []byte, meta ResponseMeta) bool {
	switch topic {
	case "system/version", "version":
		s.handleVersion(meta)
		return true
	case "system/free_memory", "free_memory":
		s.handleFreeMemory(meta)
		return true
	case "system/reset", "reset":
		s.handleReset(meta)
		return true
	}
	return false
}

func (s *SystemComponent) handleVersion(meta ResponseMeta) {
	result, err := s.ctx.SendFrame(bridge.CmdGetVersion, nil)
	if err != nil || !result.Acked {
		s.ctx.Publish("system/version/response", nil, meta, map[string]string{"bridge-error": "version-query-failed"})
		return
	}
	ver, err := bridge.ParseVersionResponsePayload(result.ResponsePayload)
	if err != nil {
		s.ctx.Publish("system/version/response", nil, meta, map[string]string{"bridge-error": "malformed-version-response"})
		return
	}
	body, _ := json.Marshal(map[string]int{"major": int(ver.Major), "minor": int(ver.Minor)})
	s.ctx.Publish("system/version/response", body, meta, nil)
}

func (s *SystemComponent) handleFreeMemory(meta ResponseMeta) {
	result, err := s.ctx.SendFrame(bridge.CmdGetFreeMemory, nil)
	if err != nil || !result.Acked {
		s.ctx.Publish("system/free_memory/response", nil, meta, map[string]string{"bridge-error": "free-memory-query-failed"})
		return
	}
	free, err := bridge.ParseFreeMemoryResponsePayload(result.ResponsePayload)
	if err != nil {
		s.ctx.Publish("system/free_memory/response", nil, meta, map[string]string{"bridge-error": "malformed-free-memory-response"})
		return
	}
	body, _ := json.Marshal(map[string]uint32{"free_bytes": free.FreeBytes})
	s.ctx.Publish("system/free_memory/response", body, meta, nil)
}

// handleReset issues CMD_LINK_RESET, a fire-and-forget reinitialization
// request the MCU acknowledges but does not otherwise respond to; the next
// handshake attempt (driven independently by the serial transport on its
// following reconnect) is what actually re-establishes sync.
func (s *SystemComponent) handleReset(meta ResponseMeta) {
	result, err := s.ctx.SendFrame(bridge.CmdLinkReset, nil)
	if err != nil || !result.Acked {
		s.ctx.Publish("system/reset/response", nil, meta, map[string]string{"bridge-error": "reset-not-acked"})
		return
	}
	s.ctx.Publish("system/reset/response", []byte("ok"), meta, nil)
}

// RunWatchdog emits CMD_WATCHDOG_KEEPALIVE on watchdog_interval until ctx is
// canceled. Intended to run as one supervised task alongside the transports.
func (s *SystemComponent) RunWatchdog(ctx context.Context) error {
	if !s.cfg.WatchdogEnabled {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(s.cfg.WatchdogInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.state.SerialSynced() {
				continue
			}
			if _, err := s.ctx.SendFrame(bridge.CmdWatchdogKeepalive, nil); err != nil {
				s.ctx.Log().Warning("watchdog keepalive failed:", err)
			}
		}
	}
}
