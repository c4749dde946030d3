package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// remoteDSPHandlers implements §4.2's Remote DSP class. The bus never holds
// channel-mix state for these controls — it clamps to the published ranges
// and relays; the target client's own audio graph is the source of truth
// and is responsible for applying the change (§4.2 Remote DSP contract).
func remoteDSPHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"remote:set-gain":        handleRemoteSetGain,
		"remote:mute":            handleRemoteMute,
		"remote:eq":              handleRemoteEQ,
		"remote:compressor":      handleRemoteCompressor,
		"remote:gate":            handleRemoteGate,
		"remote:reset":           handleRemoteReset,
		"remote:get-state":       handleRemoteGetState,
		"remote:state-response":  handleRemoteStateResponse,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type remoteTargetRequest struct {
	ParticipantID uint64 `json:"participantId"`
}

func (b *Bus) relayRemote(s *Session, event string, target uint64, payload map[string]any) (any, error) {
	payload["participantId"] = target
	dest, ok := b.hub.sessionForParticipant(target)
	if !ok {
		return nil, fmt.Errorf("bus: participant %d is not connected", target)
	}
	dest.send(outboundMessage{Event: event, Success: true, Data: payload})
	return map[string]any{"ok": true}, nil
}

type remoteGainRequest struct {
	remoteTargetRequest
	Gain float64 `json:"gain"`
}

func handleRemoteSetGain(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteGainRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:set-gain payload: %w", err)
	}
	return b.relayRemote(s, "remote:gain-changed", req.ParticipantID, map[string]any{"gain": clamp(req.Gain, 0, 2)})
}

type remoteMuteRequest struct {
	remoteTargetRequest
	Mute bool `json:"mute"`
}

func handleRemoteMute(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteMuteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:mute payload: %w", err)
	}
	return b.relayRemote(s, "remote:mute-changed", req.ParticipantID, map[string]any{"mute": req.Mute})
}

type remoteEQRequest struct {
	remoteTargetRequest
	LowGain  float64 `json:"lowGain"`
	MidGain  float64 `json:"midGain"`
	HighGain float64 `json:"highGain"`
	MidFreq  float64 `json:"midFreq"`
}

func handleRemoteEQ(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteEQRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:eq payload: %w", err)
	}
	if req.MidFreq <= 0 {
		req.MidFreq = 1000
	}
	return b.relayRemote(s, "remote:eq-changed", req.ParticipantID, map[string]any{
		"lowGain":  clamp(req.LowGain, -12, 12),
		"midGain":  clamp(req.MidGain, -12, 12),
		"highGain": clamp(req.HighGain, -12, 12),
		"midFreq":  clamp(req.MidFreq, 100, 10000),
	})
}

type remoteCompressorRequest struct {
	remoteTargetRequest
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
	Ratio     float64 `json:"ratio"`
	Attack    float64 `json:"attack"`
	Release   float64 `json:"release"`
}

func handleRemoteCompressor(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteCompressorRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:compressor payload: %w", err)
	}
	return b.relayRemote(s, "remote:compressor-changed", req.ParticipantID, map[string]any{
		"enabled":   req.Enabled,
		"threshold": clamp(req.Threshold, -60, 0),
		"ratio":     clamp(req.Ratio, 1, 20),
		"attack":    clamp(req.Attack, 0, 1000),
		"release":   clamp(req.Release, 0, 5000),
	})
}

type remoteGateRequest struct {
	remoteTargetRequest
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
	Attack    float64 `json:"attack"`
	Release   float64 `json:"release"`
}

func handleRemoteGate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteGateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:gate payload: %w", err)
	}
	return b.relayRemote(s, "remote:gate-changed", req.ParticipantID, map[string]any{
		"enabled":   req.Enabled,
		"threshold": clamp(req.Threshold, -60, 0),
		"attack":    clamp(req.Attack, 0, 1000),
		"release":   clamp(req.Release, 0, 5000),
	})
}

func handleRemoteReset(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteTargetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:reset payload: %w", err)
	}
	return b.relayRemote(s, "remote:reset", req.ParticipantID, map[string]any{})
}

// handleRemoteGetState relays a remote:state-request to the target client
// tagged with the requester's participant id, so the eventual
// remote:state-response can be routed back without the bus tracking any
// pending-request state itself.
func handleRemoteGetState(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteTargetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:get-state payload: %w", err)
	}
	target, ok := b.hub.sessionForParticipant(req.ParticipantID)
	if !ok {
		return nil, fmt.Errorf("bus: participant %d is not connected", req.ParticipantID)
	}
	target.send(outboundMessage{
		Event: "remote:state-request", Success: true,
		Data: map[string]any{"requesterParticipantId": s.currentParticipantID()},
	})
	return map[string]any{"ok": true}, nil
}

type remoteStateResponseRequest struct {
	RequesterParticipantID uint64         `json:"requesterParticipantId"`
	State                  map[string]any `json:"state"`
}

func handleRemoteStateResponse(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req remoteStateResponseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed remote:state-response payload: %w", err)
	}
	requester, ok := b.hub.sessionForParticipant(req.RequesterParticipantID)
	if !ok {
		return map[string]any{"ok": true}, nil
	}
	requester.send(outboundMessage{
		Event: "remote:state-updated", Success: true,
		Data: map[string]any{"participantId": s.currentParticipantID(), "state": req.State},
	})
	return map[string]any{"ok": true}, nil
}
