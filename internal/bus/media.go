package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/pion/webrtc/v4"
)

// mediaHandlers implements the Media event class (§4.2): thin delegates to
// the SFU Orchestrator with a room-membership precondition, enforced
// implicitly since every handler reads the session's own roomID/
// participantID rather than trusting a client-supplied one.
func mediaHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"transport:create":  handleTransportCreate,
		"transport:connect": handleTransportConnect,
		"producer:create":   handleProducerCreate,
		"consumer:create":   handleConsumerCreate,
		"consumer:resume":   handleConsumerResume,
	}
}

type transportCreateRequest struct {
	Direction string `json:"direction"` // "send" | "recv"
}

type transportCreateReply struct {
	TransportID string `json:"transportId"`
	Direction   string `json:"direction"`
}

func handleTransportCreate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req transportCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed transport:create payload: %w", err)
	}
	dir, err := parseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	t, err := b.orc.CreateWebRtcTransport(roomKeyString(s.currentRoomID()), participantKey(s), dir)
	if err != nil {
		return nil, err
	}
	return transportCreateReply{TransportID: t.ID, Direction: req.Direction}, nil
}

type transportConnectRequest struct {
	Direction string                    `json:"direction"`
	SDP       webrtc.SessionDescription `json:"sdp"`
}

type transportConnectReply struct {
	SDP webrtc.SessionDescription `json:"sdp"`
}

// handleTransportConnect applies the client's offer and answers it. The
// client is always the offerer on both transports, including for
// renegotiation when a new consumer is added to the recv transport (§5:
// this keeps negotiation single-directional and glare-free without the SFU
// ever needing to originate an offer).
func handleTransportConnect(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req transportConnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed transport:connect payload: %w", err)
	}
	dir, err := parseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	answer, err := b.orc.ConnectTransport(roomKeyString(s.currentRoomID()), participantKey(s), dir, req.SDP)
	if err != nil {
		return nil, err
	}
	return transportConnectReply{SDP: answer}, nil
}

func parseDirection(v string) (orchestrator.Direction, error) {
	switch v {
	case string(orchestrator.DirectionSend):
		return orchestrator.DirectionSend, nil
	case string(orchestrator.DirectionRecv):
		return orchestrator.DirectionRecv, nil
	default:
		return "", fmt.Errorf("bus: unknown transport direction %q", v)
	}
}

type producerCreateRequest struct {
	BusType     string `json:"busType,omitempty"`
	IsBusOutput bool   `json:"isBusOutput,omitempty"`
}

type producerCreateReply struct {
	ProducerID string `json:"producerId"`
}

// handleProducerCreate waits for the participant's track to arrive on their
// send transport, then broadcasts producer:new unless this producer is a
// mixed bus feedback loop (§4.2 Media contract).
func handleProducerCreate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req producerCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed producer:create payload: %w", err)
	}

	producer, err := b.orc.CreateProducer(ctx, roomKeyString(s.currentRoomID()), participantKey(s), webrtc.RTPCodecTypeAudio, req.BusType, req.IsBusOutput)
	if err != nil {
		return nil, err
	}

	if !req.IsBusOutput {
		b.hub.broadcastExcept(roomChannel(s.currentRoomID()), s, outboundMessage{
			Event:   "producer:new",
			Success: true,
			Data: producerDTO{
				ParticipantID: participantKey(s),
				ProducerID:    producer.ID,
				Kind:          producer.Kind.String(),
				BusType:       req.BusType,
				IsBusOutput:   req.IsBusOutput,
			},
		})
	}

	return producerCreateReply{ProducerID: producer.ID}, nil
}

type consumerCreateRequest struct {
	ProducerParticipantID string `json:"producerParticipantId"`
	ProducerID            string `json:"producerId,omitempty"`
}

type consumerCreateReply struct {
	ConsumerID string `json:"consumerId"`
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}

func handleConsumerCreate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req consumerCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed consumer:create payload: %w", err)
	}
	if req.ProducerParticipantID == "" {
		return nil, fmt.Errorf("bus: consumer:create requires producerParticipantId")
	}

	consumer, _, err := b.orc.CreateConsumer(roomKeyString(s.currentRoomID()), participantKey(s), req.ProducerParticipantID, req.ProducerID)
	if err != nil {
		return nil, err
	}

	return consumerCreateReply{ConsumerID: consumer.ID, ProducerID: consumer.ProducerID, Kind: webrtc.RTPCodecTypeAudio.String()}, nil
}

type consumerResumeRequest struct {
	ConsumerID string `json:"consumerId"`
}

func handleConsumerResume(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req consumerResumeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed consumer:resume payload: %w", err)
	}
	if err := b.orc.ResumeConsumer(roomKeyString(s.currentRoomID()), participantKey(s), req.ConsumerID); err != nil {
		return nil, err
	}
	return map[string]any{"resumed": true}, nil
}

func participantKey(s *Session) string {
	return strconv.FormatUint(s.currentParticipantID(), 10)
}
