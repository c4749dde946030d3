package sfulib

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// rtpSource is satisfied by anything a Producer can pump packets from: a
// WebRTC TrackRemote (trackRemoteSource, below) or a plain-RTP UDP socket
// (PlainProducerTransport in plain_transport.go).
type rtpSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// rtpSink is satisfied by anything a Consumer can push packets to: a
// WebRTC TrackLocalStaticRTP (which already has this exact method) or a
// plain-RTP UDP socket (PlainConsumerTransport in plain_transport.go).
type rtpSink interface {
	WriteRTP(p *rtp.Packet) error
}

type trackRemoteSource struct{ track *webrtc.TrackRemote }

func (s trackRemoteSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}

// Producer is one inbound media source — a participant's microphone, a
// host bus feedback channel, or an ingest process — relayed out to every
// attached Consumer. It owns the single goroutine that reads packets off
// its source; everything else about a Producer is bookkeeping the
// orchestrator attaches via appData (busType, isBusOutput).
type Producer struct {
	ID            string
	ParticipantID string
	Kind          webrtc.RTPCodecType
	BusType       string
	IsBusOutput   bool

	source rtpSource

	mu        sync.RWMutex
	consumers map[string]*Consumer
	closed    atomic.Bool
	paused    atomic.Bool

	onClose func()
}

// NewProducerFromTrack builds a Producer relaying a WebRTC TrackRemote —
// the ordinary case of a participant's send-transport audio track.
func NewProducerFromTrack(id, participantID string, kind webrtc.RTPCodecType, track *webrtc.TrackRemote, busType string, isBusOutput bool) *Producer {
	p := &Producer{
		ID:            id,
		ParticipantID: participantID,
		Kind:          kind,
		BusType:       busType,
		IsBusOutput:   isBusOutput,
		source:        trackRemoteSource{track: track},
		consumers:     make(map[string]*Consumer),
	}
	go p.pump()
	return p
}

// NewProducerFromSource builds a Producer relaying an arbitrary rtpSource;
// used by the orchestrator's createProducerOnPlainTransport (§4.1) where the
// source is a raw UDP plain-RTP socket rather than a WebRTC track.
func NewProducerFromSource(id, participantID string, source rtpSource) *Producer {
	p := &Producer{
		ID:            id,
		ParticipantID: participantID,
		Kind:          webrtc.RTPCodecTypeAudio,
		source:        source,
		consumers:     make(map[string]*Consumer),
	}
	go p.pump()
	return p
}

func (p *Producer) pump() {
	for {
		if p.closed.Load() {
			return
		}
		pkt, err := p.source.ReadRTP()
		if err != nil {
			p.Close()
			return
		}
		if p.paused.Load() {
			continue
		}
		p.mu.RLock()
		for _, c := range p.consumers {
			if c.paused.Load() {
				continue
			}
			_ = c.sink.WriteRTP(pkt) // best-effort; a write failure closes on the consumer's own path
		}
		p.mu.RUnlock()
	}
}

// AddConsumer registers a new sink for this producer's packets.
func (p *Producer) AddConsumer(c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[c.ID] = c
}

// RemoveConsumer detaches a consumer; safe to call more than once.
func (p *Producer) RemoveConsumer(consumerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, consumerID)
}

// Pause/Resume gate relaying without tearing down the underlying source.
func (p *Producer) Pause()  { p.paused.Store(true) }
func (p *Producer) Resume() { p.paused.Store(false) }

// IsPaused/IsClosed back the stale-producer filtering invariant (§3, §8):
// getBusProducer only returns producers that are neither closed nor paused.
func (p *Producer) IsPaused() bool { return p.paused.Load() }
func (p *Producer) IsClosed() bool { return p.closed.Load() }

// Close marks the producer closed; the pump goroutine exits on its next
// read failure or closed-check, whichever comes first. Idempotent.
func (p *Producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.onClose != nil {
		p.onClose()
	}
}

// Consumer is one outbound relay leg: a specific participant's recv track,
// or a plain-RTP egress socket. Consumers are created paused (§4.1
// createConsumer) — the client/process must explicitly resume.
type Consumer struct {
	ID         string
	ProducerID string
	sink       rtpSink
	paused     atomic.Bool
}

// NewConsumer wires a Consumer against any rtpSink (a TrackLocalStaticRTP
// for WebRTC recv, or a plain-RTP UDP socket for egress).
func NewConsumer(id, producerID string, sink rtpSink) *Consumer {
	c := &Consumer{ID: id, ProducerID: producerID, sink: sink}
	c.paused.Store(true)
	return c
}

func (c *Consumer) Resume() { c.paused.Store(false) }
func (c *Consumer) Pause()  { c.paused.Store(true) }
func (c *Consumer) IsPaused() bool { return c.paused.Load() }

// NewLocalTrack creates the TrackLocalStaticRTP a WebRTC Consumer writes
// into, matching the producer's codec so payload types line up without
// transcoding.
func NewLocalTrack(id, streamID string) (*webrtc.TrackLocalStaticRTP, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(OpusCodecCapability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("sfulib: new local track: %w", err)
	}
	return t, nil
}
