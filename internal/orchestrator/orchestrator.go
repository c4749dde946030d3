// Package orchestrator is the SFU Orchestrator collaborator (spec §4.1): it
// owns every SFU object for every room and exposes room-scoped operations to
// the bus and the egress/ingest supervisors. It knows nothing about
// persistence, authentication, or the wire protocol carrying its calls.
//
// Grounded in the teacher's webrtcStreamer PeerConnection lifecycle (api/
// assistant-api/internal/channel/webrtc/streamer.go) for per-participant
// transport/track wiring, generalized from one-PeerConnection-per-call to
// one-router-per-room with many participants and many producers/consumers.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/sfulib"
	"github.com/onairhq/studio/internal/types"
	"github.com/pion/webrtc/v4"
)

// Direction names which side of a participant's media a transport carries.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

var (
	ErrRoomNotFound        = fmt.Errorf("orchestrator: room not found")
	ErrParticipantNotFound = fmt.Errorf("orchestrator: participant not found")
	ErrTransportNotFound   = fmt.Errorf("orchestrator: transport not found")
	ErrProducerNotFound    = fmt.Errorf("orchestrator: producer not found")
	ErrConsumerNotFound    = fmt.Errorf("orchestrator: consumer not found")
	ErrNoTrackArrived      = fmt.Errorf("orchestrator: no track arrived on send transport before deadline")
)

// Transport wraps one PeerConnection bound to a participant in one direction.
// Spec §4.1 treats send/recv as distinct slots on the participant.
type Transport struct {
	ID        string
	Direction Direction
	PC        *webrtc.PeerConnection

	trackCh chan *webrtc.TrackRemote
}

// ProducerInfo is what getProducersInRoom hands new joiners so they can
// consume everything already live (§4.1).
type ProducerInfo struct {
	ParticipantID string
	ProducerID    string
	Kind          webrtc.RTPCodecType
	BusType       string
	IsBusOutput   bool
}

type participant struct {
	ID          string
	DisplayName string

	sendTransport *Transport
	recvTransport *Transport

	producers        map[string]*sfulib.Producer
	primaryProducerID string
	consumers        map[string]*sfulib.Consumer
}

// room is the orchestrator's per-room router: one SFU worker, every
// participant slot, every ingest producer, every plain-RTP transport.
type room struct {
	id     string
	worker *sfulib.Worker

	mu                      sync.Mutex
	participants            map[string]*participant
	ingestProducers         map[string]*sfulib.Producer // keyed by sourceID
	plainConsumerTransports map[string]*sfulib.PlainConsumerTransport // keyed by outputKey
	plainProducerTransports map[string]*sfulib.PlainProducerTransport // keyed by sourceID
}

// Orchestrator implements spec §4.1 in full.
type Orchestrator struct {
	mu   sync.Mutex
	pool *sfulib.Pool
	rooms map[string]*room

	plainTransportPortOffset int
	log                      commons.Logger
}

// New constructs an Orchestrator with a pool of workerCount SFU workers,
// each bound to the given ICE/DTLS ephemeral UDP port range (§6).
func New(workerCount int, rtcPortMin, rtcPortMax uint16, plainTransportPortOffset int, log commons.Logger) (*Orchestrator, error) {
	pool, err := sfulib.NewPool(workerCount, rtcPortMin, rtcPortMax)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: initialize worker pool: %w", err)
	}
	return &Orchestrator{
		pool:                     pool,
		rooms:                    make(map[string]*room),
		plainTransportPortOffset: plainTransportPortOffset,
		log:                      log,
	}, nil
}

// getOrCreateRoom is idempotent: a room already bound to a worker is
// returned as-is (§4.1 getOrCreateRoom).
func (o *Orchestrator) getOrCreateRoom(roomID string) *room {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.rooms[roomID]; ok {
		return r
	}
	r := &room{
		id:                      roomID,
		worker:                  o.pool.Next(),
		participants:            make(map[string]*participant),
		ingestProducers:         make(map[string]*sfulib.Producer),
		plainConsumerTransports: make(map[string]*sfulib.PlainConsumerTransport),
		plainProducerTransports: make(map[string]*sfulib.PlainProducerTransport),
	}
	o.rooms[roomID] = r
	return r
}

// GetOrCreateRoom is the exported form used by the bus on room:join.
func (o *Orchestrator) GetOrCreateRoom(roomID string) { o.getOrCreateRoom(roomID) }

func (o *Orchestrator) lookupRoom(roomID string) (*room, error) {
	o.mu.Lock()
	r, ok := o.rooms[roomID]
	o.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// CloseRoom closes every participant (collecting errors), every plain-RTP
// transport, then drops the router. Errors never abort the sequence (§4.1,
// §7 "Room-close errors during closeRoom are collected, not propagated").
func (o *Orchestrator) CloseRoom(roomID string) []error {
	var errs []error

	o.mu.Lock()
	r, ok := o.rooms[roomID]
	if ok {
		delete(o.rooms, roomID)
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants {
		// Consumers have no independent close step; their tracks die with the PC below.
		if p.sendTransport != nil {
			if err := p.sendTransport.PC.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close send transport for %s: %w", p.ID, err))
			}
		}
		if p.recvTransport != nil {
			if err := p.recvTransport.PC.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close recv transport for %s: %w", p.ID, err))
			}
		}
		for _, prod := range p.producers {
			prod.Close()
		}
	}
	for _, prod := range r.ingestProducers {
		prod.Close()
	}
	for key, t := range r.plainConsumerTransports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close plain consumer transport %s: %w", key, err))
		}
	}
	for key, t := range r.plainProducerTransports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close plain producer transport %s: %w", key, err))
		}
	}
	return errs
}

// AddParticipant allocates the in-memory participant slot (§4.1).
func (o *Orchestrator) AddParticipant(roomID, participantID, displayName string) error {
	r := o.getOrCreateRoom(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.participants[participantID]; exists {
		return nil
	}
	r.participants[participantID] = &participant{
		ID:          participantID,
		DisplayName: displayName,
		producers:   make(map[string]*sfulib.Producer),
		consumers:   make(map[string]*sfulib.Consumer),
	}
	return nil
}

// RemoveParticipant tears down one participant's transports/producers
// without closing the room, used on ordinary disconnect (§4.2 disconnect
// flow) rather than host:close-room.
func (o *Orchestrator) RemoveParticipant(roomID, participantID string) error {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil // already gone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return nil
	}
	delete(r.participants, participantID)
	if p.sendTransport != nil {
		_ = p.sendTransport.PC.Close()
	}
	if p.recvTransport != nil {
		_ = p.recvTransport.PC.Close()
	}
	for _, prod := range p.producers {
		prod.Close()
	}
	return nil
}

// CreateWebRtcTransport creates a PeerConnection for one direction and binds
// it to the participant's send or recv slot (§4.1). DTLS transition to
// closed auto-closes the transport's tracked state.
func (o *Orchestrator) CreateWebRtcTransport(roomID, participantID string, direction Direction) (*Transport, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	p, ok := r.participants[participantID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrParticipantNotFound
	}

	pc, err := r.worker.API.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new peer connection: %w", err)
	}

	t := &Transport{
		ID:        types.NewUUID(),
		Direction: direction,
		PC:        pc,
		trackCh:   make(chan *webrtc.TrackRemote, 4),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateClosed || s == webrtc.PeerConnectionStateFailed {
			_ = pc.Close()
		}
	})

	if direction == DirectionSend {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			select {
			case t.trackCh <- track:
			default:
			}
		})
	}

	r.mu.Lock()
	switch direction {
	case DirectionSend:
		p.sendTransport = t
	case DirectionRecv:
		p.recvTransport = t
	}
	r.mu.Unlock()

	return t, nil
}

// ConnectTransport applies the client's SDP offer and returns this server's
// answer (§4.1 connectTransport). The bus relays the answer back to the
// client over the signaling channel; the orchestrator never speaks that
// channel itself.
func (o *Orchestrator) ConnectTransport(roomID, participantID string, direction Direction, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	t, err := o.findTransport(roomID, participantID, direction)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.PC.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("orchestrator: set remote description: %w", err)
	}
	answer, err := t.PC.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("orchestrator: create answer: %w", err)
	}
	if err := t.PC.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("orchestrator: set local description: %w", err)
	}
	return answer, nil
}

func (o *Orchestrator) findTransport(roomID, participantID string, direction Direction) (*Transport, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	var t *Transport
	if direction == DirectionSend {
		t = p.sendTransport
	} else {
		t = p.recvTransport
	}
	if t == nil {
		return nil, ErrTransportNotFound
	}
	return t, nil
}

// CreateProducer waits for the next remote track on the participant's send
// transport and wraps it as a Producer (§4.1 createProducer). If isBusOutput
// is false this also becomes the participant's primary producer, used by
// the legacy single-producer consume path.
func (o *Orchestrator) CreateProducer(ctx context.Context, roomID, participantID string, kind webrtc.RTPCodecType, busType string, isBusOutput bool) (*sfulib.Producer, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	p, ok := r.participants[participantID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrParticipantNotFound
	}
	if p.sendTransport == nil {
		return nil, ErrTransportNotFound
	}

	var track *webrtc.TrackRemote
	select {
	case track = <-p.sendTransport.trackCh:
	case <-ctx.Done():
		return nil, ErrNoTrackArrived
	}

	producer := sfulib.NewProducerFromTrack(types.NewUUID(), participantID, kind, track, busType, isBusOutput)

	r.mu.Lock()
	p.producers[producer.ID] = producer
	if !isBusOutput {
		p.primaryProducerID = producer.ID
	}
	r.mu.Unlock()

	return producer, nil
}

// resolveProducer implements §4.1 createConsumer's producer-resolution
// rule: source:<id> producers first, then a specific producer id, then the
// target participant's primary producer.
func (r *room) resolveProducer(producerParticipantID, specificProducerID string) (*sfulib.Producer, error) {
	if strings.HasPrefix(producerParticipantID, "source:") {
		sourceID := strings.TrimPrefix(producerParticipantID, "source:")
		r.mu.Lock()
		prod, ok := r.ingestProducers[sourceID]
		r.mu.Unlock()
		if !ok {
			return nil, ErrProducerNotFound
		}
		return prod, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.participants[producerParticipantID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	if specificProducerID != "" {
		prod, ok := target.producers[specificProducerID]
		if !ok {
			return nil, ErrProducerNotFound
		}
		return prod, nil
	}
	if target.primaryProducerID == "" {
		return nil, ErrProducerNotFound
	}
	return target.producers[target.primaryProducerID], nil
}

// CreateConsumer resolves the target producer and creates a paused consumer
// on the consuming participant's recv transport (§4.1 createConsumer).
func (o *Orchestrator) CreateConsumer(roomID, consumerParticipantID, producerParticipantID, specificProducerID string) (*sfulib.Consumer, *webrtc.TrackLocalStaticRTP, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, nil, err
	}

	producer, err := r.resolveProducer(producerParticipantID, specificProducerID)
	if err != nil {
		return nil, nil, err
	}
	if !canConsume(producer) {
		return nil, nil, ErrProducerNotFound
	}

	r.mu.Lock()
	consumerParticipant, ok := r.participants[consumerParticipantID]
	r.mu.Unlock()
	if !ok {
		return nil, nil, ErrParticipantNotFound
	}
	if consumerParticipant.recvTransport == nil {
		return nil, nil, ErrTransportNotFound
	}

	track, err := sfulib.NewLocalTrack(types.NewUUID(), producerParticipantID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := consumerParticipant.recvTransport.PC.AddTrack(track); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: add consumer track: %w", err)
	}

	consumer := sfulib.NewConsumer(types.NewUUID(), producer.ID, track)
	producer.AddConsumer(consumer)

	r.mu.Lock()
	consumerParticipant.consumers[consumer.ID] = consumer
	r.mu.Unlock()

	return consumer, track, nil
}

// canConsume is the SFU-side compatibility gate between a producer and a
// prospective consumer; every producer in this system is Opus/48k/stereo so
// the only real check is that the producer is still usable.
func canConsume(p *sfulib.Producer) bool {
	return !p.IsClosed()
}

// ResumeConsumer resumes a named consumer for a participant (§4.1).
func (o *Orchestrator) ResumeConsumer(roomID, participantID, consumerID string) error {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	p, ok := r.participants[participantID]
	r.mu.Unlock()
	if !ok {
		return ErrParticipantNotFound
	}
	r.mu.Lock()
	c, ok := p.consumers[consumerID]
	r.mu.Unlock()
	if !ok {
		return ErrConsumerNotFound
	}
	c.Resume()
	return nil
}

// GetBusProducer scans participants and ingest producers for the first
// producer whose BusType matches busType case-insensitively, is a bus
// output, and is neither closed nor paused (§4.1, §8 uniqueness invariant).
func (o *Orchestrator) GetBusProducer(roomID, busType string) (*sfulib.Producer, bool) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		for _, prod := range p.producers {
			if matchesBus(prod, busType) {
				return prod, true
			}
		}
	}
	for _, prod := range r.ingestProducers {
		if matchesBus(prod, busType) {
			return prod, true
		}
	}
	return nil, false
}

func matchesBus(p *sfulib.Producer, busType string) bool {
	return p.IsBusOutput &&
		strings.EqualFold(p.BusType, busType) &&
		!p.IsClosed() &&
		!p.IsPaused()
}

// GetProducersInRoom enumerates primary producers plus ingest producers
// (surfaced as source:<id>), excluding the given participant. Fed to new
// joiners so they can consume what is already live (§4.1).
func (o *Orchestrator) GetProducersInRoom(roomID, excludeParticipantID string) []ProducerInfo {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ProducerInfo
	for pid, p := range r.participants {
		if pid == excludeParticipantID || p.primaryProducerID == "" {
			continue
		}
		prod := p.producers[p.primaryProducerID]
		if prod == nil || prod.IsClosed() {
			continue
		}
		out = append(out, ProducerInfo{ParticipantID: pid, ProducerID: prod.ID, Kind: prod.Kind, BusType: prod.BusType, IsBusOutput: prod.IsBusOutput})
	}
	for sourceID, prod := range r.ingestProducers {
		if prod.IsClosed() {
			continue
		}
		out = append(out, ProducerInfo{ParticipantID: "source:" + sourceID, ProducerID: prod.ID, Kind: prod.Kind, BusType: prod.BusType, IsBusOutput: prod.IsBusOutput})
	}
	return out
}

// CreatePlainTransport creates a consumer-side plain-RTP transport for
// egress under outputKey and connects it to its external port pair (§4.1,
// §6). The returned transport exposes the external RTP/RTCP ports the
// encoder child must be told to listen on.
func (o *Orchestrator) CreatePlainTransport(roomID, outputKey string) (*sfulib.PlainConsumerTransport, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	t, err := sfulib.NewPlainConsumerTransport(o.plainTransportPortOffset)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(); err != nil {
		t.Close()
		return nil, err
	}
	r.mu.Lock()
	r.plainConsumerTransports[outputKey] = t
	r.mu.Unlock()
	return t, nil
}

// ConsumeWithPlainTransport consumes the named producer on the outputKey's
// plain transport (§4.1 consumeWithPlainTransport). The consumer is created
// paused; the egress supervisor resumes it once the encoder child is ready.
func (o *Orchestrator) ConsumeWithPlainTransport(roomID, outputKey, producerID string) (*sfulib.Consumer, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	t, ok := r.plainConsumerTransports[outputKey]
	r.mu.Unlock()
	if !ok {
		return nil, ErrTransportNotFound
	}

	producer := r.findProducerByID(producerID)
	if producer == nil {
		return nil, ErrProducerNotFound
	}

	consumer := sfulib.NewConsumer(types.NewUUID(), producer.ID, t)
	producer.AddConsumer(consumer)
	return consumer, nil
}

func (r *room) findProducerByID(producerID string) *sfulib.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if prod, ok := p.producers[producerID]; ok {
			return prod
		}
	}
	for _, prod := range r.ingestProducers {
		if prod.ID == producerID {
			return prod
		}
	}
	return nil
}

// ClosePlainConsumerTransport releases an egress plain transport (used by
// stopEncoder, §4.4).
func (o *Orchestrator) ClosePlainConsumerTransport(roomID, outputKey string) error {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	t, ok := r.plainConsumerTransports[outputKey]
	if ok {
		delete(r.plainConsumerTransports, outputKey)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return t.Close()
}

// CreatePlainTransportForProducer creates a producer-side plain-RTP
// transport with comedia semantics on the given pre-allocated port (§4.1
// createPlainTransportForProducer, §4.5 step 3).
func (o *Orchestrator) CreatePlainTransportForProducer(roomID, sourceID string, port int) (*sfulib.PlainProducerTransport, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	t, err := sfulib.NewPlainProducerTransport(port)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.plainProducerTransports[sourceID] = t
	r.mu.Unlock()
	return t, nil
}

// CreateProducerOnPlainTransport produces Opus/48k/stereo on the source's
// plain transport (§4.1 createProducerOnPlainTransport), surfaced to the
// rest of the room as participant "source:<sourceID>".
func (o *Orchestrator) CreateProducerOnPlainTransport(roomID, sourceID string) (*sfulib.Producer, error) {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	t, ok := r.plainProducerTransports[sourceID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrTransportNotFound
	}

	producer := sfulib.NewProducerFromSource(types.NewUUID(), "source:"+sourceID, t)
	r.mu.Lock()
	r.ingestProducers[sourceID] = producer
	r.mu.Unlock()
	return producer, nil
}

// ClosePlainProducerTransport releases an ingest plain transport and its
// producer (§4.5 step 7).
func (o *Orchestrator) ClosePlainProducerTransport(roomID, sourceID string) error {
	r, err := o.lookupRoom(roomID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	t, ok := r.plainProducerTransports[sourceID]
	if ok {
		delete(r.plainProducerTransports, sourceID)
	}
	prod, hasProd := r.ingestProducers[sourceID]
	if hasProd {
		delete(r.ingestProducers, sourceID)
	}
	r.mu.Unlock()

	if hasProd {
		prod.Close()
	}
	if !ok {
		return nil
	}
	return t.Close()
}

// WaitForBusProducer bounded-polls getBusProducer, the common race where an
// output/IFB session starts before the host has produced the relevant bus
// (§4.1, §4.4 waitForBusProducer, §7 Transient failures).
func (o *Orchestrator) WaitForBusProducer(ctx context.Context, roomID, busType string, maxRetries int, interval time.Duration) (*sfulib.Producer, bool) {
	for i := 0; i <= maxRetries; i++ {
		if p, ok := o.GetBusProducer(roomID, busType); ok {
			return p, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(interval):
		}
	}
	return nil, false
}
