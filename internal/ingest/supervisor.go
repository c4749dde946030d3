package ingest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/processsup"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
)

// Broadcaster lets the supervisor emit room events without depending on the
// bus package, symmetric to egress.Broadcaster.
type Broadcaster interface {
	BroadcastToRoom(roomID uint64, event string, payload any)
}

// Alerter is the collaborator alerting service, symmetric to egress.Alerter.
type Alerter interface {
	Alert(ctx context.Context, subject, detail string)
}

// Config bundles the tunables the supervisor needs from internal/config.
type Config struct {
	FFmpegPath        string
	ConnectionTimeout time.Duration // pre-producer watchdog (§4.5 step 5)
	ProgressTimeout   time.Duration // post-producer watchdog
	StopGrace         time.Duration
}

type ingestProcess struct {
	mu sync.Mutex

	sourceID uint64
	roomID   uint64
	protocol string // "srt" | "rist", empty for unmanaged-port sources
	listenerPort int

	handle          *processsup.Handle
	producerCreated bool
	stopRequested   bool

	watchdogStop chan struct{}
}

// Supervisor implements spec §4.5 in full.
type Supervisor struct {
	orc *orchestrator.Orchestrator
	st  store.Store
	log commons.Logger
	cfg Config
	bc  Broadcaster
	al  Alerter

	srtPorts  *PortAllocator
	ristPorts *PortAllocator

	mu      sync.Mutex
	sources map[uint64]*ingestProcess
}

func New(orc *orchestrator.Orchestrator, st store.Store, log commons.Logger, cfg Config, bc Broadcaster, al Alerter, srtPorts, ristPorts *PortAllocator) *Supervisor {
	return &Supervisor{
		orc:       orc,
		st:        st,
		log:       log,
		cfg:       cfg,
		bc:        bc,
		al:        al,
		srtPorts:  srtPorts,
		ristPorts: ristPorts,
		sources:   make(map[uint64]*ingestProcess),
	}
}

func roomKey(roomID uint64) string { return strconv.FormatUint(roomID, 10) }
func sourceKey(sourceID uint64) string { return strconv.FormatUint(sourceID, 10) }

func (s *Supervisor) allocatorFor(t types.AudioSourceType) (*PortAllocator, string) {
	switch t {
	case types.SourceSRTStream:
		return s.srtPorts, "srt"
	case types.SourceRISTStream:
		return s.ristPorts, "rist"
	default:
		return nil, ""
	}
}

// probeBind confirms a Redis-allocated port is actually free on this host
// before trusting it (§4.5 step 1: "trying OS-level bind on a probe
// socket"), since the distributed pool only tracks logical ownership.
func probeBind(port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return err
	}
	return conn.Close()
}

// StartIngest runs §4.5 steps 1-4: allocates/validates connection
// parameters, transitions the AudioSource to LISTENING/CONNECTING, creates
// the comedia plain-RTP producer transport, and spawns the protocol child.
// Idempotent: a second call while already running is a no-op.
func (s *Supervisor) StartIngest(ctx context.Context, sourceID, roomID uint64) error {
	s.mu.Lock()
	if ip, exists := s.sources[sourceID]; exists && ip.handle != nil && !ip.handle.HasExited() {
		s.mu.Unlock()
		s.log.Infow("ingest: startIngest idempotent no-op", "sourceId", sourceID)
		return nil
	}
	s.mu.Unlock()

	source, err := s.st.FindAudioSourceByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("ingest: load source %d: %w", sourceID, err)
	}

	ip := &ingestProcess{sourceID: sourceID, roomID: roomID, watchdogStop: make(chan struct{})}

	if source.Mode == types.ModeListener {
		alloc, protocol := s.allocatorFor(source.Type)
		if alloc == nil {
			return fmt.Errorf("ingest: source type %q has no LISTENER port pool", source.Type)
		}
		port, err := s.allocateProbedPort(ctx, alloc)
		if err != nil {
			return err
		}
		ip.protocol = protocol
		ip.listenerPort = port
		source.ListenerPort = port
		source.PlaybackState = types.PlaybackListening
	} else {
		if source.RemoteHost == "" || source.RemotePort == 0 {
			return fmt.Errorf("ingest: CALLER source %d missing remote target", sourceID)
		}
		source.PlaybackState = types.PlaybackConnecting
	}
	source.ErrorMessage = ""
	if err := s.st.UpdateAudioSource(ctx, source); err != nil {
		return err
	}
	s.broadcastState(roomID, source)

	transport, err := s.orc.CreatePlainTransportForProducer(roomKey(roomID), sourceKey(sourceID), 0)
	if err != nil {
		s.releasePort(ctx, ip)
		return fmt.Errorf("ingest: create plain transport: %w", err)
	}

	args, err := buildArgs(source, transport.Port)
	if err != nil {
		s.cleanupFailedStart(ctx, roomID, sourceID, ip)
		return err
	}

	s.mu.Lock()
	s.sources[sourceID] = ip
	s.mu.Unlock()

	handle, err := processsup.Spawn(ctx, fmt.Sprintf("ingest-%d", sourceID), s.cfg.FFmpegPath, args, "",
		func(line string) { s.onProgress(ctx, ip) },
		func(line string) { s.onErrorLine(ctx, ip, line) })
	if err != nil {
		s.markError(ctx, sourceID, err)
		if s.al != nil {
			s.al.Alert(ctx, fmt.Sprintf("ingest source %d failed to start", sourceID), err.Error())
		}
		s.cleanupFailedStart(ctx, roomID, sourceID, ip)
		return err
	}

	ip.mu.Lock()
	ip.handle = handle
	ip.mu.Unlock()

	go s.runWatchdog(ctx, ip)
	go s.watchExit(ctx, ip, handle)

	return nil
}

func (s *Supervisor) cleanupFailedStart(ctx context.Context, roomID, sourceID uint64, ip *ingestProcess) {
	s.mu.Lock()
	delete(s.sources, sourceID)
	s.mu.Unlock()
	_ = s.orc.ClosePlainProducerTransport(roomKey(roomID), sourceKey(sourceID))
	s.releasePort(ctx, ip)
}

func (s *Supervisor) releasePort(ctx context.Context, ip *ingestProcess) {
	if ip.protocol == "" {
		return
	}
	alloc, _ := s.allocatorByProtocol(ip.protocol)
	if alloc != nil {
		alloc.Release(ctx, ip.listenerPort)
	}
}

func (s *Supervisor) allocatorByProtocol(protocol string) (*PortAllocator, string) {
	switch protocol {
	case "srt":
		return s.srtPorts, "srt"
	case "rist":
		return s.ristPorts, "rist"
	default:
		return nil, ""
	}
}

// allocateProbedPort pops a port from the distributed pool and confirms it
// is free on this host, retrying a bounded number of times (§4.5 step 1).
func (s *Supervisor) allocateProbedPort(ctx context.Context, alloc *PortAllocator) (int, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		port, err := alloc.Allocate(ctx)
		if err != nil {
			return 0, err
		}
		if err := probeBind(port); err != nil {
			s.log.Warn("ingest: allocated port failed local bind probe, retrying", "port", port, "error", err)
			alloc.Release(ctx, port)
			continue
		}
		return port, nil
	}
	return 0, fmt.Errorf("ingest: exhausted %d port-allocation attempts", maxAttempts)
}

// onProgress handles step 6: on first progress, create the SFU producer and
// broadcast producer:new, resetting the watchdog to the post-producer
// ProgressTimeout budget (the watchdog goroutine reads producerCreated).
func (s *Supervisor) onProgress(ctx context.Context, ip *ingestProcess) {
	ip.mu.Lock()
	already := ip.producerCreated
	ip.mu.Unlock()
	if already {
		select {
		case ip.watchdogStop <- struct{}{}:
		default:
		}
		return
	}

	producer, err := s.orc.CreateProducerOnPlainTransport(roomKey(ip.roomID), sourceKey(ip.sourceID))
	if err != nil {
		s.log.Error("ingest: create producer on plain transport failed", "sourceId", ip.sourceID, "error", err)
		return
	}

	ip.mu.Lock()
	ip.producerCreated = true
	ip.mu.Unlock()
	select {
	case ip.watchdogStop <- struct{}{}:
	default:
	}

	source, err := s.st.FindAudioSourceByID(ctx, ip.sourceID)
	if err == nil {
		source.PlaybackState = types.PlaybackConnected
		_ = s.st.UpdateAudioSource(ctx, source)
		s.broadcastState(ip.roomID, source)
	}

	if s.bc != nil {
		s.bc.BroadcastToRoom(ip.roomID, "producer:new", map[string]any{
			"participantId": "source:" + sourceKey(ip.sourceID),
			"producerId":    producer.ID,
			"busType":       "",
		})
	}
}

func (s *Supervisor) onErrorLine(ctx context.Context, ip *ingestProcess, line string) {
	s.log.Warn("ingest: encoder reported error", "sourceId", ip.sourceID, "line", line)
}

// runWatchdog implements §4.5 step 5: kill the child if no progress arrives
// within ConnectionTimeout (pre-producer) or ProgressTimeout (post-producer).
func (s *Supervisor) runWatchdog(ctx context.Context, ip *ingestProcess) {
	timeout := s.cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	for {
		select {
		case <-ip.watchdogStop:
			ip.mu.Lock()
			exited := ip.handle != nil && ip.handle.HasExited()
			if ip.producerCreated {
				timeout = s.cfg.ProgressTimeout
				if timeout <= 0 {
					timeout = 10 * time.Second
				}
			}
			ip.mu.Unlock()
			if exited {
				return
			}
			continue
		case <-time.After(timeout):
			ip.mu.Lock()
			handle := ip.handle
			ip.mu.Unlock()
			if handle != nil && handle.HasExited() {
				return
			}
			s.markError(ctx, ip.sourceID, fmt.Errorf("ingest: watchdog timeout after %s", timeout))
			if handle != nil {
				_ = handle.Terminate(s.cfg.StopGrace)
			}
			return
		}
	}
}

// watchExit implements §4.5 step 7: on exit, release the port, close the
// transport, mark disconnected, and broadcast.
func (s *Supervisor) watchExit(ctx context.Context, ip *ingestProcess, handle *processsup.Handle) {
	<-handle.Done()

	select {
	case ip.watchdogStop <- struct{}{}:
	default:
	}

	ip.mu.Lock()
	stopped := ip.stopRequested
	ip.mu.Unlock()

	s.mu.Lock()
	delete(s.sources, ip.sourceID)
	s.mu.Unlock()

	_ = s.orc.ClosePlainProducerTransport(roomKey(ip.roomID), sourceKey(ip.sourceID))
	s.releasePort(ctx, ip)

	source, err := s.st.FindAudioSourceByID(ctx, ip.sourceID)
	if err != nil {
		return
	}
	if !stopped && handle.ExitErr() != nil {
		source.PlaybackState = types.PlaybackError
		source.ErrorMessage = handle.ExitErr().Error()
	} else {
		source.PlaybackState = types.PlaybackDisconnected
	}
	source.ListenerPort = 0
	_ = s.st.UpdateAudioSource(ctx, source)
	s.broadcastState(ip.roomID, source)
}

// StopIngest terminates the source's child process and releases its
// resources; idempotent.
func (s *Supervisor) StopIngest(ctx context.Context, sourceID uint64) error {
	s.mu.Lock()
	ip, ok := s.sources[sourceID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	ip.mu.Lock()
	ip.stopRequested = true
	handle := ip.handle
	ip.mu.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Terminate(s.cfg.StopGrace)
}

func (s *Supervisor) markError(ctx context.Context, sourceID uint64, err error) {
	source, loadErr := s.st.FindAudioSourceByID(ctx, sourceID)
	if loadErr != nil {
		return
	}
	source.PlaybackState = types.PlaybackError
	source.ErrorMessage = err.Error()
	_ = s.st.UpdateAudioSource(ctx, source)
	s.broadcastState(source.RoomID, source)
}

func (s *Supervisor) broadcastState(roomID uint64, source *model.AudioSource) {
	if s.bc == nil {
		return
	}
	s.bc.BroadcastToRoom(roomID, "source:stateChanged", map[string]any{
		"sourceId":      source.ID,
		"playbackState": source.PlaybackState,
		"errorMessage":  source.ErrorMessage,
	})
}
