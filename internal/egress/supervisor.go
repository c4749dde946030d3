// Package egress is the Egress Supervisor collaborator (spec §4.4): it owns
// child encoder processes that consume bus producers and deliver them to
// external destinations (Icecast, SRT).
//
// Grounded on the teacher's webrtcStreamer lifecycle idiom for the
// transport/consume half, and on other_examples' ffmpeg transcoder proxy
// for the child-process half (internal/processsup, which this package
// drives directly).
package egress

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/processsup"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
	"golang.org/x/sync/singleflight"
)

// Broadcaster lets the supervisor emit room events without depending on the
// bus package; internal/bus implements this against its session registry.
type Broadcaster interface {
	BroadcastToRoom(roomID uint64, event string, payload any)
}

// Alerter is the "collaborator alerting service" named in §4.4 failure
// semantics; a nil Alerter simply means alerts are dropped.
type Alerter interface {
	Alert(ctx context.Context, subject, detail string)
}

// Config bundles the tunables the supervisor needs from internal/config.
type Config struct {
	FFmpegPath         string
	StopGrace          time.Duration
	Debounce           time.Duration
	RetryDelays        []time.Duration
	BusProducerMaxWait time.Duration
}

type encoderProcess struct {
	mu sync.Mutex

	outputID uint64
	roomID   uint64

	handle          *processsup.Handle
	outputKeys      []string // plain-transport keys owned by this encoder (1, or len(buses) for multi-bus)
	producerID      string // single-bus producer id, used to retry after a crash
	stopRequested   bool
	debounceTimer   *time.Timer
	debounceVersion uint64
}

// Supervisor implements spec §4.4 in full.
type Supervisor struct {
	orc *orchestrator.Orchestrator
	st  store.Store
	log commons.Logger
	cfg Config
	bc  Broadcaster
	al  Alerter

	mu       sync.Mutex
	encoders map[uint64]*encoderProcess

	// startGroup collapses concurrent StartEncoder calls for the same
	// outputID into a single execution, closing the race between the
	// idempotency check and the encoders-map insert below.
	startGroup singleflight.Group
}

func New(orc *orchestrator.Orchestrator, st store.Store, log commons.Logger, cfg Config, bc Broadcaster, al Alerter) *Supervisor {
	return &Supervisor{
		orc:      orc,
		st:       st,
		log:      log,
		cfg:      cfg,
		bc:       bc,
		al:       al,
		encoders: make(map[uint64]*encoderProcess),
	}
}

func roomKey(roomID uint64) string   { return strconv.FormatUint(roomID, 10) }
func outputKey(outputID uint64, bus string) string {
	if bus == "" {
		return strconv.FormatUint(outputID, 10)
	}
	return strconv.FormatUint(outputID, 10) + ":" + bus
}

// StartEncoder is idempotent: a second start while the encoder is already
// running is a no-op with a log line (§4.4). Concurrent calls for the same
// outputID are collapsed onto one execution via startGroup.
func (s *Supervisor) StartEncoder(ctx context.Context, outputID, roomID uint64, producerID string) error {
	_, err, _ := s.startGroup.Do(outputKey(outputID, ""), func() (any, error) {
		return nil, s.startEncoderOnce(ctx, outputID, roomID, producerID)
	})
	return err
}

func (s *Supervisor) startEncoderOnce(ctx context.Context, outputID, roomID uint64, producerID string) error {
	s.mu.Lock()
	if ep, exists := s.encoders[outputID]; exists && ep.handle != nil && !ep.handle.HasExited() {
		s.mu.Unlock()
		s.log.Infow("egress: startEncoder idempotent no-op", "outputId", outputID)
		return nil
	}
	s.mu.Unlock()

	output, err := s.st.FindAudioOutputByID(ctx, outputID)
	if err != nil {
		return fmt.Errorf("egress: load output %d: %w", outputID, err)
	}

	key := outputKey(outputID, "")
	transport, err := s.orc.CreatePlainTransport(roomKey(roomID), key)
	if err != nil {
		return fmt.Errorf("egress: create plain transport: %w", err)
	}
	consumer, err := s.orc.ConsumeWithPlainTransport(roomKey(roomID), key, producerID)
	if err != nil {
		_ = s.orc.ClosePlainConsumerTransport(roomKey(roomID), key)
		return fmt.Errorf("egress: consume bus producer: %w", err)
	}

	args, err := buildArgs(output)
	if err != nil {
		_ = s.orc.ClosePlainConsumerTransport(roomKey(roomID), key)
		return err
	}
	sdp := singleBusSDP(transport.ExternalRTPPort)

	ep := &encoderProcess{outputID: outputID, roomID: roomID, outputKeys: []string{key}, producerID: producerID}
	s.mu.Lock()
	s.encoders[outputID] = ep
	s.mu.Unlock()

	if err := s.spawn(ctx, ep, args, sdp); err != nil {
		_ = s.orc.ClosePlainConsumerTransport(roomKey(roomID), key)
		return err
	}
	consumer.Resume()

	if output.ErrorMessage != "" {
		output.ErrorMessage = ""
		_ = s.st.UpdateAudioOutput(ctx, output)
	}
	return nil
}

// spawn starts the ffmpeg child for ep and installs its exit handler.
func (s *Supervisor) spawn(ctx context.Context, ep *encoderProcess, args []string, sdp string) error {
	handle, err := processsup.Spawn(ctx, fmt.Sprintf("encoder-%d", ep.outputID), s.cfg.FFmpegPath, args, sdp,
		func(line string) { /* progress resets nothing here; no watchdog on egress per §4.4 */ },
		func(line string) { s.log.Warnw("egress: encoder stderr", "outputId", ep.outputID, "line", line) },
	)
	if err != nil {
		s.markError(ctx, ep.outputID, err)
		if s.al != nil {
			s.al.Alert(ctx, "encoder spawn failed", err.Error())
		}
		return err
	}

	ep.mu.Lock()
	ep.handle = handle
	ep.mu.Unlock()

	go s.watchExit(ctx, ep, handle)
	return nil
}

func (s *Supervisor) watchExit(ctx context.Context, ep *encoderProcess, handle *processsup.Handle) {
	<-handle.Done()
	exitErr := handle.ExitErr()

	ep.mu.Lock()
	stopped := ep.stopRequested
	ep.mu.Unlock()

	if stopped {
		return // graceful client-initiated stop never retries (§4.4)
	}
	if exitErr == nil {
		return // clean exit, e.g. encoder finished; nothing to retry
	}

	output, err := s.st.FindAudioOutputByID(ctx, ep.outputID)
	if err != nil || !output.IsEnabled {
		return
	}
	if len(s.cfg.RetryDelays) == 0 {
		return
	}

	// RetryCount is persisted on the row so it survives the encoderProcess
	// being recreated on each attempt (§8: delay = RETRY_DELAYS[min(r, n-1)]).
	retry := output.RetryCount
	if retry >= len(s.cfg.RetryDelays) {
		retry = len(s.cfg.RetryDelays) - 1
	}
	delay := s.cfg.RetryDelays[retry]

	output.RetryCount = retry + 1
	output.ErrorMessage = exitErr.Error()
	_ = s.st.UpdateAudioOutput(ctx, output)
	if s.al != nil {
		s.al.Alert(ctx, fmt.Sprintf("encoder %d exited", ep.outputID), exitErr.Error())
	}

	time.Sleep(delay)

	ep.mu.Lock()
	stopped = ep.stopRequested
	producerID := ep.producerID
	ep.mu.Unlock()
	if stopped {
		return
	}

	s.mu.Lock()
	delete(s.encoders, ep.outputID)
	s.mu.Unlock()

	if err := s.StartEncoder(ctx, ep.outputID, ep.roomID, producerID); err != nil {
		s.markError(ctx, ep.outputID, err)
	}
}

// StopEncoder cancels any pending debounced restart, sends graceful
// termination, waits the configured grace period, then force-kills, and
// closes the plain transport(s) (§4.4). Idempotent (§8).
func (s *Supervisor) StopEncoder(ctx context.Context, outputID uint64) error {
	s.mu.Lock()
	ep, ok := s.encoders[outputID]
	if ok {
		delete(s.encoders, outputID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	ep.mu.Lock()
	ep.stopRequested = true
	if ep.debounceTimer != nil {
		ep.debounceTimer.Stop()
	}
	handle := ep.handle
	keys := ep.outputKeys
	roomID := ep.roomID
	ep.mu.Unlock()

	if handle != nil {
		_ = handle.Terminate(s.cfg.StopGrace)
	}
	for _, k := range keys {
		_ = s.orc.ClosePlainConsumerTransport(roomKey(roomID), k)
	}
	return nil
}

// StartMultiBusEncoder creates one plain transport per non-zero bus and
// composes a single child mixing them with per-bus gain (§4.4). Falls back
// to single-bus when only one bus is routed.
func (s *Supervisor) StartMultiBusEncoder(ctx context.Context, outputID, roomID uint64, busRouting map[string]float64) error {
	active := nonZeroBuses(busRouting)
	if len(active) <= 1 {
		for bus := range active {
			prod, ok := s.orc.GetBusProducer(roomKey(roomID), bus)
			if !ok {
				return fmt.Errorf("egress: bus %q producer not yet available", bus)
			}
			return s.StartEncoder(ctx, outputID, roomID, prod.ID)
		}
		return fmt.Errorf("egress: no active bus routing for output %d", outputID)
	}

	output, err := s.st.FindAudioOutputByID(ctx, outputID)
	if err != nil {
		return err
	}

	busPorts := make(map[string]int, len(active))
	var keys []string
	for bus := range active {
		key := outputKey(outputID, bus)
		transport, err := s.orc.CreatePlainTransport(roomKey(roomID), key)
		if err != nil {
			return err
		}
		prod, ok := s.orc.GetBusProducer(roomKey(roomID), bus)
		if !ok {
			return fmt.Errorf("egress: bus %q producer not yet available", bus)
		}
		consumer, err := s.orc.ConsumeWithPlainTransport(roomKey(roomID), key, prod.ID)
		if err != nil {
			return err
		}
		consumer.Resume()
		busPorts[bus] = transport.ExternalRTPPort
		keys = append(keys, key)
	}

	args, err := buildArgs(output)
	if err != nil {
		return err
	}
	filterComplex, mapArg := amixFilter(active)
	args = append(args, "-filter_complex", filterComplex, "-map", mapArg)
	sdp := multiBusSDP(busPorts)

	ep := &encoderProcess{outputID: outputID, roomID: roomID, outputKeys: keys}
	s.mu.Lock()
	s.encoders[outputID] = ep
	s.mu.Unlock()

	return s.spawn(ctx, ep, args, sdp)
}

// UpdateBusLevels implements the three-step protocol named in §4.4:
// immediate broadcast, persisted routing, then a debounced encoder restart.
func (s *Supervisor) UpdateBusLevels(ctx context.Context, outputID, roomID uint64, busRouting map[string]float64, changedBy string) error {
	if s.bc != nil {
		s.bc.BroadcastToRoom(roomID, "output:busLevelsChanged", map[string]any{
			"outputId":   outputID,
			"busRouting": busRouting,
			"changedBy":  changedBy,
		})
	}

	output, err := s.st.FindAudioOutputByID(ctx, outputID)
	if err != nil {
		return err
	}
	if err := output.SetBusRouting(busRouting); err != nil {
		return err
	}
	if err := s.st.UpdateAudioOutput(ctx, output); err != nil {
		return err
	}

	s.mu.Lock()
	ep, running := s.encoders[outputID]
	s.mu.Unlock()
	if !running || ep.handle == nil || ep.handle.HasExited() {
		return nil
	}

	ep.mu.Lock()
	if ep.debounceTimer != nil {
		ep.debounceTimer.Stop()
	}
	ep.debounceVersion++
	version := ep.debounceVersion
	ep.debounceTimer = time.AfterFunc(s.cfg.Debounce, func() {
		s.restartWithRouting(ctx, ep, version, busRouting)
	})
	ep.mu.Unlock()
	return nil
}

func (s *Supervisor) restartWithRouting(ctx context.Context, ep *encoderProcess, version uint64, busRouting map[string]float64) {
	ep.mu.Lock()
	if ep.debounceVersion != version || ep.stopRequested {
		ep.mu.Unlock()
		return
	}
	outputID, roomID := ep.outputID, ep.roomID
	ep.mu.Unlock()

	if s.bc != nil {
		s.bc.BroadcastToRoom(roomID, "output:stateChanged", map[string]any{"outputId": outputID, "state": types.EncoderRestarting})
	}

	if err := s.StopEncoder(ctx, outputID); err != nil {
		s.markError(ctx, outputID, err)
		return
	}
	if err := s.StartMultiBusEncoder(ctx, outputID, roomID, busRouting); err != nil {
		s.markError(ctx, outputID, err)
		if s.bc != nil {
			s.bc.BroadcastToRoom(roomID, "output:stateChanged", map[string]any{"outputId": outputID, "state": types.EncoderError, "error": err.Error()})
		}
		return
	}
	if s.bc != nil {
		s.bc.BroadcastToRoom(roomID, "output:stateChanged", map[string]any{"outputId": outputID, "state": types.EncoderRunning})
	}
}

func (s *Supervisor) markError(ctx context.Context, outputID uint64, err error) {
	output, ferr := s.st.FindAudioOutputByID(ctx, outputID)
	if ferr != nil {
		return
	}
	output.ErrorMessage = err.Error()
	output.IsConnected = false
	_ = s.st.UpdateAudioOutput(ctx, output)
}

// WaitForBusProducer bounded-polls the orchestrator for the common race
// where an output is started before the host has produced the bus (§4.4).
func (s *Supervisor) WaitForBusProducer(ctx context.Context, roomID uint64, busType string) (string, bool) {
	const pollInterval = 250 * time.Millisecond
	maxRetries := int(s.cfg.BusProducerMaxWait / pollInterval)

	prod, ok := s.orc.WaitForBusProducer(ctx, roomKey(roomID), busType, maxRetries, pollInterval)
	if !ok {
		return "", false
	}
	return prod.ID, true
}
