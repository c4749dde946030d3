// Package sfulib is the "SFU Library" collaborator named in spec §2: it
// wraps pion/webrtc into the small vocabulary internal/orchestrator needs
// (workers, WebRTC transports, plain-RTP transports, producers, consumers)
// without itself knowing anything about rooms, participants, or buses.
// Grounded in the teacher's webrtcStreamer (api/assistant-api/internal/
// channel/webrtc/streamer.go) for the PeerConnection lifecycle/ICE-state
// wiring idiom, and cross-checked against the ion-sfu router vocabulary in
// _examples/HMasataka-ion-sfu/pkg/sfu/sfu.go and the pion-based SFUs in
// other_examples (mattermost-rtcd, LessUp-LiveForge).
package sfulib

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"
)

// OpusCodecCapability is the single audio codec the orchestrator publishes
// to every room router (§4.1): Opus at 48kHz stereo with inband FEC and a
// 10ms minimum packetization time.
var OpusCodecCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

// Worker owns one pion webrtc.API instance (media engine + interceptor
// registry + settings engine). Rooms are bound to a worker round-robin by
// the orchestrator and keep that worker for the room's lifetime.
type Worker struct {
	Index int
	API   *webrtc.API
}

// NewWorker builds a single worker's webrtc.API with the Opus codec and the
// default interceptor chain (NACK generator/responder, RTCP reports). The
// ICE/DTLS ephemeral UDP port range is the caller's portMin..portMax, applied
// only when portMin > 0 and portMax > portMin; otherwise pion's default
// applies.
func NewWorker(index int, portMin, portMax uint16) (*Worker, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: OpusCodecCapability,
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("sfulib: register opus codec: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("sfulib: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if portMin > 0 && portMax > portMin {
		if err := se.SetEphemeralUDPPortRange(portMin, portMax); err != nil {
			return nil, fmt.Errorf("sfulib: set udp port range: %w", err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se))

	return &Worker{Index: index, API: api}, nil
}

// Pool is a fixed-size round-robin set of Workers. Replace installs a fresh
// worker at a given index; rooms already bound to the old worker keep using
// their existing PeerConnections, only new room assignment moves to the
// replacement. Nothing detects a dead worker, and the orchestrator never
// calls Replace.
type Pool struct {
	workers         []*Worker
	next            int
	portMin, portMax uint16
}

// NewPool constructs n workers, each with the given ephemeral UDP port
// range. Workers are independent (each builds its own webrtc.API and
// interceptor registry) so construction fans out across an errgroup
// rather than blocking one worker's codec/interceptor registration on the
// previous one's.
func NewPool(n int, portMin, portMax uint16) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	p := &Pool{workers: make([]*Worker, n), portMin: portMin, portMax: portMax}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			w, err := NewWorker(i, portMin, portMax)
			if err != nil {
				return err
			}
			p.workers[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

// Next returns the next worker in round-robin order.
func (p *Pool) Next() *Worker {
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w
}

// Replace swaps in a freshly constructed worker at idx.
func (p *Pool) Replace(idx int) error {
	if idx < 0 || idx >= len(p.workers) {
		return fmt.Errorf("sfulib: worker index %d out of range", idx)
	}
	w, err := NewWorker(idx, p.portMin, p.portMax)
	if err != nil {
		return err
	}
	p.workers[idx] = w
	return nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }
