package ingest

import (
	"fmt"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// buildArgs assembles the ffmpeg argument grammar for one AudioSource,
// symmetric to egress's buildArgs (§4.5 step 4): the child speaks the
// source protocol on its input side and always emits Opus/48k/stereo RTP
// with payload type 111 to 127.0.0.1:<rtpPort> on its output side.
func buildArgs(s *model.AudioSource, rtpPort int) ([]string, error) {
	input, err := inputURL(s)
	if err != nil {
		return nil, err
	}

	return []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", input,
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-payload_type", "111",
		"-f", "rtp",
		fmt.Sprintf("rtp://127.0.0.1:%d", rtpPort),
	}, nil
}

// inputURL builds the protocol-specific source URL ffmpeg reads from.
func inputURL(s *model.AudioSource) (string, error) {
	switch s.Type {
	case types.SourceSRTStream:
		return srtInputURL(s), nil
	case types.SourceRISTStream:
		return ristInputURL(s), nil
	case types.SourceHTTPStream:
		if s.URL == "" {
			return "", fmt.Errorf("ingest: HTTP_STREAM source has no url")
		}
		return s.URL, nil
	case types.SourceFile:
		if s.URL == "" {
			return "", fmt.Errorf("ingest: FILE source has no path")
		}
		return s.URL, nil
	case types.SourceTone:
		return "sine=frequency=1000:sample_rate=48000", nil
	case types.SourceSilence:
		return "anullsrc=channel_layout=stereo:sample_rate=48000", nil
	default:
		return "", fmt.Errorf("ingest: source type %q has no input grammar", s.Type)
	}
}

// srtInputURL mirrors egress's srtURL but for a LISTENER/CALLER *input*: the
// allocated or configured port stands in for the destination half of the
// connection depending on Mode.
func srtInputURL(s *model.AudioSource) string {
	host := s.RemoteHost
	port := s.RemotePort
	if s.Mode == types.ModeListener {
		host = "0.0.0.0"
		port = s.ListenerPort
	}
	u := fmt.Sprintf("srt://%s:%d?mode=%s", host, port, modeString(s.Mode))
	if s.StreamID != "" {
		u += "&streamid=" + s.StreamID
	}
	if s.Passphrase != "" {
		u += "&passphrase=" + s.Passphrase
	}
	if s.LatencyMs > 0 {
		u += fmt.Sprintf("&latency=%d", s.LatencyMs)
	}
	return u
}

func ristInputURL(s *model.AudioSource) string {
	host := s.RemoteHost
	port := s.RemotePort
	if s.Mode == types.ModeListener {
		host = "0.0.0.0"
		port = s.ListenerPort
	}
	return fmt.Sprintf("rist://%s:%d?profile=main", host, port)
}

func modeString(m types.ConnectionMode) string {
	switch m {
	case types.ModeListener:
		return "listener"
	case types.ModeCaller:
		return "caller"
	case types.ModeRendezvous:
		return "rendezvous"
	default:
		return "caller"
	}
}
