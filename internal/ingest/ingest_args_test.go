package ingest

import (
	"net"
	"testing"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func TestBuildArgsSRTListenerBindsWildcard(t *testing.T) {
	s := &model.AudioSource{
		Type:         types.SourceSRTStream,
		Mode:         types.ModeListener,
		ListenerPort: 31005,
		StreamID:     "morning-show",
	}
	args, err := buildArgs(s, 22010)
	require.NoError(t, err)
	require.Contains(t, args, "rtp://127.0.0.1:22010")

	input := args[4]
	require.Equal(t, "srt://0.0.0.0:31005?mode=listener&streamid=morning-show", input)
}

func TestBuildArgsSRTCallerUsesRemoteTarget(t *testing.T) {
	s := &model.AudioSource{
		Type:       types.SourceSRTStream,
		Mode:       types.ModeCaller,
		RemoteHost: "origin.example.com",
		RemotePort: 9000,
	}
	args, err := buildArgs(s, 22010)
	require.NoError(t, err)
	require.Equal(t, "srt://origin.example.com:9000?mode=caller", args[4])
}

func TestBuildArgsRISTListener(t *testing.T) {
	s := &model.AudioSource{
		Type:         types.SourceRISTStream,
		Mode:         types.ModeListener,
		ListenerPort: 32010,
	}
	args, err := buildArgs(s, 22011)
	require.NoError(t, err)
	require.Equal(t, "rist://0.0.0.0:32010?profile=main", args[4])
}

func TestBuildArgsHTTPStreamRequiresURL(t *testing.T) {
	_, err := buildArgs(&model.AudioSource{Type: types.SourceHTTPStream}, 22012)
	require.Error(t, err)

	args, err := buildArgs(&model.AudioSource{Type: types.SourceHTTPStream, URL: "https://example.com/stream"}, 22012)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/stream", args[4])
}

func TestBuildArgsToneAndSilenceUseLavfiSources(t *testing.T) {
	args, err := buildArgs(&model.AudioSource{Type: types.SourceTone}, 22013)
	require.NoError(t, err)
	require.Contains(t, args[4], "sine=")

	args, err = buildArgs(&model.AudioSource{Type: types.SourceSilence}, 22013)
	require.NoError(t, err)
	require.Contains(t, args[4], "anullsrc=")
}

func TestBuildArgsUnsupportedTypeErrors(t *testing.T) {
	_, err := buildArgs(&model.AudioSource{Type: types.SourceParticipant}, 22014)
	require.Error(t, err)
}

func TestProbeBindRejectsPortAlreadyInUse(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.Error(t, probeBind(port))
}

func TestProbeBindAcceptsFreePort(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()

	require.NoError(t, probeBind(port))
}
