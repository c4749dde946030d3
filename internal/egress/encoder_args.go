package egress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// containerFor maps a codec to the ffmpeg muxer §6 names alongside it.
func containerFor(codec string) string {
	switch codec {
	case "aac":
		return "adts"
	case "libopus":
		return "ogg"
	default: // libmp3lame
		return "mp3"
	}
}

func contentTypeFor(codec string) string {
	switch codec {
	case "aac":
		return "audio/aac"
	case "libopus":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// buildArgs assembles the ffmpeg argument grammar named in §6 for one
// AudioOutput, ending in the Icecast or SRT destination URL.
func buildArgs(o *model.AudioOutput) ([]string, error) {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-protocol_whitelist", "pipe,file,udp,rtp",
		"-f", "sdp", "-i", "pipe:0",
		"-c:a", o.Codec,
		"-b:a", fmt.Sprintf("%dk", o.BitrateKbps),
		"-ar", fmt.Sprintf("%d", o.SampleRate),
		"-ac", fmt.Sprintf("%d", o.Channels),
	}

	switch o.Type {
	case types.OutputIcecast:
		if o.IcecastName != "" {
			args = append(args, "-ice_name", o.IcecastName)
		}
		if o.IcecastDescription != "" {
			args = append(args, "-ice_description", o.IcecastDescription)
		}
		if o.IcecastGenre != "" {
			args = append(args, "-ice_genre", o.IcecastGenre)
		}
		if o.IcecastURL != "" {
			args = append(args, "-ice_url", o.IcecastURL)
		}
		public := "0"
		if o.IcecastPublic {
			public = "1"
		}
		args = append(args, "-ice_public", public)
		args = append(args, "-content_type", contentTypeFor(o.Codec))
		args = append(args, "-f", containerFor(o.Codec))
		args = append(args, icecastURL(o))

	case types.OutputSRT:
		args = append(args, "-f", "mpegts")
		args = append(args, srtURL(o))

	default:
		return nil, fmt.Errorf("egress: output type %q has no encoder argument grammar", o.Type)
	}

	return args, nil
}

func icecastURL(o *model.AudioOutput) string {
	return fmt.Sprintf("icecast://%s:%s@%s:%d%s", o.IcecastUser, o.IcecastPassword, o.IcecastHost, o.IcecastPort, o.IcecastMount)
}

// srtURL builds the SRT target URL with only the set query fields appended,
// per §6: `srt://<host>:<port>?mode=...&streamid=...&passphrase=...&latency=...`.
func srtURL(o *model.AudioOutput) string {
	u := fmt.Sprintf("srt://%s:%d", o.SRTHost, o.SRTPort)
	var q []string
	if o.SRTMode != "" {
		q = append(q, "mode="+o.SRTMode)
	}
	if o.SRTStreamID != "" {
		q = append(q, "streamid="+o.SRTStreamID)
	}
	if o.SRTPassphrase != "" {
		q = append(q, "passphrase="+o.SRTPassphrase)
	}
	if o.SRTLatencyMs > 0 {
		q = append(q, fmt.Sprintf("latency=%d", o.SRTLatencyMs))
	}
	if len(q) == 0 {
		return u
	}
	return u + "?" + strings.Join(q, "&")
}

// singleBusSDP describes one RTP input at port (§6: "media audio <port>
// RTP/AVP 111", opus/48000/2, recvonly).
func singleBusSDP(port int) string {
	return fmt.Sprintf(
		"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\n"+
			"m=audio %d RTP/AVP 111\r\na=rtpmap:111 opus/48000/2\r\na=recvonly\r\n", port)
}

// multiBusSDP contains one m=audio section per bus with a=mid:<bus> (§6
// "Multi-bus SDP contains one m=audio section per bus").
func multiBusSDP(busPorts map[string]int) string {
	buses := make([]string, 0, len(busPorts))
	for bus := range busPorts {
		buses = append(buses, bus)
	}
	sort.Strings(buses)

	var b strings.Builder
	b.WriteString("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\n")
	for _, bus := range buses {
		fmt.Fprintf(&b, "m=audio %d RTP/AVP 111\r\na=rtpmap:111 opus/48000/2\r\na=recvonly\r\na=mid:%s\r\n", busPorts[bus], bus)
	}
	return b.String()
}

// amixFilter builds a per-input volume filter chain feeding an amix, applying
// each bus's routed gain before summing (§4.4 startMultiBusEncoder).
func amixFilter(busLevels map[string]float64) (filterComplex string, mapArg string) {
	buses := make([]string, 0, len(busLevels))
	for bus := range busLevels {
		buses = append(buses, bus)
	}
	sort.Strings(buses)

	var parts []string
	var labels []string
	for i, bus := range buses {
		label := fmt.Sprintf("a%d", i)
		parts = append(parts, fmt.Sprintf("[%d:a]volume=%g[%s]", i, busLevels[bus], label))
		labels = append(labels, "["+label+"]")
	}
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest[aout]", strings.Join(labels, ""), len(buses)))
	return strings.Join(parts, ";"), "[aout]"
}

// nonZeroBuses filters a bus routing map down to buses with positive level.
func nonZeroBuses(routing map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for bus, level := range routing {
		if level > 0 {
			out[bus] = level
		}
	}
	return out
}
