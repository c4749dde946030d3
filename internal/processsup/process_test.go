package processsup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onairhq/studio/internal/processsup"
	"github.com/stretchr/testify/require"
)

func TestSpawnReportsProgressAndExit(t *testing.T) {
	var mu sync.Mutex
	var progressLines []string

	h, err := processsup.Spawn(context.Background(), "enc-1", "/bin/sh",
		[]string{"-c", "read x; echo 'frame=1 size=128kB time=00:00:01.00 bitrate=1000kbits/s'"},
		"v=0\r\n",
		func(line string) {
			mu.Lock()
			progressLines = append(progressLines, line)
			mu.Unlock()
		},
		nil,
	)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit in time")
	}

	require.NoError(t, h.ExitErr())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, progressLines, 1)
	require.Contains(t, progressLines[0], "size=")
}

func TestTerminateIsIdempotentAfterExit(t *testing.T) {
	h, err := processsup.Spawn(context.Background(), "enc-2", "/bin/sh", []string{"-c", "read x; exit 0"}, "v=0\r\n", nil, nil)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit in time")
	}

	require.NoError(t, h.Terminate(100*time.Millisecond))
}

func TestTerminateKillsUnresponsiveProcess(t *testing.T) {
	h, err := processsup.Spawn(context.Background(), "enc-3", "/bin/sh", []string{"-c", "trap '' TERM; sleep 5"}, "", nil, nil)
	require.NoError(t, err)

	start := time.Now()
	_ = h.Terminate(50 * time.Millisecond)
	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, h.HasExited())
}

func TestIsProgressAndErrorLineClassification(t *testing.T) {
	require.True(t, processsup.IsProgressLine("frame=10 size=128kB time=00:00:01.00"))
	require.False(t, processsup.IsProgressLine("Stream mapping:"))
	require.True(t, processsup.IsErrorLine("Error opening input file"))
	require.True(t, processsup.IsErrorLine("connection failed"))
}
