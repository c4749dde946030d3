// Package ingest is the Ingest Supervisor (§4.5): symmetric to egress, it
// owns child processes that speak SRT/RIST/WHIP and inject their audio into
// a room as an SFU producer.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onairhq/studio/internal/commons"
)

// Redis keys for the distributed LISTENER-port pool, hash-tagged so every
// key for one protocol's range lands on the same cluster slot. Grounded on
// the teacher's RTPPortAllocator (api/assistant-api/sip/infra/rtp_port_allocator.go).
const (
	portAvailableKeyFmt = "{ingest:ports:%s}:available"
	portAllocatedPrefix = "{ingest:ports:%s}:allocated:"
	portAllocatedTTL    = 10 * time.Minute
)

var initPortsScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call('EXISTS', key) == 0 then
		for i = 1, #ARGV do
			redis.call('SADD', key, ARGV[i])
		end
		return #ARGV
	end
	return 0
`)

var allocatePortScript = redis.NewScript(`
	local port = redis.call('SPOP', KEYS[1])
	if port == false then
		return -1
	end
	redis.call('SADD', KEYS[2], port)
	return port
`)

var releasePortScript = redis.NewScript(`
	redis.call('SREM', KEYS[2], ARGV[1])
	redis.call('SADD', KEYS[1], ARGV[1])
	return 1
`)

// PortAllocator hands out LISTENER ports for one ingest protocol (SRT or
// RIST) from a Redis-backed distributed pool bounded by [portMin, portMax],
// §4.5 step 1 / §6 "ingest port range" / §8 port invariants. Each instance
// tracks its own allocations under instanceID so a crashed process's ports
// can be reclaimed on the next startup, the way the teacher's allocator does
// for its SIP RTP ports.
type PortAllocator struct {
	client     *redis.Client
	log        commons.Logger
	protocol   string
	portMin    int
	portMax    int
	instanceID string
}

// NewPortAllocator builds a distributed port allocator for one protocol's
// range. protocol distinguishes the Redis keyspace ("srt", "rist") so the
// two pools never collide.
func NewPortAllocator(client *redis.Client, log commons.Logger, protocol string, portMin, portMax int) *PortAllocator {
	hostname, _ := os.Hostname()
	return &PortAllocator{
		client:     client,
		log:        log,
		protocol:   protocol,
		portMin:    portMin,
		portMax:    portMax,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

func (a *PortAllocator) availableKey() string { return fmt.Sprintf(portAvailableKeyFmt, a.protocol) }
func (a *PortAllocator) instanceKey() string {
	return fmt.Sprintf(portAllocatedPrefix, a.protocol) + a.instanceID
}

// Init populates the pool with every port in [portMin, portMax] the first
// time it is called for this protocol; safe to call on every process start.
func (a *PortAllocator) Init(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("ingest: redis connection unavailable for %s port pool", a.protocol)
	}
	ports := make([]interface{}, 0, a.portMax-a.portMin+1)
	for p := a.portMin; p <= a.portMax; p++ {
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return fmt.Errorf("ingest: empty %s port range [%d,%d]", a.protocol, a.portMin, a.portMax)
	}

	added, err := initPortsScript.Run(ctx, a.client, []string{a.availableKey()}, ports...).Int()
	if err != nil {
		return fmt.Errorf("ingest: init %s port pool: %w", a.protocol, err)
	}
	if added > 0 {
		a.log.Info("ingest: initialized port pool", "protocol", a.protocol, "ports", added)
	}
	a.reclaimCrashed(ctx)
	return nil
}

// Allocate pops one port from the pool. Per §4.5 step 1, callers still
// probe the port with an OS-level bind before trusting it, since Redis only
// tracks logical ownership, not whether the port is free on this host.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	if a.client == nil {
		return 0, fmt.Errorf("ingest: redis connection unavailable for %s port allocation", a.protocol)
	}
	result, err := allocatePortScript.Run(ctx, a.client, []string{a.availableKey(), a.instanceKey()}).Int()
	if err != nil {
		return 0, fmt.Errorf("ingest: allocate %s port: %w", a.protocol, err)
	}
	if result == -1 {
		return 0, fmt.Errorf("ingest: no %s ports available in [%d,%d]", a.protocol, a.portMin, a.portMax)
	}
	a.client.Expire(ctx, a.instanceKey(), portAllocatedTTL)
	return result, nil
}

// Release returns port to the pool.
func (a *PortAllocator) Release(ctx context.Context, port int) {
	if a.client == nil {
		return
	}
	if _, err := releasePortScript.Run(ctx, a.client, []string{a.availableKey(), a.instanceKey()}, port).Result(); err != nil {
		a.log.Error("ingest: release port failed", "protocol", a.protocol, "port", port, "error", err)
	}
}

// reclaimCrashed moves ports tracked under this instance's key (from a
// previous crash using the same hostname:pid) back to the available pool.
func (a *PortAllocator) reclaimCrashed(ctx context.Context) {
	ports, err := a.client.SMembers(ctx, a.instanceKey()).Result()
	if err != nil || len(ports) == 0 {
		return
	}
	a.log.Warn("ingest: reclaiming ports from crashed instance", "protocol", a.protocol, "count", len(ports))
	for _, p := range ports {
		port, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		a.Release(ctx, port)
	}
}
