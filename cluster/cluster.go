// Package cluster is the `-mode=distributed` worker discovery and
// rendezvous layer: independent OS processes, coordinated without
// shared memory, find each other's addresses through etcd over a flat
// rank space (0 is the coordinator, 1..W are workers).
package cluster

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-etcd/etcd"

	"github.com/openterrain/distflood/errs"
)

// KV is the subset of *etcd.Client's surface Rendezvous needs, narrowed
// to an interface so the rendezvous logic can be exercised against a
// fake store without a live etcd cluster.
type KV interface {
	Create(key, value string, ttl uint64) (*etcd.Response, error)
	Set(key, value string, ttl uint64) (*etcd.Response, error)
	Get(key string, sort, recursive bool) (*etcd.Response, error)
	Delete(key string, recursive bool) (*etcd.Response, error)
	Watch(key string, waitIndex uint64, recursive bool, receiver chan *etcd.Response, stop chan bool) (*etcd.Response, error)
}

// Rendezvous publishes and discovers peer addresses under
// /{job}/nodes/{rank}.
type Rendezvous struct {
	kv  KV
	job string
}

// New returns a Rendezvous over kv for the named job. A *etcd.Client
// satisfies KV directly.
func New(kv KV, job string) *Rendezvous {
	return &Rendezvous{kv: kv, job: job}
}

func nodePath(job string, rank int) string {
	return path.Join("/", job, "nodes", strconv.Itoa(rank))
}

// Register publishes addr as rank's address and refreshes its TTL every
// interval until stop is closed. On stop it deletes the key so peers
// still watching see the rank leave promptly.
func (r *Rendezvous) Register(rank int, addr string, interval time.Duration, stop <-chan struct{}) error {
	ttl := uint64(3)
	if interval/time.Second > 1 {
		ttl = 3 * uint64(interval/time.Second)
	}
	key := nodePath(r.job, rank)
	if _, err := r.kv.Set(key, addr, ttl); err != nil {
		return &errs.ResourceError{Err: fmt.Errorf("cluster: register rank %d: %w", rank, err)}
	}
	for {
		select {
		case <-time.After(interval):
			if _, err := r.kv.Set(key, addr, ttl); err != nil {
				return &errs.ResourceError{Err: fmt.Errorf("cluster: refresh rank %d: %w", rank, err)}
			}
		case <-stop:
			r.kv.Delete(key, false)
			return nil
		}
	}
}

// Discover blocks until rank's address is published, then returns it.
// If the key isn't there yet it falls back to a Watch.
func (r *Rendezvous) Discover(ctx context.Context, rank int) (string, error) {
	key := nodePath(r.job, rank)
	if resp, err := r.kv.Get(key, false, false); err == nil {
		return resp.Node.Value, nil
	} else if !strings.Contains(err.Error(), "Key not found") {
		return "", &errs.ResourceError{Err: fmt.Errorf("cluster: discover rank %d: %w", rank, err)}
	}

	stop := make(chan bool, 1)
	go func() {
		<-ctx.Done()
		stop <- true
	}()
	resp, err := r.kv.Watch(key, 0, false, nil, stop)
	if err != nil {
		return "", &errs.ResourceError{Err: fmt.Errorf("cluster: watch rank %d: %w", rank, err)}
	}
	return resp.Node.Value, nil
}

// WaitForAll blocks until every rank in ranks has a published address,
// returning the rank->address map. This is the coordinator's startup
// barrier.
func (r *Rendezvous) WaitForAll(ctx context.Context, ranks []int) (map[int]string, error) {
	out := make(map[int]string, len(ranks))
	for _, rank := range ranks {
		addr, err := r.Discover(ctx, rank)
		if err != nil {
			return nil, err
		}
		out[rank] = addr
	}
	return out, nil
}
