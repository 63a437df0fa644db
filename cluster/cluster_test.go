package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-etcd/etcd"
)

// fakeKV is an in-memory stand-in for *etcd.Client, enough of etcd's
// semantics (Get errors with "Key not found", Watch blocks until a
// value appears or stop fires) to exercise Rendezvous without a live
// etcd cluster.
type fakeKV struct {
	mu   sync.Mutex
	vals map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{vals: make(map[string]string)} }

func (f *fakeKV) Create(key, value string, ttl uint64) (*etcd.Response, error) {
	return f.Set(key, value, ttl)
}

func (f *fakeKV) Set(key, value string, ttl uint64) (*etcd.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key] = value
	return &etcd.Response{Node: &etcd.Node{Key: key, Value: value}}, nil
}

func (f *fakeKV) Get(key string, sort, recursive bool) (*etcd.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[key]
	if !ok {
		return nil, fmt.Errorf("100: Key not found (%s)", key)
	}
	return &etcd.Response{Node: &etcd.Node{Key: key, Value: v}}, nil
}

func (f *fakeKV) Delete(key string, recursive bool) (*etcd.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vals, key)
	return &etcd.Response{}, nil
}

func (f *fakeKV) Watch(key string, waitIndex uint64, recursive bool, receiver chan *etcd.Response, stop chan bool) (*etcd.Response, error) {
	for {
		f.mu.Lock()
		v, ok := f.vals[key]
		f.mu.Unlock()
		if ok {
			return &etcd.Response{Node: &etcd.Node{Key: key, Value: v}}, nil
		}
		select {
		case <-stop:
			return nil, fmt.Errorf("watch stopped")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestRegisterThenDiscover(t *testing.T) {
	kv := newFakeKV()
	r := New(kv, "distflood")
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- r.Register(1, "10.0.0.1:9000", time.Hour, stop) }()

	time.Sleep(10 * time.Millisecond) // let Register's initial Set land

	addr, err := r.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if addr != "10.0.0.1:9000" {
		t.Errorf("addr = %q", addr)
	}
	close(stop)
	if err := <-done; err != nil {
		t.Fatalf("Register returned: %v", err)
	}
	if _, ok := kv.vals[nodePath("distflood", 1)]; ok {
		t.Error("Register did not delete its key on stop")
	}
}

func TestDiscoverBlocksUntilRegistered(t *testing.T) {
	kv := newFakeKV()
	r := New(kv, "distflood")

	go func() {
		time.Sleep(20 * time.Millisecond)
		kv.Set(nodePath("distflood", 2), "10.0.0.2:9000", 0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addr, err := r.Discover(ctx, 2)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if addr != "10.0.0.2:9000" {
		t.Errorf("addr = %q", addr)
	}
}

func TestWaitForAllCollectsEveryRank(t *testing.T) {
	kv := newFakeKV()
	r := New(kv, "distflood")
	kv.Set(nodePath("distflood", 0), "coord:9000", 0)
	kv.Set(nodePath("distflood", 1), "w1:9000", 0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		kv.Set(nodePath("distflood", 2), "w2:9000", 0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := r.WaitForAll(ctx, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("WaitForAll: %v", err)
	}
	if m[0] != "coord:9000" || m[1] != "w1:9000" || m[2] != "w2:9000" {
		t.Errorf("m = %v", m)
	}
}
