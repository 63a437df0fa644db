// Package chantransport implements transport.Peer over in-process Go
// channels: one pair of tagged-payload channels per (coordinator, worker)
// link, for the `-mode=embedded` CLI path where every rank runs as a
// goroutine in a single process instead of a separate OS process.
package chantransport

import (
	"fmt"

	"golang.org/x/net/context"

	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/spillgraph"
	"github.com/openterrain/distflood/transport"
)

type envelope struct {
	kind    transport.Kind
	payload any
}

// link is one (coordinator, worker) channel pair: coordinatorToWorker
// carries the LabelOffsets reply (and Sync tokens) downstream,
// workerToCoordinator carries everything a worker reports upstream.
type link struct {
	coordinatorToWorker chan envelope
	workerToCoordinator chan envelope
	workerRank          int
}

// NewHub builds the full star topology for n workers (ranks 1..n) and
// returns the coordinator's per-worker peers (indexed 0..n-1, for worker
// rank i+1) and each worker's single peer onto the coordinator.
func NewHub(n int) (coordinatorPeers []transport.Peer, workerPeers []transport.Peer) {
	coordinatorPeers = make([]transport.Peer, n)
	workerPeers = make([]transport.Peer, n)
	for i := 0; i < n; i++ {
		l := &link{
			coordinatorToWorker: make(chan envelope, 8),
			workerToCoordinator: make(chan envelope, 8),
			workerRank:          i + 1,
		}
		coordinatorPeers[i] = &coordinatorPeer{link: l}
		workerPeers[i] = &workerPeer{link: l}
	}
	return coordinatorPeers, workerPeers
}

// coordinatorPeer is the coordinator's end of one link: it sends replies
// downstream and receives everything the worker reports.
type coordinatorPeer struct{ link *link }

func (p *coordinatorPeer) checkTarget(to int) error {
	if to != p.link.workerRank {
		return &errs.LogicError{Err: fmt.Errorf("chantransport: coordinator peer is bound to worker %d, got send to %d", p.link.workerRank, to)}
	}
	return nil
}

func (p *coordinatorPeer) SendTopElevations(ctx context.Context, to int, row []float32) error {
	return p.send(ctx, to, transport.KindTopElevations, row)
}
func (p *coordinatorPeer) SendBotElevations(ctx context.Context, to int, row []float32) error {
	return p.send(ctx, to, transport.KindBotElevations, row)
}
func (p *coordinatorPeer) SendTopLabels(ctx context.Context, to int, row []int32) error {
	return p.send(ctx, to, transport.KindTopLabels, row)
}
func (p *coordinatorPeer) SendBotLabels(ctx context.Context, to int, row []int32) error {
	return p.send(ctx, to, transport.KindBotLabels, row)
}
func (p *coordinatorPeer) SendGraph(ctx context.Context, to int, g *spillgraph.Graph) error {
	return p.send(ctx, to, transport.KindGraph, g)
}
func (p *coordinatorPeer) SendLabelOffsets(ctx context.Context, to int, m map[int32]float32) error {
	return p.send(ctx, to, transport.KindLabelOffsets, m)
}
func (p *coordinatorPeer) SendSync(ctx context.Context, to int) error {
	return p.send(ctx, to, transport.KindSync, nil)
}

func (p *coordinatorPeer) send(ctx context.Context, to int, kind transport.Kind, payload any) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	select {
	case p.link.coordinatorToWorker <- envelope{kind: kind, payload: payload}:
		return nil
	case <-ctx.Done():
		return &errs.ResourceError{Err: ctx.Err()}
	}
}

func (p *coordinatorPeer) Recv(ctx context.Context) (transport.Kind, any, error) {
	select {
	case e := <-p.link.workerToCoordinator:
		return e.kind, e.payload, nil
	case <-ctx.Done():
		return 0, nil, &errs.ResourceError{Err: ctx.Err()}
	}
}

// workerPeer is a worker's end of its single link to the coordinator.
type workerPeer struct{ link *link }

func (p *workerPeer) checkTarget(to int) error {
	if to != 0 {
		return &errs.LogicError{Err: fmt.Errorf("chantransport: worker peer is bound to the coordinator (rank 0), got send to %d", to)}
	}
	return nil
}

func (p *workerPeer) SendTopElevations(ctx context.Context, to int, row []float32) error {
	return p.send(ctx, to, transport.KindTopElevations, row)
}
func (p *workerPeer) SendBotElevations(ctx context.Context, to int, row []float32) error {
	return p.send(ctx, to, transport.KindBotElevations, row)
}
func (p *workerPeer) SendTopLabels(ctx context.Context, to int, row []int32) error {
	return p.send(ctx, to, transport.KindTopLabels, row)
}
func (p *workerPeer) SendBotLabels(ctx context.Context, to int, row []int32) error {
	return p.send(ctx, to, transport.KindBotLabels, row)
}
func (p *workerPeer) SendGraph(ctx context.Context, to int, g *spillgraph.Graph) error {
	return p.send(ctx, to, transport.KindGraph, g)
}
func (p *workerPeer) SendLabelOffsets(ctx context.Context, to int, m map[int32]float32) error {
	return p.send(ctx, to, transport.KindLabelOffsets, m)
}
func (p *workerPeer) SendSync(ctx context.Context, to int) error {
	return p.send(ctx, to, transport.KindSync, nil)
}

func (p *workerPeer) send(ctx context.Context, to int, kind transport.Kind, payload any) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	select {
	case p.link.workerToCoordinator <- envelope{kind: kind, payload: payload}:
		return nil
	case <-ctx.Done():
		return &errs.ResourceError{Err: ctx.Err()}
	}
}

func (p *workerPeer) Recv(ctx context.Context) (transport.Kind, any, error) {
	select {
	case e := <-p.link.coordinatorToWorker:
		return e.kind, e.payload, nil
	case <-ctx.Done():
		return 0, nil, &errs.ResourceError{Err: ctx.Err()}
	}
}
