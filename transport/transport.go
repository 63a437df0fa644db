// Package transport defines the message contract between the coordinator
// and its workers. Two implementations satisfy Peer: chantransport
// (in-process channels, for a single-process run) and grpctransport
// (real RPCs, for a run split across separate processes or machines).
package transport

import (
	"fmt"

	"golang.org/x/net/context"

	"github.com/openterrain/distflood/spillgraph"
)

// Kind tags the payload of a message; the concrete tag values are an
// implementation detail.
type Kind int

const (
	KindTopElevations Kind = iota + 1
	KindBotElevations
	KindTopLabels
	KindBotLabels
	KindGraph
	KindLabelOffsets
	KindSync
)

func (k Kind) String() string {
	switch k {
	case KindTopElevations:
		return "TopElevations"
	case KindBotElevations:
		return "BotElevations"
	case KindTopLabels:
		return "TopLabels"
	case KindBotLabels:
		return "BotLabels"
	case KindGraph:
		return "Graph"
	case KindLabelOffsets:
		return "LabelOffsets"
	case KindSync:
		return "Sync"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Peer is one endpoint's view of the link it uses to exchange strip
// reports and fill tables with its counterpart. A coordinator-side Peer
// is bound to exactly one worker; a worker-side Peer is bound to the
// coordinator. Implementations treat a Send whose `to` does not match
// the bound counterpart as a LogicError (errs.LogicError), since
// point-to-point links never fan out.
type Peer interface {
	SendTopElevations(ctx context.Context, to int, row []float32) error
	SendBotElevations(ctx context.Context, to int, row []float32) error
	SendTopLabels(ctx context.Context, to int, row []int32) error
	SendBotLabels(ctx context.Context, to int, row []int32) error
	SendGraph(ctx context.Context, to int, g *spillgraph.Graph) error
	SendLabelOffsets(ctx context.Context, to int, m map[int32]float32) error
	SendSync(ctx context.Context, to int) error
	Recv(ctx context.Context) (Kind, any, error)
}

// GraphEdge is the wire-friendly flattening of one spillgraph.Graph edge,
// used by implementations that cannot serialize a Go map directly (the
// gRPC transport's protobuf messages).
type GraphEdge struct {
	U, V   int32
	Weight float32
}

// FlattenGraph returns every undirected edge of g plus every vertex of g
// (so that AddVertex-only labels, e.g. a strip with a single flat region
// touching nothing, still survive the round trip).
func FlattenGraph(g *spillgraph.Graph) (vertices []int32, edges []GraphEdge) {
	seen := make(map[int32]bool)
	for _, v := range g.Vertices() {
		if !seen[v] {
			seen[v] = true
			vertices = append(vertices, v)
		}
	}
	g.Edges(func(u, v int32, w float32) {
		edges = append(edges, GraphEdge{U: u, V: v, Weight: w})
	})
	return vertices, edges
}

// InflateGraph rebuilds a *spillgraph.Graph from the output of
// FlattenGraph.
func InflateGraph(vertices []int32, edges []GraphEdge) *spillgraph.Graph {
	g := spillgraph.New()
	for _, v := range vertices {
		g.AddVertex(v)
	}
	for _, e := range edges {
		g.Relax(e.U, e.V, e.Weight)
	}
	return g
}
