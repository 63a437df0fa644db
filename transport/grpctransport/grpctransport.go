// Package grpctransport implements transport.Peer over real gRPC
// service calls, for the `-mode=distributed` CLI path where the
// coordinator and each worker run as separate OS processes. It is a
// small unary-RPC service: a hand-rolled client stub calling
// ClientConn.Invoke directly (the same shape protoc-gen-go-grpc itself
// emits), and a server that turns each RPC into a value pushed onto a
// channel the application side drains via Recv.
package grpctransport

import (
	"fmt"

	"golang.org/x/net/context"
	"google.golang.org/grpc"

	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/spillgraph"
	"github.com/openterrain/distflood/transport"
	pb "github.com/openterrain/distflood/transport/distfloodpb"
)

const serviceName = "distflood.Transport"

// transportServer is what the generated grpc.ServiceDesc dispatches to;
// *server below is its only implementation.
type transportServer interface {
	SendTopElevations(context.Context, *pb.FloatRow) (*pb.Ack, error)
	SendBotElevations(context.Context, *pb.FloatRow) (*pb.Ack, error)
	SendTopLabels(context.Context, *pb.LabelRow) (*pb.Ack, error)
	SendBotLabels(context.Context, *pb.LabelRow) (*pb.Ack, error)
	SendGraph(context.Context, *pb.Graph) (*pb.Ack, error)
	SendLabelOffsets(context.Context, *pb.LabelOffsets) (*pb.Ack, error)
	SendSync(context.Context, *pb.Sync) (*pb.Ack, error)
}

type envelope struct {
	kind    transport.Kind
	payload any
}

// server adapts incoming RPCs into envelopes on inbox, draining into
// whichever local Peer owns this link's Recv calls.
type server struct {
	inbox chan envelope
}

func (s *server) SendTopElevations(ctx context.Context, in *pb.FloatRow) (*pb.Ack, error) {
	s.inbox <- envelope{kind: transport.KindTopElevations, payload: append([]float32(nil), in.Values...)}
	return &pb.Ack{}, nil
}
func (s *server) SendBotElevations(ctx context.Context, in *pb.FloatRow) (*pb.Ack, error) {
	s.inbox <- envelope{kind: transport.KindBotElevations, payload: append([]float32(nil), in.Values...)}
	return &pb.Ack{}, nil
}
func (s *server) SendTopLabels(ctx context.Context, in *pb.LabelRow) (*pb.Ack, error) {
	s.inbox <- envelope{kind: transport.KindTopLabels, payload: append([]int32(nil), in.Values...)}
	return &pb.Ack{}, nil
}
func (s *server) SendBotLabels(ctx context.Context, in *pb.LabelRow) (*pb.Ack, error) {
	s.inbox <- envelope{kind: transport.KindBotLabels, payload: append([]int32(nil), in.Values...)}
	return &pb.Ack{}, nil
}
func (s *server) SendGraph(ctx context.Context, in *pb.Graph) (*pb.Ack, error) {
	edges := make([]transport.GraphEdge, len(in.Edges))
	for i, e := range in.Edges {
		edges[i] = transport.GraphEdge{U: e.U, V: e.V, Weight: e.Weight}
	}
	s.inbox <- envelope{kind: transport.KindGraph, payload: transport.InflateGraph(in.Vertices, edges)}
	return &pb.Ack{}, nil
}
func (s *server) SendLabelOffsets(ctx context.Context, in *pb.LabelOffsets) (*pb.Ack, error) {
	m := make(map[int32]float32, len(in.Entries))
	for _, e := range in.Entries {
		m[e.Label] = e.Fill
	}
	s.inbox <- envelope{kind: transport.KindLabelOffsets, payload: m}
	return &pb.Ack{}, nil
}
func (s *server) SendSync(ctx context.Context, in *pb.Sync) (*pb.Ack, error) {
	s.inbox <- envelope{kind: transport.KindSync, payload: nil}
	return &pb.Ack{}, nil
}

func _Transport_SendTopElevations_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.FloatRow)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendTopElevations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendTopElevations"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendTopElevations(ctx, req.(*pb.FloatRow))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendBotElevations_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.FloatRow)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendBotElevations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendBotElevations"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendBotElevations(ctx, req.(*pb.FloatRow))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendTopLabels_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.LabelRow)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendTopLabels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendTopLabels"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendTopLabels(ctx, req.(*pb.LabelRow))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendBotLabels_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.LabelRow)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendBotLabels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendBotLabels"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendBotLabels(ctx, req.(*pb.LabelRow))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendGraph_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.Graph)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendGraph(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendGraph"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendGraph(ctx, req.(*pb.Graph))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendLabelOffsets_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.LabelOffsets)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendLabelOffsets(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendLabelOffsets"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendLabelOffsets(ctx, req.(*pb.LabelOffsets))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_SendSync_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.Sync)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).SendSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendSync"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).SendSync(ctx, req.(*pb.Sync))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*transportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendTopElevations", Handler: _Transport_SendTopElevations_Handler},
		{MethodName: "SendBotElevations", Handler: _Transport_SendBotElevations_Handler},
		{MethodName: "SendTopLabels", Handler: _Transport_SendTopLabels_Handler},
		{MethodName: "SendBotLabels", Handler: _Transport_SendBotLabels_Handler},
		{MethodName: "SendGraph", Handler: _Transport_SendGraph_Handler},
		{MethodName: "SendLabelOffsets", Handler: _Transport_SendLabelOffsets_Handler},
		{MethodName: "SendSync", Handler: _Transport_SendSync_Handler},
	},
	Metadata: "distflood.proto",
}

// transportClient is the hand-rolled equivalent of a protoc-gen-go-grpc
// client stub: every method is a single ClientConn.Invoke.
type transportClient struct{ cc *grpc.ClientConn }

func (c *transportClient) SendTopElevations(ctx context.Context, in *pb.FloatRow) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendTopElevations", in, out)
	return out, err
}
func (c *transportClient) SendBotElevations(ctx context.Context, in *pb.FloatRow) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendBotElevations", in, out)
	return out, err
}
func (c *transportClient) SendTopLabels(ctx context.Context, in *pb.LabelRow) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendTopLabels", in, out)
	return out, err
}
func (c *transportClient) SendBotLabels(ctx context.Context, in *pb.LabelRow) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendBotLabels", in, out)
	return out, err
}
func (c *transportClient) SendGraph(ctx context.Context, in *pb.Graph) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendGraph", in, out)
	return out, err
}
func (c *transportClient) SendLabelOffsets(ctx context.Context, in *pb.LabelOffsets) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendLabelOffsets", in, out)
	return out, err
}
func (c *transportClient) SendSync(ctx context.Context, in *pb.Sync) (*pb.Ack, error) {
	out := new(pb.Ack)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/SendSync", in, out)
	return out, err
}

// Peer is a transport.Peer bound to exactly one remote rank, backed by a
// gRPC client connection to it plus a local inbox fed by this process's
// own gRPC server (see NewPeer).
type Peer struct {
	selfRank   int32
	remoteRank int
	client     *transportClient
	inbox      chan envelope
}

// NewPeer dials addr (the remote rank's gRPC listen address) and returns
// a Peer plus the grpc.Server the caller must run (via Serve on a
// net.Listener) to receive messages addressed to selfRank. The Peer's
// Send methods refuse any `to` other than remoteRank; Recv drains the
// server's inbox.
func NewPeer(addr string, selfRank, remoteRank int) (*Peer, *grpc.Server, error) {
	conn, err := grpc.Dial(addr, grpc.WithInsecure())
	if err != nil {
		return nil, nil, &errs.ResourceError{Err: fmt.Errorf("grpctransport: dial %s: %w", addr, err)}
	}
	inbox := make(chan envelope, 32)
	p := &Peer{selfRank: int32(selfRank), remoteRank: remoteRank, client: &transportClient{cc: conn}, inbox: inbox}

	gs := grpc.NewServer()
	gs.RegisterService(&serviceDesc, &server{inbox: inbox})
	return p, gs, nil
}

func (p *Peer) checkTarget(to int) error {
	if to != p.remoteRank {
		return &errs.LogicError{Err: fmt.Errorf("grpctransport: peer is bound to rank %d, got send to %d", p.remoteRank, to)}
	}
	return nil
}

func (p *Peer) SendTopElevations(ctx context.Context, to int, row []float32) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	_, err := p.client.SendTopElevations(ctx, &pb.FloatRow{From: p.selfRank, Values: row})
	return wrapResourceErr(err)
}

func (p *Peer) SendBotElevations(ctx context.Context, to int, row []float32) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	_, err := p.client.SendBotElevations(ctx, &pb.FloatRow{From: p.selfRank, Values: row})
	return wrapResourceErr(err)
}

func (p *Peer) SendTopLabels(ctx context.Context, to int, row []int32) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	_, err := p.client.SendTopLabels(ctx, &pb.LabelRow{From: p.selfRank, Values: row})
	return wrapResourceErr(err)
}

func (p *Peer) SendBotLabels(ctx context.Context, to int, row []int32) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	_, err := p.client.SendBotLabels(ctx, &pb.LabelRow{From: p.selfRank, Values: row})
	return wrapResourceErr(err)
}

func (p *Peer) SendGraph(ctx context.Context, to int, g *spillgraph.Graph) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	vertices, edges := transport.FlattenGraph(g)
	pbEdges := make([]*pb.GraphEdge, len(edges))
	for i, e := range edges {
		pbEdges[i] = &pb.GraphEdge{U: e.U, V: e.V, Weight: e.Weight}
	}
	_, err := p.client.SendGraph(ctx, &pb.Graph{From: p.selfRank, Vertices: vertices, Edges: pbEdges})
	return wrapResourceErr(err)
}

func (p *Peer) SendLabelOffsets(ctx context.Context, to int, m map[int32]float32) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	entries := make([]*pb.LabelOffsetEntry, 0, len(m))
	for label, fill := range m {
		entries = append(entries, &pb.LabelOffsetEntry{Label: label, Fill: fill})
	}
	_, err := p.client.SendLabelOffsets(ctx, &pb.LabelOffsets{To: int32(to), Entries: entries})
	return wrapResourceErr(err)
}

func (p *Peer) SendSync(ctx context.Context, to int) error {
	if err := p.checkTarget(to); err != nil {
		return err
	}
	_, err := p.client.SendSync(ctx, &pb.Sync{From: p.selfRank})
	return wrapResourceErr(err)
}

func (p *Peer) Recv(ctx context.Context) (transport.Kind, any, error) {
	select {
	case e := <-p.inbox:
		return e.kind, e.payload, nil
	case <-ctx.Done():
		return 0, nil, &errs.ResourceError{Err: ctx.Err()}
	}
}

func wrapResourceErr(err error) error {
	if err == nil {
		return nil
	}
	return &errs.ResourceError{Err: err}
}
