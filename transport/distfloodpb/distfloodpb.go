// Package distfloodpb holds the wire messages for transport/grpctransport,
// written in the style of protoc-gen-go output: plain structs carrying
// protobuf struct tags plus the Reset/String/ProtoMessage trio. Messages
// are named after their payload shape rather than their RPC (FloatRow
// serves both SendTopElevations and SendBotElevations); each request
// carries the sender's rank (LabelOffsets carries the recipient's), and
// every RPC returns Ack.
package distfloodpb

import "github.com/golang/protobuf/proto"

// Tag identifies the sender/receiver rank of a message (0 is the
// coordinator, 1..W are workers).
type Tag struct {
	Rank int32 `protobuf:"varint,1,opt,name=rank"`
}

func (m *Tag) Reset()         { *m = Tag{} }
func (m *Tag) String() string { return proto.CompactTextString(m) }
func (*Tag) ProtoMessage()    {}

// FloatRow carries a TopElevations or BotElevations payload.
type FloatRow struct {
	From   int32     `protobuf:"varint,1,opt,name=from"`
	Values []float32 `protobuf:"fixed32,2,rep,name=values"`
}

func (m *FloatRow) Reset()         { *m = FloatRow{} }
func (m *FloatRow) String() string { return proto.CompactTextString(m) }
func (*FloatRow) ProtoMessage()    {}

// LabelRow carries a TopLabels or BotLabels payload.
type LabelRow struct {
	From   int32   `protobuf:"varint,1,opt,name=from"`
	Values []int32 `protobuf:"varint,2,rep,name=values"`
}

func (m *LabelRow) Reset()         { *m = LabelRow{} }
func (m *LabelRow) String() string { return proto.CompactTextString(m) }
func (*LabelRow) ProtoMessage()    {}

// GraphEdge is one edge of a flattened spillgraph.Graph.
type GraphEdge struct {
	U      int32   `protobuf:"varint,1,opt,name=u"`
	V      int32   `protobuf:"varint,2,opt,name=v"`
	Weight float32 `protobuf:"fixed32,3,opt,name=weight"`
}

func (m *GraphEdge) Reset()         { *m = GraphEdge{} }
func (m *GraphEdge) String() string { return proto.CompactTextString(m) }
func (*GraphEdge) ProtoMessage()    {}

// Graph is a strip's complete spill graph: every vertex (so isolated
// labels survive the round trip) plus every edge.
type Graph struct {
	From     int32        `protobuf:"varint,1,opt,name=from"`
	Vertices []int32      `protobuf:"varint,2,rep,name=vertices"`
	Edges    []*GraphEdge `protobuf:"bytes,3,rep,name=edges"`
}

func (m *Graph) Reset()         { *m = Graph{} }
func (m *Graph) String() string { return proto.CompactTextString(m) }
func (*Graph) ProtoMessage()    {}

// LabelOffsetEntry is one (local label -> resolved fill elevation) pair.
type LabelOffsetEntry struct {
	Label int32   `protobuf:"varint,1,opt,name=label"`
	Fill  float32 `protobuf:"fixed32,2,opt,name=fill"`
}

func (m *LabelOffsetEntry) Reset()         { *m = LabelOffsetEntry{} }
func (m *LabelOffsetEntry) String() string { return proto.CompactTextString(m) }
func (*LabelOffsetEntry) ProtoMessage()    {}

// LabelOffsets is the coordinator's resolved-fill-table reply to one
// worker.
type LabelOffsets struct {
	To      int32               `protobuf:"varint,1,opt,name=to"`
	Entries []*LabelOffsetEntry `protobuf:"bytes,2,rep,name=entries"`
}

func (m *LabelOffsets) Reset()         { *m = LabelOffsets{} }
func (m *LabelOffsets) String() string { return proto.CompactTextString(m) }
func (*LabelOffsets) ProtoMessage()    {}

// Sync is the empty token a worker sends to mark the end of its report.
type Sync struct {
	From int32 `protobuf:"varint,1,opt,name=from"`
}

func (m *Sync) Reset()         { *m = Sync{} }
func (m *Sync) String() string { return proto.CompactTextString(m) }
func (*Sync) ProtoMessage()    {}

// Ack is the empty response every one-way Send RPC returns.
type Ack struct{}

func (m *Ack) Reset()         { *m = Ack{} }
func (m *Ack) String() string { return proto.CompactTextString(m) }
func (*Ack) ProtoMessage()    {}
