// Command distflood runs the distributed Priority-Flood depression
// filling algorithm over a DEM, either as goroutines in one process
// (-mode=embedded, the default) or as separate OS processes rendezvoused
// through etcd (-mode=distributed). It uses a flat flag.* set plus a
// -mode switch rather than a subcommand framework.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-etcd/etcd"
	"golang.org/x/net/context"
	"google.golang.org/grpc"

	"github.com/openterrain/distflood/cluster"
	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/flood"
	"github.com/openterrain/distflood/grid"
	"github.com/openterrain/distflood/raster"
	"github.com/openterrain/distflood/raster/flatfile"
	"github.com/openterrain/distflood/resolver"
	"github.com/openterrain/distflood/spillgraph"
	"github.com/openterrain/distflood/transport"
	"github.com/openterrain/distflood/transport/chantransport"
	"github.com/openterrain/distflood/transport/grpctransport"
)

// heartbeatInterval is how often a distributed-mode process refreshes
// its rendezvous TTL (cluster.Rendezvous.Register).
const heartbeatInterval = 3 * time.Second

func main() {
	workers := flag.Int("workers", runtime.NumCPU(), "number of worker strips")
	mode := flag.String("mode", "embedded", "embedded (goroutines, one process) or distributed (separate processes over etcd)")
	etcdURLs := flag.String("etcd", "", "comma-separated etcd endpoints (distributed mode only)")
	job := flag.String("job", "distflood", "job name, used as the etcd key prefix (distributed mode only)")
	rank := flag.Int("rank", -1, "this process's rank in distributed mode: -1 is the coordinator, 1..workers are worker ranks")
	listen := flag.String("listen", "127.0.0.1:0", "address this process listens on (distributed mode only)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: distflood [flags] <input.dem.json>")
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	var err error
	switch *mode {
	case "embedded":
		err = runEmbedded(inputPath, *workers)
	case "distributed":
		if *etcdURLs == "" {
			err = &errs.InputError{Err: fmt.Errorf("-mode=distributed requires -etcd")}
		} else {
			err = runDistributed(inputPath, *workers, *job, strings.Split(*etcdURLs, ","), *rank, *listen)
		}
	default:
		err = &errs.InputError{Err: fmt.Errorf("unknown -mode %q, want embedded or distributed", *mode)}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, exitMessage(err))
		os.Exit(1)
	}
}

// exitMessage formats err for the single fatal-exit-path at the bottom
// of main, distinguishing a LogicError (a bug) from an InputError or
// ResourceError (which already prefix themselves by kind).
func exitMessage(err error) string {
	var lg *errs.LogicError
	if errors.As(err, &lg) {
		return err.Error() + " (this is a bug, please report it)"
	}
	// InputError and ResourceError already prefix themselves with their
	// kind (errs.InputError.Error/errs.ResourceError.Error).
	return err.Error()
}

type stripBounds struct{ r0, r1 int }

// splitStrips divides height rows into at most workers contiguous
// strips, each at least two rows tall (flood.Run's minimum).
func splitStrips(height, workers int) ([]stripBounds, error) {
	if height < 2 {
		return nil, &errs.InputError{Err: fmt.Errorf("distflood: DEM height %d is below the 2-row minimum", height)}
	}
	if workers < 1 {
		workers = 1
	}
	if workers > height/2 {
		workers = height / 2
	}
	base, rem := height/workers, height%workers
	bounds := make([]stripBounds, workers)
	r0 := 0
	for i := 0; i < workers; i++ {
		h := base
		if i < rem {
			h++
		}
		bounds[i] = stripBounds{r0: r0, r1: r0 + h}
		r0 += h
	}
	return bounds, nil
}

// outputPaths names a strip's sidecar and binary payload beside input,
// as "<input>.strip<N>.dem.json" and "<input>.strip<N>.dem.bin".
func outputPaths(inputPath string, rank int) (sidecar, dataFile string) {
	trimmed := strings.TrimSuffix(inputPath, ".dem.json")
	sidecar = fmt.Sprintf("%s.strip%d.dem.json", trimmed, rank)
	dataFile = fmt.Sprintf("%s.strip%d.dem.bin", filepath.Base(trimmed), rank)
	return sidecar, dataFile
}

// applyFillTable raises every non-nodata cell to at least its label's
// resolved fill elevation: out = max(z, fill).
func applyFillTable(elev *grid.Dense, labels *grid.Labels, table resolver.FillTable) {
	for y := 0; y < elev.H; y++ {
		for x := 0; x < elev.W; x++ {
			if elev.IsNodata(x, y) {
				continue
			}
			fill, ok := table[labels.At(x, y)]
			if ok && fill > elev.At(x, y) {
				elev.Set(x, y, fill)
			}
		}
	}
}

// --- embedded mode: all ranks as goroutines in one process, wired by
// chantransport instead of separate OS processes. ---

func runEmbedded(inputPath string, workers int) error {
	ds, err := flatfile.Open(inputPath)
	if err != nil {
		return err
	}
	width, height, nodata := ds.Bounds()
	bounds, err := splitStrips(height, workers)
	if err != nil {
		return err
	}

	coordPeers, workerPeers := chantransport.NewHub(len(bounds))

	var wg sync.WaitGroup
	errCh := make(chan error, len(bounds)+1)

	for i, b := range bounds {
		wg.Add(1)
		go func(i int, b stripBounds) {
			defer wg.Done()
			if err := runWorker(i+1, b, height, width, ds, workerPeers[i], inputPath); err != nil {
				errCh <- err
			}
		}(i, b)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runCoordinator(coordPeers, nodata); err != nil {
			errCh <- err
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// runWorker runs one strip's Priority-Flood engine, reports its boundary
// rows and spill graph to the coordinator over peer, waits for the
// resolved fill table, applies it, and writes the strip's output file.
func runWorker(rank int, b stripBounds, totalHeight, width int, ds raster.Dataset, peer transport.Peer, inputPath string) error {
	ctx := context.Background()
	_, _, nodata := ds.Bounds()

	elev, err := ds.ReadRows(b.r0, b.r1)
	if err != nil {
		return err
	}
	strip := &flood.Strip{
		Elev:           elev,
		Nodata:         nodata,
		PhysicalTop:    b.r0 == 0,
		PhysicalBottom: b.r1 == totalHeight,
	}
	result, err := flood.Run(strip)
	if err != nil {
		return err
	}
	h := result.Elev.H

	if err := peer.SendTopElevations(ctx, 0, append([]float32(nil), result.Elev.Row(0)...)); err != nil {
		return err
	}
	if err := peer.SendBotElevations(ctx, 0, append([]float32(nil), result.Elev.Row(h-1)...)); err != nil {
		return err
	}
	if err := peer.SendTopLabels(ctx, 0, append([]int32(nil), result.Labels.Row(0)...)); err != nil {
		return err
	}
	if err := peer.SendBotLabels(ctx, 0, append([]int32(nil), result.Labels.Row(h-1)...)); err != nil {
		return err
	}
	if err := peer.SendGraph(ctx, 0, result.Graph); err != nil {
		return err
	}
	if err := peer.SendSync(ctx, 0); err != nil {
		return err
	}

	kind, payload, err := peer.Recv(ctx)
	if err != nil {
		return err
	}
	if kind != transport.KindLabelOffsets {
		return &errs.LogicError{Err: fmt.Errorf("worker %d: expected LabelOffsets, got %v", rank, kind)}
	}
	applyFillTable(result.Elev, result.Labels, payload.(map[int32]float32))

	sidecar, dataFile := outputPaths(inputPath, rank)
	gt := raster.ShiftedGeoTransform(ds.GeoTransform(), b.r0)
	w, err := flatfile.Create(sidecar, dataFile, width, h, nodata, gt, ds.Projection())
	if err != nil {
		return err
	}
	if err := w.WriteRows(0, result.Elev); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// runCoordinator collects every strip's report, resolves them together,
// then replies to each worker with its fill table. It must have every
// per-strip graph in hand before stitching can begin, which is the
// barrier at wg.Wait below.
func runCoordinator(peers []transport.Peer, nodata float32) error {
	ctx := context.Background()
	reports := make([]*resolver.StripReport, len(peers))

	var wg sync.WaitGroup
	errCh := make(chan error, len(peers))
	for i, peer := range peers {
		wg.Add(1)
		go func(i int, peer transport.Peer) {
			defer wg.Done()
			r, err := collectReport(ctx, i, peer, nodata)
			if err != nil {
				errCh <- err
				return
			}
			reports[i] = r
		}(i, peer)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}

	tables, err := resolver.Resolve(reports)
	if err != nil {
		return err
	}
	for i, peer := range peers {
		if err := peer.SendLabelOffsets(ctx, i+1, tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func collectReport(ctx context.Context, index int, peer transport.Peer, nodata float32) (*resolver.StripReport, error) {
	r := &resolver.StripReport{Index: index, Nodata: nodata}
	for {
		kind, payload, err := peer.Recv(ctx)
		if err != nil {
			return nil, err
		}
		switch kind {
		case transport.KindTopElevations:
			r.TopElev = payload.([]float32)
		case transport.KindBotElevations:
			r.BotElev = payload.([]float32)
		case transport.KindTopLabels:
			r.TopLabels = payload.([]int32)
		case transport.KindBotLabels:
			r.BotLabels = payload.([]int32)
		case transport.KindGraph:
			r.Graph = payload.(*spillgraph.Graph)
		case transport.KindSync:
			return r, nil
		default:
			return nil, &errs.LogicError{Err: fmt.Errorf("coordinator: unexpected message kind %v from strip %d", kind, index)}
		}
	}
}

// --- distributed mode: one OS process per rank, rendezvoused through
// etcd (cluster) and linked pairwise over grpctransport. Each
// (coordinator, worker) pair gets its own listener, the same star
// topology chantransport.NewHub uses for embedded mode, just with a
// socket standing in for each channel pair. ---

func runDistributed(inputPath string, workers int, job string, etcdEndpoints []string, rank int, listen string) error {
	client := etcd.NewClient(etcdEndpoints)
	rv := cluster.New(client, job)

	if rank == -1 {
		return runDistributedCoordinator(inputPath, workers, rv)
	}
	if rank < 1 || rank > workers {
		return &errs.InputError{Err: fmt.Errorf("distflood: -rank %d out of range [1,%d]", rank, workers)}
	}
	return runDistributedWorker(inputPath, rank, workers, rv, listen)
}

// coordinatorListenerRank encodes "the coordinator's dedicated listener
// for worker w" as its own rendezvous rank, distinct from the 1..workers
// space workers themselves register under, so a single cluster.KV
// handles both without a second keyspace.
func coordinatorListenerRank(worker int) int { return 1000 + worker }

func runDistributedCoordinator(inputPath string, workers int, rv *cluster.Rendezvous) error {
	ds, err := flatfile.Open(inputPath)
	if err != nil {
		return err
	}
	_, height, nodata := ds.Bounds()
	bounds, err := splitStrips(height, workers)
	if err != nil {
		return err
	}

	ctx := context.Background()
	peers := make([]transport.Peer, len(bounds))
	servers := make([]*grpc.Server, len(bounds))
	stop := make(chan struct{})
	defer close(stop)

	for i := range bounds {
		workerRank := i + 1
		workerAddr, err := rv.Discover(ctx, workerRank)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return &errs.ResourceError{Err: err}
		}
		peer, gs, err := grpctransport.NewPeer(workerAddr, 0, workerRank)
		if err != nil {
			return err
		}
		go gs.Serve(lis)
		servers[i] = gs
		peers[i] = peer

		myRank := coordinatorListenerRank(workerRank)
		go rv.Register(myRank, lis.Addr().String(), heartbeatInterval, stop)
	}
	defer func() {
		for _, s := range servers {
			s.Stop()
		}
	}()

	return runCoordinator(peers, nodata)
}

func runDistributedWorker(inputPath string, rank, workers int, rv *cluster.Rendezvous, listen string) error {
	ds, err := flatfile.Open(inputPath)
	if err != nil {
		return err
	}
	_, height, _ := ds.Bounds()
	bounds, err := splitStrips(height, workers)
	if err != nil {
		return err
	}
	if rank-1 >= len(bounds) {
		return &errs.InputError{Err: fmt.Errorf("distflood: -workers %d is too small for -rank %d", workers, rank)}
	}

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return &errs.ResourceError{Err: err}
	}
	ctx := context.Background()
	stop := make(chan struct{})
	defer close(stop)
	go rv.Register(rank, lis.Addr().String(), heartbeatInterval, stop)

	coordAddr, err := rv.Discover(ctx, coordinatorListenerRank(rank))
	if err != nil {
		return err
	}
	peer, gs, err := grpctransport.NewPeer(coordAddr, rank, 0)
	if err != nil {
		return err
	}
	go gs.Serve(lis)
	defer gs.Stop()

	width, _, _ := ds.Bounds()
	return runWorker(rank, bounds[rank-1], height, width, ds, peer, inputPath)
}
