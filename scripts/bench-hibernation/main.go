// bench-hibernation measures heap memory before and after Hibernate() calls
// while a randomized driver grows a bag in chunks.
//
// Usage:
//
//	go run ./scripts/bench-hibernation --chunks 8 --chunk-ops 20000 \
//	  --profile-dir docs/profiles/hibernation
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
	"github.com/Sumatoshi-tech/indexbag/pkg/safeconv"
)

type heapSnapshot struct {
	label     string
	heapInUse uint64
	heapSys   uint64
	heapIdle  uint64
	numGC     uint32
}

type profiler struct {
	dir       string
	snapshots []heapSnapshot
}

func (p *profiler) takeSnapshot(label string) {
	runtime.GC()
	runtime.GC()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	p.snapshots = append(p.snapshots, heapSnapshot{
		label:     label,
		heapInUse: m.HeapInuse,
		heapSys:   m.HeapSys,
		heapIdle:  m.HeapIdle,
		numGC:     m.NumGC,
	})

	log.Printf("  [heap] %-36s inuse=%9s  sys=%9s  idle=%9s",
		label, humanize.Bytes(m.HeapInuse), humanize.Bytes(m.HeapSys), humanize.Bytes(m.HeapIdle))
}

func (p *profiler) writeHeapProfile(name string) {
	if p.dir == "" {
		return
	}

	runtime.GC()

	path := filepath.Join(p.dir, name)

	f, err := os.Create(path)
	if err != nil {
		log.Printf("warning: create heap profile %s: %v", path, err)

		return
	}
	defer f.Close()

	err = pprof.WriteHeapProfile(f)
	if err != nil {
		log.Printf("warning: write heap profile %s: %v", path, err)
	}
}

func (p *profiler) printSummary() {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Heap memory timeline")
	tbl.AppendHeader(table.Row{"Phase", "InUse", "Sys", "Idle", "GCs"})

	for _, s := range p.snapshots {
		tbl.AppendRow(table.Row{
			s.label, humanize.Bytes(s.heapInUse), humanize.Bytes(s.heapSys), humanize.Bytes(s.heapIdle), s.numGC,
		})
	}

	tbl.Render()

	fmt.Println()
	fmt.Println("=== Hibernation memory deltas ===")

	for i := 0; i+1 < len(p.snapshots); i++ {
		curr, next := p.snapshots[i], p.snapshots[i+1]
		if !strings.HasSuffix(curr.label, "before_hibernate") || !strings.HasSuffix(next.label, "after_hibernate") {
			continue
		}

		delta := float64(curr.heapInUse) - float64(next.heapInUse)
		fmt.Printf("  %s -> %s: %s freed (%.1f%%)\n",
			curr.label, next.label, humanize.Bytes(uint64(max(delta, 0))), delta/float64(curr.heapInUse)*100)
	}
}

func main() {
	chunks := flag.Int("chunks", 4, "Number of driver chunks")
	chunkOps := flag.Int("chunk-ops", 5000, "Random actions per chunk; each action shuffles every entry")
	insertWeight := flag.Int("insert-weight", 3, "Relative weight of inserts")
	pageSize := flag.Int("page-size", indexbag.DefaultPageSize, "Bag page size")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles (optional)")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *profileDir != "" {
		err := os.MkdirAll(*profileDir, 0o750)
		if err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		if *profileDir == "" {
			log.Fatal("--cpu-profile requires --profile-dir")
		}

		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, err := os.Create(cpuPath)
		if err != nil {
			log.Fatalf("create cpu profile: %v", err)
		}
		defer cpuFile.Close()

		err = pprof.StartCPUProfile(cpuFile)
		if err != nil {
			log.Fatalf("start cpu profile: %v", err)
		}
		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	driver, err := rapid.New(
		rapid.WithWeights(rapid.Weights{Insert: *insertWeight, Remove: 1, Lookup: 1}),
		rapid.WithBagOptions(indexbag.WithPageSize(*pageSize)),
	)
	if err != nil {
		log.Fatalf("driver: %v", err)
	}

	bag := driver.Bag()
	prof := &profiler{dir: *profileDir}
	ctx := context.Background()

	prof.takeSnapshot("before_processing")

	for chunk := range *chunks {
		if chunk > 0 {
			prof.takeSnapshot(fmt.Sprintf("chunk_%d_before_hibernate", chunk))
			prof.writeHeapProfile(fmt.Sprintf("heap_chunk_%d_before_hibernate.prof", chunk))

			bag.Hibernate()

			stats := bag.Stats()
			log.Printf("hibernated %d slots into %s", stats.PoolSize, humanize.Bytes(safeconv.MustIntToUint64(stats.CompressedSize)))

			prof.takeSnapshot(fmt.Sprintf("chunk_%d_after_hibernate", chunk))
			prof.writeHeapProfile(fmt.Sprintf("heap_chunk_%d_after_hibernate.prof", chunk))

			bag.Boot()

			prof.takeSnapshot(fmt.Sprintf("chunk_%d_after_boot", chunk))
		}

		log.Printf("processing chunk %d/%d (%d actions)", chunk+1, *chunks, *chunkOps)

		for range *chunkOps {
			err = driver.Step(ctx)
			if err != nil {
				log.Fatalf("chunk %d: %v", chunk+1, err)
			}
		}
	}

	prof.takeSnapshot("after_all_chunks")
	prof.writeHeapProfile("heap_after_all_chunks.prof")

	fmt.Println()
	prof.printSummary()
}
