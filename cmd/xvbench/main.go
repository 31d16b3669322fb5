// Command xvbench drives the xvmalloc engine through synthetic
// workloads: a mixed alloc/free load over a spread of block sizes, and
// a throughput microbenchmark. Neither belongs in the library itself —
// the engine performs no I/O and takes no flags of its own.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/a1091150/xvmalloc"
	"github.com/a1091150/xvmalloc/pageprovider"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xvbench",
		Short: "Exercise the xvmalloc engine with synthetic allocation workloads",
	}
	root.AddCommand(newRunCmd(), newBenchCmd())
	return root
}

type loadFlags struct {
	minSize     uint32
	maxSize     uint32
	iterations  int
	liveBlocks  int
	zeroOnAlloc bool
}

func bindLoadFlags(fs *pflag.FlagSet, f *loadFlags) {
	fs.Uint32Var(&f.minSize, "min-size", 16, "minimum request size in bytes")
	fs.Uint32Var(&f.maxSize, "max-size", 4000, "maximum request size in bytes")
	fs.IntVar(&f.iterations, "iterations", 10000, "number of iterations (run: one alloc or free each; bench: one alloc/free pair each)")
	fs.IntVar(&f.liveBlocks, "live-blocks", 1000, "number of concurrently live allocations to maintain")
	fs.BoolVar(&f.zeroOnAlloc, "zero-on-alloc", false, "zero each block's bytes immediately after allocating it")
}

// newRunCmd implements a mixed-load scenario: a fixed number of
// "slots", each holding at most one live allocation at a time, randomly
// allocated and freed across iterations. Slot occupancy is tracked with
// a flat bitset -- bits-and-blooms/bitset, not a summary/row split like
// the free-list index's, since "is slot i occupied" needs no multi-level
// structure.
func newRunCmd() *cobra.Command {
	f := &loadFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a mixed alloc/free workload against a fresh pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMixedLoad(cmd, f)
		},
	}
	bindLoadFlags(cmd.Flags(), f)
	return cmd
}

type liveSlot struct {
	page pageprovider.PageHandle
	off  uint32
}

func runMixedLoad(cmd *cobra.Command, f *loadFlags) error {
	log := NewLogger("xvbench.run", LevelInfo)
	if f.minSize == 0 || f.minSize > f.maxSize || f.maxSize > xvmalloc.XvMaxAllocSize {
		return fmt.Errorf("invalid size range [%d, %d]", f.minSize, f.maxSize)
	}

	provider := pageprovider.NewInMemoryProvider(0)
	pool, err := xvmalloc.CreatePool(provider)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Destroy()

	occupied := bitset.New(uint(f.liveBlocks))
	slots := make([]liveSlot, f.liveBlocks)
	rng := rand.New(rand.NewSource(1))

	start := time.Now()
	var allocs, frees uint64
	for i := 0; i < f.iterations; i++ {
		slot := uint(rng.Intn(f.liveBlocks))
		if occupied.Test(slot) {
			if err := pool.Free(slots[slot].page, slots[slot].off); err != nil {
				return fmt.Errorf("free slot %d: %w", slot, err)
			}
			occupied.Clear(slot)
			frees++
			continue
		}

		size := f.minSize + uint32(rng.Intn(int(f.maxSize-f.minSize+1)))
		page, off, err := pool.Alloc(size)
		if err != nil {
			return fmt.Errorf("alloc slot %d size %d: %w", slot, size, err)
		}
		if f.zeroOnAlloc {
			view := provider.Map(page)
			clear(view[off : off+size])
			provider.Unmap(page)
		}
		slots[slot] = liveSlot{page: page, off: off}
		occupied.Set(slot)
		allocs++
	}

	log.Info("mixed load complete",
		Uint64("allocs", allocs),
		Uint64("frees", frees),
		Int("live_slots", int(occupied.Count())),
		Int("pages", pool.TotalPages()),
		Duration("elapsed", time.Since(start)),
	)
	return nil
}

// newBenchCmd implements a straight allocate/free throughput
// microbenchmark over a fixed size range, the Go-idiomatic equivalent of
// the C harness's timed alloc/free loop. Each block is freed before the
// next is allocated, so --live-blocks has no effect on this command.
func newBenchCmd() *cobra.Command {
	f := &loadFlags{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure alloc/free throughput over a size range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, f)
		},
	}
	bindLoadFlags(cmd.Flags(), f)
	return cmd
}

func runBench(cmd *cobra.Command, f *loadFlags) error {
	log := NewLogger("xvbench.bench", LevelInfo)
	if f.minSize == 0 || f.minSize > f.maxSize || f.maxSize > xvmalloc.XvMaxAllocSize {
		return fmt.Errorf("invalid size range [%d, %d]", f.minSize, f.maxSize)
	}

	provider := pageprovider.NewInMemoryProvider(0)
	pool, err := xvmalloc.CreatePool(provider)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Destroy()

	rng := rand.New(rand.NewSource(1))
	span := f.maxSize - f.minSize + 1

	start := time.Now()
	for i := 0; i < f.iterations; i++ {
		size := f.minSize + uint32(rng.Intn(int(span)))
		page, off, err := pool.Alloc(size)
		if err != nil {
			return fmt.Errorf("alloc %d: %w", i, err)
		}
		if f.zeroOnAlloc {
			view := provider.Map(page)
			clear(view[off : off+size])
			provider.Unmap(page)
		}
		if err := pool.Free(page, off); err != nil {
			return fmt.Errorf("free %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	perOp := elapsed / time.Duration(f.iterations)
	log.Info("bench complete",
		Int("iterations", f.iterations),
		Duration("elapsed", elapsed),
		Duration("per_op", perOp),
	)
	return nil
}
