package main

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/internal/region"
	"github.com/joshuapare/allockit/mem"
	"github.com/joshuapare/allockit/pkg/dynbuf"
	"github.com/joshuapare/allockit/pkg/topology"
)

var simOpts simConfig

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().IntVar(&simOpts.ops, "ops", 10000, "Number of operations to run")
	cmd.Flags().Int64Var(&simOpts.seed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&simOpts.maxSize, "max-size", 1024, "Largest request size in bytes")
	cmd.Flags().Float64Var(&simOpts.freeRatio, "free-ratio", 0.45, "Probability that an operation frees a live block")
	cmd.Flags().Float64Var(&simOpts.streamRatio, "stream-ratio", 0.1, "Probability that an operation appends to a growable buffer")
	cmd.Flags().StringSliceVar(&simOpts.only, "allocator", nil, "Restrict the workload to these allocators (repeatable)")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <topology.yaml>",
		Short: "Run a random workload against a topology",
		Long: `The simulate command builds every allocator in a topology on mmap'd regions,
runs a seeded random mix of allocations, frees and buffer appends with each
allocator entered as the active scope in turn, and prints per-allocator statistics.

Example:
  allocctl simulate allocators.yaml
  allocctl simulate allocators.yaml --ops 100000 --seed 7 --allocator frame
  allocctl simulate allocators.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, err := topology.Load(args[0])
			if err != nil {
				return err
			}
			rep, err := simulate(top, simOpts)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			renderReport(cmd.OutOrStdout(), rep, newStyles(noColor))
			return nil
		},
	}
}

type simConfig struct {
	ops         int
	seed        int64
	maxSize     int
	freeRatio   float64
	streamRatio float64
	only        []string
}

// allocatorReport is one row of the report.
type allocatorReport struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Allocs    uint64 `json:"allocs"`
	Frees     uint64 `json:"frees"`
	Failures  uint64 `json:"failures"`
	Live      int64  `json:"live"`
	LiveBytes int64  `json:"live_bytes"`
	PeakBytes int64  `json:"peak_bytes"`
}

type simReport struct {
	Ops        int               `json:"ops"`
	Seed       int64             `json:"seed"`
	OOM        int               `json:"out_of_memory"`
	Streamed   int               `json:"streamed_bytes"`
	Allocators []allocatorReport `json:"allocators"`
}

// target is one allocator the workload drives.
type target struct {
	name string
	id   alloc.AllocID
	lifo bool // frees must be in reverse allocation order
	live [][]byte
	buf  *dynbuf.Buffer
}

// simulate builds top on a fresh manager and runs the workload. Statistics are
// captured while blocks are still live; everything is freed before returning.
func simulate(top *topology.Topology, cfg simConfig) (*simReport, error) {
	if cfg.maxSize <= 0 {
		return nil, fmt.Errorf("max-size must be positive, got %d", cfg.maxSize)
	}

	m := mem.New(mem.WithLogger(mem.Logger()))
	ids, err := top.Build(m, region.NewSource())
	if err != nil {
		return nil, errors.Join(err, m.Shutdown())
	}

	targets, err := selectTargets(top, ids, cfg.only)
	if err != nil {
		return nil, errors.Join(err, m.Shutdown())
	}

	rep := &simReport{Ops: cfg.ops, Seed: cfg.seed}
	heap := mem.NewHeap(m)
	rng := rand.New(rand.NewSource(cfg.seed))
	chunk := make([]byte, 64)

	for range cfg.ops {
		t := targets[rng.Intn(len(targets))]
		r := rng.Float64()

		switch {
		case r < cfg.freeRatio && len(t.live) > 0:
			i := len(t.live) - 1
			if !t.lifo {
				i = rng.Intn(len(t.live))
			}
			heap.Free(t.live[i])
			t.live = append(t.live[:i], t.live[i+1:]...)

		case r < cfg.freeRatio+cfg.streamRatio && !t.lifo:
			if t.buf == nil {
				mem.With(t.id, func() { t.buf = dynbuf.New(m) })
			}
			n := 1 + rng.Intn(len(chunk))
			rng.Read(chunk[:n])
			if _, err := t.buf.Write(chunk[:n]); err != nil {
				if !errors.Is(err, alloc.ErrOutOfMemory) {
					return nil, errors.Join(err, m.Shutdown())
				}
				rep.OOM++
				continue
			}
			rep.Streamed += n

		default:
			l := alloc.MustLayout(1+rng.Intn(cfg.maxSize), 1<<rng.Intn(5))
			var p []byte
			mem.With(t.id, func() { p, err = heap.Alloc(l) })
			if err != nil {
				if !errors.Is(err, alloc.ErrOutOfMemory) {
					return nil, errors.Join(err, m.Shutdown())
				}
				rep.OOM++
				continue
			}
			t.live = append(t.live, p)
		}
	}

	rep.Allocators = collect(m, ids)

	for _, t := range targets {
		for i := len(t.live) - 1; i >= 0; i-- {
			heap.Free(t.live[i])
		}
		if t.buf != nil {
			t.buf.Release()
		}
	}
	if err := m.Shutdown(); err != nil {
		return nil, err
	}
	return rep, nil
}

func selectTargets(top *topology.Topology, ids map[string]alloc.AllocID, only []string) ([]*target, error) {
	names := only
	if len(names) == 0 {
		names = top.Names()
	}
	specs := make(map[string]*topology.Spec, len(top.Allocators))
	for i := range top.Allocators {
		specs[top.Allocators[i].Name] = &top.Allocators[i]
	}

	// Arena instances hold buffers from their source until shutdown, so a
	// stack feeding an arena cannot also be freed from directly.
	arenaSources := make(map[string]bool)
	for _, s := range top.Allocators {
		if s.Kind == topology.KindExpandable && s.Arena != "" {
			arenaSources[s.Arena] = true
		}
	}

	targets := make([]*target, 0, len(names))
	for _, name := range names {
		if name == topology.MallocName {
			targets = append(targets, &target{name: name, id: alloc.Malloc})
			continue
		}
		spec, ok := specs[name]
		if !ok {
			return nil, fmt.Errorf("unknown allocator %q", name)
		}
		lifo := needsLIFO(spec)
		if lifo && arenaSources[name] {
			if len(only) > 0 {
				return nil, fmt.Errorf("allocator %q backs an arena and frees in stack order", name)
			}
			continue
		}
		targets = append(targets, &target{name: name, id: ids[name], lifo: lifo})
	}
	if len(targets) == 0 {
		return nil, errors.New("no allocators to simulate")
	}
	return targets, nil
}

// needsLIFO reports whether s or anything it wraps is a stack.
func needsLIFO(s *topology.Spec) bool {
	if s == nil {
		return false
	}
	if s.Kind == topology.KindStack {
		return true
	}
	for _, c := range []*topology.Spec{s.Small, s.Large, s.Main, s.Fallback, s.Instance} {
		if needsLIFO(c) {
			return true
		}
	}
	return false
}

func collect(m *mem.Manager, ids map[string]alloc.AllocID) []allocatorReport {
	names := make(map[alloc.AllocID]string, len(ids))
	for name, id := range ids {
		names[id] = name
	}
	snap := m.Snapshot()
	out := make([]allocatorReport, 0, len(snap))
	for _, s := range snap {
		name := s.Name
		if n, ok := names[s.ID]; ok {
			name = n
		}
		out = append(out, allocatorReport{
			Name:      name,
			ID:        s.ID.String(),
			Allocs:    s.Allocs,
			Frees:     s.Frees,
			Failures:  s.Failures,
			Live:      s.Live,
			LiveBytes: s.LiveBytes,
			PeakBytes: s.PeakBytes,
		})
	}
	return out
}

func renderReport(w io.Writer, rep *simReport, st styles) {
	p := message.NewPrinter(language.English)
	num := func(n any) string { return p.Sprintf("%d", n) }

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(st.border).
		Headers("ALLOCATOR", "ID", "ALLOCS", "FREES", "FAILURES", "LIVE", "LIVE BYTES", "PEAK BYTES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			if col == 4 && rep.Allocators[row].Failures > 0 {
				return st.warn
			}
			return st.cell
		})

	for _, a := range rep.Allocators {
		t.Row(a.Name, a.ID, num(a.Allocs), num(a.Frees), num(a.Failures),
			num(a.Live), num(a.LiveBytes), num(a.PeakBytes))
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s operations (seed %s), %s out of memory, %s bytes streamed\n",
		num(rep.Ops), strconv.FormatInt(rep.Seed, 10), num(rep.OOM), num(rep.Streamed))
}
