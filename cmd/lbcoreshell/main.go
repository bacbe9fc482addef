// Command lbcoreshell is an operator-facing demo that wires a
// SessionTable and a real-server registry together the way a
// real load balancer control plane would, so the core session and
// registry packages have somewhere to run outside their own test suites.
// It is not part of the core itself — the core never imports this
// package.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lbflow/sessioncore/pkg/allocator"
	"github.com/lbflow/sessioncore/pkg/registry"
	"github.com/lbflow/sessioncore/pkg/ttlmap"
)

// flowKey is the fixed-size POD session key this demo tracks: a
// 4-tuple, matching the "fixed-size key agreed between control plane and
// data plane" the core's hashing contract assumes.
type flowKey struct {
	srcIP   [4]byte
	dstIP   [4]byte
	srcPort uint16
	dstPort uint16
}

// sessionState is the per-flow value: which real server index the flow is
// pinned to, and the last time it was seen.
type sessionState struct {
	realIdx  uint32
	lastSeen uint32
}

type realIdentifier struct {
	ip   [4]byte
	port uint16
}

type realRecord struct {
	id     realIdentifier
	weight uint32
}

func realID(r *realRecord) realIdentifier { return r.id }

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "lbcoreshell:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("lbcoreshell", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a JSONC config file")
	workers := flags.Int("workers", 0, "override worker count")
	dumpConfig := flags.Bool("dump-config", false, "print the effective config as YAML and exit")

	if err := flags.Parse(args); err != nil {
		return err
	}

	env := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_CONFIG_HOME": os.Getenv("XDG_CONFIG_HOME"),
	}

	cfg, err := loadConfig(env, *configPath)
	if err != nil {
		return err
	}

	if *workers != 0 {
		cfg.Workers = *workers
	}

	if *dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		fmt.Print(string(out))

		return nil
	}

	shell, err := newShell(cfg)
	if err != nil {
		return err
	}

	return shell.run()
}

type shell struct {
	cfg   Config
	clock *ttlmap.ManualClock
	table *ttlmap.SessionTable[flowKey, sessionState]
	reals *registry.Table[realIdentifier, realRecord]
	line  *liner.State
}

func newShell(cfg Config) (*shell, error) {
	alloc := allocator.NewHeap(cfg.AllocatorBlockBytes)

	table, err := ttlmap.NewSessionTable[flowKey, sessionState](alloc, ttlmap.Config{
		InitialEntries: cfg.InitialSessionEntries,
	}, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("construct session table: %w", err)
	}

	return &shell{
		cfg:   cfg,
		clock: ttlmap.NewManualClock(0),
		table: table,
		reals: registry.New[realIdentifier, realRecord](alloc, realID),
		line:  liner.NewLiner(),
	}, nil
}

func (s *shell) run() error {
	defer s.line.Close()

	s.line.SetCtrlCAborts(true)

	for {
		input, err := s.line.Prompt("lbcoreshell> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read input: %w", err)
		}

		s.line.AppendHistory(input)

		if err := s.dispatch(strings.Fields(input)); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func (s *shell) dispatch(fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)

		return nil
	case "tick":
		s.clock.Advance(1)
		fmt.Println("now =", s.clock.Now())

		return nil
	case "put":
		return s.cmdPut(fields[1:])
	case "get":
		return s.cmdGet(fields[1:])
	case "resize":
		return s.cmdResize(fields[1:])
	case "real-add":
		return s.cmdRealAdd(fields[1:])
	case "stats":
		return s.cmdStats()
	case "save":
		return s.cmdSave()
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (s *shell) cmdPut(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: put <dst-port> <real-idx> <ttl-seconds>")
	}

	dstPort, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return err
	}

	realIdx, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return err
	}

	ttl, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return err
	}

	key := flowKey{dstPort: uint16(dstPort)}
	now := s.clock.Now()

	status := s.table.Upsert(0, key, sessionState{realIdx: uint32(realIdx), lastSeen: now}, now, uint32(ttl))
	fmt.Println(status)

	return nil
}

func (s *shell) cmdGet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <dst-port>")
	}

	dstPort, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return err
	}

	key := flowKey{dstPort: uint16(dstPort)}

	value, status := s.table.Lookup(0, key, s.clock.Now())
	if status.Code() != ttlmap.StatusFound {
		fmt.Println("not found")
		return nil
	}

	fmt.Printf("real=%d last_seen=%d\n", value.realIdx, value.lastSeen)

	return nil
}

func (s *shell) cmdResize(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: resize <entries>")
	}

	entries, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}

	if err := s.table.Resize(entries, s.clock.Now()); err != nil {
		return err
	}

	fmt.Println("capacity now", s.table.Capacity())

	return nil
}

func (s *shell) cmdRealAdd(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: real-add <port> <weight>")
	}

	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return err
	}

	weight, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return err
	}

	id := realIdentifier{port: uint16(port)}

	_, idx, err := s.reals.FindOrInsert(id, func(r *realRecord, id realIdentifier) {
		r.id = id
		r.weight = uint32(weight)
	})
	if err != nil {
		return err
	}

	fmt.Println("real index", idx)

	return nil
}

func (s *shell) cmdStats() error {
	fmt.Printf("generation=%d capacity=%d dropped_migrations=%d reals=%d\n",
		s.table.Generation(), s.table.Capacity(), s.table.DroppedMigrations(), s.reals.Size())

	return nil
}

// cmdSave writes a point-in-time snapshot of the current generation and
// capacity to the configured snapshot path via a rename-based atomic
// write, so a concurrent reader of that path never observes a
// half-written file.
func (s *shell) cmdSave() error {
	snapshot := struct {
		Generation uint64 `json:"generation"`
		Capacity   uint64 `json:"capacity"`
		Reals      int    `json:"reals"`
	}{
		Generation: s.table.Generation(),
		Capacity:   s.table.Capacity(),
		Reals:      s.reals.Size(),
	}

	out, err := yaml.Marshal(snapshot)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(s.cfg.SnapshotPath, strings.NewReader(string(out))); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	fmt.Println("saved", s.cfg.SnapshotPath)

	return nil
}
