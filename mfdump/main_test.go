package main

import (
	"testing"
	"time"

	"github.com/barnettlynn/mfcrack/internal/emulator"
	"github.com/barnettlynn/mfcrack/mfdump/internal/config"
	"github.com/barnettlynn/mfcrack/pkg/solver"
)

func TestNewSolverKeepsEmulatorSolver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Solver.Command = []string{"mfnested"}

	if _, ok := newSolver(cfg, true).(emulator.Solver); !ok {
		t.Fatalf("emulator mode must use the emulator solver even with solver.command set")
	}
}

func TestNewSolverUsesConfiguredCommand(t *testing.T) {
	timeout := 30
	cfg := &config.Config{}
	cfg.Solver.Command = []string{"mfnested", "--json"}
	cfg.Solver.TimeoutSeconds = &timeout

	exec, ok := newSolver(cfg, false).(*solver.Exec)
	if !ok {
		t.Fatalf("expected external solver")
	}
	if exec.Command[0] != "mfnested" || exec.Timeout != 30*time.Second {
		t.Fatalf("unexpected solver %+v", exec)
	}

	if s := newSolver(&config.Config{}, false); s != nil {
		t.Fatalf("expected no solver without solver.command, got %T", s)
	}
}
