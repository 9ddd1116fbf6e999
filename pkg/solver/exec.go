// Package solver adapts external nested-attack solvers to recovery.Solver.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// DefaultTimeout bounds a single solver invocation.
const DefaultTimeout = 2 * time.Minute

// Exec runs an external solver program once per capture set.
//
// The program receives a JSON document on stdin:
//
//	{"uid":"a1b2c3d4","dist":"0000012c","atks":[{"nt1":"...","nt2":"...","par":5}, ...]}
//
// and prints candidate keys on stdout, one hex key per line, in the same
// format as a dictionary file.
type Exec struct {
	Command []string
	Timeout time.Duration
}

type request struct {
	UID  string   `json:"uid"`
	Dist string   `json:"dist"`
	Atks []attack `json:"atks"`
}

type attack struct {
	Nt1 string `json:"nt1"`
	Nt2 string `json:"nt2"`
	Par uint8  `json:"par"`
}

// RecoverKeys implements recovery.Solver. The solver process is killed when
// ctx is cancelled or the timeout expires.
func (e *Exec) RecoverKeys(ctx context.Context, uid, distance uint32, captures []mifare.NestedCapture) ([]mifare.Key, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("solver command not configured")
	}

	req := request{
		UID:  fmt.Sprintf("%08x", uid),
		Dist: fmt.Sprintf("%08x", distance),
		Atks: make([]attack, 0, len(captures)),
	}
	for _, c := range captures {
		req.Atks = append(req.Atks, attack{
			Nt1: fmt.Sprintf("%08x", c.Nt1),
			Nt2: fmt.Sprintf("%08x", c.Nt2),
			Par: c.Par,
		})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal solver request: %w", err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run solver %s: %w", e.Command[0], ctxErr)
		}
		return nil, fmt.Errorf("run solver %s: %w (stderr: %s)", e.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	slog.Debug("solver finished", "command", e.Command[0], "elapsed", time.Since(start), "captures", len(captures))

	keys, err := mifare.LoadDictionary(&stdout)
	if err != nil {
		return nil, fmt.Errorf("parse solver output: %w", err)
	}
	return keys, nil
}
