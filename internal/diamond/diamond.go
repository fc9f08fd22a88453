// Package diamond builds protein search indexes with the DIAMOND aligner.
package diamond

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrIndexBuild is returned when the aligner is missing or fails.
var ErrIndexBuild = errors.New("index build failed")

// DefaultBinaries are the executable names tried, in order, when none are configured.
var DefaultBinaries = []string{"diamond", "diamond-aligner"}

const maxStderr = 2048

// Builder runs `diamond makedb`.
type Builder struct {
	// Binaries are candidate executable names or paths, tried in order.
	Binaries []string
	// Threads is passed as --threads when positive.
	Threads int

	logger *zap.Logger
}

// NewBuilder creates a builder. With no binaries, DefaultBinaries are used.
func NewBuilder(binaries ...string) *Builder {
	if len(binaries) == 0 {
		binaries = DefaultBinaries
	}
	return &Builder{Binaries: binaries, logger: zap.NewNop()}
}

// SetLogger sets the logger for warning and info messages.
func (b *Builder) SetLogger(l *zap.Logger) {
	b.logger = l
}

// ResolveProgram returns the full path of the first candidate found on PATH.
func (b *Builder) ResolveProgram() (string, error) {
	for _, name := range b.Binaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s found on PATH", ErrIndexBuild, strings.Join(b.Binaries, ", "))
}

// Makedb builds the index at dbPath from a protein FASTA file.
func (b *Builder) Makedb(ctx context.Context, fasta, dbPath string) error {
	program, err := b.ResolveProgram()
	if err != nil {
		return err
	}

	args := []string{"makedb", "--in", fasta, "--db", dbPath}
	if b.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.Threads))
	}

	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	b.logger.Info("building search index", zap.String("program", program), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w: %s", ErrIndexBuild, program, err, tail(stderr.String(), maxStderr))
	}
	b.logger.Info("search index built", zap.String("db", dbPath), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
