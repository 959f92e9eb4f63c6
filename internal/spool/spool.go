// Package spool implements the Output Spooler: tool outputs that exceed the
// inline threshold are written to a session-private directory and handed
// back to the model as a handle plus head/tail preview, re-readable in
// later turns via chunk_read.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultInlineThreshold is the byte size above which a tool output is
	// spooled instead of returned inline (spec.md §4.4/§4.7: "~8KB text").
	DefaultInlineThreshold = 8 * 1024
	// DefaultChunkSize is the size of one chunk_read response.
	DefaultChunkSize = 4 * 1024
	// DefaultPreviewCap bounds the head/tail preview returned inline.
	DefaultPreviewCap = 512
	// DefaultMaxReadsPerTurn caps chunk_read calls to stop re-fetch loops.
	DefaultMaxReadsPerTurn = 8
)

// Entry is bookkeeping for one spooled tool output. Lifetime: created when
// a tool output exceeds the inline threshold; destroyed at session end or
// explicit discard.
type Entry struct {
	Handle         string
	Path           string
	TotalBytes     int64
	TotalChunks    int
	NextChunkBytes int // next_chunk_offset, expressed in bytes into the file
	CreatedAt      time.Time
	chunkSize      int
}

// Preview is the inline payload the model sees in place of the full output:
// a handle plus head/tail snippets and usage hints.
type Preview struct {
	Handle      string
	TotalBytes  int64
	TotalChunks int
	HeadPreview string
	TailPreview string
}

// Chunk is the result of one chunk_read call.
type Chunk struct {
	Data       string
	NextOffset int
	Done       bool
}

// Spooler manages spooled tool outputs for one session. All spool files
// live under a session-private temp directory.
type Spooler struct {
	mu           sync.Mutex
	dir          string
	chunkSize    int
	previewCap   int
	maxReads     int
	entries      map[string]*Entry
	readsThisTurn map[string]int // handle -> reads used in current turn; reset per turn
}

// New creates a Spooler rooted at a fresh temp directory. Callers should
// call Close at session end to purge the directory.
func New() (*Spooler, error) {
	dir, err := os.MkdirTemp("", "vtcode-spool-*")
	if err != nil {
		return nil, fmt.Errorf("spool: create dir: %w", err)
	}
	return &Spooler{
		dir:           dir,
		chunkSize:     DefaultChunkSize,
		previewCap:    DefaultPreviewCap,
		maxReads:      DefaultMaxReadsPerTurn,
		entries:       make(map[string]*Entry),
		readsThisTurn: make(map[string]int),
	}, nil
}

// NewInDir creates a Spooler rooted at an explicit directory (e.g. a
// subdirectory of the workspace's .vtcode data dir), creating it if absent.
func NewInDir(dir string) (*Spooler, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("spool: create dir: %w", err)
	}
	return &Spooler{
		dir:           dir,
		chunkSize:     DefaultChunkSize,
		previewCap:    DefaultPreviewCap,
		maxReads:      DefaultMaxReadsPerTurn,
		entries:       make(map[string]*Entry),
		readsThisTurn: make(map[string]int),
	}, nil
}

// ResetTurn clears the per-turn chunk_read counters. Call once per turn.
func (s *Spooler) ResetTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readsThisTurn = make(map[string]int)
}

// ShouldSpool reports whether content of the given size should be diverted
// to disk rather than returned inline.
func ShouldSpool(size int) bool {
	return size > DefaultInlineThreshold
}

// Create writes content to a new spool file and returns a Preview the
// caller can inline into a ToolResult.
func (s *Spooler) Create(content string) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := "spool_" + uuid.NewString()
	path := filepath.Join(s.dir, handle)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("spool: write %s: %w", handle, err)
	}

	total := len(content)
	totalChunks := (total + s.chunkSize - 1) / s.chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	entry := &Entry{
		Handle:      handle,
		Path:        path,
		TotalBytes:  int64(total),
		TotalChunks: totalChunks,
		CreatedAt:   time.Now(),
		chunkSize:   s.chunkSize,
	}
	s.entries[handle] = entry

	return &Preview{
		Handle:      handle,
		TotalBytes:  entry.TotalBytes,
		TotalChunks: entry.TotalChunks,
		HeadPreview: previewHead(content, s.previewCap),
		TailPreview: previewTail(content, s.previewCap),
	}, nil
}

// ErrRateLimited is returned when a turn's chunk_read budget is exhausted.
var ErrRateLimited = fmt.Errorf("spool: max_reads_per_turn exceeded")

// ErrNotFound is returned for an unknown handle.
var ErrNotFound = fmt.Errorf("spool: handle not found")

// ChunkRead returns up to one chunk of a spooled entry starting at offset,
// enforcing the per-turn read cap.
func (s *Spooler) ChunkRead(handle string, offset int) (*Chunk, error) {
	s.mu.Lock()
	entry, ok := s.entries[handle]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.readsThisTurn[handle] >= s.maxReads {
		s.mu.Unlock()
		return nil, ErrRateLimited
	}
	s.readsThisTurn[handle]++
	s.mu.Unlock()

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("spool: read %s: %w", handle, err)
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(data) {
		return &Chunk{Data: "", NextOffset: len(data), Done: true}, nil
	}

	end := offset + s.chunkSize
	done := false
	if end >= len(data) {
		end = len(data)
		done = true
	}

	s.mu.Lock()
	entry.NextChunkBytes = end
	s.mu.Unlock()

	return &Chunk{Data: string(data[offset:end]), NextOffset: end, Done: done}, nil
}

// Discard removes one spooled entry's file (used on history trim).
func (s *Spooler) Discard(handle string) error {
	s.mu.Lock()
	entry, ok := s.entries[handle]
	if ok {
		delete(s.entries, handle)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return os.Remove(entry.Path)
}

// Close purges the entire spool directory. Call at session end.
func (s *Spooler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	return os.RemoveAll(s.dir)
}

func previewHead(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	return s[:cap]
}

func previewTail(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	return s[len(s)-cap:]
}
