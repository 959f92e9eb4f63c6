// Package loopdetect implements the Loop Detector: heuristics that spot
// unproductive repetition or stalls in a session and either correct
// (inject a steering message) or terminate it.
package loopdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Config mirrors spec.md §6's loop_detector{R, W, S, K, E} knobs.
type Config struct {
	// R is the repeat count of an identical (name, canonical_args)
	// signature within window W that trips the detector.
	R int
	// W is the sliding window size, measured in turns.
	W int
	// S is the number of consecutive reasoning-only turns (no tool call,
	// no substantive text change) that counts as a stall.
	S int
	// K is the number of consecutive idle turns that terminates a session.
	K int
	// E is the max character length of assistant output still counted idle.
	E int
}

// DefaultConfig matches the values exercised in spec.md §8's scenario 3
// (R=3 within W=5).
func DefaultConfig() Config {
	return Config{R: 3, W: 5, S: 3, K: 3, E: 0}
}

// Verdict is returned after each turn's outcome is recorded.
type Verdict struct {
	// Repetition is true when a tool-call signature has repeated R times
	// within the window. Steer carries the message to inject the first
	// time; Abort is true once the same signature repeats after a prior
	// steering injection for it.
	Repetition bool
	Steer      string
	Abort      bool
	AbortKind  string // "loop_repetition", "reasoning_stall", "idle_turns"
}

type signatureRecord struct {
	turns   []int
	steered bool
}

// Detector tracks per-session repetition, stall, and idle counters. Not
// safe for concurrent use; the Session Controller serializes access.
type Detector struct {
	cfg Config

	turn int
	sigs map[string]*signatureRecord

	reasoningOnlyStreak int
	lastReasoningText   string

	idleStreak int
}

// New creates a Detector with the given config.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, sigs: make(map[string]*signatureRecord)}
}

// Signature canonicalizes a tool name and its arguments into a stable hash:
// the arguments are decoded as JSON (if possible), their keys sorted, and
// re-encoded, so semantically identical calls hash identically regardless
// of key order or whitespace.
func Signature(toolName, argumentsJSON string) string {
	canon := canonicalizeJSON(argumentsJSON)
	h := sha256.Sum256([]byte(toolName + "\x00" + canon))
	return hex.EncodeToString(h[:])
}

func canonicalizeJSON(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return strings.TrimSpace(raw)
	}
	out, err := json.Marshal(sortKeys(v))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return string(out)
}

// sortKeys recursively rebuilds maps with sorted keys via an ordered
// representation so json.Marshal (which already sorts map keys) is
// deterministic across inputs with differently-ordered keys.
func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

// RecordToolCall registers one issued tool call for the current turn and
// reports whether it has now repeated R times within window W.
func (d *Detector) RecordToolCall(toolName, argumentsJSON string) Verdict {
	sig := Signature(toolName, argumentsJSON)
	rec, ok := d.sigs[sig]
	if !ok {
		rec = &signatureRecord{}
		d.sigs[sig] = rec
	}
	rec.turns = append(rec.turns, d.turn)

	// Evict occurrences recorded more than W turns ago; turn boundaries are
	// observed via RecordTurn.
	cutoff := d.turn - d.windowCap()
	kept := rec.turns[:0]
	for _, t := range rec.turns {
		if t > cutoff {
			kept = append(kept, t)
		}
	}
	rec.turns = kept

	if len(rec.turns) >= d.cfg.R {
		if rec.steered {
			return Verdict{Repetition: true, Abort: true, AbortKind: "loop_repetition"}
		}
		rec.steered = true
		return Verdict{
			Repetition: true,
			Steer:      "You have repeated this search; summarize or change approach.",
		}
	}
	return Verdict{}
}

func (d *Detector) windowCap() int {
	if d.cfg.W <= 0 {
		return d.cfg.R
	}
	return d.cfg.W
}

// RecordTurn records the outcome of one assistant turn (reasoning text,
// whether it issued tool calls, and the length of its final text) and
// reports a stall/idle verdict if one is tripped. Call once per turn after
// RecordToolCall has been called for every tool call the turn issued.
func (d *Detector) RecordTurn(reasoning, text string, hadToolCalls bool) Verdict {
	d.turn++

	if !hadToolCalls && strings.TrimSpace(reasoning) != "" && reasoning == d.lastReasoningText {
		d.reasoningOnlyStreak++
	} else if !hadToolCalls && strings.TrimSpace(reasoning) != "" {
		d.reasoningOnlyStreak = 1
	} else {
		d.reasoningOnlyStreak = 0
	}
	d.lastReasoningText = reasoning

	if d.cfg.S > 0 && d.reasoningOnlyStreak >= d.cfg.S {
		return Verdict{Abort: true, AbortKind: "reasoning_stall"}
	}

	idle := !hadToolCalls && len(strings.TrimSpace(text)) <= d.cfg.E
	if idle {
		d.idleStreak++
	} else {
		d.idleStreak = 0
	}
	if d.cfg.K > 0 && d.idleStreak >= d.cfg.K {
		return Verdict{Abort: true, AbortKind: "idle_turns"}
	}

	return Verdict{}
}

// Reset clears all tracked state (e.g. at session start or explicit reset).
func (d *Detector) Reset() {
	d.turn = 0
	d.sigs = make(map[string]*signatureRecord)
	d.reasoningOnlyStreak = 0
	d.lastReasoningText = ""
	d.idleStreak = 0
}
