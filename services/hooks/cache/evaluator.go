// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianHooks/services/hooks/diagnose"
)

// Evaluator is the engine surface the cache wraps.
type Evaluator interface {
	Evaluate(ctx context.Context, filePath string) diagnose.Verdict
	Registry() *diagnose.Registry
}

// CachedEvaluator serves repeated evaluations of unchanged content from a
// Store. It satisfies the same interface it wraps.
//
// Thread Safety: Safe for concurrent use if the wrapped Evaluator is.
type CachedEvaluator struct {
	next        Evaluator
	store       *Store
	fingerprint [sha256.Size]byte
	logger      *slog.Logger
}

// NewCachedEvaluator wraps next. The registry fingerprint is taken once;
// a different rule set yields different keys.
func NewCachedEvaluator(next Evaluator, store *Store, logger *slog.Logger) *CachedEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEvaluator{
		next:        next,
		store:       store,
		fingerprint: sha256.Sum256(fmt.Appendf(nil, "%+v", next.Registry().Rules())),
		logger:      logger,
	}
}

// Registry returns the wrapped registry.
func (c *CachedEvaluator) Registry() *diagnose.Registry {
	return c.next.Registry()
}

// Evaluate returns a cached Verdict for identical content, otherwise
// evaluates and stores the result when it is cacheable. Cache failures
// are logged and never change the Verdict.
func (c *CachedEvaluator) Evaluate(ctx context.Context, filePath string) diagnose.Verdict {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return c.next.Evaluate(ctx, filePath)
	}
	key := c.key(filePath, content)

	if data, ok, err := c.store.Get(key); err != nil {
		c.logger.Warn("verdict cache read failed", slog.String("error", err.Error()))
	} else if ok {
		var v diagnose.Verdict
		if err := json.Unmarshal(data, &v); err == nil {
			c.logger.Debug("verdict cache hit", slog.String("file", filePath))
			return v
		}
	}

	v := c.next.Evaluate(ctx, filePath)
	if !cacheable(v) {
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := c.store.Put(key, data); err != nil {
		c.logger.Warn("verdict cache write failed", slog.String("error", err.Error()))
	}
	return v
}

func (c *CachedEvaluator) key(filePath string, content []byte) []byte {
	h := sha256.New()
	h.Write(c.fingerprint[:])
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write(content)
	return h.Sum(nil)
}

// cacheable excludes verdicts that depend on more than the file content:
// deadline cuts, tool faults, and runs where every tool was missing.
func cacheable(v diagnose.Verdict) bool {
	if v.Inconclusive || !v.Checked() {
		return false
	}
	for _, d := range v.Diagnostics {
		if d.Fault {
			return false
		}
	}
	return true
}
