// Package knowledge implements the error-signature knowledge base: the
// zero-model-call fix tier. Every resolved incident teaches it; every new
// incident consults it before any worker agent is engaged.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mendhq/mend/internal/types"
)

// Store is the storage subset the knowledge base needs.
type Store interface {
	GetKBEntryBySignature(ctx context.Context, signature string) (*types.KBEntry, error)
	InsertKBEntry(ctx context.Context, entry *types.KBEntry) error
	UpdateKBEntry(ctx context.Context, entry *types.KBEntry) error
	IncrementKBEncounter(ctx context.Context, signature string) error
}

// KnowledgeBase wraps the durable entries with the lookup and learning
// policy. It is safe for concurrent use if the underlying store is.
type KnowledgeBase struct {
	store Store
}

// New creates a knowledge base over the given store.
func New(store Store) *KnowledgeBase {
	return &KnowledgeBase{store: store}
}

// MatchConfidence scores how much an entry can be trusted for automatic
// application:
//
//	confidence = round(60 * successRate + 0.4 * storedConfidence)
//
// The empirical success rate dominates; the stored confidence (a smoothed
// average of past fix scores) contributes the rest.
func MatchConfidence(entry *types.KBEntry) int {
	return int(math.Round(60*entry.SuccessRate() + 0.4*float64(entry.Confidence)))
}

// Lookup retrieves the entry for a signature together with its match
// confidence. Returns (nil, 0, nil) when the signature is unknown.
func (kb *KnowledgeBase) Lookup(ctx context.Context, signature string) (*types.KBEntry, int, error) {
	entry, err := kb.store.GetKBEntryBySignature(ctx, signature)
	if err != nil {
		return nil, 0, fmt.Errorf("knowledge base lookup: %w", err)
	}
	if entry == nil {
		return nil, 0, nil
	}
	return entry, MatchConfidence(entry), nil
}

// RecordSuccess folds a successful fix back into the knowledge base.
// An existing entry gets both counters bumped and its confidence moved
// to the average of old and new; the stored fix is only replaced when
// the new one is non-empty. Unknown signatures get a fresh entry.
// Entries are only ever created on success.
func (kb *KnowledgeBase) RecordSuccess(ctx context.Context, signature string, kind types.IncidentKind, errContext, successfulFix string, confidence int) error {
	confidence = clampConfidence(confidence)

	entry, err := kb.store.GetKBEntryBySignature(ctx, signature)
	if err != nil {
		return fmt.Errorf("knowledge base record: %w", err)
	}

	now := time.Now().UTC()
	if entry == nil {
		entry = &types.KBEntry{
			ErrorSignature:   signature,
			ErrorKind:        kind,
			Context:          errContext,
			SuccessfulFix:    successfulFix,
			TimesEncountered: 1,
			TimesFixed:       1,
			LastEncountered:  now,
			Confidence:       confidence,
		}
		if err := kb.store.InsertKBEntry(ctx, entry); err != nil {
			return fmt.Errorf("knowledge base record: %w", err)
		}
		return nil
	}

	entry.TimesEncountered++
	entry.TimesFixed++
	entry.Confidence = clampConfidence(int(math.Round(float64(entry.Confidence+confidence) / 2)))
	entry.LastEncountered = now
	if successfulFix != "" {
		entry.SuccessfulFix = successfulFix
	}
	if errContext != "" {
		entry.Context = errContext
	}

	if err := kb.store.UpdateKBEntry(ctx, entry); err != nil {
		return fmt.Errorf("knowledge base record: %w", err)
	}
	return nil
}

// RecordFailure notes that a known failure shape recurred without being
// fixed: the encounter counter and timestamp move, nothing else. Unknown
// signatures are ignored; failures never create entries.
func (kb *KnowledgeBase) RecordFailure(ctx context.Context, signature string) error {
	entry, err := kb.store.GetKBEntryBySignature(ctx, signature)
	if err != nil {
		return fmt.Errorf("knowledge base record failure: %w", err)
	}
	if entry == nil {
		return nil
	}
	if err := kb.store.IncrementKBEncounter(ctx, signature); err != nil {
		return fmt.Errorf("knowledge base record failure: %w", err)
	}
	return nil
}

func clampConfidence(confidence int) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
