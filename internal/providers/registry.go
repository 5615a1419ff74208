// Package providers implements the typed, keyed provider registry
// (spec §4.9): for each provider Kind, zero or more implementations are
// registered, one is default, and an administrator may bind an A/B
// test between two implementations with a traffic split.
//
// Registration follows the registration-phase idiom of
// internal/pipeline/core/factory.go (map keyed by id, compile-time
// interface assertion at the call site), generalised from "stage
// constructors" to "provider implementations".
package providers

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

// Kind identifies a category of pluggable provider.
type Kind string

const (
	KindBackgroundRemoval  Kind = "background_removal"
	KindImageTransform     Kind = "image_transform"
	KindClassification     Kind = "classification"
	KindCommercialImage    Kind = "commercial_image"
	KindProductExtraction  Kind = "product_extraction"
	KindVideoExtraction    Kind = "video_extraction"
	KindUnifiedAnalyzer    Kind = "unified_analyzer"
	KindUpscaler           Kind = "upscaler"
	KindTranscriber        Kind = "transcriber"
)

// Provider is the minimal contract every pluggable implementation
// satisfies; concrete provider implementations (image transform,
// background removal, transcription, etc.) are out of scope here per
// spec §1 — specified only by this method contract.
type Provider interface {
	ID() string
	Kind() Kind
	IsAvailable() bool
}

var (
	ErrUnknownKind     = errors.New("providers: unknown kind")
	ErrUnknownProvider = errors.New("providers: unknown provider id")
	ErrNoDefault       = errors.New("providers: no default registered for kind")
)

// ABTest binds two implementations of the same Kind with a
// deterministic traffic split.
type ABTest struct {
	ID         string
	Kind       Kind
	VariantA   string // provider id
	VariantB   string // provider id
	SplitB     int    // percentage [0,100] of traffic routed to VariantB
}

// Selection is the result of Get.
type Selection struct {
	Provider   Provider
	ProviderID string
	ABTestID   string
	Variant    string // "a", "b", or "" when no A/B test applied
}

// snapshot is the immutable registry state; A/B test mutation is an
// administrative operation published by atomic swap of this snapshot,
// per spec §5 "Shared-resource policy" (avoids a registry-wide lock on
// the job-execution hot path).
type snapshot struct {
	byKind    map[Kind]map[string]Provider
	defaults  map[Kind]string
	abTests   map[Kind]ABTest
}

// Registry is the process-wide provider registry.
type Registry struct {
	mu   sync.Mutex // guards publishing a new snapshot
	live atomicSnapshot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.live.store(&snapshot{
		byKind:   make(map[Kind]map[string]Provider),
		defaults: make(map[Kind]string),
		abTests:  make(map[Kind]ABTest),
	})
	return r
}

// Register adds p to the registry; if isDefault is true, p becomes the
// default implementation for its Kind. Registration is expected only
// during startup wiring (spec §9: forbid registration after the first
// job starts, except via a dedicated admin path).
func (r *Registry) Register(p Provider, isDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.live.load()
	next := cur.clone()
	if next.byKind[p.Kind()] == nil {
		next.byKind[p.Kind()] = make(map[string]Provider)
	}
	next.byKind[p.Kind()][p.ID()] = p
	if isDefault || next.defaults[p.Kind()] == "" {
		next.defaults[p.Kind()] = p.ID()
	}
	r.live.store(next)
}

// SetABTest publishes (or replaces) the A/B test for kind. An
// administrative operation; published via atomic snapshot swap so it
// never races with in-flight Get calls.
func (r *Registry) SetABTest(test ABTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.live.load()
	if _, ok := cur.byKind[test.Kind][test.VariantA]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, test.VariantA)
	}
	if _, ok := cur.byKind[test.Kind][test.VariantB]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, test.VariantB)
	}

	next := cur.clone()
	next.abTests[test.Kind] = test
	r.live.store(next)
	return nil
}

// ClearABTest removes any active A/B test for kind.
func (r *Registry) ClearABTest(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.live.load()
	next := cur.clone()
	delete(next.abTests, kind)
	r.live.store(next)
}

// Get resolves a provider for kind per the selection contract (§4.9):
// explicitID wins if given; else an active A/B test for kind with a
// non-empty seed yields a deterministic variant; else the default.
func (r *Registry) Get(kind Kind, explicitID string, seed string) (Selection, error) {
	snap := r.live.load()

	byID, ok := snap.byKind[kind]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if explicitID != "" {
		p, ok := byID[explicitID]
		if !ok {
			return Selection{}, fmt.Errorf("%w: %s", ErrUnknownProvider, explicitID)
		}
		return Selection{Provider: p, ProviderID: p.ID()}, nil
	}

	if test, ok := snap.abTests[kind]; ok && seed != "" {
		variant := "a"
		id := test.VariantA
		if hashBucket(seed) < test.SplitB {
			variant = "b"
			id = test.VariantB
		}
		p, ok := byID[id]
		if !ok {
			return Selection{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		return Selection{Provider: p, ProviderID: p.ID(), ABTestID: test.ID, Variant: variant}, nil
	}

	defID, ok := snap.defaults[kind]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %s", ErrNoDefault, kind)
	}
	p := byID[defID]
	return Selection{Provider: p, ProviderID: p.ID()}, nil
}

// List returns every registered provider for kind, optionally filtered
// to only those reporting IsAvailable() == true.
func (r *Registry) List(kind Kind, onlyAvailable bool) []Provider {
	snap := r.live.load()
	var out []Provider
	for _, p := range snap.byKind[kind] {
		if onlyAvailable && !p.IsAvailable() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		byKind:   make(map[Kind]map[string]Provider, len(s.byKind)),
		defaults: make(map[Kind]string, len(s.defaults)),
		abTests:  make(map[Kind]ABTest, len(s.abTests)),
	}
	for k, m := range s.byKind {
		inner := make(map[string]Provider, len(m))
		for id, p := range m {
			inner[id] = p
		}
		next.byKind[k] = inner
	}
	for k, v := range s.defaults {
		next.defaults[k] = v
	}
	for k, v := range s.abTests {
		next.abTests[k] = v
	}
	return next
}

// hashBucket returns a deterministic bucket in [0,100) for seed, using
// FNV-1a per spec §9 design note ("stable 32-bit hash... avoid locale-
// or architecture-sensitive hashes"). The same seed always yields the
// same bucket, and therefore the same A/B variant.
func hashBucket(seed string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return int(h.Sum32() % 100)
}
