package voices

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/aurilabs/auri/internal/models"
)

// ErrNoVoices is returned when a language has no voices in the catalog.
// Not retryable — the catalog itself has to change first.
var ErrNoVoices = errors.New("no voices available for language")

// Voice is one synthesis voice in the per-language catalog.
type Voice struct {
	VoiceID string        `json:"voice_id"`
	Gender  models.Gender `json:"gender"`
}

// Catalog maps a BCP 47 language code to its available voices.
// Read-only after load; safe to share across concurrent assignments.
type Catalog map[string][]Voice

// LoadCatalog reads the voice catalog from a JSON file. A missing or
// malformed file is a deployment defect, so the caller should treat the
// error as fatal.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice catalog %s: %w", path, err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog %s: %w", path, err)
	}

	return catalog, nil
}

// ForLanguage returns the voices for a language code, or nil.
func (c Catalog) ForLanguage(languageCode string) []Voice {
	return c[languageCode]
}

// SpeakerRef is the slice of a speaker the assigner needs.
type SpeakerRef struct {
	ID     string
	Gender models.Gender // empty = no preference
}

// Assigner hands out voices for one lesson's speakers. The random source is
// injected so tests can pin the shuffle order.
type Assigner struct {
	catalog Catalog

	mu  sync.Mutex // rand.Rand is not goroutine-safe
	rng *rand.Rand
}

func NewAssigner(catalog Catalog) *Assigner {
	return &Assigner{
		catalog: catalog,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewAssignerWithRand creates an assigner with a caller-supplied random
// source, for deterministic tests.
func NewAssignerWithRand(catalog Catalog, rng *rand.Rand) *Assigner {
	return &Assigner{catalog: catalog, rng: rng}
}

// Assign maps every speaker to a voice id for one lesson.
//
// The pool for the language is shuffled, then drawn from without replacement,
// preferring a gender match when the speaker declares one. No two speakers
// share a voice while the pool lasts. If there are more speakers than voices,
// the remaining speakers are served best-effort from the original, unshuffled
// catalog (repeats allowed in this branch only) — a deliberate degradation,
// never an error.
func (a *Assigner) Assign(languageCode string, speakers []SpeakerRef) (map[string]string, error) {
	full := a.catalog.ForLanguage(languageCode)
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVoices, languageCode)
	}

	remaining := make([]Voice, len(full))
	copy(remaining, full)

	a.mu.Lock()
	a.rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})
	a.mu.Unlock()

	assigned := make(map[string]string, len(speakers))

	for _, speaker := range speakers {
		if len(remaining) == 0 {
			// Pool exhausted: fall back to the unshuffled catalog.
			assigned[speaker.ID] = fallbackVoice(full, speaker.Gender).VoiceID
			continue
		}

		idx := -1
		if speaker.Gender != "" {
			for i, v := range remaining {
				if v.Gender == speaker.Gender {
					idx = i
					break
				}
			}
		}
		if idx == -1 {
			// No gender preference, or no match left — take the next voice.
			idx = 0
		}

		assigned[speaker.ID] = remaining[idx].VoiceID
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	return assigned, nil
}

func fallbackVoice(catalog []Voice, gender models.Gender) Voice {
	if gender != "" {
		for _, v := range catalog {
			if v.Gender == gender {
				return v
			}
		}
	}
	return catalog[0]
}
