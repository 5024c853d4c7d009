package voices

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/aurilabs/auri/internal/models"
)

func testCatalog() Catalog {
	return Catalog{
		"es-ES": {
			{VoiceID: "voice-f1", Gender: models.GenderFemale},
			{VoiceID: "voice-m1", Gender: models.GenderMale},
			{VoiceID: "voice-f2", Gender: models.GenderFemale},
			{VoiceID: "voice-m2", Gender: models.GenderMale},
		},
	}
}

func voiceGenders(c Catalog, lang string) map[string]models.Gender {
	genders := make(map[string]models.Gender)
	for _, v := range c.ForLanguage(lang) {
		genders[v.VoiceID] = v.Gender
	}
	return genders
}

func TestAssignUniqueVoicesWhilePoolLasts(t *testing.T) {
	a := NewAssigner(testCatalog())

	speakers := []SpeakerRef{
		{ID: "Narrator"},
		{ID: "Lucia", Gender: models.GenderFemale},
		{ID: "Mateo", Gender: models.GenderMale},
	}

	assigned, err := a.Assign("es-ES", speakers)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if len(assigned) != len(speakers) {
		t.Fatalf("expected %d assignments, got %d", len(speakers), len(assigned))
	}

	seen := make(map[string]bool)
	genders := voiceGenders(testCatalog(), "es-ES")
	for id, voiceID := range assigned {
		if voiceID == "" {
			t.Errorf("speaker %s got empty voice", id)
		}
		if _, ok := genders[voiceID]; !ok {
			t.Errorf("speaker %s got voice %s not in catalog", id, voiceID)
		}
		if seen[voiceID] {
			t.Errorf("voice %s assigned twice while pool was not exhausted", voiceID)
		}
		seen[voiceID] = true
	}
}

func TestAssignPrefersGenderMatch(t *testing.T) {
	genders := voiceGenders(testCatalog(), "es-ES")

	// The catalog has two voices of each gender, so both gendered speakers
	// must get a match regardless of shuffle order. Run several seeds to
	// cover different orders.
	for seed := int64(0); seed < 20; seed++ {
		a := NewAssignerWithRand(testCatalog(), rand.New(rand.NewSource(seed)))

		assigned, err := a.Assign("es-ES", []SpeakerRef{
			{ID: "Lucia", Gender: models.GenderFemale},
			{ID: "Mateo", Gender: models.GenderMale},
		})
		if err != nil {
			t.Fatalf("seed %d: Assign failed: %v", seed, err)
		}

		if g := genders[assigned["Lucia"]]; g != models.GenderFemale {
			t.Errorf("seed %d: Lucia got %s voice %s", seed, g, assigned["Lucia"])
		}
		if g := genders[assigned["Mateo"]]; g != models.GenderMale {
			t.Errorf("seed %d: Mateo got %s voice %s", seed, g, assigned["Mateo"])
		}
	}
}

func TestAssignDeterministicWithSeed(t *testing.T) {
	speakers := []SpeakerRef{
		{ID: "Narrator"},
		{ID: "Lucia", Gender: models.GenderFemale},
		{ID: "Mateo", Gender: models.GenderMale},
	}

	a1 := NewAssignerWithRand(testCatalog(), rand.New(rand.NewSource(42)))
	a2 := NewAssignerWithRand(testCatalog(), rand.New(rand.NewSource(42)))

	first, err := a1.Assign("es-ES", speakers)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	second, err := a2.Assign("es-ES", speakers)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("same seed produced different assignments: %v vs %v", first, second)
	}
}

func TestAssignFallbackWhenPoolExhausted(t *testing.T) {
	catalog := Catalog{
		"fr-FR": {
			{VoiceID: "only-f", Gender: models.GenderFemale},
			{VoiceID: "only-m", Gender: models.GenderMale},
		},
	}
	a := NewAssigner(catalog)

	speakers := []SpeakerRef{
		{ID: "Narrator"},
		{ID: "A", Gender: models.GenderFemale},
		{ID: "B", Gender: models.GenderMale},
		{ID: "C", Gender: models.GenderFemale},
	}

	assigned, err := a.Assign("fr-FR", speakers)
	if err != nil {
		t.Fatalf("exhausting the pool must not error: %v", err)
	}

	if len(assigned) != len(speakers) {
		t.Fatalf("expected every speaker assigned, got %d of %d", len(assigned), len(speakers))
	}
	for id, voiceID := range assigned {
		if voiceID != "only-f" && voiceID != "only-m" {
			t.Errorf("speaker %s got voice %s outside the catalog", id, voiceID)
		}
	}

	// The overflow speaker with a gender preference still gets a matching
	// voice from the fallback scan.
	if assigned["C"] != "only-f" {
		t.Errorf("fallback ignored gender preference: C got %s", assigned["C"])
	}
}

func TestAssignUnknownLanguage(t *testing.T) {
	a := NewAssigner(testCatalog())

	_, err := a.Assign("zz-ZZ", []SpeakerRef{{ID: "Narrator"}})
	if !errors.Is(err, ErrNoVoices) {
		t.Fatalf("expected ErrNoVoices, got %v", err)
	}
}

func TestAssignNoSpeakers(t *testing.T) {
	a := NewAssigner(testCatalog())

	assigned, err := a.Assign("es-ES", nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(assigned) != 0 {
		t.Errorf("expected empty assignment, got %v", assigned)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog("/nonexistent/voices.json"); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
