package enrich

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

// Intn picks a uniform index in [0,n).
type Intn interface {
	Intn(n int) int
}

// lockedRand makes a math/rand source safe for concurrent requests.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// NewRand returns a concurrency safe Intn seeded with seed.
func NewRand(seed int64) Intn {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

const fallbackExplanation = "AI analysis completed."

var explanations = map[diagnosis.Class][]string{
	diagnosis.ClassNormal: {
		"AI analyzed lung fields and found no evidence of abnormal opacity or consolidation.",
		"Normal lung markings and clear costophrenic angles observed.",
		"No signs of infiltrates, effusions, or cardiomegaly detected.",
	},
	diagnosis.ClassPneumonia: {
		"AI identified abnormal opacity patterns consistent with lung infection.",
		"Focus areas show consolidation typical of bacterial pneumonia.",
		"Evidence of airway inflammation and parenchymal involvement.",
	},
	diagnosis.ClassTuberculosis: {
		"AI detected cavitation and fibrotic changes suggestive of TB.",
		"Upper lobe predominance with tree-in-bud opacities observed.",
		"Hilar lymphadenopathy and pleural effusion patterns noted.",
	},
}

// Enricher turns a class distribution into a clinical report.
// It does not look at the image; quality and image metadata are attached by the caller.
type Enricher struct {
	Rand Intn
}

// New returns an Enricher; a nil rng is replaced by a time-seeded source.
func New(rng Intn) *Enricher {
	if rng == nil {
		rng = NewRand(time.Now().UnixNano())
	}
	return &Enricher{Rand: rng}
}

// Enrich builds the report for dist. It fails with diagnosis.ErrUnknownClass
// when the predicted class has no reference data.
func (e *Enricher) Enrich(dist diagnosis.Distribution) (*diagnosis.ClinicalReport, error) {
	best, ok := dist.Argmax()
	if !ok {
		return nil, fmt.Errorf("empty distribution: %w", diagnosis.ErrUnknownClass)
	}
	info, err := diagnosis.LookupDiseaseInfo(best.Class)
	if err != nil {
		return nil, fmt.Errorf("class %q: %w", best.Class, err)
	}

	level := ConfidenceLevel(best.P)
	return &diagnosis.ClinicalReport{
		Prediction:       best.Class,
		Confidence:       best.P,
		AllProbabilities: append(diagnosis.Distribution(nil), dist...),
		Explanation:      e.explain(best.Class),
		HeatmapRegions:   HeatmapRegions(best.Class, best.P),
		DiseaseInfo:      info,
		ConfidenceLevel:  level,
		Metadata:         diagnosis.AnalysisMetadata{ConfidenceLevel: level},
	}, nil
}

func (e *Enricher) explain(c diagnosis.Class) string {
	pool, ok := explanations[c]
	if !ok || len(pool) == 0 {
		return fallbackExplanation
	}
	return pool[e.Rand.Intn(len(pool))]
}

// ConfidenceLevel bands a probability: >0.7 High, >0.4 Medium, otherwise Low.
func ConfidenceLevel(confidence float64) diagnosis.Level {
	switch {
	case confidence > 0.7:
		return diagnosis.LevelHigh
	case confidence > 0.4:
		return diagnosis.LevelMedium
	default:
		return diagnosis.LevelLow
	}
}

// HeatmapRegions returns the fixed presentation hotspots for a class.
func HeatmapRegions(c diagnosis.Class, confidence float64) []diagnosis.Region {
	switch c {
	case diagnosis.ClassPneumonia:
		return []diagnosis.Region{
			{X: 120, Y: 80, Radius: 25, Intensity: confidence, Label: "Right lower lobe opacity"},
			{X: 180, Y: 120, Radius: 20, Intensity: confidence * 0.8, Label: "Consolidation area"},
		}
	case diagnosis.ClassTuberculosis:
		return []diagnosis.Region{
			{X: 90, Y: 60, Radius: 30, Intensity: confidence, Label: "Upper lobe cavitation"},
			{X: 200, Y: 70, Radius: 15, Intensity: confidence * 0.7, Label: "Tree-in-bud opacities"},
		}
	default:
		return []diagnosis.Region{}
	}
}
