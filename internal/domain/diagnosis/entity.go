package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Class is a disease label produced by the classifier.
type Class string

const (
	ClassNormal       Class = "Normal"
	ClassPneumonia    Class = "Pneumonia"
	ClassTuberculosis Class = "Tuberculosis"
)

// Classes is the fixed, ordered label set. Classifier outputs are indexed by it.
var Classes = []Class{ClassNormal, ClassPneumonia, ClassTuberculosis}

// Level is used both for severity and for confidence banding.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Probability pairs a class with the classifier's score for it.
type Probability struct {
	Class Class
	P     float64
}

// Distribution is an ordered probability vector over a class set.
type Distribution []Probability

// NewDistribution zips a raw probability vector with its class order.
func NewDistribution(classes []Class, probs []float64) (Distribution, error) {
	if len(classes) != len(probs) {
		return nil, fmt.Errorf("classifier returned %d scores for %d classes", len(probs), len(classes))
	}
	d := make(Distribution, len(classes))
	for i, c := range classes {
		d[i] = Probability{Class: c, P: probs[i]}
	}
	return d, nil
}

// Argmax returns the most probable entry; ties go to the earliest class.
func (d Distribution) Argmax() (Probability, bool) {
	if len(d) == 0 {
		return Probability{}, false
	}
	best := d[0]
	for _, p := range d[1:] {
		if p.P > best.P {
			best = p
		}
	}
	return best, true
}

// MarshalJSON writes the distribution as an object, keeping class order.
func (d Distribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(p.Class))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.P)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Region is a simulated heatmap hotspot. Positions are presentation constants
// keyed by class and confidence; they do not depend on image content.
type Region struct {
	X         int     `json:"x" bson:"x"`
	Y         int     `json:"y" bson:"y"`
	Radius    int     `json:"radius" bson:"radius"`
	Intensity float64 `json:"intensity" bson:"intensity"`
	Label     string  `json:"label" bson:"label"`
}

// DiseaseInfo is static reference data for a class.
type DiseaseInfo struct {
	Precaution      string   `json:"precaution" bson:"precaution"`
	FollowUp        string   `json:"follow_up" bson:"follow_up"`
	Severity        Level    `json:"severity" bson:"severity"`
	Recommendations []string `json:"recommendations" bson:"recommendations"`
}

// QualityAssessment is the advisory result of the pre-inference image check.
type QualityAssessment struct {
	Score      int      `json:"quality_score" bson:"quality_score"`
	Issues     []string `json:"issues" bson:"issues"`
	Acceptable bool     `json:"acceptable" bson:"acceptable"`
}

// AnalysisMetadata describes how a report was produced.
type AnalysisMetadata struct {
	ModelVersion    string `json:"model_version" bson:"model_version"`
	InputShape      string `json:"input_shape" bson:"input_shape"`
	ProcessingTime  string `json:"processing_time" bson:"processing_time"`
	ConfidenceLevel Level  `json:"confidence_level" bson:"confidence_level"`
}

// ClinicalReport is the structured result of one analysis.
type ClinicalReport struct {
	Prediction       Class             `json:"prediction"`
	Confidence       float64           `json:"confidence"`
	AllProbabilities Distribution      `json:"all_probabilities"`
	Explanation      string            `json:"explanation"`
	HeatmapRegions   []Region          `json:"heatmap_regions"`
	DiseaseInfo      DiseaseInfo       `json:"disease_info"`
	QualityCheck     QualityAssessment `json:"quality_check"`
	ConfidenceLevel  Level             `json:"confidence_level"`
	Metadata         AnalysisMetadata  `json:"analysis_metadata"`
	ImageURL         string            `json:"image_url,omitempty"`
}

// Tensor is a dense float32 tensor in NHWC layout.
type Tensor struct {
	Shape []int
	Data  []float32
}
