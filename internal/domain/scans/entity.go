package scans

import (
	"time"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

// ID identifies a saved scan.
type ID string

// Record is a persisted scan report owned by one user.
type Record struct {
	ID               ID                           `json:"_id" bson:"_id"`
	UserEmail        string                       `json:"user_email" bson:"user_email"`
	Prediction       string                       `json:"prediction" bson:"prediction"`
	Confidence       float64                      `json:"confidence" bson:"confidence"`
	Disease          string                       `json:"disease" bson:"disease"`
	Status           string                       `json:"status" bson:"status"`
	Precaution       string                       `json:"precaution" bson:"precaution"`
	ImageURL         string                       `json:"image_url" bson:"image_url"`
	SavedAt          time.Time                    `json:"date" bson:"date"`
	Explanation      string                       `json:"explanation,omitempty" bson:"explanation"`
	HeatmapRegions   []diagnosis.Region           `json:"heatmap_regions,omitempty" bson:"heatmap_regions"`
	DiseaseInfo      *diagnosis.DiseaseInfo       `json:"disease_info,omitempty" bson:"disease_info,omitempty"`
	QualityCheck     *diagnosis.QualityAssessment `json:"quality_check,omitempty" bson:"quality_check,omitempty"`
	AllProbabilities map[string]float64           `json:"all_probabilities,omitempty" bson:"all_probabilities,omitempty"`
	AnalysisMetadata *diagnosis.AnalysisMetadata  `json:"analysis_metadata,omitempty" bson:"analysis_metadata,omitempty"`
}
