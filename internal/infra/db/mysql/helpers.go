package mysql

import (
	"encoding/json"
	"errors"

	driver "github.com/go-sql-driver/mysql"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/domain/scans"
)

const errDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}

// scanDetail holds the nested report parts stored in detail_json.
type scanDetail struct {
	Explanation      string                       `json:"explanation,omitempty"`
	HeatmapRegions   []diagnosis.Region           `json:"heatmap_regions,omitempty"`
	DiseaseInfo      *diagnosis.DiseaseInfo       `json:"disease_info,omitempty"`
	QualityCheck     *diagnosis.QualityAssessment `json:"quality_check,omitempty"`
	AllProbabilities map[string]float64           `json:"all_probabilities,omitempty"`
	AnalysisMetadata *diagnosis.AnalysisMetadata  `json:"analysis_metadata,omitempty"`
}

func encodeDetail(r *scans.Record) (string, error) {
	b, err := json.Marshal(scanDetail{
		Explanation:      r.Explanation,
		HeatmapRegions:   r.HeatmapRegions,
		DiseaseInfo:      r.DiseaseInfo,
		QualityCheck:     r.QualityCheck,
		AllProbabilities: r.AllProbabilities,
		AnalysisMetadata: r.AnalysisMetadata,
	})
	return string(b), err
}

func decodeDetail(raw []byte, r *scans.Record) error {
	if len(raw) == 0 {
		return nil
	}
	var d scanDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	r.Explanation = d.Explanation
	r.HeatmapRegions = d.HeatmapRegions
	r.DiseaseInfo = d.DiseaseInfo
	r.QualityCheck = d.QualityCheck
	r.AllProbabilities = d.AllProbabilities
	r.AnalysisMetadata = d.AnalysisMetadata
	return nil
}
