package pipeline

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/domain/scans"
	"github.com/pneumax/pneumax-api/internal/domain/users"
)

// History limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// QualityGate assesses a decoded image before inference.
type QualityGate interface {
	Assess(img *image.NRGBA) diagnosis.QualityAssessment
}

// ReportEnricher turns a distribution into a report.
type ReportEnricher interface {
	Enrich(dist diagnosis.Distribution) (*diagnosis.ClinicalReport, error)
}

// TokenValidator resolves a session token to an identity.
type TokenValidator interface {
	Validate(token string) (users.Identity, error)
}

// Service implements the analyze, save and history use cases.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	Gate       QualityGate
	Classifier diagnosis.Classifier
	Enricher   ReportEnricher
	Tokens     TokenValidator
	Scans      scans.Repository
	// Images is optional; when set, uploads are stored and the report carries image_url.
	Images scans.ImageStore
	Clock  application.Clock
	Log    logrus.FieldLogger

	ModelVersion    string
	ClassifyTimeout time.Duration
	StorageTimeout  time.Duration
}

// Upload is an image submitted for analysis.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Analyze runs quality gate, classifier and enrichment over one image.
// Poor quality never fails the call; it is reported in QualityCheck.
func (s *Service) Analyze(ctx context.Context, up Upload) (*diagnosis.ClinicalReport, error) {
	start := s.now()

	if len(up.Data) == 0 {
		return nil, application.Fail(application.ErrValidation, "No file selected", nil)
	}

	img, err := Decode(up.Data)
	if err != nil {
		return nil, application.Fail(application.ErrDecode, "", fmt.Errorf("decode %q: %w", up.Filename, err))
	}

	qa := s.Gate.Assess(img)
	input := Preprocess(img)

	probs, err := application.Bounded(ctx, s.ClassifyTimeout, func(ctx context.Context) ([]float64, error) {
		return s.Classifier.Classify(ctx, input)
	})
	if err != nil {
		return nil, application.CallFailure(application.ErrClassification, "classify", err)
	}

	dist, err := diagnosis.NewDistribution(diagnosis.Classes, probs)
	if err != nil {
		return nil, application.Fail(application.ErrClassification, "", err)
	}

	report, err := s.Enricher.Enrich(dist)
	if err != nil {
		// unknown class means the class set and the reference table disagree
		return nil, application.Fail(application.ErrClassification, "", fmt.Errorf("enrich: %w", err))
	}

	report.QualityCheck = qa
	report.Metadata.ModelVersion = s.ModelVersion
	report.Metadata.InputShape = InputShape

	if s.Images != nil {
		if url, err := s.storeImage(ctx, up); err != nil {
			s.logger().WithError(err).WithField("filename", up.Filename).Warn("storing uploaded image failed")
		} else {
			report.ImageURL = url
		}
	}

	report.Metadata.ProcessingTime = fmt.Sprintf("%.3fs", s.now().Sub(start).Seconds())

	s.logger().WithFields(logrus.Fields{
		"prediction": report.Prediction,
		"confidence": report.Confidence,
		"quality":    qa.Score,
	}).Debug("analysis completed")

	return report, nil
}

func (s *Service) storeImage(ctx context.Context, up Upload) (string, error) {
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(up.Data)
	}
	key := fmt.Sprintf("scans/%s/%s%s",
		s.now().Format("2006/01/02"), uuid.NewString(), strings.ToLower(filepath.Ext(up.Filename)))

	return application.Bounded(ctx, s.StorageTimeout, func(ctx context.Context) (string, error) {
		return s.Images.Put(ctx, key, up.Data, contentType)
	})
}

// ScanInput is the client-supplied part of a saved scan.
type ScanInput struct {
	Prediction       string                       `json:"prediction"`
	Confidence       float64                      `json:"confidence"`
	Disease          string                       `json:"disease"`
	Status           string                       `json:"status"`
	Precaution       string                       `json:"precaution"`
	ImageURL         string                       `json:"image_url"`
	Explanation      string                       `json:"explanation"`
	HeatmapRegions   []diagnosis.Region           `json:"heatmap_regions"`
	DiseaseInfo      *diagnosis.DiseaseInfo       `json:"disease_info"`
	QualityCheck     *diagnosis.QualityAssessment `json:"quality_check"`
	AllProbabilities map[string]float64           `json:"all_probabilities"`
	AnalysisMetadata *diagnosis.AnalysisMetadata  `json:"analysis_metadata"`
}

func (in ScanInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Prediction) == "" {
		missing = append(missing, "prediction")
	}
	if strings.TrimSpace(in.Status) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		missing = append(missing, "image_url")
	}
	if len(missing) > 0 {
		return application.Fail(application.ErrValidation, "missing required fields: "+strings.Join(missing, ", "), nil)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return application.Fail(application.ErrValidation, "confidence must be between 0 and 1", nil)
	}
	return nil
}

// SaveScan stores a report in the history of the token's owner.
func (s *Service) SaveScan(ctx context.Context, token string, in ScanInput) (scans.ID, error) {
	who, err := s.authorize(token)
	if err != nil {
		return "", err
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	rec := &scans.Record{
		UserEmail:        who.Email,
		Prediction:       in.Prediction,
		Confidence:       in.Confidence,
		Disease:          in.Disease,
		Status:           in.Status,
		Precaution:       in.Precaution,
		ImageURL:         in.ImageURL,
		SavedAt:          s.now(),
		Explanation:      in.Explanation,
		HeatmapRegions:   in.HeatmapRegions,
		DiseaseInfo:      in.DiseaseInfo,
		QualityCheck:     in.QualityCheck,
		AllProbabilities: in.AllProbabilities,
		AnalysisMetadata: in.AnalysisMetadata,
	}

	id, err := application.Bounded(ctx, s.StorageTimeout, func(ctx context.Context) (scans.ID, error) {
		return s.Scans.Save(ctx, rec)
	})
	if err != nil {
		return "", storageFailure("save scan", err)
	}
	return id, nil
}

// ListScans returns the caller's most recent scans, newest first.
func (s *Service) ListScans(ctx context.Context, token string, limit int) ([]*scans.Record, error) {
	who, err := s.authorize(token)
	if err != nil {
		return nil, err
	}

	limit = ClampLimit(limit)
	list, err := application.Bounded(ctx, s.StorageTimeout, func(ctx context.Context) ([]*scans.Record, error) {
		return s.Scans.FindByUser(ctx, who.Email, limit)
	})
	if err != nil {
		return nil, storageFailure("list scans", err)
	}
	if len(list) > limit {
		list = list[:limit]
	}
	if list == nil {
		list = []*scans.Record{}
	}
	return list, nil
}

// ModelLoaded reports whether a real model (not the stand-in) is serving.
func (s *Service) ModelLoaded() bool {
	if l, ok := s.Classifier.(interface{ Loaded() bool }); ok {
		return l.Loaded()
	}
	return true
}

// ClampLimit applies the history default (10) and ceiling (100).
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (s *Service) authorize(token string) (users.Identity, error) {
	who, err := s.Tokens.Validate(token)
	if err != nil {
		return users.Identity{}, application.Fail(application.ErrUnauthorized, "Token is invalid", err)
	}
	return who, nil
}

func storageFailure(op string, err error) error {
	return application.CallFailure(application.ErrStorage, op, err)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
