package quality

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

const (
	IssueTooDark     = "Image appears too dark"
	IssueOverexposed = "Image appears overexposed"
	IssueLowContrast = "Low contrast may affect accuracy"
	IssueBlurred     = "Image may be blurred"
	IssueUnassessed  = "Unable to assess image quality"

	issuePenalty    = 20
	acceptableScore = 60
)

// Gate flags images that are likely to produce unreliable predictions.
// The result is advisory; callers decide what to do with it.
//
// Blur is approximated by the standard deviation of the luminance channel.
// That is a heuristic, not an edge or frequency based blur metric.
type Gate struct {
	MinBrightness float64
	MaxBrightness float64
	MinContrast   float64
	MinBlurScore  float64
}

// DefaultGate returns the production thresholds.
func DefaultGate() *Gate {
	return &Gate{
		MinBrightness: 50,
		MaxBrightness: 200,
		MinContrast:   30,
		MinBlurScore:  20,
	}
}

// Fallback is returned whenever the image cannot be measured.
func Fallback() diagnosis.QualityAssessment {
	return diagnosis.QualityAssessment{
		Score:      50,
		Issues:     []string{IssueUnassessed},
		Acceptable: false,
	}
}

// Assess never fails: unreadable input yields Fallback().
func (g *Gate) Assess(img *image.NRGBA) (qa diagnosis.QualityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			qa = Fallback()
		}
	}()

	st, err := measure(img)
	if err != nil {
		return Fallback()
	}

	issues := []string{}
	if st.brightness < g.MinBrightness {
		issues = append(issues, IssueTooDark)
	} else if st.brightness > g.MaxBrightness {
		issues = append(issues, IssueOverexposed)
	}
	if st.contrast < g.MinContrast {
		issues = append(issues, IssueLowContrast)
	}
	if st.blur < g.MinBlurScore {
		issues = append(issues, IssueBlurred)
	}
	return Score(issues)
}

// Score derives score and acceptability from a list of issues.
func Score(issues []string) diagnosis.QualityAssessment {
	score := 100 - issuePenalty*len(issues)
	if score < 0 {
		score = 0
	}
	return diagnosis.QualityAssessment{
		Score:      score,
		Issues:     issues,
		Acceptable: score >= acceptableScore,
	}
}

type stats struct {
	brightness float64
	contrast   float64
	blur       float64
}

// measure computes population statistics over the RGB samples and the
// per-pixel luminance (channel mean). Alpha is ignored.
func measure(img *image.NRGBA) (stats, error) {
	if img == nil {
		return stats{}, errors.New("nil image")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return stats{}, fmt.Errorf("empty image %dx%d", w, h)
	}
	if len(img.Pix) < (h-1)*img.Stride+w*4 {
		return stats{}, errors.New("truncated pixel buffer")
	}

	var sum, sumSq, lumSum, lumSumSq float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			r, g, bl := float64(row[x]), float64(row[x+1]), float64(row[x+2])
			sum += r + g + bl
			sumSq += r*r + g*g + bl*bl
			lum := (r + g + bl) / 3
			lumSum += lum
			lumSumSq += lum * lum
		}
	}

	pixels := float64(w * h)
	samples := pixels * 3
	mean := sum / samples
	lumMean := lumSum / pixels
	return stats{
		brightness: mean,
		contrast:   math.Sqrt(math.Max(0, sumSq/samples-mean*mean)),
		blur:       math.Sqrt(math.Max(0, lumSumSq/pixels-lumMean*lumMean)),
	}, nil
}
