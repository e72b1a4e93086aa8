package diagnosis

var diseaseTable = map[Class]DiseaseInfo{
	ClassNormal: {
		Precaution: "No abnormality detected. Maintain regular health check-ups and a healthy lifestyle.",
		FollowUp:   "Routine follow-up in 6-12 months if asymptomatic.",
		Severity:   LevelLow,
		Recommendations: []string{
			"Continue regular exercise",
			"Maintain balanced diet",
			"Annual health checkups",
		},
	},
	ClassPneumonia: {
		Precaution: "Start antibiotic therapy as prescribed. Get adequate rest and maintain hydration. Monitor fever and breathing difficulty.",
		FollowUp:   "Follow-up with primary care physician in 2-3 days or sooner if symptoms worsen.",
		Severity:   LevelMedium,
		Recommendations: []string{
			"Complete antibiotic course",
			"Monitor temperature daily",
			"Rest and hydration",
			"Avoid strenuous activity",
		},
	},
	ClassTuberculosis: {
		Precaution: "Start anti-TB medication immediately. Isolate to prevent transmission. Ensure proper ventilation at home. Complete full course of treatment.",
		FollowUp:   "Immediate referral to pulmonologist. Monthly follow-ups during treatment.",
		Severity:   LevelHigh,
		Recommendations: []string{
			"Start DOT therapy",
			"Home isolation for 2 weeks",
			"Nutritional supplements",
			"Regular sputum testing",
		},
	},
}

// LookupDiseaseInfo returns a copy of the reference entry for c.
func LookupDiseaseInfo(c Class) (DiseaseInfo, error) {
	info, ok := diseaseTable[c]
	if !ok {
		return DiseaseInfo{}, ErrUnknownClass
	}
	info.Recommendations = append([]string(nil), info.Recommendations...)
	return info, nil
}
