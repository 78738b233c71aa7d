package labanalysis

// ValidationCaveat ends every summary.
const ValidationCaveat = "Medical validation by a qualified professional is required."

const (
	VersionRule         = "rule-v1"
	VersionOCRRequired  = "ocr-required-v1"
	VersionInitialized  = "init-fallback-v1"
	VersionUnstructured = "unstructured-v1"

	hybridSuffix = "+rule-v1"
)

// OCRRequiredResult is returned for documents with no usable text.
func OCRRequiredResult() AnalysisResult {
	return AnalysisResult{
		Anomalies:    []Anomaly{},
		DangerScore:  20,
		DangerLevel:  LevelLow,
		Resume:       "The document could not be read automatically (scanned or image-only PDF). OCR or manual review is required. " + ValidationCaveat,
		ModelVersion: VersionOCRRequired,
	}
}

// InitializedResult is returned when text exists but nothing could be
// extracted from it and no model contributed.
func InitializedResult() AnalysisResult {
	return AnalysisResult{
		Anomalies:    []Anomaly{},
		DangerScore:  15,
		DangerLevel:  LevelLow,
		Resume:       "Analysis initialized; no anomaly could be identified automatically. " + ValidationCaveat,
		ModelVersion: VersionInitialized,
	}
}

// unstructuredResult wraps model output that held no parsable JSON.
func unstructuredResult(text, modelVersion string) AnalysisResult {
	if modelVersion == "" {
		modelVersion = VersionUnstructured
	}
	return AnalysisResult{
		Anomalies:    []Anomaly{},
		DangerScore:  20,
		DangerLevel:  LevelLow,
		Resume:       "The model response could not be structured; low-confidence result. " + ValidationCaveat,
		ModelVersion: modelVersion,
		Raw:          map[string]any{"text": text},
	}
}
