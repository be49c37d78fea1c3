package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/constants"
)

// ExtractionJob is one row of the job ledger.
type ExtractionJob struct {
	ID            uuid.UUID           `json:"id"`
	FileName      string              `json:"file_name"`
	Status        constants.JobStatus `json:"status"`
	Pages         int                 `json:"pages"`
	OCRText       *string             `json:"ocr_text,omitempty"`
	ExtractedJSON json.RawMessage     `json:"extracted_json,omitempty"`
	ModelName     *string             `json:"model_name,omitempty"`
	ErrorKind     *string             `json:"error_kind,omitempty"`
	ErrorMessage  *string             `json:"error_message,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
}

// Fields decodes ExtractedJSON into a flat map; nil when absent or malformed.
func (j *ExtractionJob) Fields() map[string]*string {
	if len(j.ExtractedJSON) == 0 {
		return nil
	}
	var out map[string]*string
	if err := json.Unmarshal(j.ExtractedJSON, &out); err != nil {
		return nil
	}
	return out
}
