package server

import (
	"net/http"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/pipeline"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// SuccessMessage is the fixed message of a successful response.
const SuccessMessage = "File processed successfully"

// Compose builds the response status and body for one invocation.
// out may be nil when the request failed before intake.
func Compose(out *pipeline.Outcome, err error) (int, map[string]any) {
	if err == nil && out != nil {
		body := map[string]any{
			"message":        SuccessMessage,
			"request_id":     out.RequestID,
			"text":           out.Text,
			"extracted_data": out.Record,
		}
		addRef(body, "ocr_text", out.OCRRef)
		addRef(body, "json_data", out.JSONRef)
		return http.StatusOK, body
	}
	if err == nil {
		err = common.NewAppError(common.KindInternal, "INTERNAL_ERROR", "no outcome", common.ErrInternal)
	}

	status := http.StatusInternalServerError
	if ae, ok := common.AsAppError(err); ok {
		status = ae.HTTPStatus()
	}
	body := map[string]any{
		"error": errorMessage(err),
		"kind":  string(common.KindOf(err)),
	}
	if out != nil && out.RequestID != "" {
		body["request_id"] = out.RequestID
	}
	if out != nil && out.OCRDone {
		body["text"] = out.Text
		addRef(body, "ocr_text", out.OCRRef)
	}
	if ae, ok := common.AsAppError(err); ok && ae.Kind == common.KindDecode {
		body["raw_response"] = ae.Raw
	}
	return status, body
}

// addRef sets "{prefix}_url" when a publisher is configured, otherwise
// "{prefix}_file"; either is null when the artifact could not be stored.
func addRef(body map[string]any, prefix string, ref *storage.Reference) {
	if ref == nil {
		body[prefix+"_url"] = nil
		return
	}
	if ref.Remote {
		body[prefix+"_url"] = nullable(ref.URL)
		return
	}
	body[prefix+"_file"] = nullable(ref.File)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// errorMessage hides internal details for unclassified failures.
func errorMessage(err error) string {
	ae, ok := common.AsAppError(err)
	if !ok || ae.Kind == common.KindInternal {
		return "internal error"
	}
	return ae.Message
}
