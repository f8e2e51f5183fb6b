package boundary

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// TimestampLayout is the layout of the timestamp in internal error objects.
const TimestampLayout = "2006-01-02T15:04:05"

var now = time.Now

// ErrorObject is the wire shape of a handled failure.
type ErrorObject struct {
	Error string `json:"error"`
}

// InternalErrorObject is the wire shape of an unexpected failure.
type InternalErrorObject struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
}

// WriteResult writes a prediction result as one JSON object and a newline.
func WriteResult(w io.Writer, res *domain.PredictionResult) error {
	return encode(w, res)
}

// WriteError writes the error object for err as one JSON object and a
// newline.
func WriteError(w io.Writer, err error) error {
	return encode(w, ErrorBody(err))
}

// ErrorBody returns the wire object for err. Classified errors carry their
// message; anything else is reported as unexpected with its stack.
func ErrorBody(err error) any {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternalUnexpected {
		return ErrorObject{Error: de.Message}
	}

	body := InternalErrorObject{
		Error:     "Unexpected error: " + err.Error(),
		Timestamp: now().Format(TimestampLayout),
	}
	if de != nil {
		body.Details = de.Stack
	}
	return body
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
