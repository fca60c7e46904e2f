package payload

import "encoding/json"

// Response is the worker's reply shape. StatusCode follows HTTP semantics:
// 200 on success, 400 for invocation errors, 500 for processing failures.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// ResponseBody carries the outcome of one invocation.
type ResponseBody struct {
	Success        bool    `json:"success"`
	ImageID        int64   `json:"imageId,omitempty"`
	SessionID      string  `json:"sessionId,omitempty"`
	Result         any     `json:"result,omitempty"`
	ProcessingTime float64 `json:"processingTimeSeconds"`
	Error          string  `json:"error,omitempty"`
}

// Success builds a 200 response.
func Success(imageID int64, sessionID string, result any, elapsed float64) Response {
	return Response{
		StatusCode: 200,
		Body: ResponseBody{
			Success:        true,
			ImageID:        imageID,
			SessionID:      sessionID,
			Result:         result,
			ProcessingTime: elapsed,
		},
	}
}

// Failure builds an error response with the given status code.
func Failure(code int, imageID int64, sessionID string, errMsg string, elapsed float64) Response {
	return Response{
		StatusCode: code,
		Body: ResponseBody{
			Success:        false,
			ImageID:        imageID,
			SessionID:      sessionID,
			Error:          errMsg,
			ProcessingTime: elapsed,
		},
	}
}

// JSON renders the response for transport. Marshal errors cannot occur for
// this shape with JSON-safe results, but fall back to a minimal object.
func (r Response) JSON() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"statusCode":500,"body":{"success":false,"error":"failed to encode response"}}`)
	}
	return b
}
