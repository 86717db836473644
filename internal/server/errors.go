package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/slpkserve/internal/logger"
)

// jsonMarshalFunc allows swapping out json.Marshal for testing.
var jsonMarshalFunc = json.Marshal

// ErrorDetail represents the inner structure of a JSON error response.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponseJSON represents the full JSON error response body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

// defaultHTMLMessages maps HTTP status codes to their default HTML messages.
var defaultHTMLMessages = map[int]struct {
	Title   string
	Heading string
	Message string
}{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an internal error and was unable to complete your request.",
	},
	http.StatusMethodNotAllowed: {
		Title:   "405 Method Not Allowed",
		Heading: "Method Not Allowed",
		Message: "The method is not allowed for the requested resource.",
	},
	http.StatusTooManyRequests: {
		Title:   "429 Too Many Requests",
		Heading: "Too Many Requests",
		Message: "The request rate limit has been exceeded. Retry later.",
	},
}

// PrefersJSON reports whether the most preferred media type in an Accept
// header value is application/json. Ties on q-value go to the more specific
// type, then to the earlier entry.
func PrefersJSON(acceptHeaderValue string) bool {
	if acceptHeaderValue == "" {
		return false
	}

	type offer struct {
		mediaType string
		q         float64
		specific  bool
		order     int
	}
	var offers []offer

	for i, partStr := range strings.Split(acceptHeaderValue, ",") {
		partStr = strings.TrimSpace(partStr)
		mediaType := partStr
		qValue := 1.0

		if idx := strings.Index(partStr, ";"); idx != -1 {
			mediaType = strings.TrimSpace(partStr[:idx])
			for _, param := range strings.Split(partStr[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(param, "q=") {
					continue
				}
				if q, err := strconv.ParseFloat(param[2:], 64); err == nil && q >= 0 && q <= 1 {
					qValue = q
				} else {
					qValue = 0
				}
				break
			}
		}

		// q=0 means "not acceptable" (RFC 7231 section 5.3.1).
		if qValue > 0 {
			offers = append(offers, offer{
				mediaType: strings.ToLower(mediaType),
				q:         qValue,
				specific:  !strings.HasSuffix(mediaType, "/*") && mediaType != "*/*",
				order:     i,
			})
		}
	}
	if len(offers) == 0 {
		return false
	}

	sort.Slice(offers, func(i, j int) bool {
		if offers[i].q != offers[j].q {
			return offers[i].q > offers[j].q
		}
		if offers[i].specific != offers[j].specific {
			return offers[i].specific
		}
		return offers[i].order < offers[j].order
	})
	return offers[0].mediaType == "application/json"
}

// WriteErrorResponse writes a default error page for statusCode, as JSON when
// the Accept header prefers it and as HTML otherwise.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, acceptHeaderValue string, detailMessage string, log *logger.Logger) error {
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "Error"
	}

	var body []byte
	var contentType string
	jsonMarshalFailed := false

	shouldSendJSON := PrefersJSON(acceptHeaderValue)
	if shouldSendJSON {
		contentType = "application/json; charset=utf-8"
		var marshalErr error
		body, marshalErr = jsonMarshalFunc(ErrorResponseJSON{
			Error: ErrorDetail{StatusCode: statusCode, Message: statusText, Detail: detailMessage},
		})
		if marshalErr != nil {
			log.Error("Failed to marshal JSON error response, falling back to HTML.", logger.LogFields{"error": marshalErr.Error(), "status_code": statusCode})
			jsonMarshalFailed = true
		}
	}

	if !shouldSendJSON || jsonMarshalFailed {
		contentType = "text/html; charset=utf-8"
		title := fmt.Sprintf("%d %s", statusCode, statusText)
		heading := statusText
		message := "The server encountered an error processing your request."
		msgData, known := defaultHTMLMessages[statusCode]
		if known {
			title, heading, message = msgData.Title, msgData.Heading, msgData.Message
		}
		if detailMessage != "" {
			if known {
				message += " " + html.EscapeString(detailMessage)
			} else {
				message = html.EscapeString(detailMessage)
			}
		}
		body = GenerateHTMLResponseBody(title, heading, message)
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to send error response body (status %d): %w", statusCode, err)
	}
	return nil
}

// SendDefaultErrorResponse is WriteErrorResponse with the Accept header taken
// from req, which may be nil. Write failures are logged.
func SendDefaultErrorResponse(w http.ResponseWriter, statusCode int, req *http.Request, optionalDetail string, log *logger.Logger) {
	accept := ""
	if req != nil {
		accept = req.Header.Get("Accept")
	}
	if err := WriteErrorResponse(w, statusCode, accept, optionalDetail, log); err != nil {
		log.Warn("Failed to write error response", logger.LogFields{"error": err.Error(), "status_code": statusCode})
	}
}

// GenerateHTMLResponseBody creates a simple HTML error page. message is
// inserted as-is and must already be escaped.
func GenerateHTMLResponseBody(title, heading, message string) []byte {
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(title), html.EscapeString(heading), message))
}
