package whatsapp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TemplateMessage is one template send to a single recipient.
// BodyParameters fill the {{1}}..{{n}} placeholders of the template body in order.
type TemplateMessage struct {
	To             string
	TemplateName   string
	LanguageCode   string
	BodyParameters []string
}

type sendMessageRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendResponse is the Cloud API response to a message send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID            string `json:"id"`
		MessageStatus string `json:"message_status,omitempty"`
	} `json:"messages"`
}

// MessageID returns the provider id (wamid) of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}

	return r.Messages[0].ID
}

// MessageTemplate is a template as returned by the business account template listing.
type MessageTemplate struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Language   string              `json:"language"`
	Status     string              `json:"status"`
	Category   string              `json:"category"`
	Components []TemplateComponent `json:"components"`
}

// TemplateComponent is one component (HEADER, BODY, FOOTER, BUTTONS) of a template.
type TemplateComponent struct {
	Type    string          `json:"type"`
	Format  string          `json:"format,omitempty"`
	Text    string          `json:"text,omitempty"`
	Buttons json.RawMessage `json:"buttons,omitempty"`
	Example json.RawMessage `json:"example,omitempty"`
}

// BodyText returns the text of the BODY component, or "" when the template has none.
func (t *MessageTemplate) BodyText() string {
	for _, c := range t.Components {
		if strings.EqualFold(c.Type, "BODY") {
			return c.Text
		}
	}

	return ""
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([0-9]+|[a-z_][a-z0-9_]*)\s*\}\}`)

// CountPlaceholders returns the number of distinct {{n}} placeholders in text.
func CountPlaceholders(text string) int {
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}

	return len(seen)
}

type listTemplatesResponse struct {
	Data   []MessageTemplate `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

type apiErrorEnvelope struct {
	Error *APIError `json:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Graph API error codes that signal throttling or a temporary outage.
var retryableCodes = map[int]bool{
	1:      true, // API unknown
	2:      true, // API service
	4:      true, // application request limit
	80007:  true, // WABA rate limit
	130429: true, // throughput reached
	131016: true, // service unavailable
	131056: true, // pair rate limit
}

// Retryable reports whether sending again later may succeed.
func (e *APIError) Retryable() bool {
	return retryableCodes[e.Code] || e.StatusCode == 429 || e.StatusCode >= 500
}
