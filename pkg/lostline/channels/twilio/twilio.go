// Package twilio implements the codec for Twilio's messaging webhook: the
// inbound form-encoded payload, the TwiML XML reply, and the optional
// request signature check.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// InboundMessage is the parsed webhook payload.
type InboundMessage struct {
	// Body is the message text.
	Body string

	// From is the channel address, e.g. "whatsapp:+15551234567".
	From string

	// ProfileName is the sender's display name, when present.
	ProfileName string

	// MediaURLs are the media references, in order (MediaUrl0..N).
	MediaURLs []string
}

// ParseWebhook decodes the form-encoded webhook request. It does not
// validate field presence beyond the form parse itself; the orchestrator
// rejects payloads without a sender.
func ParseWebhook(r *http.Request) (*InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parsing webhook form: %w", err)
	}

	msg := &InboundMessage{
		Body:        r.PostFormValue("Body"),
		From:        r.PostFormValue("From"),
		ProfileName: r.PostFormValue("ProfileName"),
	}

	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	for i := 0; i < numMedia; i++ {
		if u := r.PostFormValue(fmt.Sprintf("MediaUrl%d", i)); u != "" {
			msg.MediaURLs = append(msg.MediaURLs, u)
		}
	}
	return msg, nil
}

// messagingResponse is the TwiML reply document.
type messagingResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// RenderReply encodes the reply text as a TwiML messaging response.
func RenderReply(text string) ([]byte, error) {
	body, err := xml.Marshal(messagingResponse{Message: text})
	if err != nil {
		return nil, fmt.Errorf("encoding TwiML reply: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// ValidateSignature checks the X-Twilio-Signature header against the request
// URL and sorted POST parameters per Twilio's signing scheme.
func ValidateSignature(r *http.Request, authToken, publicURL string) bool {
	if err := r.ParseForm(); err != nil {
		return false
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(publicURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(r.PostForm.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got := r.Header.Get("X-Twilio-Signature")
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
