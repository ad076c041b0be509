package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultImageMIME is assumed when an image arrives without a type.
const DefaultImageMIME = "image/jpeg"

// Image is an inline picture attached to a problem.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ParseDataURL decodes a "data:<mime>;base64,<payload>" URL. A bare base64
// payload without the data: prefix is accepted and typed as JPEG.
func ParseDataURL(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	mime := DefaultImageMIME
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidInput)
		}
		if !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: data url is not base64", ErrInvalidInput)
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		payload = data
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidInput, err)
	}
	return &Image{MIMEType: mime, Data: raw}, nil
}

// AgentRequest is one agent's view of a user problem. It is immutable once
// built.
type AgentRequest struct {
	Subject Subject
	Agent   AgentKind
	Input   string
	Image   *Image
}

// HasImage reports whether an image with content is attached.
func (r AgentRequest) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// Fingerprint is the cache key for the request. Only the presence of an
// image participates, not its bytes: two different images with the same
// text collide.
func (r AgentRequest) Fingerprint() string {
	img := "no_img"
	if r.HasImage() {
		img = "has_img"
	}
	return string(r.Subject) + "|" + string(r.Agent) + "|" + strings.TrimSpace(r.Input) + "|" + img
}
