// Package chat validates incoming chat messages and downloads their image attachments.
package chat

import (
	"strings"

	"github.com/rossigee/veo-video-proxy/pkg/types"
)

// User-visible rejection messages.
const (
	MsgEmptyMessage      = "message must contain text and/or an image"
	MsgTooManyAttachment = "only a single image attachment is supported"
	MsgUnsupportedType   = "you can only send text and/or an image"
	MsgMissingURL        = "attachment url is required"
)

// RejectionError is a message that can not be turned into a generation job.
// Message is safe to show to the end user.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// ValidateMessage accepts text, a single image attachment, or both.
func ValidateMessage(text string, attachments []types.Attachment) error {
	switch {
	case len(attachments) > 1:
		return &RejectionError{Message: MsgTooManyAttachment}
	case len(attachments) == 1:
		if !IsImage(attachments[0].ContentType) {
			return &RejectionError{Message: MsgUnsupportedType}
		}
		if strings.TrimSpace(attachments[0].URL) == "" {
			return &RejectionError{Message: MsgMissingURL}
		}
	case strings.TrimSpace(text) == "":
		return &RejectionError{Message: MsgEmptyMessage}
	}
	return nil
}

// IsImage reports whether contentType names an image.
func IsImage(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "image")
}
