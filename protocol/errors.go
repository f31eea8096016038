package protocol

import "fmt"

// IkeError carries the notification code that describes a wire-level
// failure. The demux turns it into an outbound notification when the
// offending packet was plaintext.
type IkeError NotificationType

func (e IkeError) Error() string {
	return fmt.Sprintf("IKE error: %s", NotificationType(e))
}

func (e IkeError) Notification() NotificationType {
	return NotificationType(e)
}

var (
	ErrInvalidSyntax       = IkeError(PAYLOAD_MALFORMED)
	ErrInvalidPayloadType  = IkeError(INVALID_PAYLOAD_TYPE)
	ErrInvalidCookie       = IkeError(INVALID_COOKIE)
	ErrInvalidFlags        = IkeError(INVALID_FLAGS)
	ErrInvalidMessageId    = IkeError(INVALID_MESSAGE_ID)
	ErrUnsupportedExchange = IkeError(UNSUPPORTED_EXCHANGE_TYPE)
)
