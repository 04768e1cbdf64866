package domain

import "fmt"

// Reason describes why a session, notification or command failed.
type Reason struct {
	Code        int    `json:"code"`
	Description string `json:"description,omitempty"`
}

// String implements fmt.Stringer.
func (r *Reason) String() string {
	if r == nil {
		return ""
	}
	if r.Description == "" {
		return fmt.Sprintf("code %d", r.Code)
	}
	return fmt.Sprintf("%s (code %d)", r.Description, r.Code)
}

// NewReason builds a reason.
func NewReason(code int, description string) *Reason {
	return &Reason{Code: code, Description: description}
}

// Reason codes.
const (
	ReasonGeneralError = 1

	ReasonSessionError                       = 11
	ReasonSessionRegistrationError           = 12
	ReasonSessionAuthenticationFailed        = 13
	ReasonSessionUnregisterFailed            = 14
	ReasonSessionInvalidActionForState       = 15
	ReasonSessionNegotiationTimeout          = 16
	ReasonSessionNegotiationInvalidOptions   = 17
	ReasonSessionInvalidSessionModeRequested = 18

	ReasonValidationError           = 21
	ReasonValidationEmptyDocument   = 22
	ReasonValidationInvalidResource = 23

	ReasonAuthorizationError              = 31
	ReasonAuthorizationUnauthorizedSender = 32

	ReasonRoutingError               = 41
	ReasonRoutingDestinationNotFound = 42
	ReasonRoutingGatewayNotSupported = 43
	ReasonRoutingHopLimitExceeded    = 44

	ReasonDispatchError = 51

	ReasonCommandProcessingError      = 61
	ReasonCommandResourceNotSupported = 62
	ReasonCommandMethodNotSupported   = 63
	ReasonCommandInvalidArgument      = 64
	ReasonCommandInvalidSessionMode   = 65
	ReasonCommandNotAllowed           = 66
	ReasonCommandResourceNotFound     = 67

	ReasonMessageProcessingError        = 71
	ReasonMessageUnsupportedContentType = 72
)
