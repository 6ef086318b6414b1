package notification

// Outcome records what happened on one channel for one recipient.
// Only OutcomeSent counts as delivered.
type Outcome string

const (
	OutcomeSent               Outcome = "sent"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeDisabled           Outcome = "disabled"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeNotConfigured      Outcome = "not_configured"
	OutcomeTemplateMissing    Outcome = "template_missing"
	OutcomeNoAddress          Outcome = "no_address"
	OutcomeInvalidDestination Outcome = "invalid_destination"
	OutcomeTransportError     Outcome = "transport_error"
	OutcomeFault              Outcome = "fault"
)

// Delivered reports whether the channel produced a new delivery.
func (o Outcome) Delivered() bool {
	return o == OutcomeSent
}

// Result is the per-channel outcome of one Notify call.
type Result struct {
	InApp Outcome `json:"in_app"`
	Email Outcome `json:"email"`
}

// InAppSent reports whether a new in-app row was created.
func (r Result) InAppSent() bool { return r.InApp.Delivered() }

// EmailSent reports whether the outbound message was accepted by the transport.
func (r Result) EmailSent() bool { return r.Email.Delivered() }

// Any reports whether at least one channel delivered.
func (r Result) Any() bool { return r.InAppSent() || r.EmailSent() }
