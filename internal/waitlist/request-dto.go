package waitlist

// JoinWaitlistRequest represents a request to join a session waitlist.
// EntrantID defaults to the authenticated user; parents and staff may join on behalf of a student.
type JoinWaitlistRequest struct {
	EntrantID string `json:"entrant_id,omitempty" binding:"omitempty,max=128"`
	Phone     string `json:"phone,omitempty" binding:"omitempty,max=32"`
	Email     string `json:"email,omitempty" binding:"omitempty,email,max=255"`
}

func (r JoinWaitlistRequest) contact() Contact {
	return Contact{Phone: r.Phone, Email: r.Email}
}

// RespondRequest carries the answer to an offer
type RespondRequest struct {
	Decision Decision `json:"decision" binding:"required,oneof=accept decline"`
}

// SMSWebhookRequest holds the Twilio form fields we read
type SMSWebhookRequest struct {
	From       string `form:"From" binding:"required"`
	Body       string `form:"Body"`
	MessageSid string `form:"MessageSid"`
}
