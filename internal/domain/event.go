package domain

import "time"

type EventType string

const (
	EventDeliveryRequested EventType = "otp.delivery_requested"
	EventIdentityCreated   EventType = "identity.created"
)

type DeliveryRequested struct {
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	Content   string  `json:"content"`
}

type IdentityCreated struct {
	ID          int64     `json:"id"`
	Email       *string   `json:"email,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewIdentityCreated(i *Identity) IdentityCreated {
	return IdentityCreated{
		ID:          i.ID,
		Email:       i.Email,
		PhoneNumber: i.PhoneNumber,
		CreatedAt:   i.CreatedAt,
	}
}
