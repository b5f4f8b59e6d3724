package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Identifier names the contact address a code is issued to. Exactly one of
// Email and PhoneNumber is set.
type Identifier struct {
	Email       string `json:"email,omitempty"        validate:"omitempty,email,max=254"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,e164"`
}

func EmailIdentifier(email string) Identifier {
	return Identifier{Email: email}.Normalize()
}

// Normalize trims both fields and lower-cases the email.
func (id Identifier) Normalize() Identifier {
	return Identifier{
		Email:       strings.ToLower(strings.TrimSpace(id.Email)),
		PhoneNumber: strings.TrimSpace(id.PhoneNumber),
	}
}

func (id Identifier) Validate() error {
	hasEmail := id.Email != ""
	hasPhone := id.PhoneNumber != ""
	if hasEmail == hasPhone {
		return fmt.Errorf("%w: exactly one of email or phone_number is required", ErrValidation)
	}
	if err := validate.Struct(id); err != nil {
		if hasEmail {
			return fmt.Errorf("%w: invalid email", ErrValidation)
		}
		return fmt.Errorf("%w: phone_number must be E.164", ErrValidation)
	}
	return nil
}

func (id Identifier) IsEmail() bool {
	return id.Email != ""
}

// Key is the code store key for the identifier.
func (id Identifier) Key() string {
	if id.IsEmail() {
		return "email:" + id.Email
	}
	return "phone:" + id.PhoneNumber
}

func (id Identifier) Channel() Channel {
	if id.IsEmail() {
		return ChannelEmail
	}
	return ChannelSMS
}

func (id Identifier) Recipient() string {
	if id.IsEmail() {
		return id.Email
	}
	return id.PhoneNumber
}

func (id Identifier) String() string {
	return id.Key()
}
