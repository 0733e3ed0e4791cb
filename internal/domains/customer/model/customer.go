package model

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Colombian identity document types accepted at order intake.
var ValidDocumentTypes = []interface{}{"CC", "CE", "NIT", "PP"}

type Customer struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	FullName       string    `json:"full_name" db:"full_name"`
	Phone          string    `json:"phone" db:"phone"`
	DocumentType   string    `json:"document_type" db:"document_type"`
	DocumentNumber string    `json:"document_number" db:"document_number"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CustomerInput is the customer slice of the order intake request.
type CustomerInput struct {
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
}

func (c CustomerInput) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.DocumentType, validation.Required, validation.In(ValidDocumentTypes...)),
		validation.Field(&c.DocumentNumber, validation.Required, validation.Length(3, 30)),
	)
	if err != nil {
		return fmt.Errorf("invalid customer: %w", err)
	}
	return nil
}
