package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a file (typically a photo) recorded against a cart. Rows
// are removed with their cart.
type Attachment struct {
	ID         uuid.UUID `json:"id"`
	CartID     uuid.UUID `json:"cart_id"`
	Filename   string    `json:"filename"`
	Filepath   string    `json:"filepath"`
	UploadedAt time.Time `json:"uploaded_at"`
}
