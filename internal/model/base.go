package model

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the record is created without one.
// IDs are generated client-side so the schema stays portable across dialects.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
