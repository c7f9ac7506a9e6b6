package approval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
)

// Changes is the payload of a request. Each approval type has its own variant and
// only that variant's fields can reach the machine.
type Changes interface {
	Type() Type
	Validate() error
	// NewSequence returns the sequence the change would set, if any.
	NewSequence() (string, bool)
	sealed()
}

// CreationChanges confirms a newly created machine, optionally completing its fields.
type CreationChanges struct {
	SoID         string                 `json:"so_id,omitempty"`
	Location     string                 `json:"location,omitempty"`
	DispatchDate string                 `json:"dispatch_date,omitempty"`
	Sequence     string                 `json:"sequence,omitempty"`
	AutoSequence bool                   `json:"auto_sequence,omitempty"`
	Images       []string               `json:"images,omitempty"`
	Documents    []string               `json:"documents,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EditChanges patches an existing machine. Nil fields are left untouched; a nil value
// inside Metadata removes that key.
type EditChanges struct {
	SoID         *string                `json:"so_id,omitempty"`
	Location     *string                `json:"location,omitempty"`
	DispatchDate *string                `json:"dispatch_date,omitempty"`
	Sequence     *string                `json:"sequence,omitempty"`
	Images       *[]string              `json:"images,omitempty"`
	Documents    *[]string              `json:"documents,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// DeletionChanges removes the machine once approved.
type DeletionChanges struct {
	Reason string `json:"reason,omitempty"`
}

func (CreationChanges) Type() Type { return TypeCreation }
func (EditChanges) Type() Type     { return TypeEdit }
func (DeletionChanges) Type() Type { return TypeDeletion }

func (CreationChanges) sealed() {}
func (EditChanges) sealed()     {}
func (DeletionChanges) sealed() {}

func (c CreationChanges) Validate() error {
	if err := validateSoID(c.SoID); err != nil {
		return err
	}
	if err := validateDate(c.DispatchDate); err != nil {
		return err
	}
	if c.AutoSequence && strings.TrimSpace(c.Sequence) != "" {
		return apperror.Validation("sequence and auto_sequence are mutually exclusive")
	}
	return nil
}

func (c EditChanges) Validate() error {
	if c.SoID == nil && c.Location == nil && c.DispatchDate == nil && c.Sequence == nil &&
		c.Images == nil && c.Documents == nil && len(c.Metadata) == 0 {
		return apperror.Validation("edit request must change at least one field")
	}
	if c.SoID != nil {
		if err := validateSoID(*c.SoID); err != nil {
			return err
		}
	}
	if c.DispatchDate != nil {
		if err := validateDate(*c.DispatchDate); err != nil {
			return err
		}
	}
	if c.Sequence != nil && strings.TrimSpace(*c.Sequence) == "" {
		return apperror.Validation("sequence must not be blank")
	}
	return nil
}

func (DeletionChanges) Validate() error { return nil }

func (c CreationChanges) NewSequence() (string, bool) {
	s := strings.TrimSpace(c.Sequence)
	return s, s != ""
}

func (c EditChanges) NewSequence() (string, bool) {
	if c.Sequence == nil {
		return "", false
	}
	return strings.TrimSpace(*c.Sequence), true
}

func (DeletionChanges) NewSequence() (string, bool) { return "", false }

// Decode parses raw as the variant for t. Unknown fields are rejected so a request
// cannot smuggle in mutations its type does not allow.
func Decode(t Type, raw []byte) (Changes, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var c Changes
	var err error
	switch t {
	case TypeCreation:
		var v CreationChanges
		err = strictUnmarshal(raw, &v)
		c = v
	case TypeEdit:
		var v EditChanges
		err = strictUnmarshal(raw, &v)
		c = v
	case TypeDeletion:
		var v DeletionChanges
		err = strictUnmarshal(raw, &v)
		c = v
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown approval type %q", t))
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindValidation, fmt.Sprintf("invalid changes for %s request", t))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode serialises c for storage.
func Encode(c Changes) (datatypes.JSON, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode changes: %w", err)
	}
	return datatypes.JSON(data), nil
}

func strictUnmarshal(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WithSequence returns c with its proposed sequence replaced by seq. A creation
// loses its auto_sequence flag. Deletions carry no sequence and report false.
func WithSequence(c Changes, seq string) (Changes, bool) {
	switch v := c.(type) {
	case CreationChanges:
		v.Sequence, v.AutoSequence = seq, false
		return v, true
	case EditChanges:
		v.Sequence = &seq
		return v, true
	default:
		return c, false
	}
}

// Outcome describes what Apply did to the machine.
type Outcome struct {
	Delete          bool
	SequenceChanged bool
}

// Apply merges c into m. It mutates m in memory only; persisting is the caller's job.
func Apply(c Changes, m *model.Machine) (Outcome, error) {
	var out Outcome
	switch v := c.(type) {
	case CreationChanges:
		if v.SoID != "" {
			id, _ := uuid.Parse(v.SoID)
			m.SoID = &id
		}
		if v.Location != "" {
			m.Location = v.Location
		}
		if v.DispatchDate != "" {
			d, _ := time.Parse(model.DateLayout, v.DispatchDate)
			m.DispatchDate = &d
		}
		if seq, ok := v.NewSequence(); ok && seq != m.Sequence {
			m.Sequence = seq
			m.SequenceNumber = nil
			m.SequenceConfigID = nil
			out.SequenceChanged = true
		}
		if v.Images != nil {
			m.Images = model.JSONStrings(v.Images)
		}
		if v.Documents != nil {
			m.Documents = model.JSONStrings(v.Documents)
		}
		mergeMetadata(m, v.Metadata)
	case EditChanges:
		if v.SoID != nil {
			if *v.SoID == "" {
				m.SoID = nil
			} else {
				id, _ := uuid.Parse(*v.SoID)
				m.SoID = &id
			}
		}
		if v.Location != nil {
			m.Location = *v.Location
		}
		if v.DispatchDate != nil {
			if *v.DispatchDate == "" {
				m.DispatchDate = nil
			} else {
				d, _ := time.Parse(model.DateLayout, *v.DispatchDate)
				m.DispatchDate = &d
			}
		}
		if seq, ok := v.NewSequence(); ok && seq != m.Sequence {
			m.Sequence = seq
			m.SequenceNumber = nil
			m.SequenceConfigID = nil
			out.SequenceChanged = true
		}
		if v.Images != nil {
			m.Images = model.JSONStrings(*v.Images)
		}
		if v.Documents != nil {
			m.Documents = model.JSONStrings(*v.Documents)
		}
		mergeMetadata(m, v.Metadata)
	case DeletionChanges:
		out.Delete = true
	default:
		return out, fmt.Errorf("unsupported changes type %T", c)
	}
	return out, nil
}

func mergeMetadata(m *model.Machine, patch map[string]interface{}) {
	if len(patch) == 0 {
		return
	}
	if m.Metadata == nil {
		m.Metadata = datatypes.JSONMap{}
	}
	for k, v := range patch {
		if v == nil {
			delete(m.Metadata, k)
			continue
		}
		m.Metadata[k] = v
	}
}

func validateSoID(s string) error {
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return apperror.Validation("so_id must be a UUID")
	}
	return nil
}

func validateDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(model.DateLayout, s); err != nil {
		return apperror.Validation("dispatch_date must be formatted YYYY-MM-DD")
	}
	return nil
}
