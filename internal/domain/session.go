package domain

import "time"

// Session attribute keys used by the handlers.
const (
	AttrFields = "fields"
)

// ClientSession is the scratch state of one chat conversation. It never owns
// an order; orders are re-resolved from every inbound message.
type ClientSession struct {
	ClientID   string            `json:"client_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Address    string            `json:"address,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewClientSession returns an empty session created now.
func NewClientSession(clientID string) *ClientSession {
	return &ClientSession{
		ClientID:   clientID,
		CreatedAt:  time.Now(),
		Attributes: make(map[string]string),
	}
}

// Attribute returns a session attribute, or "" if unset.
func (s *ClientSession) Attribute(key string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[key]
}

// PendingFields returns the order fields the conversation is collecting an
// address for, if any.
func (s *ClientSession) PendingFields() (Fields, bool) {
	encoded := s.Attribute(AttrFields)
	if encoded == "" {
		return nil, false
	}
	fields, err := ParseFields(encoded)
	if err != nil {
		return nil, false
	}
	return fields, true
}
