package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Experience is the candidate's experience in years. Clients send it either
// as a JSON number or a string, so it decodes from both.
type Experience string

// UnmarshalJSON accepts numbers and strings.
func (e *Experience) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Experience(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*e = Experience(n.String())
	return nil
}

func (e Experience) String() string {
	return string(e)
}

// Session is an interview-prep set owned by a user. Sessions are managed
// elsewhere; this service only reads them for prompt parameters.
type Session struct {
	ID            string     `json:"id" bson:"_id"`
	UserID        string     `json:"userId" bson:"userId"`
	Role          string     `json:"role" bson:"role"`
	Experience    Experience `json:"experience" bson:"experience"`
	TopicsToFocus string     `json:"topicsToFocus" bson:"topicsToFocus"`
	Description   string     `json:"description,omitempty" bson:"description,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
}
