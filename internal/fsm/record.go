package fsm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/store"
)

// FromRecord decodes a stored session. A record that fails validation is an
// error; callers fall back to Default.
func FromRecord(rec store.SessionRecord) (Session, error) {
	s := Session{
		UserID:      rec.UserID,
		State:       State(rec.State),
		LastSection: rec.LastSection,
	}
	if s.LastSection == "" {
		s.LastSection = callback.SectionMain
	}
	raw := strings.TrimSpace(rec.TempData)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Temp); err != nil {
			return Default(rec.UserID), fmt.Errorf("%w: temp data: %v", ErrInvalidSession, err)
		}
	}
	if err := Validate(s); err != nil {
		return Default(rec.UserID), err
	}
	return s, nil
}

// Record encodes s for storage.
func (s Session) Record() (store.SessionRecord, error) {
	data, err := json.Marshal(s.Temp)
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("fsm: encode temp data: %w", err)
	}
	return store.SessionRecord{
		UserID:      s.UserID,
		State:       string(s.State),
		TempData:    string(data),
		LastSection: s.LastSection,
	}, nil
}
