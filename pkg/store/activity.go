package store

import (
	"fmt"
	"sync"
	"time"
)

const activityPrefix = "activity:"

// Activity counts what a user did in the chat. Message content is never
// stored.
type Activity struct {
	UserID      string    `json:"user_id"`
	Submissions int       `json:"submissions"`
	Answered    int       `json:"answered"`
	Failed      int       `json:"failed"`
	Documents   int       `json:"documents"`
	LastSeen    time.Time `json:"last_seen"`
}

// ActivityKey returns the key of a user's activity record.
func ActivityKey(userID string) string { return activityPrefix + userID }

var activityMu sync.Mutex

// RecordActivity applies fn to the user's record and saves it.
func (s *Store) RecordActivity(userID string, fn func(*Activity)) (Activity, error) {
	if userID == "" {
		return Activity{}, fmt.Errorf("record activity: empty user id")
	}
	activityMu.Lock()
	defer activityMu.Unlock()

	a := Activity{UserID: userID}
	if err := s.GetJSON(ActivityKey(userID), &a); err != nil && !IsNotFound(err) {
		return Activity{}, err
	}
	fn(&a)
	if err := s.PutJSON(ActivityKey(userID), a); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// GetActivity returns the user's record, zero-valued when there is none.
func (s *Store) GetActivity(userID string) (Activity, error) {
	a := Activity{UserID: userID}
	if err := s.GetJSON(ActivityKey(userID), &a); err != nil && !IsNotFound(err) {
		return Activity{}, err
	}
	return a, nil
}
