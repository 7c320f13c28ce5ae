package models

import "time"

// Member is the slice of a user record the swipe engine needs.
type Member struct {
	UserID            string          `dynamodbav:"userId" json:"userId"` // Partition Key
	Roles             []string        `dynamodbav:"roles,omitempty" json:"roles,omitempty"`
	Active            bool            `dynamodbav:"active" json:"active"`
	DeviceTokens      []string        `dynamodbav:"deviceTokens,omitempty" json:"deviceTokens,omitempty"`
	NotificationPrefs map[string]bool `dynamodbav:"notificationPrefs,omitempty" json:"notificationPrefs,omitempty"`
	LikeStartTs       int64           `dynamodbav:"likeStartTs,omitempty" json:"likeStartTs,omitempty"`           // unix millis
	SuperlikeStartTs  int64           `dynamodbav:"superlikeStartTs,omitempty" json:"superlikeStartTs,omitempty"` // unix millis
}

// WindowStartAttribute names the stored window start for an action class.
// Passes have no stored window.
func WindowStartAttribute(action ActionClass) string {
	switch action {
	case ActionLike:
		return "likeStartTs"
	case ActionSuperlike:
		return "superlikeStartTs"
	default:
		return ""
	}
}

// WindowStart returns the stored window start for the action, or the zero
// time when none is set.
func (m Member) WindowStart(action ActionClass) time.Time {
	var ms int64
	switch action {
	case ActionLike:
		ms = m.LikeStartTs
	case ActionSuperlike:
		ms = m.SuperlikeStartTs
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NotifyEnabled reports whether the member accepts notifications for key.
// Keys without an explicit preference are enabled.
func (m Member) NotifyEnabled(key string) bool {
	enabled, ok := m.NotificationPrefs[key]
	return !ok || enabled
}
