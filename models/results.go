package models

import "time"

// PermissionValue is the effective value of one permission key.
type PermissionValue struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit,omitempty"`
}

// Permissions maps permission keys to their effective value.
type Permissions map[string]PermissionValue

// Enabled reports whether key is granted.
func (p Permissions) Enabled(key string) bool {
	return p[key].Enabled
}

// UnlimitedRemaining is reported as remaining quota when no cap applies.
const UnlimitedRemaining = -1

// Quota is the derived quota state of one action class for one member.
type Quota struct {
	Action      ActionClass `json:"action"`
	Max         int         `json:"max"`
	Unlimited   bool        `json:"unlimited"`
	Closed      bool        `json:"closed"` // window start lies in the future
	WindowStart time.Time   `json:"windowStart"`
}

// Allows reports whether another action fits next to count earlier ones.
func (q Quota) Allows(count int) bool {
	if q.Closed {
		return false
	}
	return q.Unlimited || count < q.Max
}

// Remaining returns how many actions are left after count.
func (q Quota) Remaining(count int) int {
	switch {
	case q.Closed:
		return 0
	case q.Unlimited:
		return UnlimitedRemaining
	case count >= q.Max:
		return 0
	default:
		return q.Max - count
	}
}

// SwipeResult is returned by the swipe processor.
type SwipeResult struct {
	Valid         bool           `json:"valid"`
	Value         int64          `json:"value"`
	Remaining     int            `json:"remaining"`
	NextStartTs   int64          `json:"nextStartTs,omitempty"` // unix millis
	SecondsToWait int64          `json:"secondsToWait,omitempty"`
	Mutual        bool           `json:"mutual"`
	PrevSwipe     *Flag          `json:"prevSwipe,omitempty"`
	RecipSwipe    *Flag          `json:"recipSwipe,omitempty"`
	FCM           DispatchResult `json:"fcm"`
}

// ViewResult is returned by RecordViewed.
type ViewResult struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status"`
}

const (
	ViewCreated   = "created"
	ViewUpdated   = "updated"
	ViewUnchanged = "unchanged"
)

// BlockResult is returned by block and unblock.
type BlockResult struct {
	Valid bool `json:"valid"`
}

// DeleteFlagResult carries the removed records, nil when absent.
type DeleteFlagResult struct {
	Result  *Flag `json:"result"`
	Result2 *Flag `json:"result2"`
}

// PushMessage is one delivery attempt to one device.
type PushMessage struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushReceipt is the outcome of a delivery attempt.
type PushReceipt struct {
	Token     string `json:"token"`
	Delivered bool   `json:"delivered"`
	MessageID string `json:"messageId,omitempty"`
}

// DispatchResult summarizes a fan-out to every device of a user.
type DispatchResult struct {
	Valid   bool          `json:"valid"`
	Reason  string        `json:"reason,omitempty"`
	Results []PushReceipt `json:"results"`
}

// RankEntry is one row of a ranking.
type RankEntry struct {
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
}

// InteractionEvent is published when an interaction concerns another user.
type InteractionEvent struct {
	Kind   string    `json:"kind"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Value  int64     `json:"value"`
	Mutual bool      `json:"mutual"`
	At     time.Time `json:"at"`
}

// Interaction event kinds
const (
	EventLike           = "like"
	EventMatch          = "match"
	EventFriendAccepted = "friend_accepted"
)
