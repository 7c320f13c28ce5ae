package models

// Flag categories
const (
	CategoryLikeability   = "likeability"
	CategoryViewed        = "viewed"
	CategoryFriendRequest = "friend_request"
	CategoryBlock         = "block"
)

// Friend request states stored as the value of a friend_request flag
const (
	FriendRequested int64 = 1
	FriendAccepted  int64 = 2
)

// Swipe values after normalization
const (
	SwipeLike      int64 = 1
	SwipeSuperlike int64 = 2
)

// ActionClass is a rate-limited swipe action.
type ActionClass string

const (
	ActionPass      ActionClass = "pass"
	ActionLike      ActionClass = "like"
	ActionSuperlike ActionClass = "superlike"
)

// ClassifySwipe maps a normalized swipe value onto its action class.
func ClassifySwipe(value int64) ActionClass {
	switch {
	case value >= SwipeSuperlike:
		return ActionSuperlike
	case value >= SwipeLike:
		return ActionLike
	default:
		return ActionPass
	}
}

// Notification keys
const (
	NotifyBeenMatched    = "been_matched"
	NotifyBeenLiked      = "been_liked"
	NotifyBeenSuperliked = "been_superliked"
	NotifyFriendRequest  = "friend_request"
	NotifyFriendAccepted = "friend_accepted"
)

// Synthetic permission keys granted by role access flags
const (
	PermissionAppAccess   = "app_access"
	PermissionAdminAccess = "admin_access"
)

// DynamoDB tables
const (
	FlagsTable    = "Flags"
	MembersTable  = "Members"
	SettingsTable = "Settings"
)
