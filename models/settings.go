package models

import "time"

// RoleDefinition describes one role of the catalog. A role inherits the
// permissions of every role listed in Overrides.
type RoleDefinition struct {
	Key         string         `dynamodbav:"key" json:"key"`
	Permissions []string       `dynamodbav:"permissions,omitempty" json:"permissions,omitempty"`
	Limits      map[string]int `dynamodbav:"limits,omitempty" json:"limits,omitempty"`
	Overrides   []string       `dynamodbav:"overrides,omitempty" json:"overrides,omitempty"`
	AppAccess   bool           `dynamodbav:"appAccess" json:"appAccess"`
	AdminAccess bool           `dynamodbav:"adminAccess" json:"adminAccess"`
}

// PermissionKind distinguishes on/off permissions from numeric limits.
type PermissionKind string

const (
	PermissionBoolean PermissionKind = "boolean"
	PermissionLimit   PermissionKind = "int"
)

// PermissionDefinition is an entry of the permission-limit catalog.
type PermissionDefinition struct {
	Key          string         `dynamodbav:"key" json:"key"`
	Kind         PermissionKind `dynamodbav:"kind" json:"kind"`
	DefaultLimit int            `dynamodbav:"defaultLimit,omitempty" json:"defaultLimit,omitempty"`
}

// PermissionCatalog is the injected role and permission catalog.
type PermissionCatalog struct {
	Roles       map[string]RoleDefinition       `dynamodbav:"roles" json:"roles"`
	Permissions map[string]PermissionDefinition `dynamodbav:"permissions" json:"permissions"`
}

// NotificationTemplate is the default copy for a notification key.
type NotificationTemplate struct {
	Title string `dynamodbav:"title" json:"title"`
	Body  string `dynamodbav:"body" json:"body"`
}

// Settings is the document served by the settings provider.
type Settings struct {
	SettingsKey             string                          `dynamodbav:"settingsKey" json:"settingsKey"` // Partition Key
	Catalog                 PermissionCatalog               `dynamodbav:"catalog" json:"catalog"`
	MinPassValue            int64                           `dynamodbav:"minPassValue" json:"minPassValue"`
	ResetIntervalHours      int                             `dynamodbav:"resetIntervalHours" json:"resetIntervalHours"`
	PaidRoles               []string                        `dynamodbav:"paidRoles,omitempty" json:"paidRoles,omitempty"`
	Notifications           map[string]NotificationTemplate `dynamodbav:"notifications,omitempty" json:"notifications,omitempty"`
	LikeabilityLookbackDays int                             `dynamodbav:"likeabilityLookbackDays" json:"likeabilityLookbackDays"`
}

// SwipeSettingsKey is the partition key of the swipe settings document.
const SwipeSettingsKey = "swipe"

// ResetInterval returns the quota window length.
func (s Settings) ResetInterval() time.Duration {
	return time.Duration(s.ResetIntervalHours) * time.Hour
}

// IsPaid reports whether any of roles is a paid-tier role.
func (s Settings) IsPaid(roles []string) bool {
	for _, r := range roles {
		for _, p := range s.PaidRoles {
			if r == p {
				return true
			}
		}
	}
	return false
}

// DefaultSettings returns the settings used when no document is stored.
func DefaultSettings() Settings {
	limit := func(key string, def int) PermissionDefinition {
		return PermissionDefinition{Key: key, Kind: PermissionLimit, DefaultLimit: def}
	}
	return Settings{
		SettingsKey: SwipeSettingsKey,
		Catalog: PermissionCatalog{
			Roles: map[string]RoleDefinition{
				"active": {
					Key:         "active",
					Permissions: []string{"basic_swipe_like", "basic_swipe_superstar"},
					Limits:      map[string]int{"basic_swipe_like": 25, "basic_swipe_superstar": 1},
					AppAccess:   true,
				},
				"extended": {
					Key:         "extended",
					Permissions: []string{"extended_swipe_like", "extended_swipe_superstar"},
					Limits:      map[string]int{"extended_swipe_like": 100, "extended_swipe_superstar": 5},
					Overrides:   []string{"active"},
				},
				"premium": {
					Key:         "premium",
					Permissions: []string{"premium_swipe_like", "premium_swipe_superstar"},
					Limits:      map[string]int{"premium_swipe_like": 500, "premium_swipe_superstar": 20},
					Overrides:   []string{"extended"},
				},
				"admin": {
					Key:         "admin",
					Overrides:   []string{"premium"},
					AdminAccess: true,
				},
			},
			Permissions: map[string]PermissionDefinition{
				"basic_swipe_like":         limit("basic_swipe_like", 25),
				"extended_swipe_like":      limit("extended_swipe_like", 100),
				"premium_swipe_like":       limit("premium_swipe_like", 500),
				"basic_swipe_superstar":    limit("basic_swipe_superstar", 1),
				"extended_swipe_superstar": limit("extended_swipe_superstar", 5),
				"premium_swipe_superstar":  limit("premium_swipe_superstar", 20),
			},
		},
		MinPassValue:       -3,
		ResetIntervalHours: 24,
		PaidRoles:          []string{"extended", "premium"},
		Notifications: map[string]NotificationTemplate{
			NotifyBeenMatched:    {Title: "It's a match!", Body: "You both liked each other."},
			NotifyBeenLiked:      {Title: "Someone likes you", Body: "Swipe to find out who."},
			NotifyBeenSuperliked: {Title: "You got a superstar", Body: "Someone really likes you."},
			NotifyFriendRequest:  {Title: "New friend request", Body: "Someone wants to connect."},
			NotifyFriendAccepted: {Title: "Friend request accepted", Body: "You are now connected."},
		},
		LikeabilityLookbackDays: 30,
	}
}
