package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"starmatch_server/models"
	"starmatch_server/utils"
)

// UserDirectory serves the member records the engine reads and the quota
// window starts it advances.
type UserDirectory interface {
	// GetMember returns the member or ErrUserNotFound.
	GetMember(ctx context.Context, userID string) (models.Member, error)

	// AdvanceWindowStart moves the window start of action to now+interval,
	// unless the stored start already lies after now, in which case the
	// stored start is kept. The effective start is returned.
	AdvanceWindowStart(ctx context.Context, userID string, action models.ActionClass, interval time.Duration, now time.Time) (time.Time, error)
}

// InMemoryDirectory is a UserDirectory backed by a map.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]models.Member
}

func NewInMemoryDirectory(members ...models.Member) *InMemoryDirectory {
	d := &InMemoryDirectory{members: make(map[string]models.Member)}
	for _, m := range members {
		d.members[m.UserID] = m
	}
	return d
}

// Put inserts or replaces a member.
func (d *InMemoryDirectory) Put(m models.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.UserID] = m
}

func (d *InMemoryDirectory) GetMember(_ context.Context, userID string) (models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[userID]
	if !ok {
		return models.Member{}, ErrUserNotFound
	}
	return m, nil
}

func (d *InMemoryDirectory) AdvanceWindowStart(_ context.Context, userID string, action models.ActionClass, interval time.Duration, now time.Time) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.members[userID]
	if !ok {
		return time.Time{}, ErrUserNotFound
	}
	if current := m.WindowStart(action); current.After(now) {
		return current, nil
	}

	next := now.Add(interval)
	switch action {
	case models.ActionLike:
		m.LikeStartTs = next.UnixMilli()
	case models.ActionSuperlike:
		m.SuperlikeStartTs = next.UnixMilli()
	default:
		return time.Time{}, fmt.Errorf("action %q has no window", action)
	}
	d.members[userID] = m
	return m.WindowStart(action), nil
}

// DynamoDirectory reads members from the Members table.
type DynamoDirectory struct {
	Dynamo *DynamoService
	Table  string
}

func NewDynamoDirectory(dynamo *DynamoService, table string) *DynamoDirectory {
	if table == "" {
		table = models.MembersTable
	}
	return &DynamoDirectory{Dynamo: dynamo, Table: table}
}

func memberKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"userId": utils.S(userID)}
}

func (d *DynamoDirectory) GetMember(ctx context.Context, userID string) (models.Member, error) {
	item, err := d.Dynamo.GetItem(ctx, d.Table, memberKey(userID))
	if err != nil {
		return models.Member{}, err
	}
	if item == nil {
		return models.Member{}, ErrUserNotFound
	}

	var m models.Member
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return models.Member{}, fmt.Errorf("failed to unmarshal member %s: %w", userID, err)
	}
	return m, nil
}

// AdvanceWindowStart uses a conditional update so that two concurrent
// exhaustions of the same window advance it only once.
func (d *DynamoDirectory) AdvanceWindowStart(ctx context.Context, userID string, action models.ActionClass, interval time.Duration, now time.Time) (time.Time, error) {
	attr := models.WindowStartAttribute(action)
	if attr == "" {
		return time.Time{}, fmt.Errorf("action %q has no window", action)
	}

	next := now.Add(interval).UnixMilli()
	updated, err := d.Dynamo.UpdateItem(ctx, d.Table, memberKey(userID),
		"SET #start = :next",
		map[string]string{"#start": attr},
		map[string]types.AttributeValue{
			":next": utils.N(next),
			":now":  utils.N(now.UnixMilli()),
		},
		"attribute_exists(userId) AND (attribute_not_exists(#start) OR #start <= :now)",
	)
	if err == nil {
		return time.UnixMilli(utils.ExtractInt64(updated, attr)).UTC(), nil
	}
	if !IsConditionFailed(err) {
		return time.Time{}, err
	}

	// Either the member is gone or another request advanced the window first.
	m, getErr := d.GetMember(ctx, userID)
	if getErr != nil {
		return time.Time{}, getErr
	}
	d.Dynamo.Log.Debug().Str("userId", userID).Str("action", string(action)).Msg("window already advanced")
	return m.WindowStart(action), nil
}

var (
	_ UserDirectory = (*InMemoryDirectory)(nil)
	_ UserDirectory = (*DynamoDirectory)(nil)
)
