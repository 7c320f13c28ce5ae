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

// SettingsProvider serves the role catalog and swipe tuning.
type SettingsProvider interface {
	Settings(ctx context.Context) (models.Settings, error)
}

// StaticSettings serves a fixed document.
type StaticSettings struct {
	Value models.Settings
}

func (s StaticSettings) Settings(context.Context) (models.Settings, error) {
	return s.Value, nil
}

// DynamoSettingsProvider loads the swipe document from the Settings table and
// caches it for TTL. A missing document falls back to models.DefaultSettings.
type DynamoSettingsProvider struct {
	Dynamo *DynamoService
	Table  string
	TTL    time.Duration

	mu       sync.Mutex
	cached   models.Settings
	loadedAt time.Time
}

func NewDynamoSettingsProvider(dynamo *DynamoService, table string, ttl time.Duration) *DynamoSettingsProvider {
	if table == "" {
		table = models.SettingsTable
	}
	return &DynamoSettingsProvider{Dynamo: dynamo, Table: table, TTL: ttl}
}

func (p *DynamoSettingsProvider) Settings(ctx context.Context) (models.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loadedAt.IsZero() && time.Since(p.loadedAt) < p.TTL {
		return p.cached, nil
	}

	key := map[string]types.AttributeValue{"settingsKey": utils.S(models.SwipeSettingsKey)}
	item, err := p.Dynamo.GetItem(ctx, p.Table, key)
	if err != nil {
		if !p.loadedAt.IsZero() {
			p.Dynamo.Log.Warn().Err(err).Msg("settings reload failed, serving cached copy")
			return p.cached, nil
		}
		return models.Settings{}, err
	}

	settings := models.DefaultSettings()
	if item != nil {
		var stored models.Settings
		if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
			return models.Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
		settings = withDefaults(stored)
	} else {
		p.Dynamo.Log.Info().Str("table", p.Table).Msg("no settings document, using defaults")
	}

	p.cached = settings
	p.loadedAt = time.Now()
	return settings, nil
}

// withDefaults fills unset fields of a stored document.
func withDefaults(s models.Settings) models.Settings {
	def := models.DefaultSettings()
	if len(s.Catalog.Roles) == 0 {
		s.Catalog = def.Catalog
	}
	if s.ResetIntervalHours <= 0 {
		s.ResetIntervalHours = def.ResetIntervalHours
	}
	if s.LikeabilityLookbackDays <= 0 {
		s.LikeabilityLookbackDays = def.LikeabilityLookbackDays
	}
	if s.Notifications == nil {
		s.Notifications = def.Notifications
	}
	return s
}
