package services

import (
	"starmatch_server/models"
)

// PermissionService expands role sets into effective permissions using an
// injected catalog.
type PermissionService struct {
	Catalog models.PermissionCatalog
}

// NewPermissionService creates a resolver over catalog.
func NewPermissionService(catalog models.PermissionCatalog) *PermissionService {
	return &PermissionService{Catalog: catalog}
}

// Resolve returns the effective permission map for roleKeys. Every catalog key
// is present in the result; keys not granted by any role carry their catalog
// default. Unknown role keys are skipped.
func (ps *PermissionService) Resolve(roleKeys []string) models.Permissions {
	granted := make(models.Permissions)
	visited := make(map[string]bool)

	for _, key := range roleKeys {
		ps.collect(key, visited, granted)
	}

	out := make(models.Permissions, len(ps.Catalog.Permissions)+len(granted))
	for key, def := range ps.Catalog.Permissions {
		out[key] = models.PermissionValue{Limit: defaultLimit(def)}
	}
	for key, val := range granted {
		out[key] = val
	}
	return out
}

// collect adds the permissions of roleKey and its overrides to granted.
// visited holds every role already expanded, so cyclic overrides terminate.
func (ps *PermissionService) collect(roleKey string, visited map[string]bool, granted models.Permissions) {
	if visited[roleKey] {
		return
	}
	visited[roleKey] = true

	role, ok := ps.Catalog.Roles[roleKey]
	if !ok {
		return
	}

	for _, perm := range role.Permissions {
		ps.grant(granted, perm, role.Limits)
	}
	if role.AppAccess {
		granted[models.PermissionAppAccess] = models.PermissionValue{Enabled: true}
	}
	if role.AdminAccess {
		granted[models.PermissionAdminAccess] = models.PermissionValue{Enabled: true}
	}

	for _, parent := range role.Overrides {
		ps.collect(parent, visited, granted)
	}
}

// grant records perm once; a limit granted by several roles keeps the most
// generous value.
func (ps *PermissionService) grant(granted models.Permissions, perm string, limits map[string]int) {
	limit, hasLimit := limits[perm]
	if !hasLimit {
		limit = defaultLimit(ps.Catalog.Permissions[perm])
	}

	prev, seen := granted[perm]
	if seen && prev.Limit >= limit {
		return
	}
	granted[perm] = models.PermissionValue{Enabled: true, Limit: limit}
}

func defaultLimit(def models.PermissionDefinition) int {
	if def.Kind == models.PermissionLimit {
		return def.DefaultLimit
	}
	return 0
}
