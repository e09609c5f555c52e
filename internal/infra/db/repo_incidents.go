package db

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"incidentproxy/internal/domain"

	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("incident database unavailable")

// IncidentRepository persists accepted incidents in the secondary
// store used by replay's wide-range search and by /statistics.
type IncidentRepository struct {
	db *gorm.DB
}

func NewIncidentRepository(db *gorm.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Insert stores an incident. A conflicting (provider, unique_string)
// pair yields domain.ErrDuplicateIncident.
func (r *IncidentRepository) Insert(ctx context.Context, incident domain.Incident) error {
	if r.db == nil {
		return errDBUnavailable
	}
	payload, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	model := IncidentModel{
		Provider:     incident.ProviderInfo.Name,
		UniqueString: incident.UniqueString,
		Call:         incident.Call,
		Pushed:       incident.ProviderInfo.Pushed,
		IncidentJSON: payload,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateIncident
		}
		return err
	}
	return nil
}

// Exists reports whether an incident with this provider and unique
// string is stored.
func (r *IncidentRepository) Exists(ctx context.Context, provider, uniqueString string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&IncidentModel{}).
		Where("provider = ? AND unique_string = ?", provider, uniqueString).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Query returns incidents whose unique string matches every token,
// case-insensitively, restricted to the given providers when any are
// named. Used by replay's wide-range fallback.
func (r *IncidentRepository) Query(ctx context.Context, providers, tokens []string) ([]domain.Incident, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&IncidentModel{})
	if len(providers) > 0 {
		q = q.Where("provider IN ?", providers)
	}
	for _, token := range tokens {
		q = q.Where("LOWER(unique_string) LIKE ?", "%"+strings.ToLower(token)+"%")
	}
	var models []IncidentModel
	if err := q.Order("pushed ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Incident, 0, len(models))
	for _, model := range models {
		var incident domain.Incident
		if err := json.Unmarshal(model.IncidentJSON, &incident); err != nil {
			return nil, err
		}
		out = append(out, incident)
	}
	return out, nil
}

// Providers lists all provider names with stored incidents.
func (r *IncidentRepository) Providers(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var providers []string
	err := r.db.WithContext(ctx).Model(&IncidentModel{}).
		Distinct("provider").
		Order("provider ASC").
		Pluck("provider", &providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

// CallCount is one row of the /statistics summary.
type CallCount struct {
	Provider string `json:"provider"`
	Call     string `json:"call"`
	Count    int64  `json:"count"`
}

// Summary aggregates stored incidents per provider and call.
func (r *IncidentRepository) Summary(ctx context.Context) ([]CallCount, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var rows []CallCount
	err := r.db.WithContext(ctx).Model(&IncidentModel{}).
		Select("provider, call, COUNT(*) as count").
		Group("provider").Group("call").
		Order("provider ASC").Order("call ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
