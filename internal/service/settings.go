package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"goldwatch/internal/models"
)

// SettingsRepo is the storage slice for runtime settings.
type SettingsRepo interface {
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetUserSetting(ctx context.Context, userID string) (*models.UserSetting, error)
	UpsertUserSetting(ctx context.Context, item *models.UserSetting) error
}

// SettingsService answers feature-switch and per-user-flag lookups from the
// settings tables. Switch reads are cached briefly so hot paths do not hammer
// the table; a missing switch defaults to enabled.
type SettingsService struct {
	Repo   SettingsRepo
	Logger *zap.Logger

	cacheTTL time.Duration

	mu      sync.Mutex
	cache   map[string]bool
	cachedA time.Time
}

func NewSettingsService(repo SettingsRepo, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		Repo:     repo,
		Logger:   logger,
		cacheTTL: 10 * time.Second,
		cache:    map[string]bool{},
	}
}

// EnsureDefaultSwitches creates any missing switch rows so operators can see
// everything that is toggleable without reading code.
func (s *SettingsService) EnsureDefaultSwitches(ctx context.Context, defaults map[string]string) error {
	for key, description := range defaults {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.SetSwitch(ctx, key, true, description); err != nil {
			return err
		}
	}
	return nil
}

// Enabled reports whether the named switch is on. Errors and absent rows both
// read as on, so a broken settings table can never silently halt the system.
func (s *SettingsService) Enabled(ctx context.Context, key string) bool {
	s.mu.Lock()
	if time.Since(s.cachedA) < s.cacheTTL {
		if v, ok := s.cache[key]; ok {
			s.mu.Unlock()
			return v
		}
	} else {
		s.cache = map[string]bool{}
		s.cachedA = time.Now()
	}
	s.mu.Unlock()

	enabled := true
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil {
		s.Logger.Warn("failed to read system setting", zap.String("key", key), zap.Error(err))
	} else if item != nil {
		var v bool
		if jsonErr := json.Unmarshal(item.Value, &v); jsonErr == nil {
			enabled = v
		}
	}

	s.mu.Lock()
	s.cache[key] = enabled
	s.mu.Unlock()
	return enabled
}

// SetSwitch flips a feature switch and drops the cache so the change is
// visible within one lookup.
func (s *SettingsService) SetSwitch(ctx context.Context, key string, enabled bool, description string) error {
	raw, err := json.Marshal(enabled)
	if err != nil {
		return err
	}
	err = s.Repo.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: description,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = map[string]bool{}
	s.mu.Unlock()
	s.Logger.Info("system switch updated", zap.String("key", key), zap.Bool("enabled", enabled))
	return nil
}

// UserSettings returns the per-user flags, defaulting to paper mode with
// auto-trading off for unknown users.
func (s *SettingsService) UserSettings(ctx context.Context, userID string) (models.UserSetting, error) {
	item, err := s.Repo.GetUserSetting(ctx, userID)
	if err != nil {
		return models.UserSetting{}, err
	}
	if item == nil {
		return models.UserSetting{
			UserID:      userID,
			AutoTrading: false,
			TradingMode: models.TradingModePaper,
		}, nil
	}
	return *item, nil
}

// UpdateUserSettings writes the per-user flags. Turning auto-trading off
// stops future enqueues only; in-flight queue items still land.
func (s *SettingsService) UpdateUserSettings(ctx context.Context, userID string, autoTrading bool, tradingMode string) error {
	if tradingMode != models.TradingModeLive {
		tradingMode = models.TradingModePaper
	}
	return s.Repo.UpsertUserSetting(ctx, &models.UserSetting{
		UserID:      userID,
		AutoTrading: autoTrading,
		TradingMode: tradingMode,
	})
}
