package history

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/forecast"
)

// RecordInput describes a recommendation to keep.
type RecordInput struct {
	Kind         Kind
	Origin       string
	Destination  string
	BestDepartAt time.Time
	ETAMinutes   int
	SavingVsNow  float64
	Risk         float64
}

// InputFromBest builds a RecordInput from a selected window.
func InputFromBest(kind Kind, origin, destination string, best *forecast.BestWindow) RecordInput {
	in := RecordInput{Kind: kind, Origin: origin, Destination: destination}
	if best != nil {
		in.BestDepartAt = best.DepartAt
		in.ETAMinutes = best.ETAMinutes
		in.SavingVsNow = best.SavingVsNow
		in.Risk = best.Risk
	}
	return in
}

// ServiceConfig holds configuration for the history service.
type ServiceConfig struct {
	Repository Repository

	// MaxItems is the per-owner cap. Default: MaxItemsPerOwner
	MaxItems int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Service provides history operations.
type Service struct {
	repo     Repository
	maxItems int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = MaxItemsPerOwner
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:     cfg.Repository,
		maxItems: cfg.MaxItems,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Record stores a new item for owner and drops the oldest items beyond the
// per-owner cap.
func (s *Service) Record(ctx context.Context, owner string, in RecordInput) (*Item, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	origin := strings.TrimSpace(in.Origin)
	destination := strings.TrimSpace(in.Destination)
	if origin == "" || destination == "" {
		return nil, ErrEndpointRequired
	}
	if in.Kind == "" {
		in.Kind = KindAnalyze
	}

	item := &Item{
		ID:           "hst_" + uuid.New().String(),
		Owner:        owner,
		Kind:         in.Kind,
		Origin:       origin,
		Destination:  destination,
		BestDepartAt: in.BestDepartAt.UTC(),
		ETAMinutes:   in.ETAMinutes,
		SavingVsNow:  in.SavingVsNow,
		Risk:         in.Risk,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	dropped, err := s.repo.Trim(ctx, owner, s.maxItems)
	if err != nil {
		// The item is stored; an oversized history is trimmed on the next insert.
		s.logger.Warn().Err(err).Str("owner", owner).Msg("history trim failed")
	} else if dropped > 0 {
		s.logger.Debug().Str("owner", owner).Int("dropped", dropped).Msg("history trimmed")
	}

	return item, nil
}

// List returns owner's items, newest first.
func (s *Service) List(ctx context.Context, owner string, limit int) ([]*Item, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrOwnerRequired
	}
	if limit <= 0 || limit > s.maxItems {
		limit = s.maxItems
	}
	items, err := s.repo.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	return items, nil
}

// Delete removes one of owner's items.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrOwnerRequired
	}
	return s.repo.Delete(ctx, owner, id)
}
