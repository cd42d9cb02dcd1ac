package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/northline-logistics/api/internal/repositories"
)

const (
	defaultTrackingPrefix  = "NL"
	defaultTrackingCounter = "order_track"
)

// SequenceServiceDeps bundles collaborators required to construct a sequence service.
type SequenceServiceDeps struct {
	Repository     repositories.CounterRepository
	TrackingPrefix string
	TrackingName   string
	Metrics        Metrics
	Clock          func() time.Time
}

type sequenceService struct {
	repo    repositories.CounterRepository
	prefix  string
	counter string
	metrics Metrics
	clock   func() time.Time
}

var _ SequenceService = (*sequenceService)(nil)

// NewSequenceService constructs a service minting tracking codes from the counter repository.
func NewSequenceService(deps SequenceServiceDeps) (SequenceService, error) {
	if deps.Repository == nil {
		return nil, errors.New("sequence service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := strings.TrimSpace(deps.TrackingPrefix)
	if prefix == "" {
		prefix = defaultTrackingPrefix
	}
	counter := strings.TrimSpace(deps.TrackingName)
	if counter == "" {
		counter = defaultTrackingCounter
	}
	return &sequenceService{
		repo:    deps.Repository,
		prefix:  prefix,
		counter: counter,
		metrics: deps.Metrics,
		clock:   clock,
	}, nil
}

func (s *sequenceService) Next(ctx context.Context, counter string) (int64, error) {
	counter = strings.TrimSpace(counter)
	if counter == "" {
		return 0, fmt.Errorf("%w: counter name is required", ErrSequenceUnavailable)
	}
	start := s.clock()
	value, err := s.repo.Next(ctx, counter)
	if s.metrics != nil {
		s.metrics.ObserveSequence(s.clock().Sub(start))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrSequenceUnavailable, err)
	}
	return value, nil
}

func (s *sequenceService) NextTrackingCode(ctx context.Context) (string, error) {
	value, err := s.Next(ctx, s.counter)
	if err != nil {
		return "", err
	}
	return FormatTrackingCode(s.prefix, value), nil
}

// FormatTrackingCode pads value to four digits. Larger values keep every digit.
func FormatTrackingCode(prefix string, value int64) string {
	return fmt.Sprintf("%s%04d", prefix, value)
}
