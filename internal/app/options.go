package app

import (
	"math/rand"
	"time"

	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option tunes the services in this package. Options a service does not use are ignored.
type Option func(*options)

type options struct {
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Recorder
	newID   func() string
	picker  MissionPicker
	shuffle func(n int, swap func(i, j int))
}

// MissionPicker chooses the template for a new daily mission.
type MissionPicker func(templates []domain.MissionTemplate) domain.MissionTemplate

// RandomMissionPicker picks uniformly at random.
func RandomMissionPicker(templates []domain.MissionTemplate) domain.MissionTemplate {
	return templates[rand.Intn(len(templates))]
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *options) { o.metrics = rec }
}

// WithIDGenerator replaces the uuid generator used for new documents.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func WithMissionPicker(p MissionPicker) Option {
	return func(o *options) { o.picker = p }
}

// WithShuffle replaces the question shuffle; it has rand.Shuffle's signature.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(o *options) { o.shuffle = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		log:     zap.NewNop(),
		newID:   uuid.NewString,
		picker:  RandomMissionPicker,
		shuffle: rand.Shuffle,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}
