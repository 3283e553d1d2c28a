// Package identity registers players and assigns unique name#discriminator
// handles.
package identity

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

const (
	// DiscriminatorSlots is the size of the per-name discriminator space.
	DiscriminatorSlots = 10000

	maxClientIDLength     = 64
	maxCohortLength       = 64
	defaultCooldown       = 24 * time.Hour
	defaultRandomAttempts = 12
	maxAssignRetries      = 3
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithRenameCooldown sets the minimum time between two renames.
func WithRenameCooldown(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.cooldown = d
		}
	}
}

// WithRandomAttempts sets how many random discriminators are tried before
// the sequential scan.
func WithRandomAttempts(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.randomAttempts = n
		}
	}
}

// WithStartingRating sets the rating of new users.
func WithStartingRating(v int) Option {
	return func(r *Registry) {
		if v > 0 {
			r.startingRating = v
		}
	}
}

// WithRand sets the random source for discriminator picks.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		if rng != nil {
			r.intn = rng.IntN
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry owns user identities.
type Registry struct {
	store          repository.Store
	clock          clockwork.Clock
	cooldown       time.Duration
	randomAttempts int
	startingRating int
	intn           func(int) int
	logger         logger.Logger
}

// New creates a Registry.
func New(store repository.Store, opts ...Option) *Registry {
	r := &Registry{
		store:          store,
		clock:          clockwork.NewRealClock(),
		cooldown:       defaultCooldown,
		randomAttempts: defaultRandomAttempts,
		startingRating: rating.StartingValue,
		intn:           rand.IntN,
		logger:         logger.Get().Named("identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureUser returns the user for clientID, creating it on first contact.
// An existing user is returned unchanged; displayName and cohort only apply
// at creation.
func (r *Registry) EnsureUser(ctx context.Context, clientID, displayName, cohort string) (*types.Identity, error) {
	const op = "identity.ensure_user"
	if clientID == "" || len(clientID) > maxClientIDLength {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "client id must be 1..%d bytes", maxClientIDLength)
	}
	if len(cohort) > maxCohortLength {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "cohort must be at most %d bytes", maxCohortLength)
	}
	if u, err := r.store.GetUser(ctx, clientID); err == nil {
		return toIdentity(u), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fault.Wrap(op, err)
	}

	name := DefaultName
	if displayName != "" {
		n, ok := NormalizeDisplayName(displayName)
		if !ok {
			return nil, fault.NewKindf(op, fault.ErrBadRequest, "display name must be %d..%d characters", MinNameLength, MaxNameLength)
		}
		name = n
	}
	canonical := Canonicalize(name)

	for attempt := 0; attempt < maxAssignRetries; attempt++ {
		disc, err := r.pickDiscriminator(ctx, canonical)
		if err != nil {
			return nil, fault.Wrap(op, err)
		}
		u := &model.User{
			ID:            clientID,
			DisplayName:   name,
			CanonicalName: canonical,
			Discriminator: disc,
			Rating:        r.startingRating,
			Tier:          string(rating.TierFor(r.startingRating)),
			Cohort:        cohort,
		}
		err = r.store.CreateUser(ctx, u)
		if err == nil {
			metrics.RecordIdentityChange("register")
			r.logger.Info(ctx, "user registered", logger.String("user_id", u.ID), logger.String("tag", u.Tag()))
			return toIdentity(u), nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fault.Wrap(op, err)
		}
		// Either the id raced with a concurrent first contact or the slot was
		// taken between the scan and the insert.
		if existing, getErr := r.store.GetUser(ctx, clientID); getErr == nil {
			return toIdentity(existing), nil
		}
	}
	return nil, fault.NewKindf(op, fault.ErrConflict, "could not assign a discriminator for %q", canonical)
}

// Rename changes the display name, at most once per cooldown window.
func (r *Registry) Rename(ctx context.Context, userID, displayName string) (*types.Identity, error) {
	const op = "identity.rename"
	name, ok := NormalizeDisplayName(displayName)
	if !ok {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "display name must be %d..%d characters", MinNameLength, MaxNameLength)
	}
	u, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.WrapKind(op, fault.ErrNotFound, err)
	}
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	now := r.clock.Now().UTC()
	if u.LastNameChangeAt != nil && now.Sub(*u.LastNameChangeAt) < r.cooldown {
		next := u.LastNameChangeAt.Add(r.cooldown)
		return nil, fault.NewKindf(op, fault.ErrConflict, "name can be changed again at %s", next.Format(time.RFC3339))
	}

	canonical := Canonicalize(name)
	for attempt := 0; attempt < maxAssignRetries; attempt++ {
		disc := u.Discriminator
		if canonical != u.CanonicalName {
			if disc, err = r.pickDiscriminator(ctx, canonical); err != nil {
				return nil, fault.Wrap(op, err)
			}
		}
		err = r.store.RenameUser(ctx, userID, name, canonical, disc, now)
		if err == nil {
			u.DisplayName, u.CanonicalName, u.Discriminator, u.LastNameChangeAt = name, canonical, disc, &now
			metrics.RecordIdentityChange("rename")
			r.logger.Info(ctx, "user renamed", logger.String("user_id", userID), logger.String("tag", u.Tag()))
			return toIdentity(u), nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fault.Wrap(op, err)
		}
	}
	return nil, fault.NewKindf(op, fault.ErrConflict, "could not assign a discriminator for %q", canonical)
}

// Get returns the public identity of userID.
func (r *Registry) Get(ctx context.Context, userID string) (*types.Identity, error) {
	const op = "identity.get"
	u, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.WrapKind(op, fault.ErrNotFound, err)
	}
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return toIdentity(u), nil
}

// pickDiscriminator tries random free slots first, then scans sequentially.
// The unique index on (canonical_name, discriminator) is the final arbiter.
func (r *Registry) pickDiscriminator(ctx context.Context, canonical string) (int, error) {
	taken, err := r.store.TakenDiscriminators(ctx, canonical)
	if err != nil {
		return 0, err
	}
	used := make(map[int]struct{}, len(taken))
	for _, d := range taken {
		used[d] = struct{}{}
	}
	if len(used) >= DiscriminatorSlots {
		return 0, fault.NewKindf("identity.pick_discriminator", fault.ErrConflict, "all discriminators for %q are taken", canonical)
	}
	for i := 0; i < r.randomAttempts; i++ {
		d := r.intn(DiscriminatorSlots)
		if _, ok := used[d]; !ok {
			return d, nil
		}
	}
	for d := 0; d < DiscriminatorSlots; d++ {
		if _, ok := used[d]; !ok {
			return d, nil
		}
	}
	return 0, fault.NewKindf("identity.pick_discriminator", fault.ErrConflict, "all discriminators for %q are taken", canonical)
}

func toIdentity(u *model.User) *types.Identity {
	return &types.Identity{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Tag:           u.Tag(),
		Discriminator: u.Discriminator,
		Rating:        u.Rating,
		Tier:          u.Tier,
		Cohort:        u.Cohort,
	}
}
