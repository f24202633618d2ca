package challenges

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

const (
	recentCompletionsLimit = 3
	nearbyRowLimit         = 200
	metersPerDegreeLat     = 111_320.0
)

// Repository is the Challenge Store.
type Repository interface {
	CreateChallenge(ctx context.Context, params models.CreateChallengeParams) (string, error)
	GetUserCompletedChallengeIDs(ctx context.Context, userID, challengeType string, since time.Time) ([]string, error)
	ListNearbyChallenges(ctx context.Context, loc models.Location, radiusKm float64) ([]models.Challenge, error)
	RecordCompletion(ctx context.Context, userID, challengeID string) (models.Completion, error)
}

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	logger *zap.Logger
	pgpool DB
	psql   sq.StatementBuilderType
}

func NewRepository(pgpool DB, logger *zap.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *RepositoryImpl) fail(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	metrics.Get().DBQueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (r *RepositoryImpl) CreateChallenge(ctx context.Context, params models.CreateChallengeParams) (string, error) {
	ctx, span := otel.Tracer("ChallengeRepository").Start(ctx, "CreateChallenge", trace.WithAttributes(
		attribute.String("challenge.category", string(params.Category)),
	))
	defer span.End()

	if params.Title == "" {
		return "", fmt.Errorf("%w: challenge title is required", models.ErrValidation)
	}
	if !params.Location.Valid() {
		return "", fmt.Errorf("%w: invalid coordinates %s", models.ErrValidation, params.Location)
	}

	query, args, err := r.psql.Insert("challenges").
		Columns("creator_id", "title", "description", "reward", "latitude", "longitude",
			"category", "poi_name", "max_participants", "is_public").
		Values(params.CreatorID, params.Title, params.Description, params.Reward,
			params.Location.Latitude, params.Location.Longitude, string(params.Category),
			params.POIName, params.MaxParticipants, params.IsPublic).
		Suffix("RETURNING id::text").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build insert: %w", err)
	}

	var id string
	if err := r.pgpool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		r.fail(ctx, span, "create_challenge", err)
		return "", fmt.Errorf("failed to insert challenge: %w", err)
	}
	span.SetAttributes(attribute.String("challenge.id", id))
	return id, nil
}

// GetUserCompletedChallengeIDs lists the challenges a user completed since the given time.
// challengeType is "public", "private" or empty for both.
func (r *RepositoryImpl) GetUserCompletedChallengeIDs(ctx context.Context, userID, challengeType string, since time.Time) ([]string, error) {
	ctx, span := otel.Tracer("ChallengeRepository").Start(ctx, "GetUserCompletedChallengeIDs", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	builder := r.psql.Select("DISTINCT cc.challenge_id::text").
		From("challenge_completions cc").
		Join("challenges c ON c.id = cc.challenge_id").
		Where(sq.Eq{"cc.user_id": userID}).
		Where(sq.GtOrEq{"cc.completed_at": since})
	switch challengeType {
	case ChallengeTypePublic:
		builder = builder.Where(sq.Eq{"c.is_public": true})
	case "private":
		builder = builder.Where(sq.Eq{"c.is_public": false})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.fail(ctx, span, "completed_ids", err)
		return nil, fmt.Errorf("failed to query completed challenges: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		r.fail(ctx, span, "completed_ids", err)
		return nil, fmt.Errorf("failed to scan completed challenges: %w", err)
	}
	span.SetAttributes(attribute.Int("completed.count", len(ids)))
	return ids, nil
}

// ListNearbyChallenges returns public challenges within radiusKm of loc, nearest first.
func (r *RepositoryImpl) ListNearbyChallenges(ctx context.Context, loc models.Location, radiusKm float64) ([]models.Challenge, error) {
	ctx, span := otel.Tracer("ChallengeRepository").Start(ctx, "ListNearbyChallenges", trace.WithAttributes(
		attribute.String("location", loc.String()),
		attribute.Float64("radius.km", radiusKm),
	))
	defer span.End()

	if !loc.Valid() {
		return nil, models.ErrMissingLocation
	}

	radiusMeters := radiusKm * 1000
	dLat := radiusMeters / metersPerDegreeLat
	dLon := radiusMeters / (metersPerDegreeLat * math.Max(math.Cos(loc.Latitude*math.Pi/180), 0.01))

	query, args, err := r.psql.Select(
		"c.id::text", "c.title", "c.description", "c.latitude", "c.longitude", "c.reward",
		"c.category", "c.poi_name", "c.max_participants", "c.created_at",
		"COUNT(cc.user_id) AS completion_count", "COUNT(DISTINCT cc.user_id) AS participant_count").
		From("challenges c").
		LeftJoin("challenge_completions cc ON cc.challenge_id = c.id").
		Where(sq.Eq{"c.is_public": true}).
		Where(sq.Expr("c.latitude BETWEEN ? AND ?", loc.Latitude-dLat, loc.Latitude+dLat)).
		Where(sq.Expr("c.longitude BETWEEN ? AND ?", loc.Longitude-dLon, loc.Longitude+dLon)).
		GroupBy("c.id").
		OrderBy("c.created_at DESC").
		Limit(nearbyRowLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.fail(ctx, span, "list_nearby", err)
		return nil, fmt.Errorf("failed to query nearby challenges: %w", err)
	}
	defer rows.Close()

	var out []models.Challenge
	for rows.Next() {
		var (
			c        models.Challenge
			category string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Location.Latitude, &c.Location.Longitude,
			&c.Reward, &category, &c.POIName, &c.MaxParticipants, &c.CreatedAt,
			&c.CompletionCount, &c.ParticipantCount); err != nil {
			r.fail(ctx, span, "list_nearby", err)
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		c.Category = models.Category(category)
		c.DistanceMeters = geo.Distance(loc, c.Location)
		if c.DistanceMeters > radiusMeters {
			continue
		}
		c.Durability = models.DurabilityPersisted
		c.RecentCompletions = []models.Completion{}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		r.fail(ctx, span, "list_nearby", err)
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	rows.Close()

	if err := r.attachRecentCompletions(ctx, out); err != nil {
		r.logger.Warn("Failed to load recent completions", zap.Error(err))
	}

	slices.SortStableFunc(out, byDistance)
	span.SetAttributes(attribute.Int("challenges.count", len(out)))
	return out, nil
}

func (r *RepositoryImpl) attachRecentCompletions(ctx context.Context, challenges []models.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}
	index := make(map[string]int, len(challenges))
	ids := make([]string, 0, len(challenges))
	for i, c := range challenges {
		index[c.ID] = i
		ids = append(ids, c.ID)
	}

	query, args, err := r.psql.Select("challenge_id::text", "user_id", "completed_at").
		From("challenge_completions").
		Where("challenge_id::text = ANY(?)", ids).
		OrderBy("completed_at DESC").
		ToSql()
	if err != nil {
		return err
	}
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var comp models.Completion
		if err := rows.Scan(&comp.ChallengeID, &comp.UserID, &comp.CompletedAt); err != nil {
			return err
		}
		i, ok := index[comp.ChallengeID]
		if !ok || len(challenges[i].RecentCompletions) >= recentCompletionsLimit {
			continue
		}
		challenges[i].RecentCompletions = append(challenges[i].RecentCompletions, comp)
	}
	return rows.Err()
}

// RecordCompletion marks a challenge completed by a user. Completing the same challenge twice
// returns ErrConflict.
func (r *RepositoryImpl) RecordCompletion(ctx context.Context, userID, challengeID string) (models.Completion, error) {
	ctx, span := otel.Tracer("ChallengeRepository").Start(ctx, "RecordCompletion", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("challenge.id", challengeID),
	))
	defer span.End()

	if userID == "" {
		return models.Completion{}, fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	id, err := uuid.Parse(challengeID)
	if err != nil {
		return models.Completion{}, fmt.Errorf("%w: challenge %q is not stored", models.ErrNotFound, challengeID)
	}

	query, args, err := r.psql.Insert("challenge_completions").
		Columns("challenge_id", "user_id").
		Values(id, userID).
		Suffix("ON CONFLICT (challenge_id, user_id) DO NOTHING RETURNING completed_at").
		ToSql()
	if err != nil {
		return models.Completion{}, fmt.Errorf("failed to build insert: %w", err)
	}

	completion := models.Completion{UserID: userID, ChallengeID: challengeID}
	if err := r.pgpool.QueryRow(ctx, query, args...).Scan(&completion.CompletedAt); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return models.Completion{}, fmt.Errorf("%w: challenge already completed", models.ErrConflict)
		case errors.As(err, &pgErr) && pgErr.Code == "23503":
			return models.Completion{}, fmt.Errorf("%w: challenge %s", models.ErrNotFound, challengeID)
		}
		r.fail(ctx, span, "record_completion", err)
		return models.Completion{}, fmt.Errorf("failed to record completion: %w", err)
	}

	r.logger.Info("Challenge completed", zap.String("user_id", userID), zap.String("challenge_id", challengeID))
	return completion, nil
}
