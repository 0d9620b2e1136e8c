package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	quotaerrors "labreserve/internal/quota/errors"
	"labreserve/pkg/config"
	"labreserve/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName      = "QuotaHolders"
	ResetCollectionName = "SemesterResets"
)

type QuotaRepository interface {
	Create(ctx context.Context, holder *model.QuotaHolder) error
	FindByID(ctx context.Context, id string) (*model.QuotaHolder, error)
	FindAll(ctx context.Context, role string, limit int, offset int64) ([]*model.QuotaHolder, error)
	Count(ctx context.Context, role string) (int64, error)
	// DebitFloored atomically subtracts amount from the holder's balance,
	// floored at zero, and returns the balance as it was before the debit.
	DebitFloored(ctx context.Context, id string, amount time.Duration) (time.Duration, error)
	// ResetByRole bulk-sets the balance of every holder with the given role
	// and returns the number of holders touched.
	ResetByRole(ctx context.Context, role string, remaining time.Duration) (int64, error)
	// InsertResetMarker records that a term's reset ran. A second insert for
	// the same term returns ErrResetApplied.
	InsertResetMarker(ctx context.Context, marker *model.SemesterReset) error
	FindResetMarker(ctx context.Context, term string) (*model.SemesterReset, error)
}

type mongoQuotaRepository struct {
	cfg     *config.Config
	holders *mongo.Collection
	resets  *mongo.Collection
}

func NewMongoQuotaRepository(cfg *config.Config) QuotaRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoQuotaRepository{
		cfg:     cfg,
		holders: db.Collection(CollectionName),
		resets:  db.Collection(ResetCollectionName),
	}
}

func (r *mongoQuotaRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoQuotaRepository) Create(ctx context.Context, holder *model.QuotaHolder) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	holder.CreatedAt = now
	holder.UpdatedAt = now

	result, err := r.holders.InsertOne(ctx, holder)
	if err != nil {
		return fmt.Errorf("failed to create quota holder: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		holder.ID = oid.Hex()
	}
	return nil
}

func (r *mongoQuotaRepository) FindByID(ctx context.Context, id string) (*model.QuotaHolder, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", quotaerrors.ErrInvalidID, id)
	}

	var holder model.QuotaHolder
	err = r.holders.FindOne(ctx, bson.M{"_id": objectID}).Decode(&holder)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, quotaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find quota holder: %w", err)
	}
	return &holder, nil
}

func (r *mongoQuotaRepository) FindAll(ctx context.Context, role string, limit int, offset int64) ([]*model.QuotaHolder, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.holders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find quota holders: %w", err)
	}
	defer cursor.Close(ctx)

	var holders []*model.QuotaHolder
	if err = cursor.All(ctx, &holders); err != nil {
		return nil, fmt.Errorf("failed to decode quota holders: %w", err)
	}
	return holders, nil
}

func (r *mongoQuotaRepository) Count(ctx context.Context, role string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}

	count, err := r.holders.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count quota holders: %w", err)
	}
	return count, nil
}

func (r *mongoQuotaRepository) DebitFloored(ctx context.Context, id string, amount time.Duration) (time.Duration, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", quotaerrors.ErrInvalidID, id)
	}

	// An aggregation-pipeline update keeps the subtract-and-floor a single
	// document operation, so concurrent debits for one holder serialize in
	// storage.
	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"remaining":  bson.M{"$max": bson.A{int64(0), bson.M{"$subtract": bson.A{"$remaining", int64(amount)}}}},
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before model.QuotaHolder
	err = r.holders.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, quotaerrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to debit quota holder: %w", err)
	}
	return before.Remaining, nil
}

func (r *mongoQuotaRepository) ResetByRole(ctx context.Context, role string, remaining time.Duration) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"remaining":  remaining,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.holders.UpdateMany(ctx, bson.M{"role": role}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to reset quota balances: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoQuotaRepository) InsertResetMarker(ctx context.Context, marker *model.SemesterReset) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	marker.AppliedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := r.resets.InsertOne(ctx, marker)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", quotaerrors.ErrResetApplied, marker.Term)
		}
		return fmt.Errorf("failed to record semester reset: %w", err)
	}
	return nil
}

func (r *mongoQuotaRepository) FindResetMarker(ctx context.Context, term string) (*model.SemesterReset, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var marker model.SemesterReset
	err := r.resets.FindOne(ctx, bson.M{"_id": term}).Decode(&marker)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, quotaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find semester reset marker: %w", err)
	}
	return &marker, nil
}
