package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	scheduleerrors "labreserve/internal/classschedules/errors"
	"labreserve/pkg/config"
	mongotx "labreserve/pkg/db/mongo"
	"labreserve/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "ClassSchedules"

type ClassScheduleRepository interface {
	CreateMany(ctx context.Context, occurrences []*model.ClassSchedule) error
	FindByID(ctx context.Context, id string) (*model.ClassSchedule, error)
	FindByRoomAndDate(ctx context.Context, roomID, date string) ([]*model.ClassSchedule, error)
	FindByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.ClassSchedule, error)
	CountByRoom(ctx context.Context, roomID string) (int64, error)
	DeleteGroup(ctx context.Context, groupID string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoClassScheduleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoClassScheduleRepository(cfg *config.Config) ClassScheduleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoClassScheduleRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoClassScheduleRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoClassScheduleRepository) CreateMany(ctx context.Context, occurrences []*model.ClassSchedule) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, 0, len(occurrences))
	for _, occ := range occurrences {
		occ.CreatedAt = now
		docs = append(docs, occ)
	}

	result, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to create class schedules: %w", err)
	}

	for i, insertedID := range result.InsertedIDs {
		if oid, ok := insertedID.(primitive.ObjectID); ok && i < len(occurrences) {
			occurrences[i].ID = oid.Hex()
		}
	}
	return nil
}

func (r *mongoClassScheduleRepository) FindByID(ctx context.Context, id string) (*model.ClassSchedule, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", scheduleerrors.ErrInvalidID, id)
	}

	var sched model.ClassSchedule
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&sched)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, scheduleerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find class schedule: %w", err)
	}
	return &sched, nil
}

func (r *mongoClassScheduleRepository) FindByRoomAndDate(ctx context.Context, roomID, date string) ([]*model.ClassSchedule, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_min", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"room_id": roomID, "date": date}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find class schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var schedules []*model.ClassSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("failed to decode class schedules: %w", err)
	}
	return schedules, nil
}

func (r *mongoClassScheduleRepository) FindByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.ClassSchedule, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_min", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find class schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var schedules []*model.ClassSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("failed to decode class schedules: %w", err)
	}
	return schedules, nil
}

func (r *mongoClassScheduleRepository) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return 0, fmt.Errorf("failed to count class schedules: %w", err)
	}
	return count, nil
}

func (r *mongoClassScheduleRepository) DeleteGroup(ctx context.Context, groupID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete class schedule group: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoClassScheduleRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
