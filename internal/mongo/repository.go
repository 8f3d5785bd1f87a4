package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"khorcha/internal/core"
	"khorcha/internal/storage"
)

const collectionName = "expenses"

// expenseDoc is the stored shape of an expense. Dates are kept as BSON
// datetimes at UTC midnight so they sort natively.
type expenseDoc struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	Name          string    `bson:"name"`
	AmountCents   int64     `bson:"amount_cents"`
	Category      string    `bson:"category"`
	PaymentMethod string    `bson:"payment_method"`
	Date          time.Time `bson:"date"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type ExpenseRepository struct {
	collection *mongo.Collection
	client     *Client
	now        func() time.Time
}

var _ storage.Repository = (*ExpenseRepository)(nil)

func NewExpenseRepository(client *Client) *ExpenseRepository {
	return &ExpenseRepository{
		collection: client.Database().Collection(collectionName),
		client:     client,
		now:        time.Now,
	}
}

// EnsureIndexes creates the index backing ListExpenses.
func (r *ExpenseRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "date", Value: -1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("user_date_created"),
	})
	if err != nil {
		return fmt.Errorf("failed to create expense index: %w", err)
	}
	return nil
}

func (r *ExpenseRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: -1},
		{Key: "created_at", Value: -1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []expenseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toExpense())
	}
	return out, nil
}

func (r *ExpenseRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	var d expenseDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("failed to get expense: %w", err)
	}
	return d.toExpense(), nil
}

func (r *ExpenseRepository) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = storage.Stamp(e, r.now())
	if _, err := r.collection.InsertOne(ctx, fromExpense(e)); err != nil {
		return core.Expense{}, fmt.Errorf("failed to insert expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to MongoDB", "id", e.ID, "user_id", e.UserID)
	return e, nil
}

func (r *ExpenseRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = r.now().UTC()
	}
	update := bson.M{
		"$set": bson.M{
			"name":           e.Name,
			"amount_cents":   e.Amount.Cents,
			"category":       e.Category.String(),
			"payment_method": e.PaymentMethod.String(),
			"date":           e.Date.Time,
			"updated_at":     e.UpdatedAt,
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": e.ID, "user_id": e.UserID}, update)
	if err != nil {
		return core.Expense{}, fmt.Errorf("failed to update expense: %w", err)
	}
	if result.MatchedCount == 0 {
		return core.Expense{}, storage.ErrNotFound
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *ExpenseRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close disconnects the client the repository was built from.
func (r *ExpenseRepository) Close() error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Close(ctx)
}

func fromExpense(e core.Expense) expenseDoc {
	return expenseDoc{
		ID:            e.ID,
		UserID:        e.UserID,
		Name:          e.Name,
		AmountCents:   e.Amount.Cents,
		Category:      e.Category.String(),
		PaymentMethod: e.PaymentMethod.String(),
		Date:          e.Date.Time,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func (d expenseDoc) toExpense() core.Expense {
	return core.Expense{
		ID:            d.ID,
		UserID:        d.UserID,
		Name:          d.Name,
		Amount:        core.Money{Cents: d.AmountCents},
		Category:      core.Category(d.Category),
		PaymentMethod: core.PaymentMethod(d.PaymentMethod),
		Date:          core.DateOf(d.Date.UTC()),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}
