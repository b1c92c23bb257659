// Package mongo stores raw ledger entries in MongoDB, one collection per
// book, with the entry ID as the document _id.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tally/internal/core"
	"tally/internal/store"
)

const (
	backendName          = "mongo"
	EntriesCollection    = "entries"
	CategoriesCollection = "categories"
)

// Ensure interface conformance
var (
	_ store.EntryStore = (*Repository)(nil)
	_ store.Taxonomy   = (*Repository)(nil)
)

type entryDoc struct {
	ID          string    `bson:"_id"`
	Date        string    `bson:"date"`
	Category    string    `bson:"category"`
	Amount      string    `bson:"amount"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"createdAt"`
}

type categoryDoc struct {
	Name  string `bson:"name"`
	Order int    `bson:"order"`
}

// Repository implements store.EntryStore on MongoDB.
type Repository struct {
	provider CollectionProvider
	seeds    []string
}

// NewRepository creates a Repository. seeds are returned by SeedCategories
// when the categories collection is empty.
func NewRepository(provider CollectionProvider, seeds []string) *Repository {
	return &Repository{provider: provider, seeds: seeds}
}

func collectionName(book core.Book) string {
	return fmt.Sprintf("%s_%s", EntriesCollection, book)
}

// AppendEntry implements store.EntryStore
func (r *Repository) AppendEntry(ctx context.Context, book core.Book, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	doc := entryDoc{
		ID:          e.ID,
		Date:        e.Date.String(),
		Category:    e.Category,
		Amount:      amountKey(e.Amount),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UTC(),
	}
	name := collectionName(book)
	if _, err := r.provider.Collection(name).InsertOne(ctx, doc); err != nil {
		return core.Unavailable(backendName, fmt.Errorf("insert into %s: %w", name, err))
	}
	return nil
}

// ListEntries implements store.EntryStore
func (r *Repository) ListEntries(ctx context.Context, book core.Book) ([]core.Entry, error) {
	var docs []entryDoc
	name := collectionName(book)
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: 1}})
	if err := r.provider.Collection(name).FindAll(ctx, bson.M{}, &docs, opts); err != nil {
		return nil, core.Unavailable(backendName, fmt.Errorf("find in %s: %w", name, err))
	}
	out := make([]core.Entry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", d.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteEntry implements store.EntryStore
func (r *Repository) DeleteEntry(ctx context.Context, book core.Book, id string) error {
	name := collectionName(book)
	res, err := r.provider.Collection(name).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return core.Unavailable(backendName, fmt.Errorf("delete from %s: %w", name, err))
	}
	if res == nil || res.DeletedCount == 0 {
		return &core.NotFoundError{What: "entry", Key: id}
	}
	return nil
}

// DeleteWhere implements store.EntryStore
func (r *Repository) DeleteWhere(ctx context.Context, book core.Book, f core.EntryFilter) (int, error) {
	name := collectionName(book)
	res, err := r.provider.Collection(name).DeleteMany(ctx, filterDoc(f))
	if err != nil {
		return 0, core.Unavailable(backendName, fmt.Errorf("delete from %s: %w", name, err))
	}
	if res == nil {
		return 0, nil
	}
	return int(res.DeletedCount), nil
}

// SeedCategories implements store.Taxonomy
func (r *Repository) SeedCategories(ctx context.Context) ([]string, error) {
	var docs []categoryDoc
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "name", Value: 1}})
	if err := r.provider.Collection(CategoriesCollection).FindAll(ctx, bson.M{}, &docs, opts); err != nil {
		return nil, core.Unavailable(backendName, fmt.Errorf("find categories: %w", err))
	}
	if len(docs) == 0 {
		return append([]string(nil), r.seeds...), nil
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if c := core.NormalizeCategory(d.Name); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// filterDoc translates an EntryFilter into a query. Amounts are stored with
// two fixed decimals so equality on the string is equality on the value.
func filterDoc(f core.EntryFilter) bson.M {
	q := bson.M{}
	if !f.Date.IsZero() {
		q["date"] = f.Date.String()
	}
	if f.Category != "" {
		q["category"] = core.NormalizeCategory(f.Category)
	}
	if f.Amount.Valid {
		q["amount"] = amountKey(f.Amount.Decimal)
	}
	if f.Description != nil {
		q["description"] = core.NormalizeDescription(*f.Description)
	}
	return q
}

func amountKey(d decimal.Decimal) string {
	return d.StringFixed(core.AmountPlaces)
}

func (d entryDoc) entry() (core.Entry, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Entry{}, err
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return core.Entry{}, fmt.Errorf("amount %q: %w", d.Amount, err)
	}
	return core.Entry{
		ID:          d.ID,
		Date:        date,
		Category:    d.Category,
		Amount:      amount,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}, nil
}
