package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigescrow/internal/escrow"
	"gigescrow/internal/store"
)

// Collection is the store collection holding catalog items.
const Collection = "catalog"

// ErrInvalidItem is returned for listings missing required fields.
var ErrInvalidItem = errors.New("invalid item")

// Item is a purchasable listing: a gig, project or consultation settled by
// transferring AssetAmount units of AssetID from the escrow to the buyer.
type Item struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	SellerAddress   string    `json:"sellerAddress"`
	AssetID         uint64    `json:"assetId"`
	AssetAmount     uint64    `json:"assetAmount"`
	PriceMinorUnits uint64    `json:"priceMinorUnits"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Trade returns the escrow program parameters for selling the item.
func (i Item) Trade() escrow.Trade {
	return escrow.Trade{
		AssetID:         i.AssetID,
		SellerAddress:   i.SellerAddress,
		PriceMinorUnits: i.PriceMinorUnits,
		AssetAmount:     i.AssetAmount,
	}
}

func (i Item) validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	return i.Trade().Validate()
}

type Repository struct {
	store store.Store
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) Create(ctx context.Context, item Item) (Item, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.SellerAddress = strings.TrimSpace(item.SellerAddress)
	if err := item.validate(); err != nil {
		return Item{}, err
	}
	item.ID = ""
	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("encode item: %w", err)
	}
	doc, err := r.store.Create(ctx, Collection, data)
	if err != nil {
		return Item{}, fmt.Errorf("create item: %w", err)
	}
	return fromDocument(doc)
}

func (r *Repository) Get(ctx context.Context, id string) (Item, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		return Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return fromDocument(doc)
}

func (r *Repository) ListBySeller(ctx context.Context, seller string) ([]Item, error) {
	docs, err := r.store.Query(ctx, Collection, []store.Filter{{Field: "sellerAddress", Value: seller}}, store.Order{})
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		item, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func fromDocument(doc store.Document) (Item, error) {
	var item Item
	if err := json.Unmarshal(doc.Data, &item); err != nil {
		return Item{}, fmt.Errorf("decode item %s: %w", doc.ID, err)
	}
	item.ID = doc.ID
	item.CreatedAt = doc.CreatedAt
	return item, nil
}
