package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/memengine"
)

// Event types of the shopping cart fixtures.
const (
	ProductItemAddedEventType      = "ProductItemAdded"
	ShoppingCartConfirmedEventType = "ShoppingCartConfirmed"
)

// Metadata keys written by the fixtures.
const (
	MetadataCorrelationID = "correlationId"
	MetadataCausationID   = "causationId"
)

// ProductItemAdded is appended when a product is put into a shopping cart.
type ProductItemAdded struct {
	CartID    string  `json:"cartId"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// ShoppingCartConfirmed is appended when a shopping cart is checked out.
type ShoppingCartConfirmed struct {
	CartID      string    `json:"cartId"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// CartStreamID returns the stream id of a shopping cart.
func CartStreamID(cartID string) string {
	return "shopping_cart-" + cartID
}

// NewCartEventMapper returns a JSONEventMapper with both cart event types registered.
func NewCartEventMapper(options ...eventstore.JSONEventMapperOption) *eventstore.JSONEventMapper {
	mapper := eventstore.NewJSONEventMapper(options...)
	eventstore.RegisterEventType[ProductItemAdded](mapper, ProductItemAddedEventType)
	eventstore.RegisterEventType[ShoppingCartConfirmed](mapper, ShoppingCartConfirmedEventType)

	return mapper
}

// NewProductItemAdded builds an appendable ProductItemAdded event for the cart.
func NewProductItemAdded(t testing.TB, cartID string, productID string, quantity int) memengine.NewEvent {
	t.Helper()

	event, err := memengine.BuildJSONEvent(
		CartStreamID(cartID),
		ProductItemAddedEventType,
		ProductItemAdded{CartID: cartID, ProductID: productID, Quantity: quantity, UnitPrice: 9.99},
		map[string]any{MetadataCorrelationID: cartID},
	)
	require.NoError(t, err)

	return event
}

// NewShoppingCartConfirmed builds an appendable ShoppingCartConfirmed event for the cart.
func NewShoppingCartConfirmed(t testing.TB, cartID string, causationID string) memengine.NewEvent {
	t.Helper()

	event, err := memengine.BuildJSONEvent(
		CartStreamID(cartID),
		ShoppingCartConfirmedEventType,
		ShoppingCartConfirmed{CartID: cartID, ConfirmedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		map[string]any{MetadataCorrelationID: cartID, MetadataCausationID: causationID},
	)
	require.NoError(t, err)

	return event
}

// CartEvents returns count ProductItemAdded events spread round-robin over the given carts.
func CartEvents(t testing.TB, count int, cartIDs ...string) []memengine.NewEvent {
	t.Helper()
	require.NotEmpty(t, cartIDs)

	events := make([]memengine.NewEvent, 0, count)
	for i := range count {
		events = append(events, NewProductItemAdded(t, cartIDs[i%len(cartIDs)], "product-"+string(rune('a'+i%26)), i+1))
	}

	return events
}

// GlobalPositions returns the global positions of the events in delivery order.
func GlobalPositions(events eventstore.ReadEvents) []eventstore.GlobalPositionInt {
	positions := make([]eventstore.GlobalPositionInt, 0, len(events))
	for _, event := range events {
		positions = append(positions, event.Metadata.GlobalPosition)
	}

	return positions
}
