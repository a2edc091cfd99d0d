package events

import "context"

// ListingRefreshed fires after a provider fetch replaces a cached listing.
// Prices are pointers because either side can be unknown.
type ListingRefreshed struct {
	Provider   string
	ListingKey string
	OldPrice   *float64
	NewPrice   *float64
}

type Publisher interface {
	PublishListingRefreshed(ctx context.Context, evt ListingRefreshed)
	SubscribeListingRefreshed() <-chan ListingRefreshed
}

type inMemory struct{ ch chan ListingRefreshed }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan ListingRefreshed, buffer)}
}

// PublishListingRefreshed never blocks a fetch path: events drop when the
// buffer is full.
func (m *inMemory) PublishListingRefreshed(_ context.Context, evt ListingRefreshed) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeListingRefreshed() <-chan ListingRefreshed { return m.ch }
