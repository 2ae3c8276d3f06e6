package domain

import (
	"context"
	"net/http"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Persisted buckets
const (
	BucketSettings = "settings"
	BucketAlerts   = "priceAlerts"
	BucketHistory  = "priceHistory"
)

// KeyValueStore is the opaque persisted get/set store. Get returns ErrNotFound for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Set(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	DeleteBucket(ctx context.Context, bucket string) error
	Close() error
}

// FetchRequest describes one outbound page request
type FetchRequest struct {
	URL    string
	Header http.Header
}

// FetchResult is the raw outcome of a page request that reached the server
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher performs a GET. Transport failures are returned as errors;
// any HTTP status is returned in the result.
type PageFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// MarketplaceClient searches one marketplace region
type MarketplaceClient interface {
	Search(ctx context.Context, query string, region Region) ([]Listing, error)
}

// VisionClassifier classifies a batch of images, one result per image in input order
type VisionClassifier interface {
	ClassifyBatch(ctx context.Context, apiKey string, images []VisionImage) ([]*Classification, error)
}

// Notifier delivers alert notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EventPublisher emits events to the shell
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}
