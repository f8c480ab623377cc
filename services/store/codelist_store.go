package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stock_searcher_backend/models"
)

const (
	codeListDatabase   = "stock_searcher"
	codeListCollection = "code_lists"

	mongoOpTimeout = 10 * time.Second
)

// CodeListStore keeps user-named symbol sets in MongoDB. When no Mongo URI
// is configured the store runs disabled and every operation reports so.
type CodeListStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	enabled bool
}

// ErrCodeListDisabled is returned when MongoDB is not configured.
var ErrCodeListDisabled = errors.New("store: code list storage disabled")

// NewCodeListStore connects to MongoDB. An empty URI yields a disabled
// store rather than an error so the rest of the system keeps working.
func NewCodeListStore(ctx context.Context, uri string) (*CodeListStore, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, code list storage disabled")
		return &CodeListStore{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Println("Connected to MongoDB for code lists")
	return &CodeListStore{
		client:  client,
		coll:    client.Database(codeListDatabase).Collection(codeListCollection),
		enabled: true,
	}, nil
}

// Save upserts one code list by name.
func (s *CodeListStore) Save(ctx context.Context, list models.CodeList) error {
	if !s.enabled {
		return ErrCodeListDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": list.Name},
		list,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save code list %q: %w", list.Name, err)
	}
	return nil
}

// Get loads one code list by name.
func (s *CodeListStore) Get(ctx context.Context, name string) (models.CodeList, bool, error) {
	if !s.enabled {
		return models.CodeList{}, false, ErrCodeListDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var list models.CodeList
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&list)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CodeList{}, false, nil
	}
	if err != nil {
		return models.CodeList{}, false, fmt.Errorf("get code list %q: %w", name, err)
	}
	return list, true, nil
}

// Close disconnects from MongoDB.
func (s *CodeListStore) Close(ctx context.Context) {
	if !s.enabled {
		return
	}
	if err := s.client.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect error: %v", err)
	}
}
