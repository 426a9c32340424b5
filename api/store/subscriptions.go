/* subscriptions.go
 * Contains the change stream subscriptions for the draft and match documents
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type changeEvent[T any] struct {
	OperationType            string `bson:"operationType"`
	FullDocument             *T     `bson:"fullDocument"`
	FullDocumentBeforeChange *T     `bson:"fullDocumentBeforeChange"`
}

// SubscribeDraft pushes the current draft and then every committed write to onChange
func (s *Store) SubscribeDraft(ctx context.Context, onChange func(Change[Draft]), onError func(error)) (func(), error) {
	return watchCurrent(ctx, s.Collections.Drafts, s.logger.With(zap.String("collection", "match_drafts")), onChange, onError)
}

// SubscribeMatch pushes the current match and then every committed write to onChange
func (s *Store) SubscribeMatch(ctx context.Context, onChange func(Change[Match]), onError func(error)) (func(), error) {
	return watchCurrent(ctx, s.Collections.Matches, s.logger.With(zap.String("collection", "matches")), onChange, onError)
}

// Function that opens a change stream on the singleton document of a collection. The stream is opened before the
// initial read so no write can fall between the two
// Preconditions: Receives context, the collection, a logger and the callbacks
// Postconditions: Returns a function that closes the subscription, or an error if the stream could not be opened
func watchCurrent[T any](ctx context.Context, coll *mongo.Collection, logger *zap.Logger, onChange func(Change[T]), onError func(error)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: currentDocID}}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := coll.Watch(watchCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %w", coll.Name(), err)
	}

	var initial T
	found, err := findCurrent(watchCtx, coll, &initial)
	if err != nil {
		cancel()
		_ = stream.Close(ctx)
		return nil, fmt.Errorf("failed to read initial document from %s: %w", coll.Name(), err)
	}

	go func() {
		defer stream.Close(context.Background())
		if found {
			onChange(Change[T]{After: &initial})
		}
		for stream.Next(watchCtx) {
			var event changeEvent[T]
			if err := stream.Decode(&event); err != nil {
				logger.Warn("skipping change event that failed to decode", zap.Error(err))
				continue
			}
			onChange(Change[T]{Before: event.FullDocumentBeforeChange, After: event.FullDocument})
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			logger.Error("change stream closed", zap.Error(err))
			if onError != nil {
				onError(err)
			}
		}
	}()

	return cancel, nil
}
