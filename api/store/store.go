/* store.go
 * Contains the MongoDB backed Store and NewStore function. Document reads and transactions live in this file, change
 * stream subscriptions are in subscriptions.go and player links in player_links.go
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// The draft and the published match are singletons stored under a fixed id
const currentDocID = "current"

type Store struct {
	Client      *mongo.Client
	Database    *mongo.Database
	Collections struct {
		Drafts      *mongo.Collection
		Matches     *mongo.Collection
		PlayerLinks *mongo.Collection
	}
	logger *zap.Logger
}

// Function for initialising Store. Connects to mongo and sets the collection values. Transactions and change streams
// require the deployment to be a replica set
// Preconditions: Receives context, the database name, the mongo uri and a logger
// Postconditions: Returns pointer to the Store object, or error if it occurs
func NewStore(ctx context.Context, dbName string, mongoURI string, logger *zap.Logger) (*Store, error) {
	if dbName == "" || mongoURI == "" {
		return nil, fmt.Errorf("dbName and mongoURI cannot be empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return newStoreFromClient(client, dbName, logger), nil
}

func newStoreFromClient(client *mongo.Client, dbName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(dbName)
	s := &Store{
		Client:   client,
		Database: db,
		logger:   logger.Named("store"),
	}
	s.Collections.Drafts = db.Collection("match_drafts")
	s.Collections.Matches = db.Collection("matches")
	s.Collections.PlayerLinks = db.Collection("player_links")
	return s
}

// GetDraft reads the draft document. found is false if it has never been written
func (s *Store) GetDraft(ctx context.Context) (Draft, bool, error) {
	var d Draft
	found, err := findCurrent(ctx, s.Collections.Drafts, &d)
	if err != nil {
		return Draft{}, false, fmt.Errorf("error fetching draft from db: %w", err)
	}
	return d, found, nil
}

// GetMatch reads the published match document. found is false if nothing has been published yet
func (s *Store) GetMatch(ctx context.Context) (Match, bool, error) {
	var m Match
	found, err := findCurrent(ctx, s.Collections.Matches, &m)
	if err != nil {
		return Match{}, false, fmt.Errorf("error fetching match from db: %w", err)
	}
	return m, found, nil
}

// SetMatch replaces the whole match document. It is never merged so no stale field can survive a publish
func (s *Store) SetMatch(ctx context.Context, m Match) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetMatch(ctx, m)
	})
}

// RunTransaction runs fn inside a mongo transaction with snapshot reads. Write conflicts are retried by the driver;
// duplicate inserts of the singleton documents are reported as ErrConflict
func (s *Store) RunTransaction(ctx context.Context, fn TxFunc) error {
	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		tx := &mongoTx{store: s}
		if err := fn(sc, tx); err != nil {
			return nil, err
		}
		return nil, tx.flush(sc)
	}, txOpts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Close disconnects the mongo client
func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// mongoTx buffers full replacement writes until the transaction function returns
type mongoTx struct {
	store *Store

	draft       *Draft
	draftRead   bool
	draftFound  bool
	draftDirty  bool
	match       *Match
	matchRead   bool
	matchFound  bool
	matchDirty  bool
	readVersion struct {
		draft int64
		match int64
	}
}

func (t *mongoTx) GetDraft(ctx context.Context) (Draft, bool, error) {
	if t.draftDirty {
		return t.draft.Clone(), true, nil
	}
	if err := t.loadDraft(ctx); err != nil {
		return Draft{}, false, err
	}
	if !t.draftFound {
		return Draft{}, false, nil
	}
	return t.draft.Clone(), true, nil
}

func (t *mongoTx) GetMatch(ctx context.Context) (Match, bool, error) {
	if t.matchDirty {
		return t.match.Clone(), true, nil
	}
	if err := t.loadMatch(ctx); err != nil {
		return Match{}, false, err
	}
	if !t.matchFound {
		return Match{}, false, nil
	}
	return t.match.Clone(), true, nil
}

func (t *mongoTx) SetDraft(ctx context.Context, d Draft) error {
	if err := t.loadDraft(ctx); err != nil {
		return err
	}
	c := d.Clone()
	t.draft = &c
	t.draftDirty = true
	return nil
}

func (t *mongoTx) SetMatch(ctx context.Context, m Match) error {
	if err := t.loadMatch(ctx); err != nil {
		return err
	}
	c := m.Clone()
	t.match = &c
	t.matchDirty = true
	return nil
}

func (t *mongoTx) loadDraft(ctx context.Context) error {
	if t.draftRead {
		return nil
	}
	var d Draft
	found, err := findCurrent(ctx, t.store.Collections.Drafts, &d)
	if err != nil {
		return fmt.Errorf("error reading draft in transaction: %w", err)
	}
	t.draftRead, t.draftFound = true, found
	if found {
		t.draft = &d
		t.readVersion.draft = d.Version
	}
	return nil
}

func (t *mongoTx) loadMatch(ctx context.Context) error {
	if t.matchRead {
		return nil
	}
	var m Match
	found, err := findCurrent(ctx, t.store.Collections.Matches, &m)
	if err != nil {
		return fmt.Errorf("error reading match in transaction: %w", err)
	}
	t.matchRead, t.matchFound = true, found
	if found {
		t.match = &m
		t.readVersion.match = m.Version
	}
	return nil
}

// flush writes the buffered documents with the next version number
func (t *mongoTx) flush(ctx context.Context) error {
	now := time.Now().UTC()
	replace := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": currentDocID}

	if t.draftDirty {
		d := t.draft.Clone()
		d.ID = currentDocID
		d.Version = t.readVersion.draft + 1
		d.UpdatedAt = now
		if _, err := t.store.Collections.Drafts.ReplaceOne(ctx, filter, d, replace); err != nil {
			return fmt.Errorf("failed to write draft: %w", err)
		}
	}
	if t.matchDirty {
		m := t.match.Clone()
		m.ID = currentDocID
		m.Version = t.readVersion.match + 1
		m.UpdatedAt = now
		if _, err := t.store.Collections.Matches.ReplaceOne(ctx, filter, m, replace); err != nil {
			return fmt.Errorf("failed to write match: %w", err)
		}
	}
	return nil
}

// Helper to decode the singleton document of a collection
// Preconditions: Receives context, the collection and a pointer to decode into
// Postconditions: Returns true if the document exists, false if it does not, or an error if the lookup failed
func findCurrent(ctx context.Context, coll *mongo.Collection, out interface{}) (bool, error) {
	err := coll.FindOne(ctx, bson.M{"_id": currentDocID}).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
