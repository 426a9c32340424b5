/* player_links.go
 * Contains the methods for interacting with the player_links collection
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// LinkPlayer stores which player id a chat account acts as
// Preconditions: Receives context, the chat account id and the player id
// Postconditions: Stores or updates the link, or returns an error if the operation was unsuccessful
func (s *Store) LinkPlayer(ctx context.Context, chatID string, playerID string) error {
	if chatID == "" || playerID == "" {
		return fmt.Errorf("chatID and playerID are required")
	}

	// Attempt to find an existing document
	var existing PlayerLink
	err := s.Collections.PlayerLinks.FindOne(ctx, bson.M{"chatid": chatID}).Decode(&existing)
	notFound := errors.Is(err, mongo.ErrNoDocuments)

	if err != nil && !notFound {
		return fmt.Errorf("lookup for existing player link failed: %w", err)
	}

	// The account is not linked yet so we create a new document
	if notFound {
		_, err := s.Collections.PlayerLinks.InsertOne(ctx, PlayerLink{ChatID: chatID, PlayerID: playerID})
		if err != nil {
			return fmt.Errorf("failed to insert player link: %w", err)
		}
		return nil
	}

	// Else update the existing link
	_, err = s.Collections.PlayerLinks.UpdateOne(ctx, bson.M{"chatid": chatID}, bson.M{"$set": bson.M{"playerid": playerID}})
	if err != nil {
		return fmt.Errorf("failed to update player link: %w", err)
	}
	return nil
}

// LinkedPlayer returns the player id linked to a chat account, or ErrNotFound
func (s *Store) LinkedPlayer(ctx context.Context, chatID string) (string, error) {
	var link PlayerLink
	err := s.Collections.PlayerLinks.FindOne(ctx, bson.M{"chatid": chatID}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("error fetching player link from db: %w", err)
	}
	return link.PlayerID, nil
}
