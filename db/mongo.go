package db

import (
	"context"
	"fmt"
	"time"

	"voice-auth/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoClient holds the user-store connection. Only the voice subset of the
// user document is read or written here; account management owns the rest.
type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoClient connects and pings the deployment.
func NewMongoClient(ctx context.Context, uri, dbName string) (*MongoClient, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	return &MongoClient{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects from the deployment.
func (mc *MongoClient) Close(ctx context.Context) error {
	if mc.client != nil {
		return mc.client.Disconnect(ctx)
	}
	return nil
}

// VoiceGallery returns the user's stored embeddings, oldest first. A user
// without a voice record yields an empty gallery, not an error.
func (mc *MongoClient) VoiceGallery(ctx context.Context, userID string) ([][]float64, error) {
	var record models.UserVoice
	err := mc.db.Collection(usersCollection).
		FindOne(ctx, bson.M{"user_id": userID}).
		Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading voice gallery for %s: %w", userID, err)
	}
	return record.VoiceEmbeddings, nil
}

// SeedVoiceGallery sets the gallery to the single seed embedding and stores
// the archived recording URL. Re-enrollment replaces the previous gallery.
func (mc *MongoClient) SeedVoiceGallery(ctx context.Context, userID string, embedding []float64, voiceURL string) error {
	update := bson.M{
		"$set": bson.M{
			"voice_embeddings": [][]float64{embedding},
		},
	}
	if voiceURL != "" {
		update["$set"].(bson.M)["voice_url"] = voiceURL
	}

	opts := options.Update().SetUpsert(true)
	_, err := mc.db.Collection(usersCollection).
		UpdateOne(ctx, bson.M{"user_id": userID}, update, opts)
	if err != nil {
		return fmt.Errorf("error seeding voice gallery for %s: %w", userID, err)
	}
	return nil
}

// AppendVoiceEmbedding atomically pushes one embedding onto the gallery.
// $push avoids the read-modify-write race between concurrent augmentation
// jobs for the same user.
func (mc *MongoClient) AppendVoiceEmbedding(ctx context.Context, userID string, embedding []float64) error {
	update := bson.M{
		"$push": bson.M{"voice_embeddings": embedding},
	}
	result, err := mc.db.Collection(usersCollection).
		UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("error appending voice embedding for %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("no voice record for user %s", userID)
	}
	return nil
}
