// internal/storage/mongo_storage_accounts.go
package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reddit-fleet/controller/internal/models"
)

func (s *MongoStorage) UpsertAccount(ctx context.Context, account *models.Account) error {
	collection := s.database.Collection(AccountsCollection)

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"account_name":  account.AccountName,
			"client_id":     account.ClientID,
			"client_secret": account.ClientSecret,
			"username":      account.Username,
			"password":      account.Password,
			"user_agent":    account.UserAgent,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, bson.M{"account_name": account.AccountName}, update, opts)
	return err
}

func (s *MongoStorage) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	collection := s.database.Collection(AccountsCollection)

	var account models.Account
	err := collection.FindOne(ctx, bson.M{"account_name": name}).Decode(&account)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (s *MongoStorage) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	collection := s.database.Collection(AccountsCollection)

	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var accounts []models.Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *MongoStorage) DeleteAccount(ctx context.Context, name string) error {
	collection := s.database.Collection(AccountsCollection)
	_, err := collection.DeleteOne(ctx, bson.M{"account_name": name})
	return err
}
