// Package mongo provides a MongoDB implementation of authkit.UserStore using
// the official driver.
//
// Users live in the "users" collection with a unique index on email and a
// unique compound index on (provider, providerId) limited to documents that
// carry a providerId. Lookups by reset token only match tokens that have not
// yet expired.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panyam/authkit"
)

// CollectionUsers is the default collection name.
const CollectionUsers = "users"

type userDoc struct {
	ID                   primitive.ObjectID `bson:"_id"`
	Email                string             `bson:"email"`
	Password             string             `bson:"password,omitempty"`
	Name                 string             `bson:"name,omitempty"`
	Role                 string             `bson:"role"`
	Provider             string             `bson:"provider"`
	ProviderID           string             `bson:"providerId,omitempty"`
	ResetPasswordToken   string             `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires *time.Time         `bson:"resetPasswordExpires,omitempty"`
	CreatedAt            time.Time          `bson:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toUser() *authkit.User {
	return &authkit.User{
		ID:                   d.ID.Hex(),
		Email:                d.Email,
		Password:             d.Password,
		Name:                 d.Name,
		Role:                 d.Role,
		Provider:             d.Provider,
		ProviderID:           d.ProviderID,
		ResetPasswordToken:   d.ResetPasswordToken,
		ResetPasswordExpires: d.ResetPasswordExpires,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// Store implements authkit.UserStore on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// Connect dials uri and returns a store on database db. The caller owns the
// returned client and must Disconnect it.
func Connect(ctx context.Context, uri, db string) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client.Database(db).Collection(CollectionUsers))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return s, client, nil
}

// New wraps an existing collection. Call EnsureIndexes once before use.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes creates the uniqueness indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "providerId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"providerId": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "resetPasswordToken", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*authkit.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	return s.findOne(ctx, bson.M{"email": authkit.NormalizeEmail(email)})
}

func (s *Store) FindUserByProviderID(ctx context.Context, provider, providerID string) (*authkit.User, error) {
	if providerID == "" {
		return nil, authkit.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"provider": provider, "providerId": providerID})
}

func (s *Store) FindUserByResetToken(ctx context.Context, tokenHash string) (*authkit.User, error) {
	if tokenHash == "" {
		return nil, authkit.ErrNotFound
	}
	return s.findOne(ctx, bson.M{
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": bson.M{"$gt": time.Now()},
	})
}

func (s *Store) CreateUser(ctx context.Context, user *authkit.User) (*authkit.User, error) {
	u := user.Clone()
	authkit.PrepareNewUser(u, time.Now())

	oid := primitive.NewObjectID()
	if u.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(u.ID)
		if err != nil {
			return nil, fmt.Errorf("user id %q is not an ObjectID: %w", u.ID, err)
		}
		oid = parsed
	}
	doc := &userDoc{
		ID:                   oid,
		Email:                u.Email,
		Password:             u.Password,
		Name:                 u.Name,
		Role:                 u.Role,
		Provider:             u.Provider,
		ProviderID:           u.ProviderID,
		ResetPasswordToken:   u.ResetPasswordToken,
		ResetPasswordExpires: u.ResetPasswordExpires,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, translate(err)
	}
	return doc.toUser(), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, update authkit.UserUpdate) (*authkit.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, authkit.ErrNotFound)
	}

	set, unset := updateDocs(update, time.Now())
	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	var doc userDoc
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, change,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, translate(err)
	}
	return doc.toUser(), nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*authkit.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toUser(), nil
}

// updateDocs turns a UserUpdate into $set and $unset documents. Empty
// optional strings are unset so the partial provider index keeps ignoring
// them.
func updateDocs(upd authkit.UserUpdate, now time.Time) (bson.M, bson.M) {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	setOrUnset := func(field string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			unset[field] = ""
		} else {
			set[field] = *v
		}
	}
	if upd.Email != nil {
		set["email"] = authkit.NormalizeEmail(*upd.Email)
	}
	setOrUnset("password", upd.Password)
	setOrUnset("name", upd.Name)
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.Provider != nil {
		set["provider"] = *upd.Provider
	}
	setOrUnset("providerId", upd.ProviderID)
	setOrUnset("resetPasswordToken", upd.ResetPasswordToken)
	if upd.ResetPasswordExpires != nil {
		set["resetPasswordExpires"] = *upd.ResetPasswordExpires
	}
	if upd.ClearResetToken {
		delete(set, "resetPasswordToken")
		delete(set, "resetPasswordExpires")
		unset["resetPasswordToken"] = ""
		unset["resetPasswordExpires"] = ""
	}
	return set, unset
}

func translate(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return authkit.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", authkit.ErrDuplicate, err)
	}
	return err
}
