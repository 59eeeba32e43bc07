package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Recipient is a gift-recipient profile owned by a single user.
type Recipient struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Gender         string             `bson:"gender" json:"gender"`
	Age            int                `bson:"age" json:"age"`
	PreferredSizes bson.M             `bson:"preferredSizes,omitempty" json:"preferredSizes,omitempty"`
	LikedStyles    []string           `bson:"likedStyles" json:"likedStyles"`
	Picture        string             `bson:"picture,omitempty" json:"picture,omitempty"`
	User           string             `bson:"user" json:"user"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// RecipientInput carries the caller-supplied fields for a new recipient.
// Age is a pointer so a missing value can be told apart from zero.
type RecipientInput struct {
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	Age            *int   `json:"age"`
	PreferredSizes bson.M `json:"preferredSizes,omitempty"`
}

// NewRecipient validates input and builds a recipient bound to userID.
func NewRecipient(in RecipientInput, userID string) (*Recipient, error) {
	name := strings.TrimSpace(in.Name)
	gender := strings.TrimSpace(in.Gender)

	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "Name is required"}
	}
	if gender == "" {
		return nil, &ValidationError{Field: "gender", Message: "Gender is required"}
	}
	if in.Age == nil {
		return nil, &ValidationError{Field: "age", Message: "Age is required"}
	}
	if *in.Age < 0 {
		return nil, &ValidationError{Field: "age", Message: "Age must not be negative"}
	}

	return &Recipient{
		Name:           name,
		Gender:         gender,
		Age:            *in.Age,
		PreferredSizes: in.PreferredSizes,
		LikedStyles:    []string{},
		User:           userID,
	}, nil
}

// MergeStyles returns the union of existing and incoming tags. Order is
// first-seen, blank tags are dropped and each tag appears once.
func MergeStyles(existing, incoming []string) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{existing, incoming} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ValidationError represents a rejected field value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
