package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyError() error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}},
	}
}

func TestIsMongoDuplicateKeyError(t *testing.T) {
	assert.True(t, IsMongoDuplicateKeyError(duplicateKeyError()))
	assert.True(t, IsMongoDuplicateKeyError(mongo.CommandError{Code: 11000}))
	assert.False(t, IsMongoDuplicateKeyError(errors.New("something else")))
	assert.False(t, IsMongoDuplicateKeyError(nil))
	assert.False(t, IsMongoDuplicateKeyError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 121}},
	}))
}

func TestWithRetries(t *testing.T) {
	// Succeeds after retryable failures
	attempts := 0
	err := WithRetries(func() error {
		attempts++
		if attempts < 3 {
			return duplicateKeyError()
		}
		return nil
	}, 3, IsMongoDuplicateKeyError)
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)

	// Non-retryable errors return immediately
	attempts = 0
	hard := errors.New("hard failure")
	err = WithRetries(func() error {
		attempts++
		return hard
	}, 3, IsMongoDuplicateKeyError)
	assert.ErrorIs(t, err, hard)
	assert.Equal(t, 1, attempts)

	// Gives up after maxRetries extra attempts
	attempts = 0
	err = WithRetries(func() error {
		attempts++
		return duplicateKeyError()
	}, 2, IsMongoDuplicateKeyError)
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestTry(t *testing.T) {
	calls := 0
	err := Try(func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
