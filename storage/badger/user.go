// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-crypt/x/argon2"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

// Argon2id parameters for password hashing.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// UserRepository implements storage.UserRepository for BadgerDB.
type UserRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(backend *Backend) (*UserRepository, error) {
	idSeq, err := backend.GetSequence(userSequenceName)
	if err != nil {
		return nil, err
	}

	return &UserRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *UserRepository) Close() error {
	return r.idSeq.Release()
}

// AddUser creates a user with an argon2id hash of the password.
func (r *UserRepository) AddUser(ctx context.Context, username, password string) (*core.User, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	user := &core.User{
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		PasswordSalt: salt,
	}
	if err := core.ValidateUser(user); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		usernameKey := makeUsernameKey(username)
		_, err := tx.Get(usernameKey)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = r.idSeq.Next()
			if err != nil {
				return err
			}
		}
		user.Id = core.ID(nextID)

		user.InsertedAt = time.Now().UTC()
		user.UpdatedAt = user.InsertedAt

		if err := tx.Set(makeUserKey(user.Id), storage.MarshalUser(user)); err != nil {
			return err
		}
		if err := tx.Set(usernameKey, storage.MarshalID(user.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	var result *core.User
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeUsernameKey(username))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var userID core.ID
		err = item.Value(func(val []byte) error {
			userID, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return err
		}

		userItem, err := tx.Get(makeUserKey(userID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return userItem.Value(func(val []byte) error {
			result, err = storage.UnmarshalUser(val)
			return err
		})
	}, false)
	return result, err
}

// Authenticate verifies a username/password pair.
func (r *UserRepository) Authenticate(ctx context.Context, username, password string) (*core.User, error) {
	user, err := r.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	candidate := hashPassword(password, user.PasswordSalt)
	if subtle.ConstantTimeCompare(candidate, user.PasswordHash) != 1 {
		return nil, storage.ErrInvalidCredentials
	}
	return user, nil
}

func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
