// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package storage opens the key value store used to keep received records.
package storage

import (
	"fmt"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/gomap"
	"github.com/philippgille/gokv/redis"
)

const (
	DBGomap = "gomap"
	DBRedis = "redis"
)

type Store struct {
	client gokv.Store
}

// NewStore opens a gokv store of type dbtype. address is only used by redis.
func NewStore(dbtype string, address string) (*Store, error) {
	switch dbtype {
	case DBGomap:
		return &Store{client: gomap.NewStore(gomap.DefaultOptions)}, nil
	case DBRedis:
		client, err := redis.NewClient(redis.Options{Address: address})
		if err != nil {
			return nil, fmt.Errorf("connect redis at %s: %w", address, err)
		}
		return &Store{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", dbtype)
	}
}

func (s *Store) GetClient() gokv.Store {
	return s.client
}

func (s *Store) Close() error {
	return s.client.Close()
}
