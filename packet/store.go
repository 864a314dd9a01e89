/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package packet stores state transition packets by content identifier. Packets are kept
// in leveldb behind an LRU cache and pulled from a remote gateway when missing.
package packet

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

// DefaultCacheSize is the number of decoded packets kept in memory.
const DefaultCacheSize = 1024

var packetKeyPrefix = []byte{'P', 'K'}

// Store is a content-addressed packet store.
type Store interface {
	Fetch(ctx context.Context, c cid.Cid) (*types.Packet, error)
	Store(ctx context.Context, p *types.Packet) (cid.Cid, error)
	Download(ctx context.Context, c cid.Cid) error
	Delete(ctx context.Context, c cid.Cid) error
	DeleteAll(ctx context.Context) error
}

// Remote returns raw packet bytes by content identifier.
type Remote interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// LevelDBStore is a Store on leveldb with an optional Remote for missing packets.
type LevelDBStore struct {
	db     *leveldb.DB
	cache  *lru.Cache
	remote Remote
	closed uint32
}

// NewLevelDBStore opens the store at path. remote may be nil.
func NewLevelDBStore(path string, cacheSize int, remote Remote) (s *LevelDBStore, err error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	s = &LevelDBStore{remote: remote}
	if s.cache, err = lru.New(cacheSize); err != nil {
		return nil, errors.Wrap(err, "create packet cache failed")
	}
	if s.db, err = leveldb.OpenFile(path, nil); err != nil {
		return nil, errors.Wrap(err, "open packet database failed")
	}
	return
}

func packetKey(c cid.Cid) []byte {
	return append(append([]byte(nil), packetKeyPrefix...), c.Bytes()...)
}

// Fetch returns the packet addressed by c, pulling it from the remote when missing.
func (s *LevelDBStore) Fetch(ctx context.Context, c cid.Cid) (p *types.Packet, err error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return nil, ErrStoreClosed
	}
	if v, ok := s.cache.Get(c.KeyString()); ok {
		metric.PacketCache.WithLabelValues("hit").Inc()
		return v.(*types.Packet), nil
	}

	raw, err := s.db.Get(packetKey(c), nil)
	switch {
	case err == nil:
		metric.PacketCache.WithLabelValues("local").Inc()
		if p, err = verify(c, raw); err != nil {
			return
		}
		s.cache.Add(c.KeyString(), p)
		return
	case err != leveldb.ErrNotFound:
		return nil, types.AsTransient(errors.Wrap(err, "read packet failed"))
	}

	if s.remote == nil {
		return nil, errors.Wrap(ErrNotFound, c.String())
	}
	metric.PacketCache.WithLabelValues("remote").Inc()
	return s.download(ctx, c)
}

// Store saves p and returns its content identifier.
func (s *LevelDBStore) Store(ctx context.Context, p *types.Packet) (c cid.Cid, err error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		err = ErrStoreClosed
		return
	}
	raw, err := p.Encode()
	if err != nil {
		return
	}
	if c, err = types.PacketCID(hash.DoubleHashH(raw)); err != nil {
		return
	}
	if err = s.put(c, raw); err != nil {
		return
	}
	s.cache.Add(c.KeyString(), p)
	return
}

// Download pins the packet addressed by c locally.
func (s *LevelDBStore) Download(ctx context.Context, c cid.Cid) (err error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return ErrStoreClosed
	}
	if ok, err := s.db.Has(packetKey(c), nil); err != nil {
		return types.AsTransient(errors.Wrap(err, "read packet failed"))
	} else if ok {
		return nil
	}
	if s.remote == nil {
		return ErrNoGateway
	}
	_, err = s.download(ctx, c)
	return
}

func (s *LevelDBStore) download(ctx context.Context, c cid.Cid) (p *types.Packet, err error) {
	raw, err := s.remote.Get(ctx, c)
	if err != nil {
		return
	}
	if p, err = verify(c, raw); err != nil {
		return
	}
	if err = s.put(c, raw); err != nil {
		return
	}
	s.cache.Add(c.KeyString(), p)

	log.WithFields(log.Fields{"cid": c.String(), "size": len(raw)}).Debug("packet: downloaded")
	return
}

func (s *LevelDBStore) put(c cid.Cid, raw []byte) error {
	if err := s.db.Put(packetKey(c), raw, nil); err != nil {
		return types.AsTransient(errors.Wrap(err, "write packet failed"))
	}
	return nil
}

// Delete unpins the packet addressed by c. Deleting a missing packet is not an error.
func (s *LevelDBStore) Delete(ctx context.Context, c cid.Cid) error {
	if atomic.LoadUint32(&s.closed) == 1 {
		return ErrStoreClosed
	}
	s.cache.Remove(c.KeyString())
	if err := s.db.Delete(packetKey(c), nil); err != nil {
		return errors.Wrap(err, "delete packet failed")
	}
	return nil
}

// DeleteAll removes every stored packet.
func (s *LevelDBStore) DeleteAll(ctx context.Context) (err error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return ErrStoreClosed
	}
	s.cache.Purge()

	it := s.db.NewIterator(util.BytesPrefix(packetKeyPrefix), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err = it.Error(); err != nil {
		return errors.Wrap(err, "iterate packets failed")
	}
	if err = s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "delete packets failed")
	}
	log.WithField("packets", batch.Len()).Info("packet: all packets deleted")
	return
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}
	return s.db.Close()
}

// verify decodes raw after checking it hashes to c.
func verify(c cid.Cid, raw []byte) (p *types.Packet, err error) {
	want, err := types.PacketHashFromCID(c)
	if err != nil {
		return
	}
	if got := hash.DoubleHashH(raw); got != want {
		return nil, errors.Wrapf(ErrCIDMismatch, "%s: got %s", c.String(), got.Short(4))
	}
	return types.DecodePacket(raw)
}
