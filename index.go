package stackfs

import "sync"

const indexStripes = 64

// identityIndex maps physical identities to logical inodes. Keys are node
// numbers; entries in a bucket are told apart by their anchor handle.
// Find-or-insert runs entirely under one stripe lock, so two lookups of the
// same physical node can never both build an inode.
type identityIndex struct {
	stripes [indexStripes]indexStripe
}

type indexStripe struct {
	mu      sync.Mutex
	buckets map[uint64][]*Inode
}

func (x *identityIndex) stripe(key uint64) *indexStripe {
	return &x.stripes[key%indexStripes]
}

// findOrInsert returns the live inode anchored at anchor with a reference
// taken, or publishes the inode built by create. An entry with a matching
// anchor but a different type is stale: it is marked, evicted, and
// replaced.
func (x *identityIndex) findOrInsert(anchor *LowerInode, typ FileType, create func() *Inode) (*Inode, bool) {
	s := x.stripe(anchor.Ino())
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets == nil {
		s.buckets = make(map[uint64][]*Inode)
	}
	bucket := s.buckets[anchor.Ino()]
	for idx := 0; idx < len(bucket); idx++ {
		candidate := bucket[idx]
		if candidate.anchorLower != anchor {
			continue
		}
		if candidate.typ != typ {
			candidate.stale.Store(true)
			candidate.fs.logger.Warn("evicting stale logical inode",
				"ino", candidate.ino,
				"branch", candidate.anchor,
				"was", candidate.typ.String(),
				"now", typ.String(),
			)
			bucket = append(bucket[:idx], bucket[idx+1:]...)
			idx--
			continue
		}
		if candidate.tryGet() {
			s.buckets[anchor.Ino()] = bucket
			return candidate, false
		}
	}

	inode := create()
	s.buckets[anchor.Ino()] = append(bucket, inode)
	return inode, true
}

// remove unregisters inode if it is still indexed
func (x *identityIndex) remove(inode *Inode) {
	s := x.stripe(inode.ino)
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[inode.ino]
	for idx, candidate := range bucket {
		if candidate == inode {
			bucket = append(bucket[:idx], bucket[idx+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(s.buckets, inode.ino)
	} else {
		s.buckets[inode.ino] = bucket
	}
}

// len reports the number of indexed inodes
func (x *identityIndex) len() int {
	n := 0
	for i := range x.stripes {
		s := &x.stripes[i]
		s.mu.Lock()
		for _, bucket := range s.buckets {
			n += len(bucket)
		}
		s.mu.Unlock()
	}
	return n
}
