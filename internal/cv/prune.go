package cv

import (
	"context"
	"fmt"

	"chunkvault/internal/model"
)

// PruneResult reports what RemoveSnapshot deleted.
type PruneResult struct {
	ChunksRemoved int
	BytesRemoved  int64
	ChunksFailed  int
}

// Pruner removes snapshots and the chunks nothing references any more.
type Pruner struct {
	store     *Store
	snapshots *SnapshotRetriever
}

func NewPruner(store *Store, snapshots *SnapshotRetriever) *Pruner {
	return &Pruner{store: store, snapshots: snapshots}
}

// RemoveSnapshot deletes the snapshot started at startTime, decrements the ref counts of its
// chunks and deletes every chunk left unreferenced.
func (p *Pruner) RemoveSnapshot(ctx context.Context, startTime int64) (*PruneResult, error) {
	log := p.store.Logger
	stored := model.StoredSnapshot{Folder: p.store.Folder.Name, Time: startTime}

	snapshot, err := p.snapshots.Load(ctx, stored)
	if err != nil {
		return nil, err
	}
	if err := p.store.backend().Remove(ctx, SnapshotHandle(p.store.Folder, startTime)); err != nil {
		return nil, fmt.Errorf("removing snapshot %d: %w", startTime, err)
	}
	log.Info("removed snapshot", "snapshot", startTime, "name", snapshot.Name)

	if err := p.store.DB.DecrementRefCount(snapshot.ChunkIDs()); err != nil {
		return nil, fmt.Errorf("decrementing chunk ref counts: %w", err)
	}

	unreferenced, err := p.store.DB.UnreferencedChunks()
	if err != nil {
		return nil, fmt.Errorf("listing unreferenced chunks: %w", err)
	}

	res := &PruneResult{}
	var removed []string
	for _, c := range unreferenced {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := p.store.backend().Remove(ctx, BlobHandle(p.store.Folder, c.ID)); err != nil {
			log.Warn("removing unreferenced chunk", "chunk", c.ID, "error", err)
			res.ChunksFailed++
			continue
		}
		removed = append(removed, c.ID)
		res.ChunksRemoved++
		res.BytesRemoved += c.Size
	}

	if err := p.store.DB.DeleteChunks(removed); err != nil {
		return res, fmt.Errorf("deleting removed chunks from cache: %w", err)
	}
	log.Info("pruned chunks", "removed", res.ChunksRemoved, "size", res.BytesRemoved, "failed", res.ChunksFailed)
	return res, ctx.Err()
}
