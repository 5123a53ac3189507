package cv

import (
	"context"
	"fmt"
	"sort"

	"chunkvault/internal/model"
)

// Repopulater rebuilds the chunk cache from what the backend stores
// and deletes blobs no snapshot references.
type Repopulater struct {
	store     *Store
	snapshots *SnapshotRetriever
}

func NewRepopulater(store *Store, snapshots *SnapshotRetriever) *Repopulater {
	return &Repopulater{store: store, snapshots: snapshots}
}

// Repopulate replaces the chunk cache with the chunks referenced by readable snapshots.
// available maps every listed chunk id to its stored size.
//
// Snapshots that are permanently unreadable are skipped. Any other snapshot failure
// aborts before the cache or the backend is touched. Orphaned blobs are only deleted
// when at least one snapshot could be read or none exist at all.
func (r *Repopulater) Repopulate(ctx context.Context, available map[string]int64) error {
	log := r.store.Logger
	start := r.store.Clock.Now()
	log.Info("repopulating chunk cache", "available", len(available))

	stored, err := r.snapshots.List(ctx)
	if err != nil {
		return err
	}
	snapshots, err := r.snapshots.loadAll(ctx, stored)
	if err != nil {
		return fmt.Errorf("reading snapshots: %w", err)
	}
	log.Info("read snapshots", "stored", len(stored), "readable", len(snapshots),
		"duration", r.store.Clock.Now().Sub(start))

	chunks := consolidate(snapshots, available, log)
	if err := r.store.DB.ClearAndRepopulate(chunks); err != nil {
		return fmt.Errorf("replacing chunk cache: %w", err)
	}
	log.Info("repopulated chunk cache", "chunks", len(chunks))

	if len(stored) > 0 && len(snapshots) == 0 {
		log.Warn("no snapshot could be read, not deleting unreferenced chunks", "stored", len(stored))
		return nil
	}

	referenced := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		referenced[c.ID] = struct{}{}
	}
	var orphans []string
	for id := range available {
		if _, ok := referenced[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	deleted := 0
	for _, id := range orphans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.backend().Remove(ctx, BlobHandle(r.store.Folder, id)); err != nil {
			log.Warn("deleting unreferenced chunk", "chunk", id, "error", err)
			continue
		}
		deleted++
	}
	log.Info("deleted unreferenced chunks", "deleted", deleted, "orphans", len(orphans))
	return nil
}

// consolidate counts, per available chunk, the distinct snapshots referencing it.
func consolidate(snapshots []*model.BackupSnapshot, available map[string]int64, log Logger) []model.CachedChunk {
	byID := make(map[string]*model.CachedChunk)
	for _, snapshot := range snapshots {
		for _, id := range snapshot.ChunkIDs() {
			size, ok := available[id]
			if !ok {
				log.Warn("chunk referenced by snapshot is not in storage", "chunk", id, "snapshot", snapshot.TimeStart)
				continue
			}
			c, ok := byID[id]
			if !ok {
				c = &model.CachedChunk{ID: id, Size: size, Version: byte(snapshot.Version)}
				byID[id] = c
			}
			c.RefCount++
		}
	}

	chunks := make([]model.CachedChunk, 0, len(byID))
	for _, c := range byID {
		chunks = append(chunks, *c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks
}
