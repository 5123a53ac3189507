package cv

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chunkvault/internal/model"
)

const (
	// DefaultNetworkConcurrency bounds parallel verifications on network backends.
	DefaultNetworkConcurrency = 3

	checkUpdateInterval = 500 * time.Millisecond
)

// Checker samples stored chunks and verifies them against their content address.
type Checker struct {
	store              *Store
	snapshots          *SnapshotRetriever
	repopulater        *Repopulater
	networkConcurrency int
}

func NewChecker(store *Store, snapshots *SnapshotRetriever, repopulater *Repopulater, networkConcurrency int) *Checker {
	if networkConcurrency <= 0 {
		networkConcurrency = DefaultNetworkConcurrency
	}
	return &Checker{
		store:              store,
		snapshots:          snapshots,
		repopulater:        repopulater,
		networkConcurrency: networkConcurrency,
	}
}

// BackupSize is the size of all referenced chunks in the cache.
func (c *Checker) BackupSize() (int64, error) {
	return c.store.DB.SizeOfCachedChunks()
}

// Check verifies roughly percent of the backup by size. It never returns nil.
func (c *Checker) Check(ctx context.Context, percent int, observer CheckObserver) *CheckResult {
	if observer == nil {
		observer = nopCheckObserver{}
	}
	percent = min(max(percent, 0), 100)
	log := c.store.Logger
	log.Info("starting check", "percent", percent)

	if err := ctx.Err(); err != nil {
		return generalError(err)
	}
	remote, err := listRemote(ctx, c.store)
	if err != nil {
		return generalError(fmt.Errorf("listing stored files: %w", err))
	}

	suspicious, err := c.reconcile(ctx, remote)
	if err != nil {
		return generalError(err)
	}

	res := &CheckResult{ExistingSnapshots: len(remote.snapshots)}
	loaded := make(map[model.StoredSnapshot]*model.BackupSnapshot, len(remote.snapshots))
	referenced := make(map[string]struct{})
	for _, stored := range remote.snapshots {
		if err := ctx.Err(); err != nil {
			return generalError(err)
		}
		snapshot, err := c.snapshots.Load(ctx, stored)
		if err != nil {
			log.Warn("snapshot is unreadable", "snapshot", stored.Time, "error", err)
			res.UnreadableSnapshots = append(res.UnreadableSnapshots, stored)
			continue
		}
		loaded[stored] = snapshot
		for _, id := range snapshot.ChunkIDs() {
			referenced[id] = struct{}{}
		}
	}
	res.ReadableSnapshots = len(loaded)

	var candidates []string
	for id := range referenced {
		if _, ok := remote.available[id]; !ok {
			res.MissingChunkIDs = append(res.MissingChunkIDs, id)
			continue
		}
		candidates = append(candidates, id)
	}
	sort.Strings(res.MissingChunkIDs)
	for _, id := range res.MissingChunkIDs {
		log.Error("chunk is missing", "chunk", id)
	}

	sample, sampleSize, err := c.sample(candidates, suspicious, remote.available, percent)
	if err != nil {
		return generalError(err)
	}
	log.Info("verifying chunks", "chunks", len(sample), "size", sampleSize,
		"suspicious", len(suspicious), "missing", len(res.MissingChunkIDs))

	start := c.store.Clock.Now()
	bad, checked, err := c.verify(ctx, sample, sampleSize, observer)
	if err != nil {
		return generalError(err)
	}
	elapsed := max(c.store.Clock.Now().Sub(start), time.Second)
	res.Size = checked
	res.Bandwidth = int64(float64(checked) / elapsed.Seconds())
	res.CheckedChunks = len(sample)
	res.BadChunkIDs = bad

	broken := make(map[string]struct{}, len(res.MissingChunkIDs)+len(bad))
	for _, id := range res.MissingChunkIDs {
		broken[id] = struct{}{}
	}
	for _, id := range bad {
		broken[id] = struct{}{}
	}
	for _, stored := range remote.snapshots {
		snapshot, ok := loaded[stored]
		if !ok {
			continue
		}
		if referencesAny(snapshot, broken) {
			res.BadSnapshots = append(res.BadSnapshots, stored)
		} else {
			res.GoodSnapshots = append(res.GoodSnapshots, stored)
		}
	}

	if len(res.MissingChunkIDs) == 0 && len(bad) == 0 &&
		res.ReadableSnapshots == res.ExistingSnapshots && res.ExistingSnapshots > 0 {
		res.Status = CheckSuccess
		observer.OnCheckSuccess(res.Size, res.Bandwidth)
	} else {
		res.Status = CheckError
		observer.OnCheckFoundErrors(res.Size, res.Bandwidth)
	}
	log.Info("check finished", "status", res.Status, "checked", res.CheckedChunks,
		"bad", len(bad), "missing", len(res.MissingChunkIDs),
		"good_snapshots", len(res.GoodSnapshots), "bad_snapshots", len(res.BadSnapshots))
	return res
}

// reconcile repopulates the cache if it does not cover the listing. Otherwise it returns
// ids whose cached row is corrupted or whose stored size differs from the cached size.
func (c *Checker) reconcile(ctx context.Context, remote *remoteState) (map[string]struct{}, error) {
	allCached, err := c.store.DB.AreAllAvailableChunksCached(remote.availableIDs())
	if err != nil {
		return nil, fmt.Errorf("checking chunk cache: %w", err)
	}
	if !allCached {
		c.store.Logger.Info("not all available chunks cached, rebuilding chunk cache")
		if err := c.repopulater.Repopulate(ctx, remote.available); err != nil {
			return nil, fmt.Errorf("repopulating chunk cache: %w", err)
		}
		return nil, nil
	}

	suspicious := make(map[string]struct{})
	for id, size := range remote.available {
		row, err := c.store.DB.GetEvenIfCorrupted(id)
		if err != nil {
			return nil, fmt.Errorf("looking up chunk %s: %w", id, err)
		}
		if row == nil {
			continue
		}
		if row.Corrupted || row.Size != size {
			c.store.Logger.Warn("chunk is suspicious", "chunk", id,
				"cached_size", row.Size, "stored_size", size, "corrupted", row.Corrupted)
			suspicious[id] = struct{}{}
		}
	}
	return suspicious, nil
}

// sample picks suspicious candidates first, then the rest, each group in random order,
// until the picked cached size reaches percent of the backup size.
func (c *Checker) sample(candidates []string, suspicious map[string]struct{}, available map[string]int64, percent int) ([]string, int64, error) {
	total, err := c.store.DB.SizeOfCachedChunks()
	if err != nil {
		return nil, 0, fmt.Errorf("reading backup size: %w", err)
	}
	target := int64(math.Round(float64(total) * float64(percent) / 100))

	var first, rest []string
	for _, id := range candidates {
		if _, ok := suspicious[id]; ok {
			first = append(first, id)
		} else {
			rest = append(rest, id)
		}
	}
	sort.Strings(first)
	sort.Strings(rest)
	rand.Shuffle(len(first), func(i, j int) { first[i], first[j] = first[j], first[i] })
	rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	var sample []string
	var size int64
	for _, id := range append(first, rest...) {
		if size >= target {
			break
		}
		chunkSize := available[id]
		row, err := c.store.DB.GetEvenIfCorrupted(id)
		if err != nil {
			return nil, 0, fmt.Errorf("looking up chunk %s: %w", id, err)
		}
		if row != nil {
			chunkSize = row.Size
		}
		sample = append(sample, id)
		size += chunkSize
	}
	return sample, size, nil
}

// verify downloads the sample concurrently. It returns the ids that failed and the bytes read.
func (c *Checker) verify(ctx context.Context, sample []string, sampleSize int64, observer CheckObserver) ([]string, int64, error) {
	limit := runtime.NumCPU()
	if c.store.Backends.RequiresNetwork() {
		limit = c.networkConcurrency
	}

	p := &checkProgress{
		clock:    c.store.Clock,
		observer: observer,
		total:    sampleSize,
		start:    c.store.Clock.Now(),
	}
	p.last = p.start

	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range sample {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			size, err := c.verifyChunk(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.store.Logger.Error("chunk failed verification", "chunk", id, "error", err)
				if err := c.store.DB.MarkCorrupted(id); err != nil {
					c.store.Logger.Error("marking chunk corrupted", "chunk", id, "error", err)
				}
				c.store.Metrics.ChunkChecked(size, false)
				p.fail(id, size)
				return nil
			}
			c.store.Metrics.ChunkChecked(size, true)
			p.add(size)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	sort.Strings(p.bad)
	return p.bad, p.done, nil
}

func (c *Checker) verifyChunk(ctx context.Context, id string) (int64, error) {
	var expected *byte
	row, err := c.store.DB.GetEvenIfCorrupted(id)
	if err != nil {
		return 0, fmt.Errorf("looking up chunk: %w", err)
	}
	if row != nil {
		expected = &row.Version
	}

	plaintext, size, err := readChunk(ctx, c.store, id, expected)
	if err != nil {
		// Nothing was read, so account for the cached size to keep progress whole.
		if size == 0 && row != nil {
			size = row.Size
		}
		return size, err
	}
	if got := c.store.Addresser.ContentAddress(plaintext); got != id {
		return size, fmt.Errorf("content address mismatch: got %s", got)
	}
	return size, nil
}

// checkProgress aggregates verification results and throttles observer updates.
type checkProgress struct {
	clock    Clock
	observer CheckObserver
	total    int64
	start    time.Time

	mu   sync.Mutex
	last time.Time
	done int64
	bad  []string
}

func (p *checkProgress) add(size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += size
	p.maybeUpdate()
}

func (p *checkProgress) fail(id string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += size
	p.bad = append(p.bad, id)
	p.maybeUpdate()
}

func (p *checkProgress) maybeUpdate() {
	now := p.clock.Now()
	if now.Sub(p.last) < checkUpdateInterval {
		return
	}
	p.last = now
	elapsed := max(now.Sub(p.start), time.Second)
	bandwidth := int64(float64(p.done) / elapsed.Seconds())
	thousandth := 1000
	if p.total > 0 {
		thousandth = int(min(p.done*1000/p.total, 1000))
	}
	p.observer.OnCheckUpdate(bandwidth, thousandth)
}

func referencesAny(snapshot *model.BackupSnapshot, ids map[string]struct{}) bool {
	if len(ids) == 0 {
		return false
	}
	for _, f := range snapshot.Files() {
		for _, id := range f.ChunkIDs {
			if _, ok := ids[id]; ok {
				return true
			}
		}
	}
	return false
}
