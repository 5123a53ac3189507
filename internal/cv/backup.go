package cv

import (
	"context"
	"fmt"
	"os"

	"chunkvault/internal/model"
)

const (
	// ChunkSizeMax is the default upper bound of a chunk and of a zip chunk's contents.
	ChunkSizeMax = 15 * 1024 * 1024
	// SmallFileSizeMax is the default size up to which files are packed into zip chunks.
	SmallFileSizeMax = 2 * 1024 * 1024
)

// BackupOptions tune a backup run. Zero values select the defaults.
type BackupOptions struct {
	ChunkSizeMax     int64
	SmallFileSizeMax int64
	Name             string
}

// BackupResult summarizes one run.
type BackupResult struct {
	Snapshot      *model.BackupSnapshot // nil when nothing was backed up
	FilesBackedUp int
	FilesReused   int
	FilesFailed   int
	ChunksWritten int
	BytesWritten  int64
}

// Backup runs backups: scan, chunk, upload what is missing, write a snapshot, count references.
type Backup struct {
	store       *Store
	scanner     FileScanner
	chunker     Chunker
	writer      *ChunkWriter
	repopulater *Repopulater
	opts        BackupOptions
}

func NewBackup(store *Store, scanner FileScanner, chunker Chunker, writer *ChunkWriter, repopulater *Repopulater, opts BackupOptions) *Backup {
	if opts.ChunkSizeMax <= 0 {
		opts.ChunkSizeMax = ChunkSizeMax
	}
	if opts.SmallFileSizeMax <= 0 {
		opts.SmallFileSizeMax = SmallFileSizeMax
	}
	if opts.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown host"
		}
		opts.Name = "Backup on " + host
	}
	return &Backup{
		store:       store,
		scanner:     scanner,
		chunker:     chunker,
		writer:      writer,
		repopulater: repopulater,
		opts:        opts,
	}
}

// fileEntry is a backed up file waiting for the snapshot.
type fileEntry struct {
	scanned ScannedFile
	file    *model.BackupFile
}

// Run performs one backup. It returns ErrCannotBackupNow when the backend forbids backups,
// before or during the run.
func (b *Backup) Run(ctx context.Context) (*BackupResult, error) {
	log := b.store.Logger
	if err := b.checkCanBackup(ctx); err != nil {
		log.Warn("can't do backup right now, aborting")
		return nil, err
	}

	// The listing is the ground truth; the cache alone may be stale.
	remote, err := listRemote(ctx, b.store, FileTypeBlob)
	if err != nil {
		return nil, fmt.Errorf("listing available chunks: %w", err)
	}
	allCached, err := b.store.DB.AreAllAvailableChunksCached(remote.availableIDs())
	if err != nil {
		return nil, fmt.Errorf("checking chunk cache: %w", err)
	}
	if !allCached {
		log.Info("not all available chunks cached, rebuilding chunk cache")
		if err := b.repopulater.Repopulate(ctx, remote.available); err != nil {
			return nil, fmt.Errorf("repopulating chunk cache: %w", err)
		}
	}

	scanned, err := b.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	var small, large []ScannedFile
	for _, f := range scanned {
		if f.Size <= b.opts.SmallFileSizeMax {
			small = append(small, f)
		} else {
			large = append(large, f)
		}
	}
	log.Info("scanned files", "small", len(small), "large", len(large))

	present := make(map[string]struct{}, len(remote.available))
	for id := range remote.available {
		present[id] = struct{}{}
	}

	if err := b.checkCanBackup(ctx); err != nil {
		return nil, err
	}
	start := b.store.Clock.Now()
	res := &BackupResult{}

	smallEntries, err := b.backupSmallFiles(ctx, small, present, res)
	if err != nil {
		return nil, err
	}
	if err := b.checkCanBackup(ctx); err != nil {
		return nil, err
	}
	largeEntries, err := b.backupLargeFiles(ctx, large, present, res)
	if err != nil {
		return nil, err
	}

	entries := append(largeEntries, smallEntries...)
	if len(entries) == 0 {
		log.Warn("nothing could be backed up", "failed", res.FilesFailed)
		return res, nil
	}

	snapshot := &model.BackupSnapshot{
		Version:   int32(Version),
		Name:      b.opts.Name,
		TimeStart: start.UnixMilli(),
		TimeEnd:   b.store.Clock.Now().UnixMilli(),
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.scanned.Kind == model.KindMedia {
			snapshot.MediaFiles = append(snapshot.MediaFiles, e.file)
		} else {
			snapshot.DocumentFiles = append(snapshot.DocumentFiles, e.file)
		}
		snapshot.Size += e.file.Size
		paths = append(paths, e.scanned.Path)
	}

	size, err := saveSnapshot(ctx, b.store, snapshot)
	if err != nil {
		return nil, err
	}
	log.Info("wrote snapshot", "snapshot", snapshot.TimeStart, "files", len(entries), "size", size)

	if err := b.store.DB.IncrementRefCount(snapshot.ChunkIDs()); err != nil {
		return nil, fmt.Errorf("incrementing chunk ref counts: %w", err)
	}
	// Last seen is only updated here, once per run, rather than file by file.
	seen := b.store.Clock.Now().UnixMilli()
	if err := b.store.DB.UpdateLastSeen(paths, seen); err != nil {
		return nil, fmt.Errorf("updating last seen: %w", err)
	}
	if n, err := b.store.DB.DeleteFilesNotSeenSince(seen); err != nil {
		log.Warn("clearing unseen files from cache", "error", err)
	} else if n > 0 {
		log.Debug("cleared unseen files from cache", "files", n)
	}

	res.Snapshot = snapshot
	log.Info("backup finished",
		"backed_up", res.FilesBackedUp, "reused", res.FilesReused, "failed", res.FilesFailed,
		"chunks_written", res.ChunksWritten, "bytes_written", res.BytesWritten)
	return res, nil
}

func (b *Backup) checkCanBackup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.store.Backends.CanDoBackupNow() {
		return ErrCannotBackupNow
	}
	return nil
}

func (b *Backup) backupLargeFiles(ctx context.Context, files []ScannedFile, present map[string]struct{}, res *BackupResult) ([]fileEntry, error) {
	var entries []fileEntry
	for _, f := range files {
		if err := b.checkCanBackup(ctx); err != nil {
			return nil, err
		}
		entry, reused, err := b.backupLargeFile(ctx, f, present, res)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			b.store.Logger.Error("backing up file", "path", f.Path, "error", err)
			res.FilesFailed++
			continue
		}
		if reused {
			res.FilesReused++
		} else {
			res.FilesBackedUp++
		}
		entries = append(entries, fileEntry{scanned: f, file: entry})
	}
	return entries, nil
}

func (b *Backup) backupLargeFile(ctx context.Context, f ScannedFile, present map[string]struct{}, res *BackupResult) (*model.BackupFile, bool, error) {
	cached, err := b.store.DB.GetFile(f.Path)
	if err != nil {
		return nil, false, fatal(fmt.Errorf("looking up cached file: %w", err))
	}
	ok, err := b.canReuse(cached, f, false, present)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return newBackupFile(f, cached.ChunkIDs, 0), true, nil
	}

	chunks, err := b.chunkFile(f)
	if err != nil {
		return nil, false, err
	}
	missing := make(map[string]struct{})
	for _, c := range chunks {
		if _, ok := present[c.ID]; !ok {
			missing[c.ID] = struct{}{}
		}
	}

	rc, err := b.scanner.Open(f)
	if err != nil {
		return nil, false, fmt.Errorf("opening file: %w", err)
	}
	wr, err := b.writer.WriteChunks(ctx, rc, chunks, missing)
	rc.Close()
	res.ChunksWritten += wr.ChunksWritten
	res.BytesWritten += wr.BytesWritten
	if err != nil {
		return nil, false, err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		present[c.ID] = struct{}{}
	}
	if err := b.store.DB.UpsertFile(cachedFile(f, ids, 0)); err != nil {
		return nil, false, fatal(fmt.Errorf("caching file: %w", err))
	}
	return newBackupFile(f, ids, 0), false, nil
}

func (b *Backup) chunkFile(f ScannedFile) ([]model.Chunk, error) {
	rc, err := b.scanner.Open(f)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	chunks, err := b.chunker.Chunk(rc)
	if err != nil {
		return nil, fmt.Errorf("chunking file: %w", err)
	}
	return chunks, nil
}

func (b *Backup) backupSmallFiles(ctx context.Context, files []ScannedFile, present map[string]struct{}, res *BackupResult) ([]fileEntry, error) {
	var entries []fileEntry
	zipper := NewZipChunker(b.writer, b.store.Addresser, b.opts.ChunkSizeMax)
	pending := make(map[*model.BackupFile]ScannedFile)

	flush := func() error {
		if zipper.Empty() {
			return nil
		}
		zc, err := zipper.Flush(ctx, present)
		if err != nil {
			if isFatal(err) {
				return err
			}
			b.store.Logger.Error("writing zip chunk", "files", len(pending), "error", err)
			res.FilesFailed += len(pending)
			clear(pending)
			return nil
		}
		if zc.Written {
			res.ChunksWritten++
			res.BytesWritten += zc.Size
		}
		present[zc.ID] = struct{}{}
		for _, file := range zc.Files {
			f := pending[file]
			if err := b.store.DB.UpsertFile(cachedFile(f, file.ChunkIDs, file.ZipIndex)); err != nil {
				return fatal(fmt.Errorf("caching file: %w", err))
			}
			entries = append(entries, fileEntry{scanned: f, file: file})
			res.FilesBackedUp++
		}
		clear(pending)
		return nil
	}

	for _, f := range files {
		if err := b.checkCanBackup(ctx); err != nil {
			return nil, err
		}

		cached, err := b.store.DB.GetFile(f.Path)
		if err != nil {
			return nil, fatal(fmt.Errorf("looking up cached file: %w", err))
		}
		ok, err := b.canReuse(cached, f, true, present)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, fileEntry{scanned: f, file: newBackupFile(f, cached.ChunkIDs, cached.ZipIndex)})
			res.FilesReused++
			continue
		}

		if !zipper.Fits(f.Size) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		rc, err := b.scanner.Open(f)
		if err != nil {
			b.store.Logger.Error("opening small file", "path", f.Path, "error", err)
			res.FilesFailed++
			continue
		}
		file := newBackupFile(f, nil, 0)
		err = zipper.AddFile(file, rc)
		rc.Close()
		if err != nil {
			b.store.Logger.Error("adding small file to zip", "path", f.Path, "error", err)
			res.FilesFailed++
			continue
		}
		pending[file] = f
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return entries, nil
}

// canReuse reports whether a file's cached chunk list can be referenced without reading the file.
// The file must be unchanged, in the same size category, and all its chunks must be
// cached, uncorrupted and present remotely.
func (b *Backup) canReuse(cached *model.CachedFile, f ScannedFile, small bool, present map[string]struct{}) (bool, error) {
	if cached == nil || len(cached.ChunkIDs) == 0 {
		return false, nil
	}
	if cached.Size != f.Size || cached.LastModified != f.LastModified.UnixMilli() {
		return false, nil
	}
	if small != (cached.ZipIndex > 0) {
		return false, nil
	}

	distinct := make([]string, 0, len(cached.ChunkIDs))
	seen := make(map[string]struct{}, len(cached.ChunkIDs))
	for _, id := range cached.ChunkIDs {
		if _, ok := present[id]; !ok {
			return false, nil
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			distinct = append(distinct, id)
		}
	}

	n, err := b.store.DB.NumberOfCachedChunks(distinct)
	if err != nil {
		return false, fatal(fmt.Errorf("counting cached chunks: %w", err))
	}
	if n != len(distinct) {
		return false, nil
	}
	corrupted, err := b.store.DB.HasCorruptedChunks(distinct)
	if err != nil {
		return false, fatal(fmt.Errorf("checking corrupted chunks: %w", err))
	}
	return !corrupted, nil
}

func newBackupFile(f ScannedFile, chunkIDs []string, zipIndex int32) *model.BackupFile {
	return &model.BackupFile{
		Name:         f.Name,
		RelativePath: f.RelativePath,
		Root:         f.Root,
		Size:         f.Size,
		LastModified: f.LastModified.UnixMilli(),
		ChunkIDs:     chunkIDs,
		ZipIndex:     zipIndex,
	}
}

func cachedFile(f ScannedFile, chunkIDs []string, zipIndex int32) model.CachedFile {
	return model.CachedFile{
		Path:         f.Path,
		Size:         f.Size,
		LastModified: f.LastModified.UnixMilli(),
		ChunkIDs:     chunkIDs,
		ZipIndex:     zipIndex,
	}
}
