package model

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

//go:generate protoc --go_out=. --go_opt=paths=source_relative snapshot.proto

// MarshalSnapshot encodes a snapshot manifest as a SnapshotProto message.
func MarshalSnapshot(s *BackupSnapshot) ([]byte, error) {
	data, err := proto.Marshal(snapshotToProto(s))
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a snapshot manifest. Fields written by newer
// versions are ignored.
func UnmarshalSnapshot(b []byte) (*BackupSnapshot, error) {
	pb := &SnapshotProto{}
	if err := proto.Unmarshal(b, pb); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snapshotFromProto(pb), nil
}

func snapshotToProto(s *BackupSnapshot) *SnapshotProto {
	return &SnapshotProto{
		Version:       s.Version,
		Name:          s.Name,
		MediaFiles:    filesToProto(s.MediaFiles),
		DocumentFiles: filesToProto(s.DocumentFiles),
		Size:          s.Size,
		TimeStart:     s.TimeStart,
		TimeEnd:       s.TimeEnd,
	}
}

func snapshotFromProto(pb *SnapshotProto) *BackupSnapshot {
	return &BackupSnapshot{
		Version:       pb.GetVersion(),
		Name:          pb.GetName(),
		MediaFiles:    filesFromProto(pb.GetMediaFiles()),
		DocumentFiles: filesFromProto(pb.GetDocumentFiles()),
		Size:          pb.GetSize(),
		TimeStart:     pb.GetTimeStart(),
		TimeEnd:       pb.GetTimeEnd(),
	}
}

func filesToProto(files []*BackupFile) []*FileProto {
	if len(files) == 0 {
		return nil
	}
	out := make([]*FileProto, len(files))
	for i, f := range files {
		out[i] = &FileProto{
			Name:         f.Name,
			RelativePath: f.RelativePath,
			Root:         f.Root,
			Size:         f.Size,
			LastModified: f.LastModified,
			ChunkIds:     f.ChunkIDs,
			ZipIndex:     f.ZipIndex,
		}
	}
	return out
}

func filesFromProto(files []*FileProto) []*BackupFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]*BackupFile, len(files))
	for i, f := range files {
		out[i] = &BackupFile{
			Name:         f.GetName(),
			RelativePath: f.GetRelativePath(),
			Root:         f.GetRoot(),
			Size:         f.GetSize(),
			LastModified: f.GetLastModified(),
			ChunkIDs:     f.GetChunkIds(),
			ZipIndex:     f.GetZipIndex(),
		}
	}
	return out
}
