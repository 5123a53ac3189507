package model

import (
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

func testSnapshot() *BackupSnapshot {
	return &BackupSnapshot{
		Version: 0,
		Name:    "Backup on host",
		MediaFiles: []*BackupFile{
			{Name: "a.jpg", RelativePath: "DCIM", Root: "/photos", Size: 10, LastModified: 1700, ChunkIDs: []string{"c1", "c2"}},
		},
		DocumentFiles: []*BackupFile{
			{Name: "b.txt", Root: "/docs", Size: 3, ChunkIDs: []string{"z1"}, ZipIndex: 2},
			{Name: "c.txt", Root: "/docs", Size: 4, ChunkIDs: []string{"c2"}},
		},
		Size:      17,
		TimeStart: 1705314600000,
		TimeEnd:   1705314601000,
	}
}

func marshal(t *testing.T, s *BackupSnapshot) []byte {
	t.Helper()
	b, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatalf("MarshalSnapshot() error = %v", err)
	}
	return b
}

func TestSnapshotCodec(t *testing.T) {
	want := testSnapshot()

	got, err := UnmarshalSnapshot(marshal(t, want))
	if err != nil {
		t.Fatalf("UnmarshalSnapshot() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnmarshalSnapshot() = %+v, want %+v", got, want)
	}
}

func TestUnmarshalSnapshot_SkipsUnknownFields(t *testing.T) {
	b := marshal(t, testSnapshot())
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer writer")

	got, err := UnmarshalSnapshot(b)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot() error = %v", err)
	}
	if got.TimeStart != 1705314600000 {
		t.Errorf("TimeStart = %d, want %d", got.TimeStart, int64(1705314600000))
	}
}

func TestUnmarshalSnapshot_Truncated(t *testing.T) {
	b := marshal(t, testSnapshot())

	if _, err := UnmarshalSnapshot(b[:len(b)-1]); err == nil {
		t.Error("UnmarshalSnapshot() expected error for truncated input")
	}
}

func TestMarshalSnapshot_FieldNumbers(t *testing.T) {
	var pb SnapshotProto
	if err := proto.Unmarshal(marshal(t, testSnapshot()), &pb); err != nil {
		t.Fatalf("proto.Unmarshal() error = %v", err)
	}
	if len(pb.ProtoReflect().GetUnknown()) != 0 {
		t.Errorf("encoded snapshot has unknown fields")
	}

	// Field numbers are part of the stored format.
	b := protowire.AppendTag(nil, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, 1705314600000)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	file := protowire.AppendTag(nil, 6, protowire.BytesType)
	file = protowire.AppendString(file, "c1")
	file = protowire.AppendTag(file, 7, protowire.VarintType)
	file = protowire.AppendVarint(file, 4)
	b = protowire.AppendBytes(b, file)

	got, err := UnmarshalSnapshot(b)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot() error = %v", err)
	}
	if got.TimeStart != 1705314600000 || len(got.MediaFiles) != 1 {
		t.Fatalf("UnmarshalSnapshot() = %+v", got)
	}
	if f := got.MediaFiles[0]; !reflect.DeepEqual(f.ChunkIDs, []string{"c1"}) || f.ZipIndex != 4 {
		t.Errorf("media file = %+v, want chunk c1 at zip index 4", f)
	}
}

func TestBackupSnapshot_ChunkIDs(t *testing.T) {
	got := testSnapshot().ChunkIDs()
	want := []string{"c1", "c2", "z1"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChunkIDs() = %v, want %v", got, want)
	}
}
