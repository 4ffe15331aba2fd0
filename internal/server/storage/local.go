package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/filex"
)

// Local is the filesystem-backed Provider. Object layout:
//
//	{root}/{first two hex chars of file id}/{file id}
//
// Chunks during a multipart upload live at:
//
//	{root}/_chunks/{file id}/{upload id}/part_{N}
type Local struct {
	root string
}

// NewLocal constructs a Local provider rooted at the given directory,
// creating it if necessary.
func NewLocal(root string) (*Local, error) {
	if err := filex.EnsureDir(root); err != nil {
		return nil, err
	}
	return &Local{root: root}, nil
}

func (l *Local) objectPath(fileID string) string {
	shard := fileID
	if len(shard) >= 2 {
		shard = fileID[:2]
	}
	return filepath.Join(l.root, shard, fileID)
}

func (l *Local) chunkDir(fileID, uploadID string) string {
	return filepath.Join(l.root, "_chunks", fileID, uploadID)
}

func (l *Local) chunkPath(fileID, uploadID string, partNumber int) string {
	return filepath.Join(l.chunkDir(fileID, uploadID), fmt.Sprintf("part_%d", partNumber))
}

func (l *Local) Save(ctx context.Context, fileID, ownerID string, r io.Reader, maxSize int64) (int64, error) {
	path := l.objectPath(fileID)
	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	counted := NewByteCountingBody(r, maxSize)
	n, copyErr := io.Copy(f, counted)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if errors.Is(copyErr, common.ErrOversizeStream) {
			return 0, common.ErrOversizeStream
		}
		if copyErr != nil {
			return 0, fmt.Errorf("%w: %v", common.ErrProviderTransient, copyErr)
		}
		return 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, closeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	return n, nil
}

func (l *Local) GetResponse(ctx context.Context, fileID, ownerID string) (io.ReadCloser, int64, error) {
	path := l.objectPath(fileID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, common.ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	return f, info.Size(), nil
}

func (l *Local) Delete(ctx context.Context, fileID, ownerID string) error {
	if err := os.Remove(l.objectPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, fileID, ownerID string) (bool, error) {
	_, err := os.Stat(l.objectPath(fileID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
}

func (l *Local) InitiateMultipart(ctx context.Context, fileID, ownerID string) (string, error) {
	uploadID, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	if err := filex.EnsureDir(l.chunkDir(fileID, uploadID)); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	return uploadID, nil
}

func (l *Local) UploadPart(ctx context.Context, fileID, ownerID, uploadID string, partNumber int, r io.Reader, maxSize int64) (Part, error) {
	path := l.chunkPath(fileID, uploadID, partNumber)

	f, err := os.Create(path)
	if err != nil {
		return Part{}, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	defer f.Close()

	hasher := md5.New()
	counted := NewByteCountingBody(r, maxSize)
	n, err := io.Copy(f, io.TeeReader(counted, hasher))
	if err != nil {
		os.Remove(path)
		if errors.Is(err, common.ErrOversizeStream) {
			return Part{}, common.ErrOversizeStream
		}
		return Part{}, fmt.Errorf("%w: %v", common.ErrProviderTransient, err)
	}

	return Part{PartNumber: partNumber, ETag: hex.EncodeToString(hasher.Sum(nil)), Size: n}, nil
}

func (l *Local) CompleteMultipart(ctx context.Context, fileID, ownerID, uploadID string, parts []Part) error {
	sorted := append([]Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	path := l.objectPath(fileID)
	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	for _, part := range sorted {
		chunkPath := l.chunkPath(fileID, uploadID, part.PartNumber)
		in, err := os.Open(chunkPath)
		if err != nil {
			out.Close()
			os.Remove(tmp)
			if os.IsNotExist(err) {
				return common.ErrBadChunkSet
			}
			return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
		}

		hasher := md5.New()
		if _, err := io.Copy(io.MultiWriter(out, hasher), in); err != nil {
			in.Close()
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("%w: %v", common.ErrProviderTransient, err)
		}
		in.Close()

		if hex.EncodeToString(hasher.Sum(nil)) != part.ETag {
			out.Close()
			os.Remove(tmp)
			return common.ErrBadChunkSet
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	os.RemoveAll(l.chunkDir(fileID, uploadID))
	return nil
}

func (l *Local) AbortMultipart(ctx context.Context, fileID, ownerID, uploadID string) error {
	if err := os.RemoveAll(l.chunkDir(fileID, uploadID)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}
	return nil
}

func (l *Local) DeleteUserData(ctx context.Context, ownerID string) error {
	// The local layout shards by file id, not owner id; a full data-wipe
	// for an owner therefore requires the caller to delete each known
	// object by id (via HierarchyIndex). There is no owner-scoped prefix
	// to sweep locally, unlike the S3 backend's {owner_id}/{file_id} key.
	return nil
}

func (l *Local) GetUserStorageSize(ctx context.Context, ownerID string) (int64, error) {
	// Same limitation as DeleteUserData: the local layout has no
	// owner-scoped prefix. Callers reconcile usage from HierarchyIndex
	// (sum of FileNode.Size) instead of walking the filesystem.
	return 0, nil
}
