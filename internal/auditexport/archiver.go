package auditexport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

const contentType = "application/x-ndjson"

// Putter is the subset of *minio.Client the archiver needs.
type Putter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver uploads the full trail of a terminal contract as one NDJSON object.
type Archiver struct {
	client Putter
	bucket string
	prefix string
}

func NewArchiver(client Putter, bucket, prefix string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("object store client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archiver{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectKey is <prefix>/<contract id>/<head sequence>-<status>.ndjson.
func (a *Archiver) ObjectKey(c domain.Contract, events []domain.AuditEvent) string {
	var head int64
	if len(events) > 0 {
		head = events[len(events)-1].Sequence
	}
	return path.Join(a.prefix, c.ID, fmt.Sprintf("%08d-%s.ndjson", head, c.Status))
}

func (a *Archiver) Export(ctx context.Context, c domain.Contract, events []domain.AuditEvent) error {
	if a == nil || a.client == nil {
		return errors.New("archiver not initialized")
	}
	if len(events) == 0 {
		return fmt.Errorf("contract %s: empty audit trail", c.ID)
	}
	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, events); err != nil {
		return err
	}
	head := events[len(events)-1]
	_, err := a.client.PutObject(ctx, a.bucket, a.ObjectKey(c, events), bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"contract-id":       c.ID,
			"contract-status":   string(c.Status),
			"trail-head-sha256": head.IntegritySHA256,
		},
	})
	if err != nil {
		return fmt.Errorf("put audit trail %s: %w", c.ID, err)
	}
	return nil
}
