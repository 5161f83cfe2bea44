package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// LabelArchiver persists purchased shipping label documents to Cloud Storage.
type LabelArchiver struct {
	client *gcs.Client
	bucket string
}

// NewLabelArchiver constructs a LabelArchiver backed by the provided Cloud Storage client.
func NewLabelArchiver(client *gcs.Client, bucket string) (*LabelArchiver, error) {
	if client == nil {
		return nil, errors.New("label archiver: client is required")
	}
	trimmed := strings.TrimSpace(bucket)
	if trimmed == "" {
		return nil, errors.New("label archiver: bucket is required")
	}
	return &LabelArchiver{client: client, bucket: trimmed}, nil
}

// ArchiveLabel writes the label document as JSON under labels/{orderID}/{transactionID}.json.
func (a *LabelArchiver) ArchiveLabel(ctx context.Context, orderID, transactionID string, label any) error {
	if a == nil || a.client == nil {
		return errors.New("label archiver: not initialised")
	}

	orderID = strings.TrimSpace(orderID)
	transactionID = strings.TrimSpace(transactionID)
	if orderID == "" || transactionID == "" {
		return errors.New("label archiver: order id and transaction id are required")
	}

	data, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("label archiver: marshal label: %w", err)
	}

	object := fmt.Sprintf("labels/%s/%s.json", orderID, transactionID)
	writer := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("label archiver: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("label archiver: close %s: %w", object, err)
	}
	return nil
}
