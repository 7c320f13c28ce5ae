package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Error log categories written by the notification dispatcher
const (
	ErrorCategoryCredentials = "fcm-credentials"
	ErrorCategoryDelivery    = "fcm-delivery"
	ErrorCategoryUnknown     = "fcm-unknown"
)

// ErrorRecord is one structured failure.
type ErrorRecord struct {
	Category string            `json:"category"`
	UserID   string            `json:"userId,omitempty"`
	Token    string            `json:"token,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Code     string            `json:"code,omitempty"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data,omitempty"`
	At       time.Time         `json:"at"`
}

// ErrorLogSink is an append-only store of failure records.
type ErrorLogSink interface {
	Record(ctx context.Context, rec ErrorRecord) error
}

// ZerologSink writes records to the service log.
type ZerologSink struct {
	Log zerolog.Logger
}

func (s ZerologSink) Record(_ context.Context, rec ErrorRecord) error {
	s.Log.Warn().
		Str("category", rec.Category).
		Str("userId", rec.UserID).
		Str("token", rec.Token).
		Str("kind", rec.Kind).
		Str("code", rec.Code).
		Time("at", rec.At).
		Msg(rec.Message)
	return nil
}

// S3PutAPI is the part of the S3 client used by S3ErrorSink.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ErrorSink stores each record as its own JSON object under
// errorlogs/<category>/<date>/.
type S3ErrorSink struct {
	Client S3PutAPI
	Bucket string
}

func NewS3ErrorSink(client S3PutAPI, bucket string) *S3ErrorSink {
	return &S3ErrorSink{Client: client, Bucket: bucket}
}

// ObjectKey returns the key a record is stored under.
func (s *S3ErrorSink) ObjectKey(rec ErrorRecord) string {
	at := rec.At.UTC()
	return fmt.Sprintf("errorlogs/%s/%s/%d-%s.json", rec.Category, at.Format("2006-01-02"), at.UnixMilli(), uuid.NewString())
}

func (s *S3ErrorSink) Record(ctx context.Context, rec ErrorRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.ObjectKey(rec)),
		ContentType: aws.String("application/json"),
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to store error record in bucket '%s': %w", s.Bucket, err)
	}
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []ErrorLogSink

func (m MultiSink) Record(ctx context.Context, rec ErrorRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []ErrorRecord
}

func (m *MemorySink) Record(_ context.Context, rec ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns the stored records of category, or all when empty.
func (m *MemorySink) Records(category string) []ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ErrorRecord
	for _, r := range m.records {
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

var (
	_ ErrorLogSink = ZerologSink{}
	_ ErrorLogSink = (*S3ErrorSink)(nil)
	_ ErrorLogSink = MultiSink(nil)
	_ ErrorLogSink = (*MemorySink)(nil)
)
