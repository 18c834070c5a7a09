package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/video"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// TranscriptFetcher pulls the full message history of a conversation along
// with the content of any attached media.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, conversationID string) ([]video.Message, error)
	FetchMedia(ctx context.Context, mediaSID string) ([]byte, string, error)
}

// TranscriptRecord is the durable form of a consult chat, written before the
// upstream conversation is deleted.
type TranscriptRecord struct {
	BookingID      uuid.UUID       `json:"booking_id"`
	ConversationID string          `json:"conversation_id"`
	StaffUserID    uuid.UUID       `json:"staff_user_id"`
	ClientUserID   uuid.UUID       `json:"client_user_id"`
	Messages       []video.Message `json:"messages"`
	MessageCount   int             `json:"message_count"`
	MediaKeys      []string        `json:"media_keys,omitempty"`
	ArchivedAt     time.Time       `json:"archived_at"`
}

// Store archives consult transcripts to S3 before the source conversation is
// deleted.
type Store struct {
	bucket     string
	s3Client   S3API
	transcript TranscriptFetcher
	logger     *logging.Logger
	now        func() time.Time
}

// NewStore creates an archive Store.
func NewStore(s3Client S3API, transcript TranscriptFetcher, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:     bucket,
		s3Client:   s3Client,
		transcript: transcript,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

var _ bookings.TranscriptArchiver = (*Store)(nil)

// Archive fetches the transcript, copies any message media into S3, and then
// writes the transcript record. It returns nil only after every S3 write is
// confirmed, so deleting the source conversation is safe once this succeeds.
// Deleting the conversation also deletes its media upstream, which is why the
// attachments must be copied out first.
func (s *Store) Archive(ctx context.Context, b *bookings.Booking, conversationID string) error {
	if !s.Enabled() {
		return errors.New("archive: transcript bucket not configured")
	}
	if conversationID == "" {
		return errors.New("archive: conversation id required")
	}

	messages, err := s.transcript.FetchTranscript(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("archive: fetch transcript: %w", err)
	}

	now := s.now()
	mediaKeys, err := s.archiveMedia(ctx, b.ID, messages, now)
	if err != nil {
		return err
	}

	record := TranscriptRecord{
		BookingID:      b.ID,
		ConversationID: conversationID,
		StaffUserID:    b.StaffUserID,
		ClientUserID:   b.ClientUserID,
		Messages:       messages,
		MessageCount:   len(messages),
		MediaKeys:      mediaKeys,
		ArchivedAt:     now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	s3Key := fmt.Sprintf("transcripts/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), b.ID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("transcript archived",
		"booking_id", b.ID,
		"conversation_id", conversationID,
		"s3_key", s3Key,
		"message_count", len(messages),
		"media_count", len(mediaKeys),
	)
	return nil
}

// archiveMedia copies every attachment of the transcript into the bucket and
// returns the written keys.
func (s *Store) archiveMedia(ctx context.Context, bookingID uuid.UUID, messages []video.Message, now time.Time) ([]string, error) {
	var keys []string
	for _, m := range messages {
		for _, att := range m.Media {
			data, contentType, err := s.transcript.FetchMedia(ctx, att.SID)
			if err != nil {
				return nil, fmt.Errorf("archive: fetch media %s: %w", att.SID, err)
			}
			if contentType == "" {
				contentType = att.ContentType
			}

			key := fmt.Sprintf("transcripts/v1/by-date/%d/%02d/%02d/%s/media/%s",
				now.Year(), now.Month(), now.Day(), bookingID, att.SID)
			_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(data),
				ContentType: aws.String(contentType),
			})
			if err != nil {
				return nil, fmt.Errorf("archive: s3 put %s: %w", key, err)
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}
