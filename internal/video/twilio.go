package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

var twilioTracer = otel.Tracer("telehealth.internal.video.twilio")

const (
	defaultVideoHost         = "https://video.twilio.com"
	defaultConversationsHost = "https://conversations.twilio.com"
	defaultMediaHost         = "https://mcs.us1.twilio.com"

	maxMediaBytes = 1 << 27 // 128 MiB, Twilio's attachment ceiling
)

// TwilioClient provisions video rooms and chat conversations for telehealth
// calls through Twilio's REST APIs.
type TwilioClient struct {
	accountSID        string
	apiKey            string
	apiSecret         string
	videoHost         string
	conversationsHost string
	mediaHost         string
	httpClient        *http.Client
	logger            *logging.Logger
}

// NewTwilioClient builds a client. baseURL overrides both API hosts; leave it
// empty in production.
func NewTwilioClient(accountSID, apiKey, apiSecret, baseURL string, logger *logging.Logger) *TwilioClient {
	if logger == nil {
		logger = logging.Default()
	}
	videoHost, conversationsHost, mediaHost := defaultVideoHost, defaultConversationsHost, defaultMediaHost
	if baseURL != "" {
		videoHost = strings.TrimRight(baseURL, "/")
		conversationsHost = videoHost
		mediaHost = videoHost
	}
	return &TwilioClient{
		accountSID:        accountSID,
		apiKey:            apiKey,
		apiSecret:         apiSecret,
		videoHost:         videoHost,
		conversationsHost: conversationsHost,
		mediaHost:         mediaHost,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ bookings.RoomProvider = (*TwilioClient)(nil)

// CreateConversation opens a chat conversation for a booking and returns its SID.
func (c *TwilioClient) CreateConversation(ctx context.Context, b *bookings.Booking) (string, error) {
	ctx, span := twilioTracer.Start(ctx, "video.twilio.create_conversation")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.booking_id", b.ID.String()))

	form := url.Values{}
	form.Set("UniqueName", "booking-"+b.ID.String())
	form.Set("FriendlyName", "Telehealth consult chat")

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := c.postForm(ctx, c.conversationsHost+"/v1/Conversations", form, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("video: create conversation: %w", err)
	}
	c.logger.Info("conversation created", "booking_id", b.ID, "conversation_id", parsed.SID)
	return parsed.SID, nil
}

// CreateRoom provisions a video room for a booking and returns its SID.
func (c *TwilioClient) CreateRoom(ctx context.Context, b *bookings.Booking) (string, error) {
	ctx, span := twilioTracer.Start(ctx, "video.twilio.create_room")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.booking_id", b.ID.String()))

	form := url.Values{}
	form.Set("UniqueName", "booking-"+b.ID.String())
	form.Set("Type", "group")

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := c.postForm(ctx, c.videoHost+"/v1/Rooms", form, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("video: create room: %w", err)
	}
	c.logger.Info("video room created", "booking_id", b.ID, "room_id", parsed.SID)
	return parsed.SID, nil
}

// CloseRoom completes a video room so no participant can rejoin.
func (c *TwilioClient) CloseRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("video: room id required")
	}

	ctx, span := twilioTracer.Start(ctx, "video.twilio.close_room")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.room_id", roomID))

	form := url.Values{}
	form.Set("Status", "completed")
	if err := c.postForm(ctx, c.videoHost+"/v1/Rooms/"+roomID, form, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("video: close room: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages upstream. Callers
// must archive the transcript first.
func (c *TwilioClient) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("video: conversation id required")
	}

	ctx, span := twilioTracer.Start(ctx, "video.twilio.delete_conversation")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.conversation_id", conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.conversationsHost+"/v1/Conversations/"+conversationID, nil)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("video: delete conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("video: delete conversation failed: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return err
	}
	return nil
}

// Media is an attachment referenced by a conversation message. Its content
// lives in Twilio's media store until the conversation is deleted.
type Media struct {
	SID         string `json:"sid"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// Message is one chat message in a conversation transcript.
type Message struct {
	SID       string    `json:"sid"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Media     []Media   `json:"media"`
	CreatedAt time.Time `json:"date_created"`
}

// FetchTranscript pages through every message of a conversation, oldest first.
func (c *TwilioClient) FetchTranscript(ctx context.Context, conversationID string) ([]Message, error) {
	if conversationID == "" {
		return nil, errors.New("video: conversation id required")
	}

	ctx, span := twilioTracer.Start(ctx, "video.twilio.fetch_transcript")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.conversation_id", conversationID))

	next := c.conversationsHost + "/v1/Conversations/" + conversationID + "/Messages?Order=asc&PageSize=100"
	var transcript []Message
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("video: build request: %w", err)
		}
		req.SetBasicAuth(c.apiKey, c.apiSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("video: fetch transcript: %w", err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("video: fetch transcript failed: status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(body)))
			span.RecordError(err)
			return nil, err
		}

		var page struct {
			Messages []Message `json:"messages"`
			Meta     struct {
				NextPageURL string `json:"next_page_url"`
			} `json:"meta"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("video: decode transcript page: %w", err)
		}
		transcript = append(transcript, page.Messages...)
		next = page.Meta.NextPageURL
	}

	span.SetAttributes(attribute.Int("telehealth.message_count", len(transcript)))
	return transcript, nil
}

// FetchMedia downloads one attachment's content. Twilio redirects the content
// endpoint to a signed URL, which the HTTP client follows.
func (c *TwilioClient) FetchMedia(ctx context.Context, mediaSID string) ([]byte, string, error) {
	if mediaSID == "" {
		return nil, "", errors.New("video: media sid required")
	}

	ctx, span := twilioTracer.Start(ctx, "video.twilio.fetch_media")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.media_sid", mediaSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.mediaHost+"/v1/Media/"+mediaSID+"/Content", nil)
	if err != nil {
		return nil, "", fmt.Errorf("video: build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("video: fetch media %s: %w", mediaSID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("video: read media %s: %w", mediaSID, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("video: fetch media %s failed: status %d: %s",
			mediaSID, resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return nil, "", err
	}

	span.SetAttributes(attribute.Int("telehealth.media_bytes", len(body)))
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *TwilioClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	if c.apiKey == "" || c.apiSecret == "" {
		return errors.New("twilio credentials missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
