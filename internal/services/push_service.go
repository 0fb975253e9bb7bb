package services

import "context"

type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// PushSender is the offline-delivery collaborator. Socket fanout skips
// offline participants; whatever reaches them goes through here.
type PushSender interface {
	Send(ctx context.Context, userID int64, payload PushPayload) error
}

// NoopPushSender keeps the pipeline wired when no push provider is
// configured.
type NoopPushSender struct{}

func (NoopPushSender) Send(context.Context, int64, PushPayload) error {
	return nil
}
