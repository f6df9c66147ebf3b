package completion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/slack-go/slack"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/clog"
)

const maxBodyBytes = 1 << 20

type Server struct {
	service       *Service
	signingSecret string
	verify        bool
}

func NewServer(service *Service, signingSecret string, verify bool) *Server {
	if !verify {
		slog.Warn("slack signature verification is disabled")
	}
	return &Server{service: service, signingSecret: signingSecret, verify: verify}
}

func (s *Server) Mount(r chi.Router) {
	r.HandleFunc("/slack-interactions", s.Interactions)
}

type interactionResponse struct {
	Success bool `json:"success"`
}

func (s *Server) Interactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		cerr.SetNewJSONError(ctx, cerr.MethodNotAllowed, "method not allowed", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "failed to read body", err)
		return
	}
	if s.verify {
		if err := s.verifySignature(r.Header, body); err != nil {
			cerr.SetNewJSONError(ctx, cerr.Unauthenticated, "invalid signature", err)
			return
		}
	}

	cb, err := parsePayload(r.Header.Get("Content-Type"), body)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid payload", err)
		return
	}
	action, ok := markDoneAction(cb)
	if !ok {
		slog.DebugContext(ctx, "ignoring interaction", "type", cb.Type)
		cerr.SetJSONResponse(ctx, &interactionResponse{Success: true})
		return
	}
	clog.AddAttribute(ctx, "interaction", map[string]any{"task_id": action.TaskID, "user": action.UserID, "channel": action.ChannelID})

	if _, err := s.service.Complete(ctx, action); err != nil {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.Internal, "failed to complete task", err).WithExposedDetail())
		return
	}
	cerr.SetJSONResponse(ctx, &interactionResponse{Success: true})
}

// verifySignature checks the v0 HMAC-SHA256 signature. The verifier rejects
// timestamps more than five minutes away and compares in constant time.
func (s *Server) verifySignature(h http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(h, s.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

// parsePayload accepts the form encoding Slack uses (payload=<json>) and a
// bare JSON body.
func parsePayload(contentType string, body []byte) (*slack.InteractionCallback, error) {
	raw := bytes.TrimSpace(body)
	if !strings.HasPrefix(contentType, "application/json") && !bytes.HasPrefix(raw, []byte("{")) {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		payload := form.Get("payload")
		if payload == "" {
			return nil, fmt.Errorf("payload is missing")
		}
		raw = []byte(payload)
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &cb, nil
}

func markDoneAction(cb *slack.InteractionCallback) (Action, bool) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return Action{}, false
	}
	ba := cb.ActionCallback.BlockActions[0]
	if ba.ActionID != channel.MarkDoneActionID {
		return Action{}, false
	}
	return Action{
		TaskID:      ba.Value,
		UserID:      cb.User.ID,
		ChannelID:   cb.Channel.ID,
		MessageTS:   cb.Message.Timestamp,
		MessageText: cb.Message.Text,
	}, true
}
