package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"starmatch_server/models"
)

// Dispatch reasons reported when nothing was sent
const (
	ReasonBlocked          = "Interaction blocked"
	ReasonDisabled         = "notification disabled"
	ReasonMissingTokens    = "missing device token(s)"
	ReasonTargetUnknown    = "target not found"
	ReasonBlockUnavailable = "block status unavailable"
	ReasonDeliveryFailed   = "delivery failed"
	ReasonQueueUnavailable = "notification queue unavailable"
	ReasonPending          = "notification pending"
)

// NotificationRequest asks for a push to every device of To on behalf of From.
type NotificationRequest struct {
	From  string
	To    string
	Key   string // models.Notify* key, selects template and preference
	Title string // overrides the template title when set
	Body  string // overrides the template body when set
	Data  map[string]string
}

// PendingDispatch is the future result of an asynchronous dispatch.
type PendingDispatch struct {
	done   chan struct{}
	result models.DispatchResult
}

func newPendingDispatch() *PendingDispatch {
	return &PendingDispatch{done: make(chan struct{})}
}

// ResolvedDispatch returns an already completed future.
func ResolvedDispatch(result models.DispatchResult) *PendingDispatch {
	p := newPendingDispatch()
	p.resolve(result)
	return p
}

func (p *PendingDispatch) resolve(result models.DispatchResult) {
	p.result = result
	close(p.done)
}

// Done is closed once the result is available.
func (p *PendingDispatch) Done() <-chan struct{} { return p.done }

// Wait blocks until the dispatch completes or ctx ends.
func (p *PendingDispatch) Wait(ctx context.Context) (models.DispatchResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return models.DispatchResult{Reason: ReasonPending}, ctx.Err()
	}
}

// NotificationService fans pushes out to every device of a member.
type NotificationService struct {
	Store     FlagStore
	Directory UserDirectory
	Settings  SettingsProvider
	Push      PushProvider
	Sink      ErrorLogSink
	Queue     *WorkQueue
	Log       zerolog.Logger

	// Timeout bounds an asynchronous dispatch.
	Timeout time.Duration
	Now     func() time.Time
}

func (s *NotificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DispatchAsync schedules the dispatch on the work queue and returns its
// future. Without a queue the dispatch runs before returning.
func (s *NotificationService) DispatchAsync(req NotificationRequest) *PendingDispatch {
	if s.Queue == nil {
		return ResolvedDispatch(s.dispatchBounded(context.Background(), req))
	}

	pending := newPendingDispatch()
	err := s.Queue.Submit(func(ctx context.Context) {
		pending.resolve(s.dispatchBounded(ctx, req))
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("to", req.To).Str("key", req.Key).Msg("notification dropped")
		pending.resolve(models.DispatchResult{Reason: ReasonQueueUnavailable, Results: []models.PushReceipt{}})
	}
	return pending
}

// dispatchBounded runs Dispatch under s.Timeout when one is set.
func (s *NotificationService) dispatchBounded(ctx context.Context, req NotificationRequest) models.DispatchResult {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Dispatch(ctx, req)
}

// Dispatch sends req to every registered device of the target. It succeeds
// when at least one device accepted the message and never returns an error;
// failures end up in the result and the error log sink.
func (s *NotificationService) Dispatch(ctx context.Context, req NotificationRequest) models.DispatchResult {
	result := models.DispatchResult{Results: []models.PushReceipt{}}
	logger := s.Log.With().Str("from", req.From).Str("to", req.To).Str("key", req.Key).Logger()

	if req.From != "" {
		blocked, err := IsBlockedBetween(ctx, s.Store, req.From, req.To)
		if err != nil {
			logger.Error().Err(err).Msg("block lookup failed")
			result.Reason = ReasonBlockUnavailable
			return result
		}
		if blocked {
			result.Reason = ReasonBlocked
			return result
		}
	}

	target, err := s.Directory.GetMember(ctx, req.To)
	if err != nil {
		logger.Warn().Err(err).Msg("notification target lookup failed")
		result.Reason = ReasonTargetUnknown
		return result
	}
	if !target.NotifyEnabled(req.Key) {
		result.Reason = ReasonDisabled
		return result
	}
	if len(target.DeviceTokens) == 0 {
		result.Reason = ReasonMissingTokens
		return result
	}

	title, body := req.Title, req.Body
	if settings, err := s.Settings.Settings(ctx); err == nil {
		tpl := settings.Notifications[req.Key]
		if title == "" {
			title = tpl.Title
		}
		if body == "" {
			body = tpl.Body
		}
	} else {
		logger.Warn().Err(err).Msg("settings unavailable, sending without template")
	}

	data := map[string]string{"key": req.Key}
	if req.From != "" {
		data["from"] = req.From
	}
	for k, v := range req.Data {
		data[k] = v
	}

	receipts := make([]models.PushReceipt, len(target.DeviceTokens))
	var credentialOnce sync.Once
	var g errgroup.Group
	for i, token := range target.DeviceTokens {
		g.Go(func() error {
			msg := models.PushMessage{Token: token, Title: title, Body: body, Data: data}
			rec, err := s.Push.Send(ctx, msg)
			rec.Token = token
			if err == nil && rec.Delivered {
				receipts[i] = rec
				return nil
			}
			s.recordFailure(ctx, logger, req, token, err, &credentialOnce)
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range receipts {
		if rec.Delivered {
			result.Results = append(result.Results, rec)
		}
	}
	result.Valid = len(result.Results) > 0
	if !result.Valid {
		result.Reason = ReasonDeliveryFailed
	}
	logger.Debug().Int("tokens", len(target.DeviceTokens)).Int("delivered", len(result.Results)).Msg("notification dispatched")
	return result
}

// recordFailure files a failed attempt under its category. Credential
// failures are recorded once per dispatch.
func (s *NotificationService) recordFailure(ctx context.Context, logger zerolog.Logger, req NotificationRequest, token string, err error, credentialOnce *sync.Once) {
	rec := ErrorRecord{
		UserID: req.To,
		Token:  token,
		Data:   map[string]string{"key": req.Key, "from": req.From},
		At:     s.now(),
	}

	var pe *PushError
	switch {
	case errors.As(err, &pe) && pe.Kind == PushErrorCredential:
		rec.Category = ErrorCategoryCredentials
		rec.Token = ""
		rec.Kind, rec.Code, rec.Message = string(pe.Kind), pe.Code, pe.Message
		credentialOnce.Do(func() { s.writeRecord(ctx, logger, rec) })
		return
	case errors.As(err, &pe):
		rec.Category = ErrorCategoryDelivery
		rec.Kind, rec.Code, rec.Message = string(pe.Kind), pe.Code, pe.Message
	default:
		rec.Category = ErrorCategoryUnknown
		rec.Message = "delivery failed without a provider error"
		if err != nil {
			rec.Message = err.Error()
		}
	}
	s.writeRecord(ctx, logger, rec)
}

func (s *NotificationService) writeRecord(ctx context.Context, logger zerolog.Logger, rec ErrorRecord) {
	if s.Sink == nil {
		return
	}
	// the dispatch context may be spent by the time a slow token fails
	ctx = context.WithoutCancel(ctx)
	if err := s.Sink.Record(ctx, rec); err != nil {
		logger.Error().Err(err).Str("category", rec.Category).Msg("failed to write error log record")
	}
}
