package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/user"
	"github.com/trezcool/tutorias/services/realtime"
)

// Client events
const (
	evtAuthenticate = "autenticar"
	evtCall         = "llamar"
	evtAccept       = "aceptar_llamada"
	evtSignal       = "senal_webrtc"
	evtEnd          = "finalizar_llamada"
	evtHeartbeat    = "latido"
)

// Server events
const (
	evtAuthenticated = "autenticado"
	evtCallResult    = "resultado_llamada"
)

const minTouchInterval = 10 * time.Second

var (
	errInvalidPayload = core.NewValidationError(errors.New("datos del evento inválidos"))
	errTokenMismatch  = errors.New("el token no corresponde al usuario")
	errUnknownEvent   = errors.New("evento desconocido")
)

// PresenceTracker is the presence surface used by the real-time channel.
type PresenceTracker interface {
	Authenticate(ctx context.Context, userID int, sessionID string) (user.User, error)
	Clear(ctx context.Context, sessionID string) error
	Lookup(ctx context.Context, userID int) (user.User, error)
	Owner(ctx context.Context, sessionID string) (user.User, error)
	Touch(ctx context.Context, sessionID string) error
}

var _ PresenceTracker = (*presence.Tracker)(nil)

type socketApi struct {
	conf       *core.Config
	logger     core.Logger
	hub        *realtime.Hub
	tracker    PresenceTracker
	relay      call.RelayInterface
	translator ut.Translator
}

func registerSocketAPI(app *echo.Echo, deps ServerDeps) {
	api := socketApi{
		conf:       deps.Conf,
		logger:     deps.Logger,
		hub:        deps.Hub,
		tracker:    deps.Tracker,
		relay:      deps.Relay,
		translator: deps.Translator,
	}
	app.GET("/ws", api.serve)
}

type (
	authPayload struct {
		UserID int    `json:"userId"`
		Token  string `json:"token"`
	}

	callPayload struct {
		From int `json:"de"`
		To   int `json:"a"`
	}

	acceptPayload struct {
		CallID int `json:"callId"`
	}

	signalPayload struct {
		Target int         `json:"destinatario"`
		Signal call.Signal `json:"senal"`
		Senal  call.Signal `json:"señal"`
	}
)

// UnmarshalJSON also accepts a bare user ID, as a number or a string.
func (p *authPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain authPayload
		return json.Unmarshal(data, (*plain)(p))
	}
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if err = json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = json.Number(s)
	}
	id, err := strconv.Atoi(raw.String())
	if err != nil {
		return err
	}
	p.UserID = id
	return nil
}

// serve upgrades the request and runs the session until it closes. Session lifetime is detached from
// the request context so that the disconnect cleanup always runs.
func (api *socketApi) serve(ctx echo.Context) error {
	conn, err := api.hub.Upgrade(ctx.Response(), ctx.Request())
	if err != nil {
		api.logger.Debug("websocket upgrade failed", err)
		return nil
	}

	sessCtx := context.Background()
	var lastTouch time.Time
	conn.ReadLoop(
		func(f realtime.Frame) { api.dispatch(sessCtx, conn, f) },
		func() {
			if conn.UserID() == 0 || time.Since(lastTouch) < minTouchInterval {
				return
			}
			lastTouch = time.Now()
			api.touch(sessCtx, conn)
		},
	)
	api.disconnect(sessCtx, conn)
	return nil
}

func (api *socketApi) dispatch(ctx context.Context, conn *realtime.Conn, f realtime.Frame) {
	var err error
	switch f.Event {
	case evtAuthenticate:
		err = api.authenticate(ctx, conn, f.Data)
	case evtCall:
		err = api.call(ctx, conn, f.Data)
	case evtAccept:
		err = api.accept(ctx, conn, f.Data)
	case evtSignal:
		err = api.signal(ctx, conn, f.Data)
	case evtEnd:
		err = api.end(ctx, conn)
	case evtHeartbeat:
		api.touch(ctx, conn)
	default:
		err = core.NewValidationError(errUnknownEvent)
	}
	if err != nil {
		api.emitError(conn, f.Event, err)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

// identity returns the user authenticated on conn. A session superseded by another one loses its identity.
func (api *socketApi) identity(ctx context.Context, conn *realtime.Conn) (int, error) {
	userID := conn.UserID()
	if userID == 0 {
		return 0, call.ErrNotAuthorized
	}
	usr, err := api.tracker.Owner(ctx, conn.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			conn.SetUserID(0)
			return 0, call.ErrNotAuthorized
		}
		return 0, errors.Wrap(err, "finding session owner")
	}
	if usr.ID != userID {
		conn.SetUserID(0)
		return 0, call.ErrNotAuthorized
	}
	return userID, nil
}

func (api *socketApi) authenticate(ctx context.Context, conn *realtime.Conn, data json.RawMessage) error {
	var p authPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "userId", Error: "this field is required"})
	}
	if api.conf.Signaling.RequireToken || p.Token != "" {
		claims, err := ParseToken(p.Token, api.conf.SecretKey)
		if err != nil {
			return call.ErrNotAuthorized
		}
		if claims.UserID() != p.UserID {
			return errTokenMismatch
		}
	}

	// the session switches identity: calls of the previous one end here
	if prev := conn.UserID(); prev != 0 && prev != p.UserID {
		if err := api.relay.EndCall(ctx, prev); err != nil {
			api.logger.Error("ending calls of previous identity", err, map[string]interface{}{"user_id": prev})
		}
	}

	usr, err := api.tracker.Authenticate(ctx, p.UserID, conn.ID)
	if err != nil {
		return errors.Wrap(err, "authenticating session")
	}
	conn.SetUserID(usr.ID)
	return conn.Emit(evtAuthenticated, usr)
}

func (api *socketApi) call(ctx context.Context, conn *realtime.Conn, data json.RawMessage) error {
	callerID, err := api.identity(ctx, conn)
	if err != nil {
		return err
	}
	var p callPayload
	if err = decode(data, &p); err != nil {
		return err
	}
	if p.From != 0 && p.From != callerID {
		return call.ErrNotAuthorized
	}
	if p.To <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "a", Error: "this field is required"})
	}

	outcome, err := api.relay.InitiateCall(ctx, callerID, p.To)
	if err != nil {
		return errors.Wrap(err, "initiating call")
	}
	return conn.Emit(evtCallResult, outcome)
}

func (api *socketApi) accept(ctx context.Context, conn *realtime.Conn, data json.RawMessage) error {
	calleeID, err := api.identity(ctx, conn)
	if err != nil {
		return err
	}
	var p acceptPayload
	if err = decode(data, &p); err != nil {
		return err
	}
	return errors.Wrap(api.relay.Accept(ctx, calleeID, p.CallID), "accepting call")
}

func (api *socketApi) signal(ctx context.Context, conn *realtime.Conn, data json.RawMessage) error {
	senderID, err := api.identity(ctx, conn)
	if err != nil {
		return err
	}
	var p signalPayload
	if err = decode(data, &p); err != nil {
		return err
	}
	sig := p.Signal
	if len(sig) == 0 {
		sig = p.Senal
	}
	return errors.Wrap(api.relay.RelaySignal(ctx, senderID, p.Target, sig), "relaying signal")
}

func (api *socketApi) end(ctx context.Context, conn *realtime.Conn) error {
	userID, err := api.identity(ctx, conn)
	if err != nil {
		return err
	}
	return errors.Wrap(api.relay.EndCall(ctx, userID), "ending call")
}

func (api *socketApi) touch(ctx context.Context, conn *realtime.Conn) {
	if conn.UserID() == 0 {
		return
	}
	if err := api.tracker.Touch(ctx, conn.ID); err != nil {
		api.logger.Error("touching session", err, map[string]interface{}{"session": conn.ID})
	}
}

// disconnect clears the presence of conn, then ends the calls of its identity unless a newer session holds it.
func (api *socketApi) disconnect(ctx context.Context, conn *realtime.Conn) {
	if err := api.tracker.Clear(ctx, conn.ID); err != nil {
		api.logger.Error("clearing session", err, map[string]interface{}{"session": conn.ID})
	}

	userID := conn.UserID()
	if userID == 0 {
		return
	}
	usr, err := api.tracker.Lookup(ctx, userID)
	if err == nil && usr.Online && usr.SocketID.Valid && usr.SocketID.String != conn.ID {
		return
	}
	if err = api.relay.EndCall(ctx, userID); err != nil {
		api.logger.Error("ending calls on disconnect", err, map[string]interface{}{"user_id": userID})
	}
}

// emitError reports err on conn. Unexpected failures are logged and hidden from the client.
func (api *socketApi) emitError(conn *realtime.Conn, event string, err error) {
	data := realtime.ErrorData{Event: event}
	switch cause := errors.Cause(err); cause {
	case call.ErrNotAuthorized, call.ErrNoActiveCall, call.ErrPeerOffline, errTokenMismatch:
		data.Message = cause.Error()
	default:
		code, resp := describeError(err, api.translator)
		if code >= 500 {
			api.logger.Error("real-time event failed", err, map[string]interface{}{"event": event, "session": conn.ID})
		}
		data.Message = resp.Message
		data.Fields = resp.Fields
	}
	conn.EmitError(data)
}
