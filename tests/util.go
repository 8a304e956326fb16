package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	nombre, cedula, pwd, role string,
	status int,
	registradoPor ...int,
) user.User {
	usr := user.User{
		Nombre:    nombre,
		Cedula:    cedula,
		Role:      role,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if len(registradoPor) > 0 {
		usr.RegistradoPor = null.IntFrom(registradoPor[0])
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NewValidator returns a validator with every application validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// Entry is a line recorded by Logger.
type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log lines instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *Logger) Entries(level string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Event is a notification recorded by Notifier.
type Event struct {
	Session string
	Name    string
	Data    interface{}
}

// Notifier records emitted events. Sessions marked offline reject them.
type Notifier struct {
	mu      sync.Mutex
	events  []Event
	offline map[string]bool
}

var _ core.Notifier = (*Notifier)(nil)

func (n *Notifier) Emit(sessionID, event string, data interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline[sessionID] {
		return fmt.Errorf("session %q not connected", sessionID)
	}
	n.events = append(n.events, Event{Session: sessionID, Name: event, Data: data})
	return nil
}

func (n *Notifier) SetOffline(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline == nil {
		n.offline = make(map[string]bool)
	}
	n.offline[sessionID] = true
}

// Events returns what was emitted to sessionID, or every event when sessionID is empty.
func (n *Notifier) Events(sessionID string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if sessionID == "" || e.Session == sessionID {
			out = append(out, e)
		}
	}
	return out
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	n.events = nil
	n.offline = nil
	n.mu.Unlock()
}
