// state.go — конечный автомат состояния аутентификации.
//
// Жизненный цикл:
//   - LoggedOut → LoggingIn → LoggedIn | LoggedOut
//   - LoggedIn → TokenExpired → Refreshing → LoggedIn | LoggedOut
//
// Выход (→ LoggedOut) допустим из любого состояния, кроме LoggedOut.
// Автомат создаётся на одну операцию: начальное состояние выводится
// из хранилища сессии запроса.
package authprovider

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// State — состояние аутентификации.
type State string

const (
	StateLoggedOut    State = "logged_out"
	StateLoggingIn    State = "logging_in"
	StateLoggedIn     State = "logged_in"
	StateTokenExpired State = "token_expired"
	StateRefreshing   State = "refreshing"
)

// transitionsTotal — выполненные переходы.
var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wa_auth_transitions_total",
		Help: "Количество переходов состояния аутентификации",
	},
	[]string{"from", "to"},
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущее состояние, значение — набор допустимых целевых состояний.
var validTransitions = map[State]map[State]bool{
	StateLoggedOut:    {StateLoggingIn: true},
	StateLoggingIn:    {StateLoggedIn: true, StateLoggedOut: true},
	StateLoggedIn:     {StateTokenExpired: true, StateLoggingIn: true, StateLoggedOut: true},
	StateTokenExpired: {StateRefreshing: true, StateLoggedOut: true},
	StateRefreshing:   {StateLoggedIn: true, StateLoggedOut: true},
}

// TransitionRecord — запись о переходе.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine — автомат состояний одной операции аутентификации.
type Machine struct {
	mu      sync.Mutex
	current State
	history []TransitionRecord
}

// NewMachine создаёт автомат с начальным состоянием.
func NewMachine(initial State) (*Machine, error) {
	if _, ok := validTransitions[initial]; !ok {
		return nil, fmt.Errorf("недопустимое начальное состояние: %q", initial)
	}
	return &Machine{current: initial}, nil
}

// Current возвращает текущее состояние.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanTransitionTo проверяет, допустим ли переход.
func (m *Machine) CanTransitionTo(target State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return validTransitions[m.current][target]
}

// TransitionTo выполняет переход. Недопустимый переход — *TransitionError,
// состояние не меняется.
func (m *Machine) TransitionTo(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !validTransitions[m.current][target] {
		return &TransitionError{From: m.current, To: target}
	}

	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	transitionsTotal.WithLabelValues(string(m.current), string(target)).Inc()
	m.current = target
	return nil
}

// History возвращает историю переходов (копия).
func (m *Machine) History() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// TransitionError — недопустимый переход.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: переход %s → %s недопустим", e.From, e.To)
}
