package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/auth"
	"github.com/saudemunicipal/console/internal/metrics"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/tokenstore"
	"github.com/saudemunicipal/console/internal/util"
)

const genericAuthMessage = "credenciais inválidas"

// Backend é o subconjunto da API de recursos usado pela sessão.
type Backend interface {
	Login(ctx context.Context, identifier, password string) (*resource.LoginResponse, error)
	Me(ctx context.Context) (model.UserProfile, error)
	MyPermissions(ctx context.Context) ([]string, error)
}

// Observer recebe a sessão após cada transição.
type Observer func(Snapshot)

// Manager é o dono único do estado da sessão do processo. Apenas Login,
// InitFromStorage, Refresh e Logout alteram o estado.
type Manager struct {
	store   tokenstore.Store
	backend Backend
	now     func() time.Time

	mu            sync.Mutex
	current       state
	settled       state
	generation    uint64
	expiredNotice bool
	observers     map[int]Observer
	nextObserver  int
}

// NewManager cria o gerenciador em estado Anonymous.
func NewManager(store tokenstore.Store, backend Backend) *Manager {
	initial := state{status: StatusAnonymous}
	return &Manager{
		store:     store,
		backend:   backend,
		now:       time.Now,
		current:   initial,
		settled:   initial,
		observers: make(map[int]Observer),
	}
}

// Snapshot devolve a sessão atual.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.snapshot()
}

// Status devolve o estado atual.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.status
}

// Can consulta o gate de permissão da sessão atual; sem sessão, nega.
func (m *Manager) Can(action string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.status != StatusAuthenticated || m.current.user == nil {
		return false
	}
	return m.current.user.Permissions.Can(action)
}

// User devolve cópia do perfil autenticado.
func (m *Manager) User() (model.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.status != StatusAuthenticated || m.current.user == nil {
		return model.UserProfile{}, false
	}
	return *m.current.user, true
}

// Token devolve o token da sessão autenticada; usado como TokenSource do
// cliente de recursos.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.status == StatusAuthenticated {
		return m.current.token
	}
	return ""
}

// ConsumeExpiredNotice devolve true uma única vez após a sessão expirar.
func (m *Manager) ConsumeExpiredNotice() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	notice := m.expiredNotice
	m.expiredNotice = false
	return notice
}

// Subscribe registra observador e devolve a função para cancelar.
func (m *Manager) Subscribe(fn Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Login autentica com e-mail ou CPF. Em falha o estado anterior é mantido e
// o token armazenado não é tocado.
func (m *Manager) Login(ctx context.Context, identifier, password string) (model.UserProfile, error) {
	identifier = strings.TrimSpace(identifier)
	if err := util.ValidateIdentifier(identifier); err != nil {
		metrics.RecordLogin("invalid_input")
		return model.UserProfile{}, &AuthError{Message: err.Error(), Err: ErrInvalidCredentials}
	}
	if password == "" {
		metrics.RecordLogin("invalid_input")
		return model.UserProfile{}, &AuthError{Message: "senha obrigatória", Err: ErrInvalidCredentials}
	}

	gen := m.begin()

	resp, err := m.backend.Login(ctx, identifier, password)
	if err != nil {
		m.abort(gen)
		return model.UserProfile{}, loginError(err)
	}

	profile, err := resp.User.Normalize()
	if err != nil {
		m.abort(gen)
		metrics.RecordLogin("invalid_profile")
		log.Warn().Err(err).Msg("login: perfil inválido devolvido pela API")
		return model.UserProfile{}, &AuthError{Message: "perfil de usuário incompleto", Err: errors.Join(ErrInvalidProfile, err)}
	}

	token := strings.TrimSpace(resp.AccessToken)
	resolution := m.resolvePermissions(resource.WithToken(ctx, token), profile.Role)
	profile.Permissions = resolution.Permissions

	next := state{
		status:      StatusAuthenticated,
		token:       token,
		user:        &profile,
		source:      resolution.Source,
		tokenExpiry: m.tokenExpiry(token),
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return model.UserProfile{}, ErrSuperseded
	}
	if err := m.store.Set(ctx, token); err != nil {
		m.current = m.settled
		observers := m.observerList()
		snap := m.current.snapshot()
		m.mu.Unlock()
		m.notify(observers, snap)

		metrics.RecordLogin("storage_failure")
		log.Error().Err(err).Msg("login: falha ao persistir token")
		return model.UserProfile{}, &AuthError{Message: ErrTokenPersist.Error(), Err: errors.Join(ErrTokenPersist, err)}
	}
	m.expiredNotice = false
	m.commitLocked(next)
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)

	metrics.RecordLogin("success")
	log.Info().Str("user_id", profile.ID).Str("role", profile.Role.String()).
		Str("permission_source", string(resolution.Source)).Msg("sessão autenticada")
	return profile, nil
}

// InitFromStorage reconstrói a sessão a partir do token salvo. Sem token não
// há chamada de rede; token recusado leva a Expired e limpa o armazenamento.
func (m *Manager) InitFromStorage(ctx context.Context) Snapshot {
	token := m.store.Get(ctx)
	if token == "" {
		return m.Snapshot()
	}

	if info, err := auth.Inspect(token); err == nil && info.ExpiredAt(m.now()) {
		log.Info().Time("expired_at", info.ExpiresAt).Msg("token armazenado já expirado")
		gen := m.begin()
		m.expire(ctx, gen, ErrSessionExpired)
		return m.Snapshot()
	}

	gen := m.begin()
	m.bootstrap(ctx, gen, token)
	return m.Snapshot()
}

// Refresh recarrega perfil e permissões com o token atual, substituindo o
// conjunto de permissões por inteiro. Falha leva a Expired.
func (m *Manager) Refresh(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.current.status != StatusAuthenticated {
		snap := m.current.snapshot()
		m.mu.Unlock()
		return snap, ErrSessionExpired
	}
	token := m.current.token
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if err := m.bootstrap(ctx, gen, token); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// Logout encerra a sessão localmente. Nunca falha e cancela operações pendentes.
// A geração avança e o token é apagado sob o mesmo lock, de modo que nenhum
// login em andamento consegue persistir depois.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	m.store.Clear(ctx)
	m.expiredNotice = false
	m.commitLocked(state{status: StatusAnonymous})
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)

	log.Info().Msg("sessão encerrada")
}

func (m *Manager) bootstrap(ctx context.Context, gen uint64, token string) error {
	callCtx := resource.WithToken(ctx, token)

	profile, err := m.backend.Me(callCtx)
	if err == nil {
		profile, err = profile.Normalize()
		if err != nil {
			err = errors.Join(ErrInvalidProfile, err)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("sessão: falha ao carregar perfil")
		m.expire(ctx, gen, err)
		return errors.Join(ErrSessionExpired, err)
	}

	resolution := m.resolvePermissions(callCtx, profile.Role)
	profile.Permissions = resolution.Permissions

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.commitLocked(state{
		status:      StatusAuthenticated,
		token:       token,
		user:        &profile,
		source:      resolution.Source,
		tokenExpiry: m.tokenExpiry(token),
	})
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)

	log.Info().Str("user_id", profile.ID).Str("role", profile.Role.String()).
		Str("permission_source", string(resolution.Source)).Msg("sessão restaurada")
	return nil
}

// resolvePermissions roda sempre depois do perfil; nunca mescla com o conjunto anterior.
func (m *Manager) resolvePermissions(ctx context.Context, role rbac.Role) rbac.Resolution {
	perms, err := m.backend.MyPermissions(ctx)
	resolution := rbac.Resolve(role, perms, err)
	metrics.RecordPermissionResolution(string(resolution.Source), role.String())
	return resolution
}

func (m *Manager) expire(ctx context.Context, gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.store.Clear(ctx)
	m.expiredNotice = true
	m.commitLocked(state{status: StatusExpired})
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)

	log.Info().Err(cause).Msg("sessão expirada")
}

// begin inicia uma operação que passa por Authenticating.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.current = state{status: StatusAuthenticating}
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)
	metrics.RecordSessionTransition(string(StatusAuthenticating))
	return gen
}

// abort volta ao último estado estável se a operação ainda for a corrente.
func (m *Manager) abort(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.current = m.settled
	observers := m.observerList()
	snap := m.current.snapshot()
	m.mu.Unlock()
	m.notify(observers, snap)
}

func (m *Manager) commitLocked(next state) {
	m.current = next
	m.settled = next
	metrics.RecordSessionTransition(string(next.status))
}

func (m *Manager) observerList() []Observer {
	list := make([]Observer, 0, len(m.observers))
	for _, fn := range m.observers {
		list = append(list, fn)
	}
	return list
}

func (m *Manager) notify(observers []Observer, snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}

func (m *Manager) tokenExpiry(token string) time.Time {
	info, err := auth.Inspect(token)
	if err != nil {
		return time.Time{}
	}
	return info.ExpiresAt
}

func loginError(err error) error {
	if resource.IsUnauthorized(err) || isClientError(err) {
		metrics.RecordLogin("invalid_credentials")
		msg := resource.ServerMessage(err)
		if msg == "" {
			msg = genericAuthMessage
		}
		return &AuthError{Message: msg, Err: errors.Join(ErrInvalidCredentials, err)}
	}

	metrics.RecordLogin("unavailable")
	log.Warn().Err(err).Msg("login: api indisponível")
	msg := resource.ServerMessage(err)
	if msg == "" {
		msg = genericAuthMessage
	}
	return &AuthError{Message: msg, Err: errors.Join(ErrAuthUnavailable, err)}
}

func isClientError(err error) bool {
	var apiErr *resource.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
