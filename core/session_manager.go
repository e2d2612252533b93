package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	errNotAuthenticated = errors.New("not authenticated")
	errForbidden        = errors.New("command forbidden")
)

// Session binds a transport connection to an optional player entity, a
// view radius, liveness state, and a rate limiter. It implements
// ChunkSubscriber directly: its outbound channel is the Deliver target.
type Session struct {
	id       string
	outbound chan any
	closed   int32
	limiter  *rate.Limiter

	mu           sync.Mutex
	playerID     string
	layerID      string
	viewRadius   float64
	lastActivity time.Time
}

// SessionID satisfies ChunkSubscriber.
func (s *Session) SessionID() string { return s.id }

// Deliver satisfies ChunkSubscriber: a non-blocking send.
func (s *Session) Deliver(msg any) bool {
	if !s.Alive() {
		return false
	}
	select {
	case s.outbound <- msg:
		return true
	default:
		return false
	}
}

// Alive satisfies ChunkSubscriber.
func (s *Session) Alive() bool { return atomic.LoadInt32(&s.closed) == 0 }

// Outbound exposes the channel a transport binding reads from to write
// frames to the client.
func (s *Session) Outbound() <-chan any { return s.outbound }

// Close marks the session dead and closes its outbound channel. Safe to
// call more than once.
func (s *Session) Close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		close(s.outbound)
	}
}

// PlayerID returns the entity id bound to this session, or "" if unbound.
func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// LayerID returns the layer the bound player (if any) belongs to.
func (s *Session) LayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layerID
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SessionManagerConfig bundles the transport-level tunables.
type SessionManagerConfig struct {
	ServerID           string
	ServerVersion      string
	HeartbeatInterval  time.Duration
	ConnectionTimeout  time.Duration
	OutboundBufferSize int
	RateLimitWindow    time.Duration
	RateLimitMax       int
}

// SessionManager owns every live session and dispatches protocol commands
// into core operations.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store      *EntityStore
	chunks     *ChunkManager
	layers     *LayerRegistry
	movement   *Movement
	durability *DurabilitySystem
	catalog    *ArchetypeCatalog
	cfg        SessionManagerConfig
	log        *logrus.Logger
	clock      func() time.Time
}

// NewSessionManager builds a session manager wired to every other core
// subsystem.
func NewSessionManager(
	store *EntityStore,
	chunks *ChunkManager,
	layers *LayerRegistry,
	movement *Movement,
	durability *DurabilitySystem,
	catalog *ArchetypeCatalog,
	cfg SessionManagerConfig,
	log *logrus.Logger,
) *SessionManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.OutboundBufferSize <= 0 {
		cfg.OutboundBufferSize = 256
	}
	return &SessionManager{
		sessions:   make(map[string]*Session),
		store:      store,
		chunks:     chunks,
		layers:     layers,
		movement:   movement,
		durability: durability,
		catalog:    catalog,
		cfg:        cfg,
		log:        log,
		clock:      time.Now,
	}
}

// SetClock overrides the manager's time source for tests.
func (m *SessionManager) SetClock(fn func() time.Time) {
	if fn != nil {
		m.clock = fn
	}
}

func (m *SessionManager) now() time.Time { return m.clock() }

// Connect registers a new session and immediately delivers hello_ok.
func (m *SessionManager) Connect() *Session {
	var limiter *rate.Limiter
	if m.cfg.RateLimitMax > 0 && m.cfg.RateLimitWindow > 0 {
		perSecond := float64(m.cfg.RateLimitMax) / m.cfg.RateLimitWindow.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), m.cfg.RateLimitMax)
	}
	sess := &Session{
		id:           uuid.NewString(),
		outbound:     make(chan any, m.cfg.OutboundBufferSize),
		limiter:      limiter,
		lastActivity: m.now(),
	}
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	sess.Deliver(HelloOkMessage{
		Type:          "hello_ok",
		ClientID:      sess.id,
		ServerID:      m.cfg.ServerID,
		ServerVersion: m.cfg.ServerVersion,
	})
	return sess
}

func (m *SessionManager) session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of currently connected sessions, used by the
// admin /stats surface.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Disconnect removes any bound player, clears all chunk subscriptions, and
// drops the session.
func (m *SessionManager) Disconnect(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	if playerID := sess.PlayerID(); playerID != "" {
		m.store.Remove(playerID)
		m.catalog.Despawn(playerID)
	}
	m.chunks.UnsubscribeAll(id)
	sess.Close()
}

// SweepLiveness disconnects every session that has missed its liveness
// window (default twice the heartbeat interval, via ConnectionTimeout).
func (m *SessionManager) SweepLiveness() {
	cutoff := m.now().Add(-m.cfg.ConnectionTimeout)
	m.mu.RLock()
	var stale []string
	for id, sess := range m.sessions {
		if sess.lastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.log.WithField("session", id).Info("disconnecting session: liveness timeout")
		m.Disconnect(id)
	}
}

func worldEntityID(layerID string) string { return "world:" + layerID }

func containsCommand(list []string, command string) bool {
	for _, c := range list {
		if c == command {
			return true
		}
	}
	return false
}

// checkAccess enforces the world's world_commands allow-list
// (if any), then the bound player's command_access (if a player is bound).
// login is the sole command allowed without a bound player.
func (m *SessionManager) checkAccess(sess *Session, command string) error {
	layerID := sess.LayerID()
	if layerID == "" {
		layerID = DefaultLayerID
	}
	if wcC, ok := m.store.Get(worldEntityID(layerID), KindWorldCommands); ok {
		wc := wcC.(WorldCommands)
		if !containsCommand(wc.Allowed, command) {
			return errForbidden
		}
	}

	playerID := sess.PlayerID()
	if playerID == "" {
		return errNotAuthenticated
	}
	if caC, ok := m.store.Get(playerID, KindCommandAccess); ok {
		ca := caC.(CommandAccess)
		if !containsCommand(ca.Allowed, command) {
			return errForbidden
		}
	}
	return nil
}

// Dispatch resolves and enforces access for command, then executes it. The
// returned value is a protocol reply to deliver to the originating
// session; broadcasts to other sessions happen as a side effect of the
// core operations invoked.
func (m *SessionManager) Dispatch(sessionID, command string, payload any) any {
	sess, ok := m.session(sessionID)
	if !ok {
		return NewErrorMessage(ErrCodeInvalidMessage, "unknown session")
	}
	sess.touch(m.now())

	if sess.limiter != nil && !sess.limiter.Allow() {
		return NewErrorMessage(ErrCodeInvalidMessage, "rate limit exceeded")
	}

	if command != "login" {
		if err := m.checkAccess(sess, command); err != nil {
			if errors.Is(err, errNotAuthenticated) {
				return NewErrorMessage(ErrCodeNotAuthenticated, "no player bound to session")
			}
			return NewErrorMessage(ErrCodeForbidden, "command not permitted")
		}
	}

	switch command {
	case "login":
		msg, _ := payload.(LoginMessage)
		return m.handleLogin(sess, msg)
	case "logout":
		return m.handleLogout(sess)
	case "set_view":
		msg, _ := payload.(SetViewMessage)
		return m.handleSetView(sess, msg)
	case "subscribe_chunks":
		msg, _ := payload.(SubscribeChunksMessage)
		return m.handleSubscribeChunks(sess, msg)
	case "unsubscribe_chunks":
		msg, _ := payload.(UnsubscribeChunksMessage)
		return m.handleUnsubscribeChunks(sess, msg)
	case "move":
		msg, _ := payload.(MoveMessage)
		return m.handleMove(sess, msg)
	case "move_dir":
		msg, _ := payload.(MoveDirMessage)
		return m.handleMoveDir(sess, msg)
	case "add_contract":
		msg, _ := payload.(AddContractMessage)
		return m.handleAddContract(sess, msg)
	case "remove_contract":
		msg, _ := payload.(RemoveContractMessage)
		return m.handleRemoveContract(sess, msg)
	case "interact":
		return NewErrorMessage(ErrCodeNotImplemented, "interact is reserved")
	default:
		return NewErrorMessage(ErrCodeUnknownMessageType, "unrecognized message type: "+command)
	}
}

func (m *SessionManager) handleLogin(sess *Session, msg LoginMessage) any {
	if sess.PlayerID() != "" {
		return NewErrorMessage(ErrCodeJoinFailed, "session already has a bound player")
	}

	layerID := msg.LayerID
	if layerID == "" {
		layerID = DefaultLayerID
	}
	layer, ok := m.layers.Get(layerID)
	if !ok {
		return NewErrorMessage(ErrCodeJoinFailed, "unknown layer")
	}

	var overrides map[ComponentKind]Component
	if msg.PlayerName != "" {
		overrides = map[ComponentKind]Component{KindIdentity: Identity{Name: msg.PlayerName}}
	}

	playerID, err := m.catalog.Spawn(PlayerArchetypeID, layerID, layer.Spawn, overrides)
	if err != nil {
		return NewErrorMessage(ErrCodeJoinFailed, err.Error())
	}

	sess.mu.Lock()
	sess.playerID = playerID
	sess.layerID = layerID
	sess.mu.Unlock()

	m.chunks.SyncEntityPosition(playerID, layerID, layer.Spawn, layer.ChunkSize)
	m.refreshAutoSubscriptions(sess)

	return LoginOkMessage{Type: "login_ok", PlayerID: playerID, LayerID: layerID}
}

func (m *SessionManager) handleLogout(sess *Session) any {
	playerID := sess.PlayerID()
	if playerID != "" {
		m.store.Remove(playerID)
		m.catalog.Despawn(playerID)
	}
	m.chunks.UnsubscribeAll(sess.id)

	sess.mu.Lock()
	sess.playerID = ""
	sess.layerID = ""
	sess.mu.Unlock()

	return LogoutOkMessage{Type: "logout_ok"}
}

func (m *SessionManager) handleSetView(sess *Session, msg SetViewMessage) any {
	radius := msg.Radius
	if radius < 0 {
		radius = 0
	}
	sess.mu.Lock()
	sess.viewRadius = radius
	sess.mu.Unlock()

	m.refreshAutoSubscriptions(sess)
	return SetViewOkMessage{Type: "set_view_ok", Radius: radius}
}

func (m *SessionManager) handleSubscribeChunks(sess *Session, msg SubscribeChunksMessage) any {
	for _, key := range msg.ChunkKeys {
		m.chunks.Subscribe(sess, key)
	}
	return nil
}

func (m *SessionManager) handleUnsubscribeChunks(sess *Session, msg UnsubscribeChunksMessage) any {
	for _, key := range msg.ChunkKeys {
		m.chunks.Unsubscribe(sess.id, key)
	}
	return nil
}

func (m *SessionManager) handleMove(sess *Session, msg MoveMessage) any {
	return m.applyMove(sess, msg.Want)
}

// handleMoveDir translates up to two cardinal directions into a
// displacement of the player's movement_rules.stepDistance (default 1),
// normalizing diagonals if configured, then applies it as a move.
func (m *SessionManager) handleMoveDir(sess *Session, msg MoveDirMessage) any {
	playerID := sess.PlayerID()
	if playerID == "" {
		return NewErrorMessage(ErrCodeNotAuthenticated, "no player bound to session")
	}

	step := 1.0
	normalizeDiagonal := false
	if mrC, ok := m.store.Get(playerID, KindMovementRules); ok {
		mr := mrC.(MovementRules)
		step = mr.StepDistance
		normalizeDiagonal = mr.DiagonalNormalized
	}

	var offset Vec3
	seen := 0
	for _, dir := range msg.Directions {
		if seen >= 2 {
			break
		}
		d, ok := directionOffset(dir)
		if !ok {
			continue
		}
		offset = offset.Add(d)
		seen++
	}
	if offset.Length() < 1e-12 {
		return m.applyMove(sess, mustPosition(m.store, playerID))
	}

	unit := offset
	if normalizeDiagonal {
		unit = offset.Normalized()
	}
	displacement := unit.Scale(step)

	current := mustPosition(m.store, playerID)
	return m.applyMove(sess, current.Add(displacement))
}

func mustPosition(store *EntityStore, id string) Vec3 {
	if mobC, ok := store.Get(id, KindMobility); ok {
		return mobC.(Mobility).Position
	}
	return Vec3{}
}

func (m *SessionManager) applyMove(sess *Session, want Vec3) any {
	playerID := sess.PlayerID()
	if playerID == "" {
		return NewErrorMessage(ErrCodeNotAuthenticated, "no player bound to session")
	}
	layerID := sess.LayerID()

	result := m.movement.AttemptMove(playerID, layerID, want, tickDtSeconds())

	if mobC, ok := m.store.Get(playerID, KindMobility); ok {
		mob := mobC.(Mobility)
		mob.Position = result.Position
		m.store.RemoveComponent(playerID, KindMobility)
		_, _ = m.store.Add(playerID, mob)
	}

	layer, _ := m.layers.Get(layerID)
	m.chunks.SyncEntityPosition(playerID, layerID, result.Position, layer.ChunkSize)
	m.chunks.BroadcastUpdate(playerID)
	m.refreshAutoSubscriptions(sess)

	reply := MoveResultMessage{Type: "move_result", Success: result.OK, Position: result.Position, Reason: result.BlockedReason}
	return reply
}

// tickDtSeconds is the nominal dt used when an authoritative move is
// driven directly from a session message rather than the tick loop. It
// mirrors the scheduler's default target frequency.
func tickDtSeconds() float64 { return 1.0 / 60.0 }

func (m *SessionManager) handleAddContract(sess *Session, msg AddContractMessage) any {
	playerID := sess.PlayerID()
	if playerID == "" {
		return NewErrorMessage(ErrCodeNotAuthenticated, "no player bound to session")
	}
	if msg.EntityID != playerID {
		return NewErrorMessage(ErrCodePermissionDenied, "sessions may only mutate their own player entity")
	}
	if msg.Contract == nil {
		return NewErrorMessage(ErrCodeAddContractFailed, "missing contract")
	}

	if _, err := m.store.Add(playerID, msg.Contract); err != nil {
		return NewErrorMessage(ErrCodeAddContractFailed, err.Error())
	}
	m.chunks.BroadcastUpdate(playerID)
	return nil
}

func (m *SessionManager) handleRemoveContract(sess *Session, msg RemoveContractMessage) any {
	playerID := sess.PlayerID()
	if playerID == "" {
		return NewErrorMessage(ErrCodeNotAuthenticated, "no player bound to session")
	}
	if msg.EntityID != playerID {
		return NewErrorMessage(ErrCodePermissionDenied, "sessions may only mutate their own player entity")
	}

	if !m.store.RemoveComponent(playerID, msg.ContractType) {
		return NewErrorMessage(ErrCodeContractNotFound, "no component of that kind")
	}
	m.chunks.BroadcastUpdate(playerID)
	return nil
}

// refreshAutoSubscriptions recomputes the desired chunk
// neighborhood from the player's position and view radius, then diff
// against the current subscription set.
func (m *SessionManager) refreshAutoSubscriptions(sess *Session) {
	playerID := sess.PlayerID()
	if playerID == "" {
		return
	}
	mobC, ok := m.store.Get(playerID, KindMobility)
	if !ok {
		return
	}
	pos := mobC.(Mobility).Position

	sess.mu.Lock()
	layerID := sess.layerID
	radius := sess.viewRadius
	sess.mu.Unlock()

	layer, ok := m.layers.Get(layerID)
	if !ok {
		return
	}

	desiredCoords := ChunksInRadius(pos, radius, layer.ChunkSize)
	desired := make(map[string]ChunkKey, len(desiredCoords))
	for _, c := range desiredCoords {
		k := ChunkKey{LayerID: layerID, CX: c.CX, CY: c.CY, CZ: c.CZ}
		desired[k.String()] = k
	}

	current := make(map[string]ChunkKey)
	for _, k := range m.chunks.SubscribedChunks(sess.id) {
		if k.LayerID == layerID {
			current[k.String()] = k
		}
	}

	for ks, k := range current {
		if _, stillWanted := desired[ks]; !stillWanted {
			m.chunks.Unsubscribe(sess.id, k)
		}
	}
	for ks, k := range desired {
		if _, already := current[ks]; !already {
			m.chunks.Subscribe(sess, k)
		}
	}
}
