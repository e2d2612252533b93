package core

import (
	"testing"
	"time"
)

func newTestSessionManager(t *testing.T, cfg SessionManagerConfig) (*SessionManager, *EntityStore, *LayerRegistry, *ChunkManager) {
	t.Helper()
	layers := NewLayerRegistry()
	store := NewEntityStore(NewSchemaRegistry(), nil)
	chunks := NewChunkManager(layers, store, nil, ChunkManagerConfig{
		GridResolution:    8,
		MaxLoadedChunks:   100,
		MaxRetainedChunks: 1000,
	}, nil)
	mv := NewMovement(store, chunks, layers, MovementConfig{
		Gravity:          -9.81,
		TerminalVelocity: -50,
		GroundFriction:   0.8,
		AirFriction:      0.98,
		CollisionEpsilon: 0.001,
	})
	dur := NewDurability(store, nil, nil, DurabilityConfig{DefaultHealth: 10, DefaultMaxHealth: 10})
	catalog := NewArchetypeCatalog(store, nil)

	cfg.ServerID = "srv"
	cfg.ServerVersion = "test"
	mgr := NewSessionManager(store, chunks, layers, mv, dur, catalog, cfg, nil)
	return mgr, store, layers, chunks
}

func TestSessionManagerConnectDeliversHelloOk(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()

	msg := <-sess.Outbound()
	hello, ok := msg.(HelloOkMessage)
	if !ok {
		t.Fatalf("got %T, want HelloOkMessage", msg)
	}
	if hello.ClientID != sess.id || hello.ServerID != "srv" {
		t.Fatalf("HelloOkMessage = %+v", hello)
	}
	if mgr.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", mgr.Count())
	}
}

func TestSessionManagerDispatchUnknownSession(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	reply := mgr.Dispatch("nope", "login", LoginMessage{})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeInvalidMessage {
		t.Fatalf("Dispatch() on unknown session = %+v", reply)
	}
}

func TestSessionManagerCommandBeforeLoginIsRejected(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound() // hello_ok

	reply := mgr.Dispatch(sess.id, "move", MoveMessage{})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeNotAuthenticated {
		t.Fatalf("Dispatch(move) with no bound player = %+v", reply)
	}
}

func TestSessionManagerLoginBindsPlayerAndAllowsMove(t *testing.T) {
	mgr, store, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound() // hello_ok

	reply := mgr.Dispatch(sess.id, "login", LoginMessage{PlayerName: "Alice"})
	loginOk, ok := reply.(LoginOkMessage)
	if !ok || loginOk.PlayerID == "" || loginOk.LayerID != DefaultLayerID {
		t.Fatalf("Dispatch(login) = %+v", reply)
	}
	if sess.PlayerID() != loginOk.PlayerID {
		t.Fatalf("sess.PlayerID() = %q, want %q", sess.PlayerID(), loginOk.PlayerID)
	}
	if !store.Exists(loginOk.PlayerID) {
		t.Fatal("expected the spawned player entity to exist")
	}

	moveReply := mgr.Dispatch(sess.id, "move", MoveMessage{Want: Vec3{X: 1, Y: 10, Z: 0}})
	moveResult, ok := moveReply.(MoveResultMessage)
	if !ok || !moveResult.Success {
		t.Fatalf("Dispatch(move) after login = %+v", moveReply)
	}
}

func TestSessionManagerLoginTwiceFails(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()

	mgr.Dispatch(sess.id, "login", LoginMessage{})
	reply := mgr.Dispatch(sess.id, "login", LoginMessage{})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeJoinFailed {
		t.Fatalf("second Dispatch(login) = %+v", reply)
	}
}

func TestSessionManagerLoginUnknownLayerFails(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()

	reply := mgr.Dispatch(sess.id, "login", LoginMessage{LayerID: "nowhere"})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeJoinFailed {
		t.Fatalf("Dispatch(login) with unknown layer = %+v", reply)
	}
}

func TestSessionManagerLogoutUnbindsPlayer(t *testing.T) {
	mgr, store, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()

	mgr.Dispatch(sess.id, "login", LoginMessage{})
	playerID := sess.PlayerID()

	reply := mgr.Dispatch(sess.id, "logout", nil)
	if _, ok := reply.(LogoutOkMessage); !ok {
		t.Fatalf("Dispatch(logout) = %+v", reply)
	}
	if sess.PlayerID() != "" {
		t.Fatal("expected PlayerID() to be cleared after logout")
	}
	if store.Exists(playerID) {
		t.Fatal("expected the player entity to be removed after logout")
	}
}

func TestSessionManagerMoveDirTranslatesDirectionsIntoMove(t *testing.T) {
	mgr, store, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})
	playerID := sess.PlayerID()

	before := mustPosition(store, playerID)
	reply := mgr.Dispatch(sess.id, "move_dir", MoveDirMessage{Directions: []Direction{DirectionEast}})
	result, ok := reply.(MoveResultMessage)
	if !ok || !result.Success {
		t.Fatalf("Dispatch(move_dir) = %+v", reply)
	}
	if result.Position.X <= before.X {
		t.Fatalf("position after east move_dir = %+v, want greater X than %+v", result.Position, before)
	}
}

func TestSessionManagerAddAndRemoveContract(t *testing.T) {
	mgr, store, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})
	playerID := sess.PlayerID()

	reply := mgr.Dispatch(sess.id, "add_contract", AddContractMessage{EntityID: playerID, Contract: Visual{Visible: true}})
	if reply != nil {
		t.Fatalf("Dispatch(add_contract) = %+v, want nil (no reply on success)", reply)
	}
	if _, ok := store.Get(playerID, KindVisual); !ok {
		t.Fatal("expected the contract to have been added")
	}

	reply = mgr.Dispatch(sess.id, "remove_contract", RemoveContractMessage{EntityID: playerID, ContractType: KindVisual})
	if reply != nil {
		t.Fatalf("Dispatch(remove_contract) = %+v, want nil", reply)
	}
	if _, ok := store.Get(playerID, KindVisual); ok {
		t.Fatal("expected the contract to have been removed")
	}
}

func TestSessionManagerAddContractRejectsForeignEntity(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})

	reply := mgr.Dispatch(sess.id, "add_contract", AddContractMessage{EntityID: "someone-else", Contract: Visual{Visible: true}})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodePermissionDenied {
		t.Fatalf("Dispatch(add_contract) on a foreign entity = %+v", reply)
	}
}

func TestSessionManagerDisconnectRemovesPlayerAndSubscriptions(t *testing.T) {
	mgr, store, _, chunks := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})
	playerID := sess.PlayerID()

	key := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}
	chunks.Subscribe(sess, key)

	mgr.Disconnect(sess.id)

	if store.Exists(playerID) {
		t.Fatal("expected the player entity to be removed on disconnect")
	}
	if mgr.Count() != 0 {
		t.Fatalf("Count() after disconnect = %d, want 0", mgr.Count())
	}
	if subs := chunks.SubscribedChunks(sess.id); len(subs) != 0 {
		t.Fatalf("expected all chunk subscriptions to be dropped, got %v", subs)
	}
	if sess.Alive() {
		t.Fatal("expected the session to be closed after disconnect")
	}
}

func TestSessionManagerSweepLivenessDisconnectsStaleSessions(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{ConnectionTimeout: time.Minute})
	now := time.Now()
	mgr.SetClock(func() time.Time { return now })

	sess := mgr.Connect()
	<-sess.Outbound()

	now = now.Add(2 * time.Minute)
	mgr.SweepLiveness()

	if mgr.Count() != 0 {
		t.Fatalf("Count() after SweepLiveness = %d, want 0", mgr.Count())
	}
}

func TestSessionManagerRateLimitExceeded(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{
		RateLimitWindow: time.Second,
		RateLimitMax:    1,
	})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})

	var lastReply any
	for i := 0; i < 5; i++ {
		lastReply = mgr.Dispatch(sess.id, "set_view", SetViewMessage{Radius: 10})
	}
	errMsg, ok := lastReply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeInvalidMessage {
		t.Fatalf("expected eventual rate-limit rejection, got %+v", lastReply)
	}
}

func TestSessionManagerUnrecognizedCommand(t *testing.T) {
	mgr, _, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})

	reply := mgr.Dispatch(sess.id, "do_a_barrel_roll", nil)
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeUnknownMessageType {
		t.Fatalf("Dispatch(unknown command) = %+v", reply)
	}
}

func TestSessionManagerWorldCommandsAllowListRestrictsAccess(t *testing.T) {
	mgr, store, _, _ := newTestSessionManager(t, SessionManagerConfig{})
	_ = store.Create(worldEntityID(DefaultLayerID), WorldCommands{Allowed: []string{"login"}})

	sess := mgr.Connect()
	<-sess.Outbound()
	mgr.Dispatch(sess.id, "login", LoginMessage{})

	reply := mgr.Dispatch(sess.id, "set_view", SetViewMessage{Radius: 5})
	errMsg, ok := reply.(ErrorMessage)
	if !ok || errMsg.Code != ErrCodeForbidden {
		t.Fatalf("Dispatch(set_view) outside the world's allow-list = %+v", reply)
	}
}
