package core

import "testing"

func TestLayerRegistrySeedsDefaultLayer(t *testing.T) {
	r := NewLayerRegistry()
	l, ok := r.Get(DefaultLayerID)
	if !ok {
		t.Fatal("expected the default layer to be seeded")
	}
	if l.ChunkSize <= 0 {
		t.Fatalf("default layer chunk size = %v, want positive", l.ChunkSize)
	}
}

func TestLayerRegistryCreateAndGet(t *testing.T) {
	r := NewLayerRegistry()
	layer := Layer{ID: "nether", Name: "Nether", ChunkSize: 16, Gravity: -5}
	if err := r.Create(layer); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, ok := r.Get("nether")
	if !ok || got.Name != "Nether" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}
}

func TestLayerRegistryCreateDuplicateFails(t *testing.T) {
	r := NewLayerRegistry()
	if err := r.Create(Layer{ID: "a", ChunkSize: 16}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := r.Create(Layer{ID: "a", ChunkSize: 16}); err != ErrAlreadyExists {
		t.Fatalf("Create() duplicate = %v, want ErrAlreadyExists", err)
	}
}

func TestLayerRegistryCreateRejectsNonPositiveChunkSize(t *testing.T) {
	r := NewLayerRegistry()
	if err := r.Create(Layer{ID: "bad", ChunkSize: 0}); err == nil {
		t.Fatal("expected zero chunk size to be rejected")
	}
}

func TestLayerRegistryDefaultLayerCannotBeRemoved(t *testing.T) {
	r := NewLayerRegistry()
	if err := r.Remove(DefaultLayerID); err != ErrLayerProtected {
		t.Fatalf("Remove(default) = %v, want ErrLayerProtected", err)
	}
}

func TestLayerRegistryRemoveUnknownFails(t *testing.T) {
	r := NewLayerRegistry()
	if err := r.Remove("ghost"); err != ErrLayerNotFound {
		t.Fatalf("Remove(ghost) = %v, want ErrLayerNotFound", err)
	}
}

func TestLayerRegistryIDsIncludesCreatedLayers(t *testing.T) {
	r := NewLayerRegistry()
	_ = r.Create(Layer{ID: "nether", ChunkSize: 16})
	ids := r.IDs()
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[DefaultLayerID] || !found["nether"] {
		t.Fatalf("IDs() = %v, want both default and nether", ids)
	}
}
