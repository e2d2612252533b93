package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/WorldsMadeReal/world-host/core"
)

func decodeComponentList(raws []json.RawMessage) ([]core.Component, error) {
	out := make([]core.Component, 0, len(raws))
	for _, raw := range raws {
		c, err := core.DecodeComponent(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) listLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Layers.List())
}

func (s *Server) createLayer(w http.ResponseWriter, r *http.Request) {
	var layer core.Layer
	if err := json.NewDecoder(r.Body).Decode(&layer); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.world.Layers.Create(layer); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, layer)
}

func (s *Server) listArchetypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Catalog.List())
}

// defineArchetypeRequest mirrors core.Archetype but decodes its component
// list through componentEnvelope-style kind dispatch, since Archetype's
// own Components field is a slice of the Component interface.
type defineArchetypeRequest struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	Tags       []string                   `json:"tags"`
	Components []json.RawMessage          `json:"components"`
}

func (s *Server) defineArchetype(w http.ResponseWriter, r *http.Request) {
	var req defineArchetypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	components, err := decodeComponentList(req.Components)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.world.Catalog.Define(core.Archetype{ID: req.ID, Name: req.Name, Tags: req.Tags, Components: components})
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type spawnRequest struct {
	ArchetypeID string            `json:"archetypeId"`
	LayerID     string            `json:"layerId"`
	Position    core.Vec3         `json:"position"`
	Overrides   []json.RawMessage `json:"overrides,omitempty"`
}

func (s *Server) spawnEntity(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var overrides map[core.ComponentKind]core.Component
	if len(req.Overrides) > 0 {
		components, err := decodeComponentList(req.Overrides)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		overrides = make(map[core.ComponentKind]core.Component, len(components))
		for _, c := range components {
			overrides[c.Kind()] = c
		}
	}

	id, err := s.world.Catalog.Spawn(req.ArchetypeID, req.LayerID, req.Position, overrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := s.world.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := core.MarshalSnapshot(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.snapshotIO.Write(req.Path, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entities": len(snap.Entities)})
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := s.snapshotIO.Read(req.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	snap, err := core.UnmarshalSnapshot(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.world.Restore(snap); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entities": len(snap.Entities)})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Metrics.Snapshot())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
