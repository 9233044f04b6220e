package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// objectRecord is one simulated physical object with its lifecycle
// timestamps, as persisted in the state file.
type objectRecord struct {
	Object    recon.PhysicalObject `json:"object"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Provisioner simulates a provisioning backend. Objects live in an
// in-memory table keyed by physical ID and are mirrored to a JSON state
// file after every mutation, so the inventory survives process restarts.
// With an empty state path the table is memory-only.
type Provisioner struct {
	mu        sync.Mutex
	objects   map[string]objectRecord
	statePath string
	logger    *telemetry.Logger
}

// NewProvisioner creates a provisioner backed by the given state file.
// An existing file is loaded; a missing one starts an empty inventory.
// statePath may be empty for a memory-only provisioner.
func NewProvisioner(statePath string, logger *telemetry.Logger) (*Provisioner, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	p := &Provisioner{
		objects:   make(map[string]objectRecord),
		statePath: statePath,
		logger:    logger.NewComponentLogger("local-provisioner"),
	}

	if statePath != "" {
		if err := p.load(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Describe returns every object matching the predicate, sorted by ID.
func (p *Provisioner) Describe(_ context.Context, pred recon.Predicate) ([]recon.PhysicalObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matches []recon.PhysicalObject
	for _, rec := range p.objects {
		if rec.Object.Kind != pred.Kind {
			continue
		}
		if pred.Identity != "" && rec.Object.Identity != pred.Identity {
			continue
		}
		matches = append(matches, rec.Object)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

// Create provisions a new simulated object. The descriptor becomes the
// object's attributes verbatim: the simulation converges instantly.
func (p *Provisioner) Create(_ context.Context, res recon.DeclaredResource) (recon.PhysicalObject, error) {
	if res.Kind == "" || res.Identity == "" {
		return recon.PhysicalObject{}, recon.NewPermanentError(
			fmt.Sprintf("declared resource %s is missing kind or identity", res.Address), nil,
		).WithCode(recon.ErrCodeValidation).WithAddress(res.Address).WithOp("create")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	obj := recon.PhysicalObject{
		ID:         res.Kind + "-" + uuid.New().String(),
		Kind:       res.Kind,
		Identity:   res.Identity,
		Attributes: append(json.RawMessage(nil), res.Descriptor...),
	}
	p.objects[obj.ID] = objectRecord{Object: obj, CreatedAt: now, UpdatedAt: now}

	if err := p.saveLocked(); err != nil {
		delete(p.objects, obj.ID)
		return recon.PhysicalObject{}, err
	}

	p.logger.Info().
		Str("kind", obj.Kind).
		Str("identity", obj.Identity).
		Str("physical_id", obj.ID).
		Msg("Simulated object created")
	return obj, nil
}

// Update converges a bound object toward the descriptor. Updating an
// object that no longer exists is a permanent error; the resolver
// repairs vanished bindings before a plan ever reaches this point.
func (p *Provisioner) Update(_ context.Context, binding recon.ResourceBinding, res recon.DeclaredResource) (recon.PhysicalObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.objects[binding.PhysicalID]
	if !ok {
		return recon.PhysicalObject{}, recon.NewPermanentError(
			fmt.Sprintf("physical object %s does not exist", binding.PhysicalID), nil,
		).WithCode(recon.ErrCodeNotFound).WithAddress(binding.Address).WithOp("update")
	}

	prev := rec
	rec.Object.Identity = res.Identity
	rec.Object.Attributes = append(json.RawMessage(nil), res.Descriptor...)
	rec.UpdatedAt = time.Now().UTC()
	p.objects[binding.PhysicalID] = rec

	if err := p.saveLocked(); err != nil {
		p.objects[binding.PhysicalID] = prev
		return recon.PhysicalObject{}, err
	}

	p.logger.Info().
		Str("kind", rec.Object.Kind).
		Str("physical_id", rec.Object.ID).
		Msg("Simulated object updated")
	return rec.Object, nil
}

// Destroy removes a simulated object. A missing object is not an error.
func (p *Provisioner) Destroy(_ context.Context, binding recon.ResourceBinding) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.objects[binding.PhysicalID]
	if !ok {
		return nil
	}
	delete(p.objects, binding.PhysicalID)

	if err := p.saveLocked(); err != nil {
		p.objects[binding.PhysicalID] = rec
		return err
	}

	p.logger.Info().
		Str("kind", rec.Object.Kind).
		Str("physical_id", rec.Object.ID).
		Msg("Simulated object destroyed")
	return nil
}

// Lookup fetches one object by kind and physical ID.
func (p *Provisioner) Lookup(_ context.Context, kind, physicalID string) (recon.PhysicalObject, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.objects[physicalID]
	if !ok || rec.Object.Kind != kind {
		return recon.PhysicalObject{}, false, nil
	}
	return rec.Object, true, nil
}

// load reads the state file into the object table. A missing file is an
// empty inventory.
func (p *Provisioner) load() error {
	data, err := os.ReadFile(p.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read provisioner state %s: %w", p.statePath, err)
	}

	var records map[string]objectRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("provisioner state %s is corrupt: %w", p.statePath, err)
	}
	if records != nil {
		p.objects = records
	}

	p.logger.Debug().
		Int("objects", len(p.objects)).
		Str("path", p.statePath).
		Msg("Loaded simulated inventory")
	return nil
}

// saveLocked writes the object table to the state file via a temp file
// rename, so a crash mid-write never leaves a truncated inventory.
// Caller holds p.mu.
func (p *Provisioner) saveLocked() error {
	if p.statePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(p.objects, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provisioner state: %w", err)
	}

	dir := filepath.Dir(p.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmp := p.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write provisioner state: %w", err)
	}
	if err := os.Rename(tmp, p.statePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace provisioner state: %w", err)
	}
	return nil
}
