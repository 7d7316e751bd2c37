package inventory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/domain/models"
	"github.com/mamadbah2/balsam/internal/service/notify"
	inventoryclient "github.com/mamadbah2/balsam/pkg/clients/inventory"
)

// Listener observes the drug list after every committed change.
type Listener func(drugs []models.Drug)

// Store is the single in-memory list of the user's drugs and the only code
// allowed to change it. Every change is committed only after the backend
// confirmed it; a failed call leaves the list untouched.
type Store struct {
	gateway  inventoryclient.Client
	userID   string
	notifier notify.Notifier
	logger   *zap.Logger

	// writeMu serializes gateway call + commit sequences.
	writeMu sync.Mutex

	mu        sync.RWMutex
	drugs     []models.Drug
	listeners map[int]Listener
	nextID    int
}

// NewStore wires a store for userID on top of the inventory backend.
func NewStore(gateway inventoryclient.Client, userID string, notifier notify.Notifier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		gateway:   gateway,
		userID:    userID,
		notifier:  notifier,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Load replaces the whole list with the backend's.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	drugs, err := s.gateway.List(ctx, s.userID)
	if err != nil {
		s.logger.Error("failed to load drugs", zap.Error(err))
		s.notifyError(err)
		return fmt.Errorf("load drugs: %w", err)
	}

	s.commit(func() {
		s.drugs = s.drugs[:0:0]
		for _, d := range drugs {
			s.upsertLocked(d)
		}
	})
	s.logger.Debug("drugs loaded", zap.Int("count", len(drugs)))
	return nil
}

// Create validates the input, creates the drug on the backend and appends
// the confirmed record.
func (s *Store) Create(ctx context.Context, in models.DrugInput) (models.Drug, error) {
	fields, err := in.Fields()
	if err != nil {
		s.notifyError(err)
		return models.Drug{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	drug, err := s.gateway.Create(ctx, s.userID, fields)
	if err != nil {
		s.logger.Error("failed to create drug", zap.Error(err))
		s.notifyError(err)
		return models.Drug{}, fmt.Errorf("create drug: %w", err)
	}

	s.commit(func() { s.upsertLocked(drug) })
	s.logger.Info("drug created", zap.String("id", drug.ID))
	s.notifySuccess("Drug created!")
	return cloneDrug(drug), nil
}

// Update sends the edited fields and replaces the record in place on success.
func (s *Store) Update(ctx context.Context, id string, in models.DrugInput) (models.Drug, error) {
	if _, ok := s.Get(id); !ok {
		return models.Drug{}, fmt.Errorf("update drug %s: %w", id, models.ErrDrugNotFound)
	}
	fields, err := in.Fields()
	if err != nil {
		s.notifyError(err)
		return models.Drug{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated, err := s.gateway.Update(ctx, s.userID, id, fields)
	if err != nil {
		s.logger.Error("failed to update drug", zap.String("id", id), zap.Error(err))
		s.notifyError(err)
		return models.Drug{}, fmt.Errorf("update drug %s: %w", id, err)
	}

	s.commit(func() {
		if idx := s.indexLocked(id); idx >= 0 && updated.ID == id {
			s.drugs[idx] = updated
			return
		}
		// The backend answered with another id; drop the old row and keep the new one.
		if idx := s.indexLocked(id); idx >= 0 {
			s.drugs = append(s.drugs[:idx], s.drugs[idx+1:]...)
		}
		s.upsertLocked(updated)
	})
	s.logger.Info("drug updated", zap.String("id", id))
	s.notifySuccess("Drug updated successfully!")
	return cloneDrug(updated), nil
}

// Delete removes the drug on the backend, then locally. confirmed carries the
// explicit user confirmation; without it nothing is sent.
func (s *Store) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		err := &models.ValidationError{Message: "Deleting a drug must be confirmed"}
		s.notifyError(err)
		return err
	}
	if _, ok := s.Get(id); !ok {
		return fmt.Errorf("delete drug %s: %w", id, models.ErrDrugNotFound)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.gateway.Delete(ctx, s.userID, id); err != nil {
		s.logger.Error("failed to delete drug", zap.String("id", id), zap.Error(err))
		s.notifyError(err)
		return fmt.Errorf("delete drug %s: %w", id, err)
	}

	s.commit(func() {
		if idx := s.indexLocked(id); idx >= 0 {
			s.drugs = append(s.drugs[:idx], s.drugs[idx+1:]...)
		}
	})
	s.logger.Info("drug deleted", zap.String("id", id))
	s.notifySuccess("Drug deleted!")
	return nil
}

// Dispatch asks the backend to resolve a scanned payload into a drug and
// merges the record it returns. Notifying the user is left to the scan session.
func (s *Store) Dispatch(ctx context.Context, result models.DecodeResult) (models.Drug, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	drug, err := s.gateway.DecodeLookup(ctx, s.userID, result.Payload)
	if err != nil {
		s.logger.Warn("qr lookup failed", zap.String("source", string(result.Source)), zap.Error(err))
		return models.Drug{}, fmt.Errorf("qr lookup: %w", err)
	}

	s.commit(func() { s.upsertLocked(drug) })
	s.logger.Info("drug added from qr code", zap.String("id", drug.ID), zap.String("source", string(result.Source)), zap.String("item", result.Item))
	return cloneDrug(drug), nil
}

// Drugs returns a copy of the current list.
func (s *Store) Drugs() []models.Drug {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDrugs(s.drugs)
}

// Get returns a copy of the drug with the given id.
func (s *Store) Get(id string) (models.Drug, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return cloneDrug(s.drugs[idx]), true
	}
	return models.Drug{}, false
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) commit(mutate func()) {
	s.mu.Lock()
	mutate()
	snapshot := cloneDrugs(s.drugs)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// upsertLocked keeps ids unique: a known id is replaced in place.
func (s *Store) upsertLocked(d models.Drug) {
	if idx := s.indexLocked(d.ID); idx >= 0 {
		s.drugs[idx] = d
		return
	}
	s.drugs = append(s.drugs, d)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.drugs {
		if s.drugs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notifySuccess(message string) {
	if s.notifier != nil {
		s.notifier.Success(message)
	}
}

func (s *Store) notifyError(err error) {
	if s.notifier != nil {
		s.notifier.Error(models.UserMessage(err))
	}
}

func cloneDrugs(in []models.Drug) []models.Drug {
	out := make([]models.Drug, len(in))
	for i, d := range in {
		out[i] = cloneDrug(d)
	}
	return out
}

func cloneDrug(d models.Drug) models.Drug {
	d.PurchasePrice = cloneInt(d.PurchasePrice)
	d.SellingPrice = cloneInt(d.SellingPrice)
	d.Quantity = cloneInt(d.Quantity)
	if d.Tags != nil {
		d.Tags = append(models.Tags(nil), d.Tags...)
	}
	return d
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
