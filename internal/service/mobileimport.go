package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
)

// Errors returned by the import service.
var (
	ErrNothingSelected   = errors.New("no orders selected")
	ErrOperationInFlight = errors.New("an import or reject is already running")
	ErrUnknownOrder      = errors.New("order is not in the pending set")
	ErrUnknownSalesRep   = errors.New("sales rep has no pending orders")
)

// UnassignedGroupID groups pending orders that carry no sales rep. They are
// shown and imported like any other group instead of being silently dropped.
const UnassignedGroupID = "unassigned"

// ImportStore defines the DB methods the import service needs.
// Satisfied by *database.Queries.
type ImportStore interface {
	ListPendingMobileOrders(ctx context.Context) ([]database.Order, error)
	UpdateOrdersStatus(ctx context.Context, arg database.UpdateOrdersStatusParams) (int64, error)
}

// SyncNotifier publishes change markers for mobile devices to poll.
// Satisfied by *SyncUpdateService.
type SyncNotifier interface {
	Create(ctx context.Context, dataTypes []string, description, createdBy string) (uuid.UUID, error)
}

// Group is the per-sales-rep view of the pending order set.
type Group struct {
	SalesRepID   string
	SalesRepName string
	Orders       []database.Order
	Count        int
	TotalValue   decimal.Decimal
}

// Report summarizes a bulk import or reject. It is built from the snapshot
// taken before the status update, so it reflects exactly what was selected
// even if the pending set changes underneath.
type Report struct {
	Action     string
	Count      int
	SalesReps  int
	TotalValue decimal.Decimal
	Operator   string
	Timestamp  time.Time
	OrderIDs   []uuid.UUID
}

// ImportService holds the review state for pending mobile orders and
// drives bulk import or reject over the current selection.
//
// Only the selected-order set is stored; whether a sales rep "is selected"
// is derived on read (rep selected ⇔ all its pending orders selected), so
// the two views can never drift apart.
type ImportService struct {
	mu       sync.Mutex
	store    ImportStore
	updates  SyncNotifier
	pending  []database.Order
	selected map[uuid.UUID]bool
	running  bool
	history  []Report
}

// maxHistory bounds the in-memory report history.
const maxHistory = 50

// NewImportService creates a new ImportService.
func NewImportService(store ImportStore, updates SyncNotifier) *ImportService {
	return &ImportService{store: store, updates: updates, selected: make(map[uuid.UUID]bool)}
}

// LoadPending refreshes the pending set from the store and drops selections
// that no longer resolve to a pending order.
func (s *ImportService) LoadPending(ctx context.Context) ([]Group, error) {
	orders, err := s.store.ListPendingMobileOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending mobile orders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = orders
	still := make(map[uuid.UUID]bool, len(s.selected))
	for _, o := range orders {
		if s.selected[o.ID] {
			still[o.ID] = true
		}
	}
	s.selected = still

	return groupOrders(orders), nil
}

// Groups returns the grouped view of the cached pending set.
func (s *ImportService) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return groupOrders(s.pending)
}

// ToggleOrder flips one order in or out of the selection.
func (s *ImportService) ToggleOrder(orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isPending(orderID) {
		return ErrUnknownOrder
	}
	if s.selected[orderID] {
		delete(s.selected, orderID)
	} else {
		s.selected[orderID] = true
	}
	return nil
}

// ToggleSalesRep selects or deselects a rep's whole group in one step: if
// every pending order of the rep is selected the group is cleared, otherwise
// the group is selected in full.
func (s *ImportService) ToggleSalesRep(salesRepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.orderIDsOfRep(salesRepID)
	if len(ids) == 0 {
		return ErrUnknownSalesRep
	}

	all := true
	for _, id := range ids {
		if !s.selected[id] {
			all = false
			break
		}
	}

	for _, id := range ids {
		if all {
			delete(s.selected, id)
		} else {
			s.selected[id] = true
		}
	}
	return nil
}

// SelectAll selects every pending order, regardless of prior selection.
func (s *ImportService) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[uuid.UUID]bool, len(s.pending))
	for _, o := range s.pending {
		s.selected[o.ID] = true
	}
}

// Clear empties the selection.
func (s *ImportService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[uuid.UUID]bool)
}

// SelectedOrders returns the selected order IDs in pending order.
func (s *ImportService) SelectedOrders() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedIDs()
}

// SelectedSalesReps derives the fully-selected reps from the order selection.
func (s *ImportService) SelectedSalesReps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reps []string
	for _, g := range groupOrders(s.pending) {
		all := len(g.Orders) > 0
		for _, o := range g.Orders {
			if !s.selected[o.ID] {
				all = false
				break
			}
		}
		if all {
			reps = append(reps, g.SalesRepID)
		}
	}
	return reps
}

// History returns past import and reject reports, newest first.
func (s *ImportService) History() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Report, len(s.history))
	copy(out, s.history)
	return out
}

// ImportSelected marks the selected orders IMPORTED.
func (s *ImportService) ImportSelected(ctx context.Context, operator string) (*Report, error) {
	return s.bulkUpdate(ctx, enum.OrderStatusImported, "import", operator)
}

// RejectSelected marks the selected orders REJECTED.
func (s *ImportService) RejectSelected(ctx context.Context, operator string) (*Report, error) {
	return s.bulkUpdate(ctx, enum.OrderStatusRejected, "reject", operator)
}

func (s *ImportService) bulkUpdate(ctx context.Context, status, action, operator string) (*Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrOperationInFlight
	}
	ids := s.selectedIDs()
	if len(ids) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingSelected
	}

	// Snapshot the full orders before touching the store: the report must
	// describe what was selected, not what the reload returns.
	snapshot := make([]database.Order, 0, len(ids))
	for _, o := range s.pending {
		if s.selected[o.ID] {
			snapshot = append(snapshot, o)
		}
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.store.UpdateOrdersStatus(ctx, database.UpdateOrdersStatusParams{
		IDs:    ids,
		Status: status,
	}); err != nil {
		// Selection stays intact so the operator can simply retry.
		return nil, fmt.Errorf("%s orders: %w", action, err)
	}

	report := buildReport(action, operator, snapshot)

	// Devices poll sync updates to learn their pending orders moved on.
	if action == "import" && s.updates != nil {
		if _, err := s.updates.Create(ctx, []string{enum.SyncDataOrders}, "", operator); err != nil {
			log.Printf("ERROR: sync update after import: %v", err)
		}
	}

	s.mu.Lock()
	s.selected = make(map[uuid.UUID]bool)
	s.history = append([]Report{*report}, s.history...)
	if len(s.history) > maxHistory {
		s.history = s.history[:maxHistory]
	}
	s.mu.Unlock()

	// Reload happens after the report is built; a failure here is logged by
	// the caller and does not undo the completed update.
	if _, err := s.LoadPending(ctx); err != nil {
		return report, fmt.Errorf("reload pending after %s: %w", action, err)
	}
	return report, nil
}

func (s *ImportService) selectedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.selected))
	for _, o := range s.pending {
		if s.selected[o.ID] {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func (s *ImportService) isPending(orderID uuid.UUID) bool {
	for _, o := range s.pending {
		if o.ID == orderID {
			return true
		}
	}
	return false
}

func (s *ImportService) orderIDsOfRep(salesRepID string) []uuid.UUID {
	var ids []uuid.UUID
	for _, o := range s.pending {
		if repKey(o) == salesRepID {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func repKey(o database.Order) string {
	if !o.SalesRepID.Valid {
		return UnassignedGroupID
	}
	return uuid.UUID(o.SalesRepID.Bytes).String()
}

func groupOrders(orders []database.Order) []Group {
	byRep := make(map[string]*Group)
	for _, o := range orders {
		key := repKey(o)
		g, ok := byRep[key]
		if !ok {
			name := "Sem vendedor"
			if o.SalesRepName.Valid {
				name = o.SalesRepName.String
			}
			g = &Group{SalesRepID: key, SalesRepName: name, TotalValue: decimal.Zero}
			byRep[key] = g
		}
		g.Orders = append(g.Orders, o)
		g.Count++
		g.TotalValue = g.TotalValue.Add(numericToDecimal(o.TotalAmount))
	}

	groups := make([]Group, 0, len(byRep))
	for _, g := range byRep {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		// Unassigned group sorts last.
		if (groups[i].SalesRepID == UnassignedGroupID) != (groups[j].SalesRepID == UnassignedGroupID) {
			return groups[j].SalesRepID == UnassignedGroupID
		}
		return groups[i].SalesRepName < groups[j].SalesRepName
	})
	return groups
}

func buildReport(action, operator string, snapshot []database.Order) *Report {
	total := decimal.Zero
	reps := make(map[string]bool)
	ids := make([]uuid.UUID, len(snapshot))
	for i, o := range snapshot {
		ids[i] = o.ID
		total = total.Add(numericToDecimal(o.TotalAmount))
		reps[repKey(o)] = true
	}
	return &Report{
		Action:     action,
		Count:      len(snapshot),
		SalesReps:  len(reps),
		TotalValue: total,
		Operator:   operator,
		Timestamp:  time.Now(),
		OrderIDs:   ids,
	}
}
