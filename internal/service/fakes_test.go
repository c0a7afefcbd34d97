package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"smarthome/internal/models"
	"smarthome/internal/repository"
)

// memStore is an in-memory stand-in for the SQLite repositories. Every
// method takes the single lock, so a Transition is atomic like the real tx.
type memStore struct {
	mu sync.Mutex

	seq        int64
	users      map[int64]models.User
	homes      map[int64]models.Home
	members    map[int64]models.HomeMember
	appliances map[int64]models.Appliance
	deleted    map[int64]bool
	perms      map[[2]int64]models.Permission
	schedules  map[int64]models.Schedule
	events     []models.ApplianceEvent
	keys       map[string]int64

	// failures injected by tests
	transitionErr map[int64]error
	markRunErr    error
	markRuns      []int64
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[int64]models.User{},
		homes:         map[int64]models.Home{},
		members:       map[int64]models.HomeMember{},
		appliances:    map[int64]models.Appliance{},
		deleted:       map[int64]bool{},
		perms:         map[[2]int64]models.Permission{},
		schedules:     map[int64]models.Schedule{},
		keys:          map[string]int64{},
		transitionErr: map[int64]error{},
	}
}

func (s *memStore) next() int64 {
	s.seq++
	return s.seq
}

func (s *memStore) repos() *repository.Repository {
	return &repository.Repository{
		Appliances:  memAppliances{s},
		Schedules:   memSchedules{s},
		Events:      memEvents{s},
		Homes:       memHomes{s},
		Permissions: memPermissions{s},
		Devices:     memDevices{s},
		Auth:        memUsers{s},
	}
}

// --- seeding helpers ---

func (s *memStore) addUser(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next()
	s.users[id] = models.User{ID: id, Username: name}
	return id
}

func (s *memStore) addHome(ownerID int64) int64 {
	h, _ := memHomes{s}.CreateHome(context.Background(), "home", ownerID)
	return h.ID
}

func (s *memStore) addMember(homeID, userID int64, role string) int64 {
	m, _ := memHomes{s}.AddMember(context.Background(), homeID, userID, role)
	return m.ID
}

func (s *memStore) addAppliance(homeID int64) int64 {
	a, _ := memAppliances{s}.Create(context.Background(), models.Appliance{
		HomeID: homeID, Name: "lamp", DeviceType: models.DefaultDeviceType, Status: models.StatusOff,
	})
	return a.ID
}

func (s *memStore) grant(memberID, applianceID int64, caps models.Capabilities) {
	_, _ = memPermissions{s}.Upsert(context.Background(), models.Permission{
		HomeMemberID: memberID, ApplianceID: applianceID, Capabilities: caps,
	})
}

func (s *memStore) appliance(id int64) models.Appliance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliances[id]
}

func (s *memStore) schedule(id int64) models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[id]
}

func (s *memStore) eventsFor(applianceID int64) []models.ApplianceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApplianceEvent
	for _, e := range s.events {
		if e.ApplianceID == applianceID {
			out = append(out, e)
		}
	}
	return out
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(username, hash string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := r.s.next()
	r.s.users[id] = models.User{ID: id, Username: username, PasswordHash: hash}
	return id, nil
}

func (r memUsers) GetByUsername(username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUsers) GetByID(id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// --- appliances ---

type memAppliances struct{ s *memStore }

func (r memAppliances) Create(_ context.Context, a models.Appliance) (models.Appliance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.next()
	r.s.appliances[a.ID] = a
	return a, nil
}

func (r memAppliances) get(id int64) (models.Appliance, error) {
	a, ok := r.s.appliances[id]
	if !ok || r.s.deleted[id] {
		return models.Appliance{}, repository.ErrNotFound
	}
	return a, nil
}

func (r memAppliances) Get(_ context.Context, id int64) (models.Appliance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r memAppliances) ListByHome(_ context.Context, homeID int64) ([]models.Appliance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Appliance
	for id, a := range r.s.appliances {
		if a.HomeID == homeID && !r.s.deleted[id] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAppliances) UpdateInfo(_ context.Context, a models.Appliance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, err := r.get(a.ID)
	if err != nil {
		return err
	}
	cur.Name, cur.DeviceType, cur.Metadata = a.Name, a.DeviceType, a.Metadata
	r.s.appliances[a.ID] = cur
	return nil
}

func (r memAppliances) SoftDelete(_ context.Context, id int64, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.get(id); err != nil {
		return err
	}
	r.s.deleted[id] = true
	for sid, sch := range r.s.schedules {
		if sch.ApplianceID == id {
			sch.IsActive = false
			r.s.schedules[sid] = sch
		}
	}
	return nil
}

func (r memAppliances) Transition(_ context.Context, id int64, fn repository.TransitionFunc) (models.Appliance, models.ApplianceEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, err := r.get(id)
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, err
	}
	if err := r.s.transitionErr[id]; err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, err
	}
	next, ev, err := fn(cur)
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, err
	}
	ev.ID = r.s.next()
	r.s.appliances[id] = next
	r.s.events = append(r.s.events, ev)
	return next, ev, nil
}

// --- schedules ---

type memSchedules struct{ s *memStore }

func (r memSchedules) Create(_ context.Context, sch models.Schedule) (models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sch.ID = r.s.next()
	r.s.schedules[sch.ID] = sch
	return sch, nil
}

func (r memSchedules) Get(_ context.Context, id int64) (models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sch, ok := r.s.schedules[id]
	if !ok {
		return models.Schedule{}, repository.ErrNotFound
	}
	return sch, nil
}

func (r memSchedules) Update(_ context.Context, sch models.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[sch.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.schedules[sch.ID] = sch
	return nil
}

func (r memSchedules) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.schedules, id)
	return nil
}

func (r memSchedules) list(keep func(models.Schedule) bool) []models.Schedule {
	var out []models.Schedule
	for _, sch := range r.s.schedules {
		if keep(sch) {
			out = append(out, sch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memSchedules) ListByAppliance(_ context.Context, applianceID int64) ([]models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(sch models.Schedule) bool { return sch.ApplianceID == applianceID }), nil
}

func (r memSchedules) ListActive(_ context.Context) ([]models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(sch models.Schedule) bool {
		return sch.IsActive && !r.s.deleted[sch.ApplianceID]
	}), nil
}

func (r memSchedules) MarkRun(_ context.Context, id int64, lastRun time.Time, next *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.markRunErr != nil {
		return r.s.markRunErr
	}
	sch, ok := r.s.schedules[id]
	if !ok {
		return repository.ErrNotFound
	}
	sch.LastRunAt = &lastRun
	sch.NextRunAt = next
	r.s.schedules[id] = sch
	r.s.markRuns = append(r.s.markRuns, id)
	return nil
}

// --- events ---

type memEvents struct{ s *memStore }

func (r memEvents) Append(_ context.Context, e models.ApplianceEvent) (models.ApplianceEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.next()
	r.s.events = append(r.s.events, e)
	return e, nil
}

func (r memEvents) List(_ context.Context, q repository.EventQuery) ([]models.ApplianceEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := map[int64]bool{}
	for _, id := range q.ApplianceIDs {
		ids[id] = true
	}
	var out []models.ApplianceEvent
	for _, e := range r.s.events {
		if q.ApplianceIDs != nil && !ids[e.ApplianceID] {
			continue
		}
		if !q.From.IsZero() && e.RecordedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.RecordedAt.After(q.To) {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		out = append(out, e)
	}
	if q.Newest {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r memEvents) DailyUsage(_ context.Context, applianceIDs []int64, since time.Time) ([]models.DailyUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := map[int64]bool{}
	for _, id := range applianceIDs {
		ids[id] = true
	}
	byDay := map[string]*models.DailyUsage{}
	for _, e := range r.s.events {
		if !ids[e.ApplianceID] || e.RecordedAt.Before(since) {
			continue
		}
		day := e.RecordedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &models.DailyUsage{Day: day}
			byDay[day] = d
		}
		switch e.Status {
		case models.StatusOn:
			d.OnEvents++
			d.TotalPower += e.PowerUsage
		case models.StatusOff:
			d.OffEvents++
		}
	}
	out := make([]models.DailyUsage, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (r memEvents) CountTransitions(_ context.Context, applianceID int64, since time.Time) (int, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var on, off int
	for _, e := range r.s.events {
		if e.ApplianceID != applianceID || e.RecordedAt.Before(since) {
			continue
		}
		switch e.Status {
		case models.StatusOn:
			on++
		case models.StatusOff:
			off++
		}
	}
	return on, off, nil
}

// --- homes ---

type memHomes struct{ s *memStore }

func (r memHomes) CreateHome(_ context.Context, name string, ownerID int64) (models.Home, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h := models.Home{ID: r.s.next(), Name: name, OwnerID: ownerID}
	r.s.homes[h.ID] = h
	m := models.HomeMember{ID: r.s.next(), HomeID: h.ID, UserID: ownerID, Role: models.RoleOwner}
	r.s.members[m.ID] = m
	return h, nil
}

func (r memHomes) GetHome(_ context.Context, id int64) (models.Home, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.homes[id]
	if !ok {
		return models.Home{}, repository.ErrNotFound
	}
	return h, nil
}

func (r memHomes) SetSecurityPin(_ context.Context, homeID int64, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.homes[homeID]
	if !ok {
		return repository.ErrNotFound
	}
	h.SecurityPinHash = hash
	r.s.homes[homeID] = h
	return nil
}

func (r memHomes) membership(homeID, userID int64) (models.HomeMember, bool) {
	for _, m := range r.s.members {
		if m.HomeID == homeID && m.UserID == userID {
			return m, true
		}
	}
	return models.HomeMember{}, false
}

func (r memHomes) GetMembership(_ context.Context, homeID, userID int64) (models.HomeMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.membership(homeID, userID)
	if !ok {
		return models.HomeMember{}, repository.ErrNotFound
	}
	return m, nil
}

func (r memHomes) GetMember(_ context.Context, memberID int64) (models.HomeMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberID]
	if !ok {
		return models.HomeMember{}, repository.ErrNotFound
	}
	return m, nil
}

func (r memHomes) ListMembers(_ context.Context, homeID int64) ([]models.HomeMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.HomeMember
	for _, m := range r.s.members {
		if m.HomeID == homeID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memHomes) AddMember(_ context.Context, homeID, userID int64, role string) (models.HomeMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.membership(homeID, userID); ok {
		return models.HomeMember{}, errors.New("UNIQUE constraint failed")
	}
	m := models.HomeMember{ID: r.s.next(), HomeID: homeID, UserID: userID, Role: role}
	r.s.members[m.ID] = m
	return m, nil
}

func (r memHomes) UpdateMemberRole(_ context.Context, memberID int64, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Role = role
	r.s.members[memberID] = m
	return nil
}

func (r memHomes) RemoveMember(_ context.Context, memberID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[memberID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.members, memberID)
	for k := range r.s.perms {
		if k[0] == memberID {
			delete(r.s.perms, k)
		}
	}
	return nil
}

func (r memHomes) HomeIDsForUser(_ context.Context, userID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int64
	for _, m := range r.s.members {
		if m.UserID == userID {
			out = append(out, m.HomeID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r memHomes) VisibleApplianceIDs(_ context.Context, userID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []int64{}
	for id, a := range r.s.appliances {
		if r.s.deleted[id] {
			continue
		}
		m, ok := r.membership(a.HomeID, userID)
		if !ok {
			continue
		}
		p := r.s.perms[[2]int64{m.ID, id}]
		if m.IsManager() || p.CanView || p.CanControl || p.CanSchedule {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// --- permissions ---

type memPermissions struct{ s *memStore }

func (r memPermissions) Get(_ context.Context, memberID, applianceID int64) (models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.perms[[2]int64{memberID, applianceID}]
	if !ok {
		return models.Permission{}, repository.ErrNotFound
	}
	return p, nil
}

func (r memPermissions) Upsert(_ context.Context, p models.Permission) (models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]int64{p.HomeMemberID, p.ApplianceID}
	if cur, ok := r.s.perms[key]; ok {
		p.ID = cur.ID
	} else {
		p.ID = r.s.next()
	}
	r.s.perms[key] = p
	return p, nil
}

func (r memPermissions) Delete(_ context.Context, memberID, applianceID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]int64{memberID, applianceID}
	if _, ok := r.s.perms[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.perms, key)
	return nil
}

func (r memPermissions) ListByMember(_ context.Context, memberID int64) ([]models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Permission
	for k, p := range r.s.perms {
		if k[0] == memberID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplianceID < out[j].ApplianceID })
	return out, nil
}

// --- devices ---

type memDevices struct{ s *memStore }

func (r memDevices) SaveKey(_ context.Context, applianceID int64, keyHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, id := range r.s.keys {
		if id == applianceID {
			delete(r.s.keys, h)
		}
	}
	r.s.keys[keyHash] = applianceID
	return nil
}

func (r memDevices) ApplianceForKey(_ context.Context, keyHash string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.keys[keyHash]
	if !ok || r.s.deleted[id] {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

// recorder captures published stream messages.
type recorder struct {
	mu   sync.Mutex
	msgs []models.StreamMessage
}

func (r *recorder) Publish(msg models.StreamMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) all() []models.StreamMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StreamMessage(nil), r.msgs...)
}
