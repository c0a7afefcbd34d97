package handlers

import (
	"context"
	"net/http"

	"smarthome/internal/models"
	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int64
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int64
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int64, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int64, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockAppliances struct {
	appliance models.Appliance
	list      []models.Appliance
	access    service.AccessSummary
	events    []models.ApplianceEvent
	visible   []int64
	err       error

	lastActor    int64
	lastID       int64
	lastToggle   service.ToggleInput
	lastRegister service.RegisterApplianceInput
	lastUpdate   service.UpdateApplianceInput
	lastPin      string
	lastLimit    int
	toggleCalls  int
}

func (m *mockAppliances) Toggle(ctx context.Context, actorID int64, in service.ToggleInput) (models.Appliance, error) {
	m.toggleCalls++
	m.lastActor, m.lastToggle = actorID, in
	return m.appliance, m.err
}
func (m *mockAppliances) Register(ctx context.Context, actorID int64, in service.RegisterApplianceInput) (models.Appliance, error) {
	m.lastActor, m.lastRegister = actorID, in
	return m.appliance, m.err
}
func (m *mockAppliances) Get(ctx context.Context, actorID, applianceID int64) (models.Appliance, error) {
	m.lastActor, m.lastID = actorID, applianceID
	return m.appliance, m.err
}
func (m *mockAppliances) Access(ctx context.Context, actorID, applianceID int64) (service.AccessSummary, error) {
	m.lastActor, m.lastID = actorID, applianceID
	return m.access, m.err
}
func (m *mockAppliances) List(ctx context.Context, actorID, homeID int64) ([]models.Appliance, error) {
	m.lastActor, m.lastID = actorID, homeID
	return m.list, m.err
}
func (m *mockAppliances) Update(ctx context.Context, actorID, applianceID int64, in service.UpdateApplianceInput) (models.Appliance, error) {
	m.lastActor, m.lastID, m.lastUpdate = actorID, applianceID, in
	return m.appliance, m.err
}
func (m *mockAppliances) Delete(ctx context.Context, actorID, applianceID int64, pin string) error {
	m.lastActor, m.lastID, m.lastPin = actorID, applianceID, pin
	return m.err
}
func (m *mockAppliances) Visible(ctx context.Context, actorID int64) ([]int64, error) {
	return m.visible, m.err
}
func (m *mockAppliances) Activity(ctx context.Context, actorID, applianceID int64, limit int) ([]models.ApplianceEvent, error) {
	m.lastActor, m.lastID, m.lastLimit = actorID, applianceID, limit
	return m.events, m.err
}

type mockSchedules struct {
	schedule models.Schedule
	list     []models.Schedule
	err      error

	lastActor  int64
	lastID     int64
	lastCreate service.CreateScheduleInput
	lastUpdate service.UpdateScheduleInput
}

func (m *mockSchedules) Create(ctx context.Context, actorID int64, in service.CreateScheduleInput) (models.Schedule, error) {
	m.lastActor, m.lastCreate = actorID, in
	return m.schedule, m.err
}
func (m *mockSchedules) Update(ctx context.Context, actorID, scheduleID int64, in service.UpdateScheduleInput) (models.Schedule, error) {
	m.lastActor, m.lastID, m.lastUpdate = actorID, scheduleID, in
	return m.schedule, m.err
}
func (m *mockSchedules) Delete(ctx context.Context, actorID, scheduleID int64) error {
	m.lastActor, m.lastID = actorID, scheduleID
	return m.err
}
func (m *mockSchedules) ListForAppliance(ctx context.Context, actorID, applianceID int64) ([]models.Schedule, error) {
	m.lastActor, m.lastID = actorID, applianceID
	return m.list, m.err
}
func (m *mockSchedules) ListActive(ctx context.Context, actorID int64) ([]models.Schedule, error) {
	m.lastActor = actorID
	return m.list, m.err
}

type mockEventLog struct {
	resp       []models.ApplianceEvent
	err        error
	lastActor  int64
	lastFilter service.LogFilter
	lastLimit  int
}

func (m *mockEventLog) List(ctx context.Context, actorID int64, f service.LogFilter) ([]models.ApplianceEvent, error) {
	m.lastActor, m.lastFilter = actorID, f
	return m.resp, m.err
}
func (m *mockEventLog) Recent(ctx context.Context, actorID int64, limit int) ([]models.ApplianceEvent, error) {
	m.lastActor, m.lastLimit = actorID, limit
	return m.resp, m.err
}

type mockAnalytics struct {
	usage    []models.DailyUsage
	stats    models.ApplianceStats
	err      error
	lastDays int
	lastID   int64
}

func (m *mockAnalytics) Daily(ctx context.Context, actorID int64, days int) ([]models.DailyUsage, error) {
	m.lastDays = days
	return m.usage, m.err
}
func (m *mockAnalytics) ApplianceStats(ctx context.Context, actorID, applianceID int64, days int) (models.ApplianceStats, error) {
	m.lastID, m.lastDays = applianceID, days
	return m.stats, m.err
}

type mockTelemetry struct {
	key        service.ProvisionedKey
	keyErr     error
	authID     int64
	authErr    error
	event      models.ApplianceEvent
	ingestErr  error
	lastKey    string
	lastPower  float64
	ingestSeen int
}

func (m *mockTelemetry) ProvisionKey(ctx context.Context, actorID, applianceID int64) (service.ProvisionedKey, error) {
	return m.key, m.keyErr
}
func (m *mockTelemetry) Authenticate(ctx context.Context, key string) (int64, error) {
	m.lastKey = key
	return m.authID, m.authErr
}
func (m *mockTelemetry) Ingest(ctx context.Context, applianceID int64, powerUsage float64) (models.ApplianceEvent, error) {
	m.ingestSeen++
	m.lastPower = powerUsage
	return m.event, m.ingestErr
}

type mockHomes struct {
	home    models.Home
	homes   []models.Home
	members []models.HomeMember
	member  models.HomeMember
	perm    models.Permission
	perms   []models.Permission
	err     error

	lastActor  int64
	lastHomeID int64
	lastMember int64
	lastApp    int64
	lastAdd    service.AddMemberInput
	lastRole   string
	lastCaps   models.Capabilities
	lastPin    string
}

func (m *mockHomes) CreateHome(ctx context.Context, actorID int64, name string) (models.Home, error) {
	m.lastActor = actorID
	return m.home, m.err
}
func (m *mockHomes) ListHomes(ctx context.Context, actorID int64) ([]models.Home, error) {
	m.lastActor = actorID
	return m.homes, m.err
}
func (m *mockHomes) ListMembers(ctx context.Context, actorID, homeID int64) ([]models.HomeMember, error) {
	m.lastActor, m.lastHomeID = actorID, homeID
	return m.members, m.err
}
func (m *mockHomes) AddMember(ctx context.Context, actorID, homeID int64, in service.AddMemberInput) (models.HomeMember, error) {
	m.lastActor, m.lastHomeID, m.lastAdd = actorID, homeID, in
	return m.member, m.err
}
func (m *mockHomes) UpdateMemberRole(ctx context.Context, actorID, memberID int64, role string) (models.HomeMember, error) {
	m.lastActor, m.lastMember, m.lastRole = actorID, memberID, role
	return m.member, m.err
}
func (m *mockHomes) RemoveMember(ctx context.Context, actorID, memberID int64) error {
	m.lastActor, m.lastMember = actorID, memberID
	return m.err
}
func (m *mockHomes) GrantPermission(ctx context.Context, actorID, memberID, applianceID int64, caps models.Capabilities) (models.Permission, error) {
	m.lastActor, m.lastMember, m.lastApp, m.lastCaps = actorID, memberID, applianceID, caps
	return m.perm, m.err
}
func (m *mockHomes) RevokePermission(ctx context.Context, actorID, memberID, applianceID int64) error {
	m.lastActor, m.lastMember, m.lastApp = actorID, memberID, applianceID
	return m.err
}
func (m *mockHomes) ListPermissions(ctx context.Context, actorID, memberID int64) ([]models.Permission, error) {
	m.lastActor, m.lastMember = actorID, memberID
	return m.perms, m.err
}
func (m *mockHomes) SetSecurityPin(ctx context.Context, actorID, homeID int64, pin string) error {
	m.lastActor, m.lastHomeID, m.lastPin = actorID, homeID, pin
	return m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	h := NewHandler(s, nil, opts...)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
