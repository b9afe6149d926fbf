package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/client"
	"agroguard/pkg/render"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
	"agroguard/pkg/store/memstore"
	"agroguard/services/alerting"
	"agroguard/services/ingest"
	"agroguard/services/maintenance"
	"agroguard/services/reports"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	fail     error
}

func (b *recordingBus) Publish(_ context.Context, subj string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.subjects = append(b.subjects, subj)
	return nil
}

func (b *recordingBus) failWith(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func (b *recordingBus) count(subj string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subjects {
		if s == subj {
			n++
		}
	}
	return n
}

type testServer struct {
	*httptest.Server
	store *memstore.Store
	bus   *recordingBus
	clock *clock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)}
	st := memstore.New(memstore.WithClock(clk.Now))
	b := &recordingBus{}
	objects := s3.NewMemory()
	logger := zerolog.Nop()

	engine, err := render.New()
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}
	notifier, err := alerting.NewLogNotifier(logger, engine)
	if err != nil {
		t.Fatalf("NewLogNotifier() error = %v", err)
	}
	alerts, err := alerting.New(st, b, notifier, logger)
	if err != nil {
		t.Fatalf("alerting.New() error = %v", err)
	}
	alerts.SetClock(clk.Now)
	planner, err := maintenance.New(st, alerts, logger)
	if err != nil {
		t.Fatalf("maintenance.New() error = %v", err)
	}
	planner.SetClock(clk.Now)
	rep, err := reports.New(st, engine, reports.Options{Objects: objects, Bucket: "reports"})
	if err != nil {
		t.Fatalf("reports.New() error = %v", err)
	}
	rep.SetClock(clk.Now)
	recorder, err := ingest.NewRecorder(st, b, logger)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	recorder.SetClock(clk.Now)

	a, err := New(Deps{
		Store:       st,
		Alerts:      alerts,
		Maintenance: planner,
		Reports:     rep,
		Recorder:    recorder,
		Objects:     objects,
		Bus:         b,
		Logger:      logger,
	}, Config{RateLimitPerMinute: 10000, UploadBucket: "uploads"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.SetClock(clk.Now)
	handler, err := a.Routes()
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: st, bus: b, clock: clk}
}

// call sends a JSON request and decodes the response into out when non-nil.
func (s *testServer) call(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) signup(t *testing.T, email string) (string, store.User) {
	t.Helper()
	body := map[string]string{"email": email, "name": "Ana Souza", "password": "s3cret-pass"}
	if code := s.call(t, http.MethodPost, "/v1/auth/register", "", body, nil); code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d", code, http.StatusCreated)
	}
	var login struct {
		AccessToken string     `json:"access_token"`
		User        store.User `json:"user"`
	}
	creds := map[string]string{"email": email, "password": "s3cret-pass"}
	if code := s.call(t, http.MethodPost, "/v1/auth/login", "", creds, &login); code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", code, http.StatusOK)
	}
	if login.AccessToken == "" {
		t.Fatalf("login returned no access token")
	}
	return login.AccessToken, login.User
}

func (s *testServer) createEquipment(t *testing.T, token string, body map[string]any) store.Equipment {
	t.Helper()
	var e store.Equipment
	if code := s.call(t, http.MethodPost, "/v1/equipment", token, body, &e); code != http.StatusCreated {
		t.Fatalf("create equipment status = %d, want %d", code, http.StatusCreated)
	}
	return e
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatalf("New() with no deps succeeded, want error")
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/health", "/readyz", "/metrics"} {
		resp, err := http.Get(s.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token, user := s.signup(t, "Ana@Fazenda.com.br ")
	if user.Email != "ana@fazenda.com.br" {
		t.Fatalf("email = %q, want normalized address", user.Email)
	}

	dup := map[string]string{"email": "ana@fazenda.com.br", "name": "Outra", "password": "s3cret-pass"}
	if code := s.call(t, http.MethodPost, "/v1/auth/register", "", dup, nil); code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", code, http.StatusConflict)
	}

	var verr errorBody
	bad := map[string]string{"email": "nope", "name": "", "password": "short"}
	if code := s.call(t, http.MethodPost, "/v1/auth/register", "", bad, &verr); code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid register status = %d, want %d", code, http.StatusUnprocessableEntity)
	}
	for _, field := range []string{"email", "name", "password"} {
		if len(verr.Fields[field]) == 0 {
			t.Fatalf("fields = %v, want an error for %s", verr.Fields, field)
		}
	}

	wrong := map[string]string{"email": "ana@fazenda.com.br", "password": "wrong-pass"}
	if code := s.call(t, http.MethodPost, "/v1/auth/login", "", wrong, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want %d", code, http.StatusUnauthorized)
	}

	var me store.User
	if code := s.call(t, http.MethodGet, "/v1/auth/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("me status = %d, want %d", code, http.StatusOK)
	}
	if me.ID != user.ID {
		t.Fatalf("me id = %s, want %s", me.ID, user.ID)
	}

	blank := map[string]any{"name": "  "}
	if code := s.call(t, http.MethodPut, "/v1/auth/me", token, blank, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name status = %d, want %d", code, http.StatusUnprocessableEntity)
	}
	update := map[string]any{"company": "Fazenda Boa Vista", "sms_notifications": true}
	if code := s.call(t, http.MethodPut, "/v1/auth/me", token, update, &me); code != http.StatusOK {
		t.Fatalf("update me status = %d, want %d", code, http.StatusOK)
	}
	if me.Company != "Fazenda Boa Vista" || !me.SMSNotifications || me.Name != "Ana Souza" {
		t.Fatalf("updated profile = %+v", me)
	}

	if code := s.call(t, http.MethodPost, "/v1/auth/logout", token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d", code, http.StatusNoContent)
	}
	if code := s.call(t, http.MethodGet, "/v1/auth/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "unknown", token: "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.call(t, http.MethodGet, "/v1/equipment", tt.token, nil, nil); code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAccessTokenExpires(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	s.clock.Advance(defaultAccessTTL + time.Second)
	var body errorBody
	if code := s.call(t, http.MethodGet, "/v1/auth/me", token, nil, &body); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestEquipmentCreateClassifies(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")

	e := s.createEquipment(t, token, map[string]any{
		"name":                "Trator John Deere 6110J",
		"manufacturer":        "John Deere",
		"hours_used":          950,
		"mtbf":                1000,
		"critical_components": []string{"Motor", "Transmissão"},
	})
	if e.RiskLevel != "high" || e.RiskScore != "95%" || e.FailureForecast != "50h restantes" || e.FailureProbability5d != "100%" {
		t.Fatalf("derived fields = %s %s %s %s", e.RiskLevel, e.RiskScore, e.FailureForecast, e.FailureProbability5d)
	}
	if e.Status != store.EquipmentActive {
		t.Fatalf("status = %q, want active", e.Status)
	}
	if got := s.bus.count(bus.SubjectRiskChanged); got != 1 {
		t.Fatalf("risk events = %d, want 1", got)
	}
	if len(s.store.AuditLog()) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(s.store.AuditLog()))
	}

	var got store.Equipment
	if code := s.call(t, http.MethodGet, "/v1/equipment/"+e.ID.String(), token, nil, &got); code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", code, http.StatusOK)
	}
	if got.Name != e.Name {
		t.Fatalf("name = %q, want %q", got.Name, e.Name)
	}
}

func TestEquipmentValidation(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")

	tests := []struct {
		name   string
		body   map[string]any
		fields []string
	}{
		{name: "missing required", body: map[string]any{}, fields: []string{"name", "hours_used", "mtbf"}},
		{name: "non-positive mtbf", body: map[string]any{"name": "Plantadeira", "hours_used": 10, "mtbf": 0}, fields: []string{"mtbf"}},
		{name: "negative hours", body: map[string]any{"name": "Plantadeira", "hours_used": -1, "mtbf": 100}, fields: []string{"hours_used"}},
		{name: "unknown status", body: map[string]any{"name": "Plantadeira", "hours_used": 1, "mtbf": 100, "status": "broken"}, fields: []string{"status"}},
		{name: "future install", body: map[string]any{"name": "Plantadeira", "hours_used": 1, "mtbf": 100, "installed_at": "2030-01-01T00:00:00Z"}, fields: []string{"installed_at"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			if code := s.call(t, http.MethodPost, "/v1/equipment", token, tt.body, &body); code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", code, http.StatusUnprocessableEntity)
			}
			for _, f := range tt.fields {
				if len(body.Fields[f]) == 0 {
					t.Fatalf("fields = %v, want an error for %s", body.Fields, f)
				}
			}
		})
	}

	if code := s.call(t, http.MethodPost, "/v1/equipment", token, map[string]any{"risk_level": "low"}, nil); code != http.StatusBadRequest {
		t.Fatalf("derived field in body status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestEquipmentUpdate(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{"name": "Colheitadeira", "hours_used": 500, "mtbf": 1000})
	path := "/v1/equipment/" + e.ID.String()

	var updated store.Equipment
	if code := s.call(t, http.MethodPut, path, token, map[string]any{"hours_used": 800}, &updated); code != http.StatusOK {
		t.Fatalf("update status = %d, want %d", code, http.StatusOK)
	}
	if updated.RiskLevel != "medium" || updated.Name != "Colheitadeira" {
		t.Fatalf("updated = %s %q, want medium Colheitadeira", updated.RiskLevel, updated.Name)
	}

	var body errorBody
	if code := s.call(t, http.MethodPut, path, token, map[string]any{"hours_used": 100}, &body); code != http.StatusUnprocessableEntity {
		t.Fatalf("decreasing hours status = %d, want %d", code, http.StatusUnprocessableEntity)
	}
	if len(body.Fields["hours_used"]) == 0 {
		t.Fatalf("fields = %v, want hours_used", body.Fields)
	}

	audits := s.store.AuditLog()
	if len(audits) != 2 || audits[1].Action != "equipment_updated" {
		t.Fatalf("audit log = %+v, want create then update", audits)
	}
}

func TestEquipmentOwnership(t *testing.T) {
	s := newTestServer(t)
	ana, _ := s.signup(t, "ana@fazenda.com.br")
	bruno, _ := s.signup(t, "bruno@fazenda.com.br")
	e := s.createEquipment(t, ana, map[string]any{"name": "Pulverizador", "hours_used": 10, "mtbf": 1000})

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "foreign", path: "/v1/equipment/" + e.ID.String(), want: http.StatusForbidden},
		{name: "missing", path: "/v1/equipment/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "malformed", path: "/v1/equipment/not-an-id", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.call(t, http.MethodGet, tt.path, bruno, nil, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}

	var list []store.Equipment
	if code := s.call(t, http.MethodGet, "/v1/equipment", bruno, nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", code, http.StatusOK)
	}
	if len(list) != 0 {
		t.Fatalf("bruno sees %d machines, want 0", len(list))
	}
}

func TestEquipmentListFiltersAndStats(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	s.createEquipment(t, token, map[string]any{"name": "Trator", "hours_used": 950, "mtbf": 1000})
	s.createEquipment(t, token, map[string]any{"name": "Plantadeira", "hours_used": 100, "mtbf": 1000})

	var high []store.Equipment
	if code := s.call(t, http.MethodGet, "/v1/equipment?risk=high", token, nil, &high); code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", code, http.StatusOK)
	}
	if len(high) != 1 || high[0].Name != "Trator" {
		t.Fatalf("high risk = %+v, want only Trator", high)
	}
	if code := s.call(t, http.MethodGet, "/v1/equipment?risk=extreme", token, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want %d", code, http.StatusBadRequest)
	}

	var stats store.EquipmentStats
	if code := s.call(t, http.MethodGet, "/v1/equipment/stats", token, nil, &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", code, http.StatusOK)
	}
	if stats.Total != 2 || stats.ByRisk["high"] != 1 || stats.TotalHours != 1050 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOperationalData(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{"name": "Trator", "hours_used": 600, "mtbf": 1000})
	path := "/v1/equipment/" + e.ID.String() + "/operational-data"

	var added struct {
		Reading   store.Reading   `json:"reading"`
		Equipment store.Equipment `json:"equipment"`
	}
	reading := map[string]any{"hours_used": 150, "temperature": 92.5}
	if code := s.call(t, http.MethodPost, path, token, reading, &added); code != http.StatusCreated {
		t.Fatalf("add reading status = %d, want %d", code, http.StatusCreated)
	}
	if added.Equipment.HoursUsed != 750 || added.Equipment.RiskLevel != "medium" {
		t.Fatalf("equipment after reading = %v %s, want 750 medium", added.Equipment.HoursUsed, added.Equipment.RiskLevel)
	}
	if added.Reading.Source != store.SourceManual {
		t.Fatalf("source = %q, want manual", added.Reading.Source)
	}
	if got := s.bus.count(bus.SubjectRiskChanged); got != 2 {
		t.Fatalf("risk events = %d, want 2", got)
	}

	if code := s.call(t, http.MethodPost, path, token, map[string]any{"hours_used": -5}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("negative reading status = %d, want %d", code, http.StatusUnprocessableEntity)
	}

	var readings []store.Reading
	if code := s.call(t, http.MethodGet, path+"?limit=10", token, nil, &readings); code != http.StatusOK {
		t.Fatalf("list readings status = %d, want %d", code, http.StatusOK)
	}
	if len(readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(readings))
	}
}

func TestComponentsAndPrediction(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{
		"name":                "Colheitadeira",
		"hours_used":          950,
		"mtbf":                1000,
		"critical_components": []string{"Motor", "Esteira", "Picador"},
	})

	var comps struct {
		Placeholder bool `json:"placeholder"`
		Components  []struct {
			Name   string `json:"name"`
			Health int    `json:"health_percentage"`
		} `json:"components"`
	}
	if code := s.call(t, http.MethodGet, "/v1/equipment/"+e.ID.String()+"/components", token, nil, &comps); code != http.StatusOK {
		t.Fatalf("components status = %d, want %d", code, http.StatusOK)
	}
	if !comps.Placeholder || len(comps.Components) != 3 || comps.Components[2].Health != 70 {
		t.Fatalf("components = %+v", comps)
	}

	var pred struct {
		RiskLevel string         `json:"risk_level"`
		RiskScore string         `json:"risk_score"`
		Schedule  map[string]any `json:"schedule"`
	}
	if code := s.call(t, http.MethodGet, "/v1/equipment/"+e.ID.String()+"/prediction", token, nil, &pred); code != http.StatusOK {
		t.Fatalf("prediction status = %d, want %d", code, http.StatusOK)
	}
	if pred.RiskLevel != "high" || pred.RiskScore != "95%" || pred.Schedule == nil {
		t.Fatalf("prediction = %+v", pred)
	}
}

func TestAlertsFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	s.createEquipment(t, token, map[string]any{"name": "Trator", "hours_used": 950, "mtbf": 1000})
	s.createEquipment(t, token, map[string]any{"name": "Plantadeira", "hours_used": 100, "mtbf": 1000})

	var gen struct {
		Created int           `json:"created"`
		Alerts  []store.Alert `json:"alerts"`
	}
	if code := s.call(t, http.MethodPost, "/v1/alerts/generate", token, nil, &gen); code != http.StatusOK {
		t.Fatalf("generate status = %d, want %d", code, http.StatusOK)
	}
	if gen.Created != 1 || gen.Alerts[0].Severity != "high" {
		t.Fatalf("generated = %+v, want one high alert", gen)
	}
	id := gen.Alerts[0].ID.String()

	if code := s.call(t, http.MethodPost, "/v1/alerts/generate", token, nil, &gen); code != http.StatusOK || gen.Created != 0 {
		t.Fatalf("second generate = %d created %d, want 200 with none", code, gen.Created)
	}

	var alert store.Alert
	if code := s.call(t, http.MethodPost, "/v1/alerts/"+id+"/acknowledge", token, nil, &alert); code != http.StatusOK {
		t.Fatalf("acknowledge status = %d, want %d", code, http.StatusOK)
	}
	if alert.Status != store.AlertAcknowledged || alert.AcknowledgedAt == nil {
		t.Fatalf("acknowledged alert = %+v", alert)
	}
	if code := s.call(t, http.MethodPost, "/v1/alerts/"+id+"/acknowledge", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("second acknowledge status = %d, want %d", code, http.StatusConflict)
	}

	note := map[string]string{"note": "Filtro trocado"}
	if code := s.call(t, http.MethodPost, "/v1/alerts/"+id+"/resolve", token, note, &alert); code != http.StatusOK {
		t.Fatalf("resolve status = %d, want %d", code, http.StatusOK)
	}
	if alert.Status != store.AlertResolved || alert.ResolutionNote != "Filtro trocado" {
		t.Fatalf("resolved alert = %+v", alert)
	}
	if code := s.call(t, http.MethodPost, "/v1/alerts/"+id+"/resolve", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("second resolve status = %d, want %d", code, http.StatusConflict)
	}

	var recent []store.Alert
	if code := s.call(t, http.MethodGet, "/v1/alerts/recent", token, nil, &recent); code != http.StatusOK {
		t.Fatalf("recent status = %d, want %d", code, http.StatusOK)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d alerts, want 1", len(recent))
	}
	var active []store.Alert
	if code := s.call(t, http.MethodGet, "/v1/alerts?status=active", token, nil, &active); code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", code, http.StatusOK)
	}
	if len(active) != 0 {
		t.Fatalf("active alerts = %d, want 0", len(active))
	}
}

func TestMaintenanceFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{"name": "Trator", "hours_used": 950, "mtbf": 1000})

	var invalid errorBody
	if code := s.call(t, http.MethodPost, "/v1/maintenance", token, map[string]any{"equipment_id": "x"}, &invalid); code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid create status = %d, want %d", code, http.StatusUnprocessableEntity)
	}
	for _, f := range []string{"equipment_id", "maintenance_type", "description", "scheduled_date"} {
		if len(invalid.Fields[f]) == 0 {
			t.Fatalf("fields = %v, want an error for %s", invalid.Fields, f)
		}
	}

	var m store.Maintenance
	body := map[string]any{
		"equipment_id":     e.ID.String(),
		"maintenance_type": "corrective",
		"description":      "Troca de óleo e filtros",
		"scheduled_date":   "2024-05-05T08:00:00Z",
		"cost":             1200,
	}
	if code := s.call(t, http.MethodPost, "/v1/maintenance", token, body, &m); code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", code, http.StatusCreated)
	}
	if m.Status != store.MaintenanceScheduled || m.EquipmentName != "Trator" {
		t.Fatalf("created = %+v", m)
	}

	var upcoming []store.Maintenance
	if code := s.call(t, http.MethodGet, "/v1/maintenance/upcoming?days=7", token, nil, &upcoming); code != http.StatusOK {
		t.Fatalf("upcoming status = %d, want %d", code, http.StatusOK)
	}
	if len(upcoming) != 1 {
		t.Fatalf("upcoming = %d, want 1", len(upcoming))
	}

	// an open record blocks auto-scheduling
	var sched struct {
		Created int `json:"created"`
	}
	if code := s.call(t, http.MethodPost, "/v1/maintenance/schedule", token, nil, &sched); code != http.StatusOK {
		t.Fatalf("schedule status = %d, want %d", code, http.StatusOK)
	}
	if sched.Created != 0 {
		t.Fatalf("scheduled = %d, want 0", sched.Created)
	}

	id := m.ID.String()
	if code := s.call(t, http.MethodPost, "/v1/maintenance/"+id+"/start", token, nil, &m); code != http.StatusOK {
		t.Fatalf("start status = %d, want %d", code, http.StatusOK)
	}
	var machine store.Equipment
	s.call(t, http.MethodGet, "/v1/equipment/"+e.ID.String(), token, nil, &machine)
	if machine.Status != store.EquipmentMaintenance {
		t.Fatalf("equipment status = %q, want maintenance", machine.Status)
	}

	done := map[string]any{"downtime_hours": 6, "components_replaced": []string{"Filtro de óleo"}}
	if code := s.call(t, http.MethodPost, "/v1/maintenance/"+id+"/complete", token, done, &m); code != http.StatusOK {
		t.Fatalf("complete status = %d, want %d", code, http.StatusOK)
	}
	if m.Status != store.MaintenanceCompleted || m.DowntimeHours != 6 || m.CompletedDate == nil {
		t.Fatalf("completed = %+v", m)
	}
	s.call(t, http.MethodGet, "/v1/equipment/"+e.ID.String(), token, nil, &machine)
	if machine.Status != store.EquipmentActive || machine.RiskLevel != "high" {
		t.Fatalf("equipment after completion = %q %s, want active high", machine.Status, machine.RiskLevel)
	}
	if code := s.call(t, http.MethodPost, "/v1/maintenance/"+id+"/cancel", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("cancel completed status = %d, want %d", code, http.StatusConflict)
	}

	var stats maintenance.Stats
	if code := s.call(t, http.MethodGet, "/v1/maintenance/stats", token, nil, &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", code, http.StatusOK)
	}
	if stats.Completed != 1 || stats.TotalCost != 1200 || stats.TotalDowntime != 6 {
		t.Fatalf("stats = %+v", stats)
	}

	if code := s.call(t, http.MethodPost, "/v1/maintenance/schedule", token, map[string]string{"equipment_id": e.ID.String()}, &sched); code != http.StatusOK {
		t.Fatalf("schedule one status = %d, want %d", code, http.StatusOK)
	}
	if sched.Created != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.Created)
	}
}

func TestReportsFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{
		"name":                "Trator",
		"hours_used":          950,
		"mtbf":                1000,
		"critical_components": []string{"Motor"},
	})

	var verr errorBody
	if code := s.call(t, http.MethodPost, "/v1/reports", token, map[string]string{"equipment_id": e.ID.String(), "report_type": "weekly"}, &verr); code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown type status = %d, want %d", code, http.StatusUnprocessableEntity)
	}
	if len(verr.Fields["report_type"]) == 0 {
		t.Fatalf("fields = %v, want report_type", verr.Fields)
	}

	var r store.Report
	body := map[string]string{"equipment_id": e.ID.String(), "report_type": "health"}
	if code := s.call(t, http.MethodPost, "/v1/reports", token, body, &r); code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", code, http.StatusCreated)
	}
	if r.Status != store.ReportGenerated || r.Title != "Relatório de saúde - Trator" {
		t.Fatalf("created = %q %q", r.Status, r.Title)
	}
	path := "/v1/reports/" + r.ID.String()

	if code := s.call(t, http.MethodGet, path, token, nil, &r); code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", code, http.StatusOK)
	}
	if r.Status != store.ReportViewed {
		t.Fatalf("status after read = %q, want viewed", r.Status)
	}

	resp, err := http.NewRequest(http.MethodGet, s.URL+path+"/export", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(resp)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	text, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("export = %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(text), "Trator") {
		t.Fatalf("export text = %q, want equipment name", text)
	}

	var dl struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expires_in"`
	}
	if code := s.call(t, http.MethodGet, path+"/download", token, nil, &dl); code != http.StatusOK {
		t.Fatalf("download status = %d, want %d", code, http.StatusOK)
	}
	if !strings.HasPrefix(dl.URL, "memory://reports/reports/") || dl.ExpiresIn != 900 {
		t.Fatalf("download = %+v", dl)
	}

	if code := s.call(t, http.MethodPost, path+"/archive", token, nil, &r); code != http.StatusOK {
		t.Fatalf("archive status = %d, want %d", code, http.StatusOK)
	}
	if r.Status != store.ReportArchived {
		t.Fatalf("status = %q, want archived", r.Status)
	}
	if code := s.call(t, http.MethodPost, path+"/archive", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("second archive status = %d, want %d", code, http.StatusConflict)
	}

	var list []store.Report
	if code := s.call(t, http.MethodGet, "/v1/reports?type=maintenance", token, nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", code, http.StatusOK)
	}
	if len(list) != 0 {
		t.Fatalf("maintenance reports = %d, want 0", len(list))
	}
}

func TestUploadsFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	e := s.createEquipment(t, token, map[string]any{"name": "Trator", "hours_used": 10, "mtbf": 1000})

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "bad format", body: map[string]any{"file_name": "dados.pdf", "content_type": "application/pdf", "size": 100, "equipment_id": "all", "data_type": "operational"}, field: "file"},
		{name: "too large", body: map[string]any{"file_name": "dados.csv", "content_type": "text/csv", "size": 6 << 20, "equipment_id": "all", "data_type": "operational"}, field: "file"},
		{name: "bad target", body: map[string]any{"file_name": "dados.csv", "content_type": "text/csv", "size": 100, "equipment_id": "trator", "data_type": "operational"}, field: "equipment_id"},
		{name: "bad data type", body: map[string]any{"file_name": "dados.csv", "content_type": "text/csv", "size": 100, "equipment_id": "all", "data_type": "weather"}, field: "data_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			if code := s.call(t, http.MethodPost, "/v1/uploads", token, tt.body, &body); code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", code, http.StatusUnprocessableEntity)
			}
			if len(body.Fields[tt.field]) == 0 {
				t.Fatalf("fields = %v, want %s", body.Fields, tt.field)
			}
		})
	}

	var created uploadResponse
	body := map[string]any{"file_name": "horas.csv", "content_type": "text/csv", "size": 2048, "equipment_id": e.ID.String(), "data_type": "operational"}
	if code := s.call(t, http.MethodPost, "/v1/uploads", token, body, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", code, http.StatusCreated)
	}
	u := created.Upload
	if u.Status != store.UploadPending || u.Format != "csv" || u.EquipmentID == nil || *u.EquipmentID != e.ID {
		t.Fatalf("upload = %+v", u)
	}
	wantKey := "uploads/" + u.OwnerID.String() + "/" + u.ID.String() + ".csv"
	if u.ObjectKey != wantKey {
		t.Fatalf("object key = %q, want %q", u.ObjectKey, wantKey)
	}
	if !strings.HasPrefix(created.UploadURL, "memory://uploads/"+wantKey) {
		t.Fatalf("upload url = %q", created.UploadURL)
	}

	path := "/v1/uploads/" + u.ID.String()
	if code := s.call(t, http.MethodPost, path+"/complete", token, nil, nil); code != http.StatusAccepted {
		t.Fatalf("complete status = %d, want %d", code, http.StatusAccepted)
	}
	if got := s.bus.count(bus.SubjectUploadReceived); got != 1 {
		t.Fatalf("upload events = %d, want 1", got)
	}

	u.Status = store.UploadProcessed
	if err := s.store.UpdateUpload(context.Background(), &u); err != nil {
		t.Fatalf("UpdateUpload() error = %v", err)
	}
	if code := s.call(t, http.MethodPost, path+"/complete", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("complete processed status = %d, want %d", code, http.StatusConflict)
	}

	var list []store.Upload
	if code := s.call(t, http.MethodGet, "/v1/uploads", token, nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d with %d uploads, want 200 with 1", code, len(list))
	}
}

func TestCompleteUploadWithoutBroker(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "ana@fazenda.com.br")
	var created uploadResponse
	body := map[string]any{"file_name": "horas.xlsx", "size": 2048, "equipment_id": "all", "data_type": "operational"}
	if code := s.call(t, http.MethodPost, "/v1/uploads", token, body, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", code, http.StatusCreated)
	}
	if created.Upload.EquipmentID != nil {
		t.Fatalf("equipment id = %v, want nil for all", created.Upload.EquipmentID)
	}

	s.bus.failWith(errors.New("nats down"))
	if code := s.call(t, http.MethodPost, "/v1/uploads/"+created.Upload.ID.String()+"/complete", token, nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("complete status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "ana@fazenda.com.br")

	c, err := client.New(s.URL)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	ctx := context.Background()
	user, err := c.Login(ctx, "ana@fazenda.com.br", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	first := c.Tokens()

	s.clock.Advance(defaultAccessTTL + time.Minute)
	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() after expiry error = %v", err)
	}
	if me.ID != user.ID {
		t.Fatalf("me = %s, want %s", me.ID, user.ID)
	}
	if c.Tokens().AccessToken == first.AccessToken {
		t.Fatalf("access token was not rotated")
	}

	s.clock.Advance(defaultRefreshTTL + time.Minute)
	if _, err := c.ListEquipment(ctx); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("ListEquipment() after refresh expiry error = %v, want 401", err)
	}
}
