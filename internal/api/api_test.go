package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/whisk/internal/activation"
	"github.com/oriys/whisk/internal/blobstore"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/invoker"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/werr"
)

// fakeStore is a minimal in-memory store.MetadataStore for façade tests.
type fakeStore struct {
	namespaces  map[string]*domain.Namespace
	packages    map[string]*domain.Package
	actions     map[string]*domain.Action
	triggers    map[string]*domain.Trigger
	rules       map[string]*domain.Rule
	activations map[string]*domain.Activation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		namespaces:  map[string]*domain.Namespace{},
		packages:    map[string]*domain.Package{},
		actions:     map[string]*domain.Action{},
		triggers:    map[string]*domain.Trigger{},
		rules:       map[string]*domain.Rule{},
		activations: map[string]*domain.Activation{},
	}
}

func (s *fakeStore) UpsertNamespace(ctx context.Context, ns *domain.Namespace) error {
	s.namespaces[ns.Name] = ns
	return nil
}
func (s *fakeStore) GetNamespace(ctx context.Context, name string) (*domain.Namespace, error) {
	ns, ok := s.namespaces[name]
	if !ok {
		return nil, werr.NotFoundf("namespace %s not found", name)
	}
	return ns, nil
}
func (s *fakeStore) ListNamespaces(ctx context.Context, subject string) ([]*domain.Namespace, error) {
	var out []*domain.Namespace
	for _, ns := range s.namespaces {
		out = append(out, ns)
	}
	return out, nil
}
func (s *fakeStore) DeleteNamespace(ctx context.Context, name string) error {
	delete(s.namespaces, name)
	return nil
}

func (s *fakeStore) UpsertPackage(ctx context.Context, pkg *domain.Package) error {
	s.packages[pkg.Namespace+"/"+pkg.Name] = pkg
	return nil
}
func (s *fakeStore) GetPackage(ctx context.Context, namespace, name string) (*domain.Package, error) {
	pkg, ok := s.packages[namespace+"/"+name]
	if !ok {
		return nil, werr.NotFoundf("package %s/%s not found", namespace, name)
	}
	return pkg, nil
}
func (s *fakeStore) ListPackages(ctx context.Context, namespace string) ([]*domain.Package, error) {
	var out []*domain.Package
	for _, p := range s.packages {
		if p.Namespace == namespace {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *fakeStore) DeletePackage(ctx context.Context, namespace, name string) error {
	delete(s.packages, namespace+"/"+name)
	return nil
}
func (s *fakeStore) ResolvePackageParameters(ctx context.Context, namespace, name string) ([]domain.KeyValue, error) {
	pkg, err := s.GetPackage(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	return pkg.Parameters, nil
}

func (s *fakeStore) actionKey(ns, pkg, name string) string {
	return ns + "/" + pkg + "/" + name
}
func (s *fakeStore) UpsertAction(ctx context.Context, a *domain.Action) error {
	s.actions[s.actionKey(a.Namespace, a.Package, a.Name)] = a
	return nil
}
func (s *fakeStore) GetAction(ctx context.Context, namespace, pkg, name string) (*domain.Action, error) {
	a, ok := s.actions[s.actionKey(namespace, pkg, name)]
	if !ok {
		return nil, werr.NotFoundf("action not found")
	}
	return a, nil
}
func (s *fakeStore) ListActions(ctx context.Context, namespace, pkg string) ([]*domain.Action, error) {
	var out []*domain.Action
	for _, a := range s.actions {
		if a.Namespace == namespace && (pkg == "" || a.Package == pkg) {
			out = append(out, a)
		}
	}
	return out, nil
}
func (s *fakeStore) DeleteAction(ctx context.Context, namespace, pkg, name string) error {
	delete(s.actions, s.actionKey(namespace, pkg, name))
	return nil
}

func (s *fakeStore) UpsertTrigger(ctx context.Context, trig *domain.Trigger) error {
	s.triggers[trig.Namespace+"/"+trig.Name] = trig
	return nil
}
func (s *fakeStore) GetTrigger(ctx context.Context, namespace, name string) (*domain.Trigger, error) {
	t, ok := s.triggers[namespace+"/"+name]
	if !ok {
		return nil, werr.NotFoundf("trigger not found")
	}
	return t, nil
}
func (s *fakeStore) ListTriggers(ctx context.Context, namespace string) ([]*domain.Trigger, error) {
	var out []*domain.Trigger
	for _, t := range s.triggers {
		if t.Namespace == namespace {
			out = append(out, t)
		}
	}
	return out, nil
}
func (s *fakeStore) DeleteTrigger(ctx context.Context, namespace, name string) error {
	delete(s.triggers, namespace+"/"+name)
	return nil
}

func (s *fakeStore) UpsertRule(ctx context.Context, rule *domain.Rule) error {
	s.rules[rule.Namespace+"/"+rule.Name] = rule
	return nil
}
func (s *fakeStore) GetRule(ctx context.Context, namespace, name string) (*domain.Rule, error) {
	r, ok := s.rules[namespace+"/"+name]
	if !ok {
		return nil, werr.NotFoundf("rule not found")
	}
	return r, nil
}
func (s *fakeStore) ListRules(ctx context.Context, namespace string) ([]*domain.Rule, error) {
	var out []*domain.Rule
	for _, r := range s.rules {
		if r.Namespace == namespace {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeStore) ListRulesForTrigger(ctx context.Context, namespace, triggerName string) ([]*domain.Rule, error) {
	triggerFQN := domain.BuildFQN(namespace, "", triggerName)
	var out []*domain.Rule
	for _, r := range s.rules {
		if r.Namespace == namespace && r.Trigger == triggerFQN {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeStore) DeleteRule(ctx context.Context, namespace, name string) error {
	delete(s.rules, namespace+"/"+name)
	return nil
}

func (s *fakeStore) SaveActivation(ctx context.Context, a *domain.Activation) error {
	s.activations[a.Namespace+"/"+a.ActivationID] = a
	return nil
}
func (s *fakeStore) GetActivation(ctx context.Context, namespace, activationID string) (*domain.Activation, error) {
	a, ok := s.activations[namespace+"/"+activationID]
	if !ok {
		return nil, werr.NotFoundf("activation not found")
	}
	return a, nil
}
func (s *fakeStore) ListActivations(ctx context.Context, namespace string, limit int, sinceActionName string) ([]*domain.Activation, error) {
	var out []*domain.Activation
	for _, a := range s.activations {
		if a.Namespace != namespace {
			continue
		}
		if sinceActionName != "" && a.Name != sinceActionName {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (s *fakeStore) Ping(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                   { return nil }

type fakeBlob struct{}

func (fakeBlob) Put(ctx context.Context, namespace, actionName string, code []byte, binary bool) (string, error) {
	return domain.HashCode(code), nil
}
func (fakeBlob) Get(ctx context.Context, namespace, actionName, codeHash string) ([]byte, error) {
	return nil, nil
}
func (fakeBlob) Delete(ctx context.Context, namespace, actionName, codeHash string) error {
	return nil
}
func (fakeBlob) PresignedGet(ctx context.Context, namespace, actionName, codeHash string, expires time.Duration) (string, error) {
	return "", nil
}

var _ blobstore.Client = fakeBlob{}

func newTestHandler() (*Handler, *fakeStore) {
	st := newFakeStore()
	bl := fakeBlob{}
	reg := invoker.NewRegistry(nil)
	sched := invoker.NewScheduler(reg)
	am := activation.NewManager(st, nil)
	orch := orchestrator.New(st, bl, nil, am, sched, "actions")
	return New(st, bl, orch, "actions"), st
}

func doRequest(mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reqBody = strings.NewReader(string(encoded))
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reqBody)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestPutPackageThenGetPackage(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rr := doRequest(mux, http.MethodPut, "/namespaces/ns1/packages/pkg1", packageBody{Publish: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT package: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, http.MethodGet, "/namespaces/ns1/packages/pkg1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET package: expected 200, got %d", rr.Code)
	}
	var pkg domain.Package
	if err := json.Unmarshal(rr.Body.Bytes(), &pkg); err != nil {
		t.Fatalf("decode package: %v", err)
	}
	if pkg.Name != "pkg1" || pkg.Namespace != "ns1" {
		t.Fatalf("unexpected package: %+v", pkg)
	}
}

func TestPutPackageWithoutOverwriteConflicts(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	doRequest(mux, http.MethodPut, "/namespaces/ns1/packages/pkg1", packageBody{})
	rr := doRequest(mux, http.MethodPut, "/namespaces/ns1/packages/pkg1", packageBody{})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-create without overwrite, got %d", rr.Code)
	}

	rr = doRequest(mux, http.MethodPut, "/namespaces/ns1/packages/pkg1?overwrite=true", packageBody{Publish: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with overwrite=true, got %d", rr.Code)
	}
}

func TestDeletePackageConflictsWithActionsUnlessForced(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	doRequest(mux, http.MethodPut, "/namespaces/ns1/packages/pkg1", packageBody{})
	_ = st.UpsertAction(context.Background(), &domain.Action{Namespace: "ns1", Package: "pkg1", Name: "child"})

	rr := doRequest(mux, http.MethodDelete, "/namespaces/ns1/packages/pkg1", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting package with actions, got %d", rr.Code)
	}

	rr = doRequest(mux, http.MethodDelete, "/namespaces/ns1/packages/pkg1?force=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting package with force=true, got %d", rr.Code)
	}
	if _, err := st.GetAction(context.Background(), "ns1", "pkg1", "child"); err == nil {
		t.Fatalf("expected action to be cascade-deleted")
	}
}

func TestPutActionCodeBearingThenInvokeBlocking(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	st.namespaces["ns1"] = &domain.Namespace{Name: "ns1"}

	code := []byte("console.log('hi')")
	rr := doRequest(mux, http.MethodPut, "/namespaces/ns1/actions/greet", actionBody{
		Exec:   actionExecBody{Kind: "nodejs:20", Code: base64.StdEncoding.EncodeToString(code)},
		Limits: domain.Limits{TimeoutMS: 1000, MemoryMB: 256, LogsMB: 1},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT action: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	action, err := st.GetAction(context.Background(), "ns1", "", "greet")
	if err != nil {
		t.Fatalf("action not stored: %v", err)
	}
	if action.Exec.CodeHash == "" {
		t.Fatalf("expected code hash to be set")
	}

	// No healthy invoker registered: invocation must fail service-unavailable.
	rr = doRequest(mux, http.MethodPost, "/namespaces/ns1/actions/greet?blocking=true", map[string]string{"name": "pat"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no invoker, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListNamespacesAlwaysIncludesUnderscore(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rr := doRequest(mux, http.MethodGet, "/namespaces", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var names []string
	if err := json.Unmarshal(rr.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) == 0 || names[0] != "_" {
		t.Fatalf("expected leading shared namespace, got %v", names)
	}
}

func TestPutRuleRequiresExistingTriggerAndAction(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rr := doRequest(mux, http.MethodPut, "/namespaces/ns1/rules/r1", ruleBody{
		Trigger: "/ns1/t1",
		Action:  "/ns1/a1",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when trigger/action do not exist, got %d: %s", rr.Code, rr.Body.String())
	}

	st.triggers["ns1/t1"] = &domain.Trigger{Namespace: "ns1", Name: "t1"}
	_ = st.UpsertAction(context.Background(), &domain.Action{Namespace: "ns1", Name: "a1"})

	rr = doRequest(mux, http.MethodPut, "/namespaces/ns1/rules/r1", ruleBody{
		Trigger: "/ns1/t1",
		Action:  "/ns1/a1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once trigger/action exist, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSetRuleStatusTogglesActiveInactive(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	st.triggers["ns1/t1"] = &domain.Trigger{Namespace: "ns1", Name: "t1"}
	_ = st.UpsertAction(context.Background(), &domain.Action{Namespace: "ns1", Name: "a1"})
	doRequest(mux, http.MethodPut, "/namespaces/ns1/rules/r1", ruleBody{Trigger: "/ns1/t1", Action: "/ns1/a1"})

	rr := doRequest(mux, http.MethodPost, "/namespaces/ns1/rules/r1", ruleStatusBody{Status: "inactive"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rule domain.Rule
	if err := json.Unmarshal(rr.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.Status != domain.RuleStatusInactive {
		t.Fatalf("expected rule status inactive, got %q", rule.Status)
	}

	rr = doRequest(mux, http.MethodPost, "/namespaces/ns1/rules/r1", ruleStatusBody{Status: "bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rr.Code)
	}
}

func TestFireTriggerWithNoRulesReturnsEmptyActivationList(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	st.triggers["ns1/t1"] = &domain.Trigger{Namespace: "ns1", Name: "t1"}

	rr := doRequest(mux, http.MethodPost, "/namespaces/ns1/triggers/t1", map[string]string{"k": "v"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		ActivationIDs []string `json:"activationIds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.ActivationIDs) != 0 {
		t.Fatalf("expected no activations fanned out with no bound rules, got %v", body.ActivationIDs)
	}
}

func TestFireTriggerUnknownTriggerNotFound(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rr := doRequest(mux, http.MethodPost, "/namespaces/ns1/triggers/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown trigger, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestActivationLifecycleListGetLogsResult(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	pending := &domain.Activation{
		ActivationID: "act-pending",
		Namespace:    "ns1",
		Name:         "greet",
		Status:       domain.ActivationStatusPending,
		Start:        time.Now(),
	}
	_ = st.SaveActivation(context.Background(), pending)

	done := &domain.Activation{
		ActivationID: "act-done",
		Namespace:    "ns1",
		Name:         "greet",
		Status:       domain.ActivationStatusSuccess,
		Start:        time.Now(),
		Logs:         []string{"hello"},
		Response:     domain.ActivationResponse{StatusCode: 200, Success: true, Result: map[string]interface{}{"greeting": "hi"}},
	}
	_ = st.SaveActivation(context.Background(), done)

	rr := doRequest(mux, http.MethodGet, "/namespaces/ns1/activations", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list activations: expected 200, got %d", rr.Code)
	}
	var listed []domain.Activation
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 activations listed, got %d", len(listed))
	}

	rr = doRequest(mux, http.MethodGet, "/namespaces/ns1/activations/act-done", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get activation: expected 200, got %d", rr.Code)
	}

	rr = doRequest(mux, http.MethodGet, "/namespaces/ns1/activations/act-pending/logs", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("logs on pending activation: expected 409, got %d", rr.Code)
	}

	rr = doRequest(mux, http.MethodGet, "/namespaces/ns1/activations/act-done/logs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logs on terminal activation: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var logs []string
	if err := json.Unmarshal(rr.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs) != 1 || logs[0] != "hello" {
		t.Fatalf("unexpected logs: %v", logs)
	}

	rr = doRequest(mux, http.MethodGet, "/namespaces/ns1/activations/act-done/result", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("result on terminal activation: expected 200, got %d", rr.Code)
	}
	var resp domain.ActivationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !resp.Success || resp.Result["greeting"] != "hi" {
		t.Fatalf("unexpected result: %+v", resp)
	}
}

func TestWebActionRejectsNonWebExportedAction(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	_ = st.UpsertAction(context.Background(), &domain.Action{Namespace: "ns1", Name: "greet", WebExport: false})

	rr := doRequest(mux, http.MethodGet, "/web/ns1/default/greet.json", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-web-exported action, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWebActionRejectsUnsupportedExtension(t *testing.T) {
	h, st := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	_ = st.UpsertAction(context.Background(), &domain.Action{Namespace: "ns1", Name: "greet", WebExport: true})

	rr := doRequest(mux, http.MethodGet, "/web/ns1/default/greet.xml", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported extension, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWebActionUnknownActionNotFound(t *testing.T) {
	h, _ := newTestHandler()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rr := doRequest(mux, http.MethodGet, "/web/ns1/default/missing.json", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d: %s", rr.Code, rr.Body.String())
	}
}

