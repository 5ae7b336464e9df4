package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
	"github.com/guildboard/guildboard/internal/infra/sqlite"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

var (
	ctx     = context.Background()
	testNow = time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.EngagementEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.EngagementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// faultStore fails the first repository call that fail rejects, inside a
// transaction, so rollback can be observed.
type faultStore struct {
	*sqlite.DB
	fail func(op string, arg any) error
}

func (s *faultStore) WithinTx(ctx context.Context, fn func(tx domain.Repos) error) error {
	return s.DB.WithinTx(ctx, func(tx domain.Repos) error {
		return fn(&faultRepos{Repos: tx, fail: s.fail})
	})
}

type faultRepos struct {
	domain.Repos
	fail func(op string, arg any) error
}

func (r *faultRepos) SaveLedger(ctx context.Context, a *domain.Account) error {
	if err := r.fail("SaveLedger", a); err != nil {
		return err
	}
	return r.Repos.SaveLedger(ctx, a)
}

func (r *faultRepos) InsertXPEvent(ctx context.Context, e *domain.XPEvent) error {
	if err := r.fail("InsertXPEvent", e); err != nil {
		return err
	}
	return r.Repos.InsertXPEvent(ctx, e)
}

func (r *faultRepos) InsertBadge(ctx context.Context, id domain.UserID, b domain.BadgeAward) error {
	if err := r.fail("InsertBadge", b); err != nil {
		return err
	}
	return r.Repos.InsertBadge(ctx, id, b)
}

type fixture struct {
	t       *testing.T
	db      *sqlite.DB
	svc     *Service
	pub     *recordingPublisher
	project *domain.Project
}

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

func newService(store domain.Store, pub domain.Publisher) *Service {
	return NewService(store, quietLogger(),
		WithPublisher(pub),
		WithClock(func() time.Time { return testNow }),
		WithIDs(sequentialIDs()),
	)
}

func seedAccount(t *testing.T, store domain.Store, id domain.UserID, role domain.Role) {
	t.Helper()
	a := domain.NewAccount(id, string(id), string(id)+"@example.com", role, testNow)
	if err := store.InsertAccount(ctx, a); err != nil {
		t.Fatalf("InsertAccount(%s) error: %v", id, err)
	}
}

// newFixture builds client -> project -> pm -> dev through the service, so
// the client holds the project reward before any task exists.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t)
	return newFixtureOn(t, db, db)
}

func newFixtureOn(t *testing.T, db *sqlite.DB, store domain.Store) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	svc := newService(store, pub)

	for id, role := range map[domain.UserID]domain.Role{
		"client": domain.RoleClient,
		"pm":     domain.RoleManager,
		"dev":    domain.RoleDeveloper,
		"dev2":   domain.RoleDeveloper,
	} {
		seedAccount(t, db, id, role)
	}

	p, err := svc.CreateProject(ctx, "client", CreateProjectInput{Title: "Castle walls"})
	if err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	if _, err := svc.AssignManager(ctx, "client", p.ID, "pm"); err != nil {
		t.Fatalf("AssignManager() error: %v", err)
	}
	for _, dev := range []domain.UserID{"dev", "dev2"} {
		if _, err := svc.AddTeamMember(ctx, "pm", p.ID, dev); err != nil {
			t.Fatalf("AddTeamMember(%s) error: %v", dev, err)
		}
	}
	pub.reset()
	return &fixture{t: t, db: db, svc: svc, pub: pub, project: p}
}

func (f *fixture) task(assignee domain.OptionalUser, xp int) *domain.Task {
	f.t.Helper()
	task, err := f.svc.CreateTask(ctx, "pm", CreateTaskInput{
		ProjectID:  f.project.ID,
		Title:      "Raise the gate",
		AssignedTo: assignee,
		XPPoints:   xp,
	})
	if err != nil {
		f.t.Fatalf("CreateTask() error: %v", err)
	}
	return task
}

func (f *fixture) account(id domain.UserID) *domain.Account {
	f.t.Helper()
	a, err := f.db.GetAccount(ctx, id)
	if err != nil {
		f.t.Fatalf("GetAccount(%s) error: %v", id, err)
	}
	return a
}

func (f *fixture) xp(id domain.UserID) int { return f.account(id).XP }

func (f *fixture) reload(taskID string) *domain.Task {
	f.t.Helper()
	task, err := f.db.GetTask(ctx, taskID)
	if err != nil {
		f.t.Fatalf("GetTask(%s) error: %v", taskID, err)
	}
	return task
}

func (f *fixture) totalXP() int {
	f.t.Helper()
	p, err := f.db.GetProject(ctx, f.project.ID)
	if err != nil {
		f.t.Fatalf("GetProject() error: %v", err)
	}
	return p.TotalXP
}

func status(s domain.TaskStatus) domain.StatusUpdate { return domain.StatusUpdate{Status: s} }

func ptr[T any](v T) *T { return &v }

func badgeIDs(refs []engagement.BadgeRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── Bonus Math ─────────────────────────────────────────────────────────────

func TestBonuses_Floor(t *testing.T) {
	tests := []struct {
		xp, pm, client int
	}{
		{10, 2, 1},
		{15, 3, 1},
		{50, 10, 5},
		{55, 11, 5},
		{99, 19, 9},
		{1000, 200, 100},
	}
	for _, tt := range tests {
		if got := PMBonus(tt.xp); got != tt.pm {
			t.Errorf("PMBonus(%d) = %d, want %d", tt.xp, got, tt.pm)
		}
		if got := ClientBonus(tt.xp); got != tt.client {
			t.Errorf("ClientBonus(%d) = %d, want %d", tt.xp, got, tt.client)
		}
	}
}

// ─── Flat Rewards ───────────────────────────────────────────────────────────

func TestCreateProject_CreditsClient(t *testing.T) {
	f := newFixture(t)
	if got := f.xp("client"); got != 50 {
		t.Errorf("client xp = %d, want 50", got)
	}

	p, err := f.db.GetProject(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	if !p.Manager.Is("pm") || p.Status != domain.ProjectActive {
		t.Errorf("project manager=%+v status=%s, want pm/active", p.Manager, p.Status)
	}
	events, err := f.db.ListXPEvents(ctx, "client", 10)
	if err != nil {
		t.Fatalf("ListXPEvents() error: %v", err)
	}
	if len(events) != 1 || events[0].Reason != domain.ReasonProjectCreated {
		t.Errorf("client events = %+v, want one project_created", events)
	}
}

func TestCreateProject_NonClientForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateProject(ctx, "dev", CreateProjectInput{Title: "Side quest"})
	if domain.KindOf(err) != domain.KindForbidden || !errors.Is(err, domain.ErrClientOnly) {
		t.Fatalf("CreateProject(dev) error = %v, want forbidden client-only", err)
	}
	if got := f.xp("dev"); got != 0 {
		t.Errorf("dev xp = %d, want 0", got)
	}
}

func TestAssignManager_Rules(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AssignManager(ctx, "client", f.project.ID, "pm"); domain.KindOf(err) != domain.KindConflict {
		t.Errorf("second AssignManager() error = %v, want conflict", err)
	}

	p, err := f.svc.CreateProject(ctx, "client", CreateProjectInput{Title: "Moat"})
	if err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	if _, err := f.svc.AssignManager(ctx, "pm", p.ID, "pm"); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("AssignManager by pm error = %v, want forbidden", err)
	}
	if _, err := f.svc.AssignManager(ctx, "client", p.ID, "dev"); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("AssignManager(dev) error = %v, want validation", err)
	}
	if _, err := f.svc.AssignManager(ctx, "client", p.ID, "nobody"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("AssignManager(nobody) error = %v, want not found", err)
	}
}

func TestCreateTask_CreditsManagerAndTotal(t *testing.T) {
	f := newFixture(t)
	f.task(domain.SomeUser("dev"), 100)
	f.task(domain.NoUser, 0)

	if got := f.xp("pm"); got != 20 {
		t.Errorf("pm xp = %d, want 20", got)
	}
	if got := f.totalXP(); got != 100+domain.DefaultTaskXP {
		t.Errorf("total xp = %d, want %d", got, 100+domain.DefaultTaskXP)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   CreateTaskInput
		kind domain.Kind
	}{
		{"blank title", CreateTaskInput{ProjectID: f.project.ID, Title: "  "}, domain.KindValidation},
		{"xp too low", CreateTaskInput{ProjectID: f.project.ID, Title: "t", XPPoints: 5}, domain.KindValidation},
		{"xp too high", CreateTaskInput{ProjectID: f.project.ID, Title: "t", XPPoints: 1001}, domain.KindValidation},
		{"bad priority", CreateTaskInput{ProjectID: f.project.ID, Title: "t", Priority: "urgent"}, domain.KindValidation},
		{"assignee not on team", CreateTaskInput{ProjectID: f.project.ID, Title: "t", AssignedTo: domain.SomeUser("client")}, domain.KindValidation},
		{"unknown project", CreateTaskInput{ProjectID: "nope", Title: "t"}, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateTask(ctx, "pm", tt.in); domain.KindOf(err) != tt.kind {
				t.Errorf("CreateTask() error = %v, want kind %s", err, tt.kind)
			}
		})
	}
	if _, err := f.svc.CreateTask(ctx, "dev", CreateTaskInput{ProjectID: f.project.ID, Title: "t"}); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("CreateTask by dev error = %v, want forbidden", err)
	}
	if got := f.totalXP(); got != 0 {
		t.Errorf("total xp after rejected creates = %d, want 0", got)
	}
}

func TestDeleteTask_ShrinksTotal(t *testing.T) {
	f := newFixture(t)
	keep := f.task(domain.SomeUser("dev"), 100)
	drop := f.task(domain.SomeUser("dev"), 40)

	if err := f.svc.DeleteTask(ctx, "dev", drop.ID); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("DeleteTask by dev error = %v, want forbidden", err)
	}
	if err := f.svc.DeleteTask(ctx, "pm", drop.ID); err != nil {
		t.Fatalf("DeleteTask() error: %v", err)
	}
	if got := f.totalXP(); got != keep.XPPoints {
		t.Errorf("total xp = %d, want %d", got, keep.XPPoints)
	}
	if err := f.svc.DeleteTask(ctx, "pm", drop.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("second DeleteTask() error = %v, want not found", err)
	}
}

// ─── Task Completion ────────────────────────────────────────────────────────

func TestUpdateTask_CompletionDistributesXP(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev"), 100)
	f.pub.reset()

	res, err := f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone))
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if !res.Completed || res.XPEarned != 100 || !res.LeveledUp || res.NewLevel != 2 {
		t.Errorf("result = %+v, want completed, 100xp, level up to 2", res)
	}
	if got := badgeIDs(res.NewBadges); !equalStrings(got, []string{"first_quest"}) {
		t.Errorf("new badges = %v, want [first_quest]", got)
	}
	if res.PMBonus != 20 || res.ClientBonus != 10 {
		t.Errorf("bonuses pm=%d client=%d, want 20/10", res.PMBonus, res.ClientBonus)
	}

	dev := f.account("dev")
	if dev.XP != 100 || dev.Level != 2 || dev.TasksCompleted != 1 {
		t.Errorf("dev = xp %d level %d tasks %d, want 100/2/1", dev.XP, dev.Level, dev.TasksCompleted)
	}
	if !dev.HasBadge("first_quest") {
		t.Error("dev badge first_quest not persisted")
	}
	if got := f.xp("pm"); got != 10+20 {
		t.Errorf("pm xp = %d, want 30", got)
	}
	if got := f.xp("client"); got != 50+10 {
		t.Errorf("client xp = %d, want 60", got)
	}

	stored := f.reload(task.ID)
	if stored.Status != domain.StatusDone || stored.CompletedAt == nil || !stored.CompletedAt.Equal(testNow) {
		t.Errorf("task status=%s completed_at=%v, want done at %v", stored.Status, stored.CompletedAt, testNow)
	}
	if !stored.CompletedBy.Is("dev") {
		t.Errorf("completed_by = %+v, want dev", stored.CompletedBy)
	}

	want := []domain.EventType{domain.EventTaskCompleted, domain.EventLevelUp, domain.EventBadgeAwarded}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUpdateTask_CompletionPaysOnce(t *testing.T) {
	tests := []struct {
		name  string
		steps []domain.TaskStatus
	}{
		{"done twice", []domain.TaskStatus{domain.StatusDone, domain.StatusDone}},
		{"reopen then done", []domain.TaskStatus{domain.StatusDone, domain.StatusInProgress, domain.StatusDone}},
		{"review bounce", []domain.TaskStatus{domain.StatusReview, domain.StatusDone, domain.StatusReview, domain.StatusDone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(domain.SomeUser("dev"), 80)

			var credited int
			for _, s := range tt.steps {
				res, err := f.svc.UpdateTask(ctx, "dev", task.ID, status(s))
				if err != nil {
					t.Fatalf("UpdateTask(%s) error: %v", s, err)
				}
				credited += res.XPEarned
			}
			if credited != 80 {
				t.Errorf("total xp earned = %d, want 80", credited)
			}
			dev := f.account("dev")
			if dev.XP != 80 || dev.TasksCompleted != 1 {
				t.Errorf("dev xp=%d tasks=%d, want 80/1", dev.XP, dev.TasksCompleted)
			}
			if got := f.xp("pm"); got != 10+16 {
				t.Errorf("pm xp = %d, want 26", got)
			}
			if f.reload(task.ID).CompletedAt == nil {
				t.Error("completed_at cleared after reopen")
			}
		})
	}
}

func TestUpdateTask_UnassignedDone(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.NoUser, 100)
	pmBefore, clientBefore := f.xp("pm"), f.xp("client")

	res, err := f.svc.UpdateTask(ctx, "pm", task.ID, domain.ManagerUpdate{Status: ptr(domain.StatusDone)})
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if !res.Completed || res.XPEarned != 0 || res.LeveledUp || len(res.NewBadges) != 0 {
		t.Errorf("result = %+v, want completed with no credit", res)
	}
	if res.NewBadges == nil {
		t.Error("new badges is nil, want empty slice")
	}
	if f.xp("pm") != pmBefore || f.xp("client") != clientBefore {
		t.Error("bonuses paid for an unassigned task")
	}

	stored := f.reload(task.ID)
	if stored.CompletedAt == nil || stored.CompletedBy.Valid {
		t.Errorf("completed_at=%v completed_by=%+v, want set/absent", stored.CompletedAt, stored.CompletedBy)
	}
	firstDone := *stored.CompletedAt

	// Assigning while already done is not a transition into done.
	res, err = f.svc.UpdateTask(ctx, "pm", task.ID, domain.ManagerUpdate{
		AssignedTo: ptr(domain.SomeUser("dev")),
		Status:     ptr(domain.StatusDone),
	})
	if err != nil {
		t.Fatalf("UpdateTask(assign) error: %v", err)
	}
	if res.XPEarned != 0 || f.xp("dev") != 0 {
		t.Errorf("xp earned %d, dev xp %d after assigning a done task, want 0/0", res.XPEarned, f.xp("dev"))
	}

	// Reopened and finished by the assignee, the task pays in full.
	if _, err := f.svc.UpdateTask(ctx, "pm", task.ID, status(domain.StatusInProgress)); err != nil {
		t.Fatalf("UpdateTask(reopen) error: %v", err)
	}
	res, err = f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone))
	if err != nil {
		t.Fatalf("UpdateTask(done) error: %v", err)
	}
	if !res.Completed || res.XPEarned != 100 || res.PMBonus != 20 || res.ClientBonus != 10 {
		t.Errorf("result = %+v, want 100 earned with 20/10 bonuses", res)
	}
	dev := f.account("dev")
	if dev.XP != 100 || dev.TasksCompleted != 1 {
		t.Errorf("dev xp=%d tasks=%d, want 100/1", dev.XP, dev.TasksCompleted)
	}
	if f.xp("pm") != pmBefore+20 || f.xp("client") != clientBefore+10 {
		t.Errorf("pm xp=%d client xp=%d, want bonuses paid once", f.xp("pm"), f.xp("client"))
	}
	stored = f.reload(task.ID)
	if !stored.CompletedBy.Is("dev") || stored.CompletedAt == nil || !stored.CompletedAt.Equal(firstDone) {
		t.Errorf("completed_at=%v completed_by=%+v, want first done time and dev", stored.CompletedAt, stored.CompletedBy)
	}

	// Paid now: another round trip through done pays nothing.
	if _, err := f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusReview)); err != nil {
		t.Fatalf("UpdateTask(review) error: %v", err)
	}
	res, err = f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone))
	if err != nil {
		t.Fatalf("UpdateTask(done again) error: %v", err)
	}
	if res.Completed || res.XPEarned != 0 || f.xp("dev") != 100 {
		t.Errorf("second completion result = %+v, dev xp %d, want no payout", res, f.xp("dev"))
	}
}

func TestUpdateTask_CompletionLogFields(t *testing.T) {
	db := openDB(t)
	f := newFixtureOn(t, db, db)
	logger, hook := logtest.NewNullLogger()
	f.svc.log = logger

	lastCompletion := func() *log.Entry {
		t.Helper()
		for i := len(hook.AllEntries()) - 1; i >= 0; i-- {
			if e := hook.AllEntries()[i]; e.Message == "task completed" {
				return e
			}
		}
		t.Fatal("no task completed log entry")
		return nil
	}

	unassigned := f.task(domain.NoUser, 50)
	if _, err := f.svc.UpdateTask(ctx, "pm", unassigned.ID, status(domain.StatusDone)); err != nil {
		t.Fatalf("UpdateTask(unassigned) error: %v", err)
	}
	e := lastCompletion()
	if _, ok := e.Data["assignee"]; ok {
		t.Errorf("unassigned completion logged assignee %v", e.Data["assignee"])
	}
	if e.Data["outcome"] != "unassigned" {
		t.Errorf("outcome = %v, want unassigned", e.Data["outcome"])
	}

	assigned := f.task(domain.SomeUser("dev"), 50)
	if _, err := f.svc.UpdateTask(ctx, "dev", assigned.ID, status(domain.StatusDone)); err != nil {
		t.Fatalf("UpdateTask(assigned) error: %v", err)
	}
	e = lastCompletion()
	if e.Data["assignee"] != domain.UserID("dev") || e.Data["xp"] != 50 || e.Data["outcome"] != "credited" {
		t.Errorf("log fields = %v, want dev credited 50", e.Data)
	}
}

func TestUpdateTask_MultipleBadgesInOnePass(t *testing.T) {
	f := newFixture(t)
	vet := domain.NewAccount("vet", "vet", "vet@example.com", domain.RoleDeveloper, testNow)
	vet.XP, vet.Level, vet.TasksCompleted = 450, 5, 9
	if err := f.db.InsertAccount(ctx, vet); err != nil {
		t.Fatalf("InsertAccount() error: %v", err)
	}
	if _, err := f.svc.AddTeamMember(ctx, "pm", f.project.ID, "vet"); err != nil {
		t.Fatalf("AddTeamMember() error: %v", err)
	}
	task := f.task(domain.SomeUser("vet"), 100)

	res, err := f.svc.UpdateTask(ctx, "vet", task.ID, status(domain.StatusDone))
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	want := []string{"first_quest", "task_warrior", "level_5", "xp_500"}
	if got := badgeIDs(res.NewBadges); !equalStrings(got, want) {
		t.Errorf("new badges = %v, want %v", got, want)
	}
	if !res.LeveledUp || res.NewLevel != 6 {
		t.Errorf("level up=%v new=%d, want true/6", res.LeveledUp, res.NewLevel)
	}
	if got := len(f.account("vet").Badges); got != len(want) {
		t.Errorf("persisted badges = %d, want %d", got, len(want))
	}
}

func TestUpdateTask_MissingManagerAccountSkipsBonus(t *testing.T) {
	db := openDB(t)
	svc := newService(db, &recordingPublisher{})
	seedAccount(t, db, "client", domain.RoleClient)
	seedAccount(t, db, "dev", domain.RoleDeveloper)

	p := &domain.Project{
		ID:          "orphan",
		Title:       "Orphaned",
		Client:      "client",
		Manager:     domain.SomeUser("ghost-pm"),
		Status:      domain.ProjectActive,
		TeamMembers: []domain.TeamMember{{UserID: "dev", Status: domain.MemberActive, JoinedAt: testNow}},
		CreatedAt:   testNow,
	}
	if err := db.InsertProject(ctx, p); err != nil {
		t.Fatalf("InsertProject() error: %v", err)
	}
	task, err := svc.CreateTask(ctx, "ghost-pm", CreateTaskInput{ProjectID: p.ID, Title: "t", AssignedTo: domain.SomeUser("dev"), XPPoints: 100})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}

	res, err := svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone))
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if res.XPEarned != 100 || res.PMBonus != 0 || res.ClientBonus != 10 {
		t.Errorf("result = %+v, want 100 earned, no pm bonus, client 10", res)
	}
}

func TestUpdateTask_MissingAssigneeAborts(t *testing.T) {
	f := newFixture(t)
	if err := f.db.UpsertTeamMember(ctx, f.project.ID, domain.TeamMember{UserID: "ghost", Status: domain.MemberActive, JoinedAt: testNow}); err != nil {
		t.Fatalf("UpsertTeamMember() error: %v", err)
	}
	task := f.task(domain.SomeUser("ghost"), 100)
	pmBefore, clientBefore := f.xp("pm"), f.xp("client")

	_, err := f.svc.UpdateTask(ctx, "pm", task.ID, status(domain.StatusDone))
	if domain.KindOf(err) != domain.KindNotFound || !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("UpdateTask() error = %v, want account not found", err)
	}
	if f.xp("pm") != pmBefore || f.xp("client") != clientBefore {
		t.Error("bonuses paid although the update aborted")
	}
	stored := f.reload(task.ID)
	if stored.Status == domain.StatusDone || stored.CompletedAt != nil {
		t.Errorf("task status=%s completed_at=%v after abort, want untouched", stored.Status, stored.CompletedAt)
	}
}

func TestUpdateTask_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		fail func(op string, arg any) error
	}{
		{"client bonus audit", func(op string, arg any) error {
			if e, ok := arg.(*domain.XPEvent); ok && op == "InsertXPEvent" && e.Reason == domain.ReasonClientBonus {
				return errors.New("disk full")
			}
			return nil
		}},
		{"pm ledger", func(op string, arg any) error {
			if a, ok := arg.(*domain.Account); ok && op == "SaveLedger" && a.ID == "pm" {
				return errors.New("disk full")
			}
			return nil
		}},
		{"badge insert", func(op string, _ any) error {
			if op == "InsertBadge" {
				return errors.New("disk full")
			}
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			armed := false
			store := &faultStore{DB: db, fail: func(op string, arg any) error {
				if !armed {
					return nil
				}
				return tt.fail(op, arg)
			}}
			f := newFixtureOn(t, db, store)
			task := f.task(domain.SomeUser("dev"), 100)
			pmBefore, clientBefore := f.xp("pm"), f.xp("client")
			armed = true

			if _, err := f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone)); err == nil {
				t.Fatal("UpdateTask() succeeded, want injected failure")
			}
			dev := f.account("dev")
			if dev.XP != 0 || dev.TasksCompleted != 0 || len(dev.Badges) != 0 {
				t.Errorf("dev = xp %d tasks %d badges %d, want untouched", dev.XP, dev.TasksCompleted, len(dev.Badges))
			}
			if f.xp("pm") != pmBefore || f.xp("client") != clientBefore {
				t.Error("bonus survived rollback")
			}
			if got := f.reload(task.ID); got.Status != domain.StatusTodo || got.CompletedAt != nil {
				t.Errorf("task status=%s completed_at=%v, want todo/nil", got.Status, got.CompletedAt)
			}
			events, err := db.ListXPEvents(ctx, "dev", 10)
			if err != nil {
				t.Fatalf("ListXPEvents() error: %v", err)
			}
			if len(events) != 0 {
				t.Errorf("dev audit rows = %d, want 0", len(events))
			}
			if got := f.pub.types(); len(got) != 0 {
				t.Errorf("published %v for a rolled back update", got)
			}
		})
	}
}

func TestUpdateTask_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev"), 100)
	f.pub.err = errors.New("broker down")

	if _, err := f.svc.UpdateTask(ctx, "dev", task.ID, status(domain.StatusDone)); err != nil {
		t.Fatalf("UpdateTask() error = %v, want nil", err)
	}
	if got := f.xp("dev"); got != 100 {
		t.Errorf("dev xp = %d, want 100", got)
	}
}

// ─── Update Rules ───────────────────────────────────────────────────────────

func TestUpdateTask_Authorization(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev"), 100)

	tests := []struct {
		name      string
		requester domain.UserID
		update    domain.TaskUpdate
		want      error
	}{
		{"assignee sends manager fields", "dev", domain.ManagerUpdate{Title: ptr("renamed")}, domain.ErrStatusOnly},
		{"other developer edits", "dev2", domain.ManagerUpdate{Title: ptr("renamed")}, domain.ErrNotProjectPM},
		{"other developer moves status", "dev2", status(domain.StatusDone), domain.ErrNotTaskEditor},
		{"client moves status", "client", status(domain.StatusDone), domain.ErrNotTaskEditor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateTask(ctx, tt.requester, task.ID, tt.update)
			if domain.KindOf(err) != domain.KindForbidden || !errors.Is(err, tt.want) {
				t.Errorf("UpdateTask() error = %v, want forbidden %v", err, tt.want)
			}
		})
	}
	if got := f.reload(task.ID); got.Title != task.Title || got.Status != domain.StatusTodo {
		t.Errorf("task changed by rejected updates: %+v", got)
	}

	if _, err := f.svc.UpdateTask(ctx, "pm", task.ID, status(domain.StatusReview)); err != nil {
		t.Errorf("pm status update error: %v", err)
	}
}

func TestUpdateTask_ManagerEdits(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev"), 100)

	res, err := f.svc.UpdateTask(ctx, "pm", task.ID, domain.ManagerUpdate{
		Title:      ptr("Raise the portcullis"),
		XPPoints:   ptr(250),
		Priority:   ptr(domain.PriorityHigh),
		AssignedTo: ptr(domain.SomeUser("dev2")),
	})
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if res.Completed {
		t.Error("edit without done reported completion")
	}
	got := f.reload(task.ID)
	if got.Title != "Raise the portcullis" || got.XPPoints != 250 || got.Priority != domain.PriorityHigh || !got.AssignedTo.Is("dev2") {
		t.Errorf("stored task = %+v", got)
	}
	if total := f.totalXP(); total != 250 {
		t.Errorf("total xp = %d, want 250", total)
	}

	_, err = f.svc.UpdateTask(ctx, "pm", task.ID, domain.ManagerUpdate{AssignedTo: ptr(domain.SomeUser("client"))})
	if domain.KindOf(err) != domain.KindValidation || !errors.Is(err, domain.ErrNotActiveMember) {
		t.Errorf("assign to non-member error = %v, want validation", err)
	}

	if _, err := f.svc.UpdateTask(ctx, "pm", task.ID, domain.ManagerUpdate{AssignedTo: ptr(domain.NoUser)}); err != nil {
		t.Fatalf("unassign error: %v", err)
	}
	if f.reload(task.ID).AssignedTo.Valid {
		t.Error("task still assigned after unassign")
	}
}

func TestUpdateTask_InvalidInput(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev"), 100)

	tests := []struct {
		name   string
		update domain.TaskUpdate
		kind   domain.Kind
	}{
		{"nil", nil, domain.KindValidation},
		{"empty manager update", domain.ManagerUpdate{}, domain.KindValidation},
		{"bad status", status("archived"), domain.KindValidation},
		{"xp out of range", domain.ManagerUpdate{XPPoints: ptr(5)}, domain.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateTask(ctx, "pm", task.ID, tt.update); domain.KindOf(err) != tt.kind {
				t.Errorf("UpdateTask() error = %v, want kind %s", err, tt.kind)
			}
		})
	}
	if _, err := f.svc.UpdateTask(ctx, "pm", "missing", status(domain.StatusDone)); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("UpdateTask(missing) error = %v, want not found", err)
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	a := f.task(domain.SomeUser("dev"), 100)
	f.task(domain.SomeUser("dev2"), 100)
	f.task(domain.NoUser, 100)
	if _, err := f.svc.UpdateTask(ctx, "dev", a.ID, status(domain.StatusInProgress)); err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}

	all, err := f.svc.ListProjectTasks(ctx, "client", f.project.ID, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("ListProjectTasks() = %d tasks, %v; want 3", len(all), err)
	}
	todo, err := f.svc.ListProjectTasks(ctx, "pm", f.project.ID, domain.StatusTodo)
	if err != nil || len(todo) != 2 {
		t.Errorf("ListProjectTasks(todo) = %d tasks, %v; want 2", len(todo), err)
	}
	mine, err := f.svc.ListMyTasks(ctx, "dev", "")
	if err != nil || len(mine) != 1 || mine[0].ID != a.ID {
		t.Errorf("ListMyTasks(dev) = %+v, %v", mine, err)
	}

	seedAccount(t, f.db, "outsider", domain.RoleDeveloper)
	if _, err := f.svc.ListProjectTasks(ctx, "outsider", f.project.ID, ""); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("outsider list error = %v, want forbidden", err)
	}
	if _, err := f.svc.GetProject(ctx, "outsider", f.project.ID); domain.KindOf(err) != domain.KindForbidden {
		t.Errorf("outsider get error = %v, want forbidden", err)
	}
}

func TestTeamMembers(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AddTeamMember(ctx, "pm", f.project.ID, "client"); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("AddTeamMember(client) error = %v, want validation", err)
	}
	p, err := f.svc.RemoveTeamMember(ctx, "pm", f.project.ID, "dev2")
	if err != nil {
		t.Fatalf("RemoveTeamMember() error: %v", err)
	}
	if p.IsActiveMember("dev2") {
		t.Error("dev2 still active after removal")
	}
	if _, err := f.svc.RemoveTeamMember(ctx, "pm", f.project.ID, "dev2"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("second removal error = %v, want not found", err)
	}
	if _, err := f.svc.CreateTask(ctx, "pm", CreateTaskInput{ProjectID: f.project.ID, Title: "t", AssignedTo: domain.SomeUser("dev2")}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("assign removed member error = %v, want validation", err)
	}
}

func TestListMyProjects(t *testing.T) {
	f := newFixture(t)
	second, err := f.svc.CreateProject(ctx, "client", CreateProjectInput{Title: "Moat"})
	if err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}

	tests := []struct {
		name   string
		user   domain.UserID
		status domain.ProjectStatus
		want   []string
	}{
		{"client sees both, newest first", "client", "", []string{second.ID, f.project.ID}},
		{"client pending only", "client", domain.ProjectPending, []string{second.ID}},
		{"manager", "pm", "", []string{f.project.ID}},
		{"member", "dev", domain.ProjectActive, []string{f.project.ID}},
		{"member, none completed", "dev", domain.ProjectCompleted, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListMyProjects(ctx, tt.user, tt.status)
			if err != nil {
				t.Fatalf("ListMyProjects() error: %v", err)
			}
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			if !equalStrings(ids, tt.want) {
				t.Errorf("projects = %v, want %v", ids, tt.want)
			}
		})
	}

	if _, err := f.svc.ListMyProjects(ctx, "client", "archived"); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("bad status error = %v, want validation", err)
	}
}

func TestListDevelopers(t *testing.T) {
	f := newFixture(t)
	task := f.task(domain.SomeUser("dev2"), 200)
	if _, err := f.svc.UpdateTask(ctx, "dev2", task.ID, status(domain.StatusDone)); err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}

	devs, err := f.svc.ListDevelopers(ctx, "pm")
	if err != nil {
		t.Fatalf("ListDevelopers() error: %v", err)
	}
	if len(devs) != 2 || devs[0].ID != "dev2" || devs[1].ID != "dev" {
		t.Errorf("developers = %+v, want dev2 (level 3) then dev", devs)
	}
	if !devs[0].HasBadge("first_quest") {
		t.Error("listed developer is missing badges")
	}

	for _, who := range []domain.UserID{"dev", "client", "ghost"} {
		if _, err := f.svc.ListDevelopers(ctx, who); domain.KindOf(err) != domain.KindForbidden {
			t.Errorf("ListDevelopers(%s) error = %v, want forbidden", who, err)
		}
	}
}

func TestCreateUserAndLedger(t *testing.T) {
	db := openDB(t)
	svc := newService(db, nil)

	a, err := svc.CreateUser(ctx, CreateUserInput{Name: " Ada ", Email: "ADA@Example.com", Role: domain.RoleClient})
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if a.Name != "Ada" || a.Email != "ada@example.com" || a.Level != 1 || a.XP != 0 {
		t.Errorf("account = %+v", a)
	}
	if _, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ada", Email: "ada@example.com", Role: domain.RoleClient}); domain.KindOf(err) != domain.KindConflict {
		t.Errorf("duplicate email error = %v, want conflict", err)
	}
	if _, err := svc.CreateUser(ctx, CreateUserInput{Name: "Bo", Email: "not-an-email", Role: domain.RoleClient}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("bad email error = %v, want validation", err)
	}
	if _, err := svc.CreateUser(ctx, CreateUserInput{Name: "Bo", Email: "bo@example.com", Role: "admin"}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("bad role error = %v, want validation", err)
	}

	if _, err := svc.CreateProject(ctx, a.ID, CreateProjectInput{Title: "Keep"}); err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	view, err := svc.Ledger(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("Ledger() error: %v", err)
	}
	if view.Account.XP != 50 || view.Progress.XPToNextLevel != 50 || view.Progress.ProgressPct != 50 {
		t.Errorf("ledger = %+v progress %+v", view.Account, view.Progress)
	}
	if len(view.Recent) != 1 || view.Recent[0].Amount != 50 {
		t.Errorf("recent = %+v, want one 50xp event", view.Recent)
	}
	if _, err := svc.Ledger(ctx, "nobody", 10); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("Ledger(nobody) error = %v, want not found", err)
	}
}
