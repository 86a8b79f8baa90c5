package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/access"
	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	"github.com/noah-isme/arc-docs-api/pkg/config"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/storage"
)

const (
	deptHR = "6f1c2b4e-8a1d-4c3b-9e2f-0a1b2c3d4e5f"
	deptIT = "7a2d3c5f-9b2e-4d4c-8f3a-1b2c3d4e5f60"
)

// memoryStore backs every store interface with maps guarded by one mutex.
// Transactions are driven by sqlmock; the maps ignore exec.
type memoryStore struct {
	mu          sync.Mutex
	departments map[string]models.Department
	assignments []models.RoleAssignment
	documents   map[string]models.Document
	versions    []models.DocumentVersion
	approvals   []models.ApprovalRequest
	audits      []models.AuditLog
	sequences   map[models.SequenceBucket]int
	// serializationFailures makes the next N sequence increments fail.
	serializationFailures int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		departments: map[string]models.Department{},
		documents:   map[string]models.Document{},
		sequences:   map[models.SequenceBucket]int{},
	}
}

func (m *memoryStore) addDepartment(id, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[id] = models.Department{ID: id, Code: code, Name: code + " department"}
}

func (m *memoryStore) grant(userID string, role models.Role, departmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment := models.RoleAssignment{ID: uuid.NewString(), UserID: userID, Role: role, CreatedAt: time.Now()}
	if departmentID != "" {
		dept := departmentID
		assignment.DepartmentID = &dept
	}
	m.assignments = append(m.assignments, assignment)
}

func (m *memoryStore) document(id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.documents[id]
}

func (m *memoryStore) slots(documentID string, round int) []models.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApprovalRequest
	for _, slot := range m.approvals {
		if slot.DocumentID == documentID && slot.Round == round {
			out = append(out, slot)
		}
	}
	return out
}

func (m *memoryStore) auditFor(documentID string) []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, entry := range m.audits {
		if entry.DocumentID != nil && *entry.DocumentID == documentID {
			out = append(out, entry)
		}
	}
	return out
}

func (m *memoryStore) auditActions(action models.AuditAction) []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, entry := range m.audits {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

type memDepartments struct{ *memoryStore }

func (m memDepartments) List(ctx context.Context) ([]models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m memDepartments) FindByID(ctx context.Context, id string) (*models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m memDepartments) FindByCode(ctx context.Context, code string) (*models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.departments {
		if d.Code == code {
			out := d
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memDepartments) Create(ctx context.Context, exec sqlx.ExtContext, department *models.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.departments {
		if d.Code == department.Code {
			return fmt.Errorf("insert department: %w", repository.ErrDuplicate)
		}
	}
	department.ID = uuid.NewString()
	m.departments[department.ID] = *department
	return nil
}

type memRoles struct{ *memoryStore }

func (m memRoles) ListByUser(ctx context.Context, userID string) ([]models.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memRoles) ListByRoles(ctx context.Context, exec sqlx.ExtContext, roles []models.Role) ([]models.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoleAssignment
	for _, a := range m.assignments {
		for _, role := range roles {
			if a.Role == role {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (m memRoles) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memRoles) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.UserID == assignment.UserID && a.Role == assignment.Role && stringValue(a.DepartmentID) == stringValue(assignment.DepartmentID) {
			return fmt.Errorf("insert role assignment: %w", repository.ErrDuplicate)
		}
	}
	assignment.ID = uuid.NewString()
	assignment.CreatedAt = time.Now()
	m.assignments = append(m.assignments, *assignment)
	return nil
}

func (m memRoles) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.ID == id {
			m.assignments = append(m.assignments[:i], m.assignments[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type memDocuments struct{ *memoryStore }

func (m memDocuments) Create(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	for _, existing := range m.documents {
		if existing.DocumentNumber != nil && doc.DocumentNumber != nil && *existing.DocumentNumber == *doc.DocumentNumber {
			return fmt.Errorf("insert document: %w", repository.ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.documents[doc.ID] = *doc
	return nil
}

func (m memDocuments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (m memDocuments) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error) {
	return m.FindByID(ctx, exec, id)
}

func (m memDocuments) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Document
	for _, doc := range m.documents {
		if filter.Visibility != nil && !access.Allows(*filter.Visibility, doc) {
			continue
		}
		if filter.OwnerUserID != "" && doc.OwnerUserID != filter.OwnerUserID {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, status := range filter.Status {
				found = found || doc.Status == status
			}
			if !found {
				continue
			}
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(doc.Title), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool { return stringValue(matched[i].DocumentNumber) < stringValue(matched[j].DocumentNumber) })
	total := len(matched)
	if filter.Offset >= len(matched) {
		return []models.Document{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (m memDocuments) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.documents[doc.ID]
	if !ok {
		return sql.ErrNoRows
	}
	updated := *doc
	updated.Status = current.Status
	updated.SubmissionRound = current.SubmissionRound
	m.documents[doc.ID] = updated
	return nil
}

func (m memDocuments) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, change repository.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[change.ID]
	if !ok || doc.Status != change.From {
		return false, nil
	}
	doc.Status = change.To
	doc.IsObsolete = change.To == models.DocumentStatusObsolete
	if change.ApprovedByUserID != nil {
		doc.ApprovedByUserID = change.ApprovedByUserID
		doc.ApprovedAt = change.ApprovedAt
	}
	if change.BumpRound {
		doc.SubmissionRound++
	}
	m.documents[change.ID] = doc
	return true, nil
}

func (m memDocuments) HasHistory(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.DocumentID == id {
			return true, nil
		}
	}
	for _, a := range m.approvals {
		if a.DocumentID == id {
			return true, nil
		}
	}
	for _, d := range m.documents {
		if d.ParentDocumentID != nil && *d.ParentDocumentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m memDocuments) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.documents, id)
	return nil
}

func (m memDocuments) Statistics(ctx context.Context, visibility models.Visibility) (*models.DocumentStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.DocumentStatistics{ByStatus: map[string]int{}, ByLevel: map[string]int{}, ByCategory: map[string]int{}}
	for _, doc := range m.documents {
		if !access.Allows(visibility, doc) {
			continue
		}
		stats.TotalDocuments++
		stats.ByStatus[string(doc.Status)]++
		stats.ByLevel[fmt.Sprintf("%d", doc.Level)]++
	}
	return stats, nil
}

type memVersions struct{ *memoryStore }

func (m memVersions) Create(ctx context.Context, exec sqlx.ExtContext, version *models.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.DocumentID == version.DocumentID && v.Version == version.Version {
			return fmt.Errorf("insert document version: %w", repository.ErrDuplicate)
		}
	}
	version.ID = uuid.NewString()
	m.versions = append(m.versions, *version)
	return nil
}

func (m memVersions) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m memVersions) Find(ctx context.Context, documentID, version string) (*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.Version == version {
			out := v
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

type memApprovals struct{ *memoryStore }

func (m memApprovals) InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range slots {
		for _, existing := range m.approvals {
			if existing.DocumentID == slots[i].DocumentID && existing.Round == slots[i].Round && existing.ApproverUserID == slots[i].ApproverUserID {
				return fmt.Errorf("insert approval slot: %w", repository.ErrDuplicate)
			}
		}
		slots[i].ID = uuid.NewString()
		m.approvals = append(m.approvals, slots[i])
	}
	return nil
}

func (m memApprovals) GetSlotForUpdate(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, approverID string) (*models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.approvals {
		if slot.DocumentID == documentID && slot.Round == round && slot.ApproverUserID == approverID {
			out := slot
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memApprovals) Decide(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApprovalStatus, comments *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.approvals {
		if m.approvals[i].ID == id {
			if m.approvals[i].Status != models.ApprovalStatusPending {
				return false, nil
			}
			m.approvals[i].Status = status
			m.approvals[i].Comments = comments
			m.approvals[i].ApprovedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m memApprovals) InvalidatePending(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, comment string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.approvals {
		slot := &m.approvals[i]
		if slot.DocumentID == documentID && slot.Round == round && slot.Status == models.ApprovalStatusPending {
			c := comment
			slot.Status = models.ApprovalStatusRejected
			slot.Comments = &c
			slot.ApprovedAt = &at
			n++
		}
	}
	return n, nil
}

func (m memApprovals) Tally(ctx context.Context, exec sqlx.ExtContext, documentID string, round int) (models.ApprovalTally, error) {
	var tally models.ApprovalTally
	for _, slot := range m.slots(documentID, round) {
		switch slot.Status {
		case models.ApprovalStatusPending:
			tally.Pending++
		case models.ApprovalStatusApproved:
			tally.Approved++
		case models.ApprovalStatusRejected:
			tally.Rejected++
		}
	}
	return tally, nil
}

func (m memApprovals) ListByDocument(ctx context.Context, documentID string) ([]models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApprovalRequest
	for _, slot := range m.approvals {
		if slot.DocumentID == documentID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (m memApprovals) ListPendingForApprover(ctx context.Context, approverID string) ([]models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApprovalRequest
	for _, slot := range m.approvals {
		doc := m.documents[slot.DocumentID]
		if slot.ApproverUserID == approverID && slot.Status == models.ApprovalStatusPending &&
			doc.Status == models.DocumentStatusPendingApproval && slot.Round == doc.SubmissionRound {
			out = append(out, slot)
		}
	}
	return out, nil
}

type memAudit struct{ *memoryStore }

func (m memAudit) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.NewString()
	m.audits = append(m.audits, *entry)
	return nil
}

func (m memAudit) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for i := len(m.audits) - 1; i >= 0; i-- {
		entry := m.audits[i]
		if filter.ActorExact != "" && entry.ActorUserID != filter.ActorExact {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type memSequences struct{ *memoryStore }

func (m memSequences) Next(ctx context.Context, exec sqlx.ExtContext, bucket models.SequenceBucket) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serializationFailures > 0 {
		m.serializationFailures--
		return 0, fmt.Errorf("allocate sequence: %w", repository.ErrSerialization)
	}
	m.sequences[bucket]++
	return m.sequences[bucket], nil
}

// governanceFixture wires every service over one memoryStore.
type governanceFixture struct {
	store     *memoryStore
	db        *sqlx.DB
	mock      sqlmock.Sqlmock
	audit     *AuditService
	directory *DirectoryService
	sequences *SequenceService
	versions  *VersionService
	lifecycle *Lifecycle
	approvals *ApprovalService
	documents *DocumentService
}

type fixtureOptions struct {
	cache         *CacheService
	maxAttempts   int
	skipDefaults  bool
	sequenceClock time.Time
}

func newTxDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// newGovernanceFixture seeds HR and IT departments with:
// owner (instructor HR), head-hr (department head HR), head-it (department
// head IT), qm (quality manager), admin, auditor and it-staff (instructor IT).
func newGovernanceFixture(t *testing.T, opts fixtureOptions) *governanceFixture {
	t.Helper()
	store := newMemoryStore()
	store.addDepartment(deptHR, "HR")
	store.addDepartment(deptIT, "IT")
	if !opts.skipDefaults {
		store.grant("owner", models.RoleInstructor, deptHR)
		store.grant("head-hr", models.RoleDepartmentHead, deptHR)
		store.grant("head-it", models.RoleDepartmentHead, deptIT)
		store.grant("qm", models.RoleQualityManager, "")
		store.grant("admin", models.RoleAdmin, "")
		store.grant("auditor", models.RoleAuditor, "")
		store.grant("it-staff", models.RoleInstructor, deptIT)
	}
	if opts.maxAttempts == 0 {
		opts.maxAttempts = 3
	}

	db, mock := newTxDB(t)
	f := &governanceFixture{store: store, db: db, mock: mock}

	f.directory = NewDirectoryService(db, memDepartments{store}, memRoles{store}, nil, opts.cache, nil, nil)
	f.audit = NewAuditService(memAudit{store}, f.directory, nil, nil)
	f.directory.SetAuditRecorder(f.audit)
	f.sequences = NewSequenceService(db, memSequences{store}, memDepartments{store}, f.directory, nil,
		config.SequenceConfig{MaxAttempts: opts.maxAttempts}, nil, nil)
	if !opts.sequenceClock.IsZero() {
		f.sequences.now = func() time.Time { return opts.sequenceClock }
	}
	f.versions = NewVersionService(memVersions{store}, memDocuments{store}, f.directory, f.audit,
		storage.NewSignedURLSigner("test-secret", time.Minute), "https://files.example.com/downloads", nil)
	f.lifecycle = NewLifecycle(memDocuments{store}, f.audit)
	f.approvals = NewApprovalService(ApprovalServiceDeps{
		DB:        db,
		Documents: memDocuments{store},
		Approvals: memApprovals{store},
		Directory: memRoles{store},
		Subjects:  f.directory,
		Lifecycle: f.lifecycle,
		Audit:     f.audit,
		Cache:     opts.cache,
	})
	f.documents = NewDocumentService(DocumentServiceDeps{
		DB:          db,
		Documents:   memDocuments{store},
		Departments: memDepartments{store},
		Approvals:   f.approvals,
		Slots:       memApprovals{store},
		Versions:    f.versions,
		Sequences:   f.sequences,
		Lifecycle:   f.lifecycle,
		Subjects:    f.directory,
		Audit:       f.audit,
		Cache:       opts.cache,
	})
	return f
}

// expectTx queues n committed transactions.
func (f *governanceFixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *governanceFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func actor(userID string) models.Actor {
	return models.Actor{UserID: userID}
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

// createDraft creates a document owned by owner in deptID.
func (f *governanceFixture) createDraft(t *testing.T, owner, deptID string, level int, contentRef string) *models.Document {
	t.Helper()
	f.expectTx(1)
	req := dto.CreateDocumentRequest{
		Title:        "Recruitment procedure",
		Prefix:       "PROC",
		DepartmentID: deptID,
		Level:        level,
		Year:         2024,
	}
	if contentRef != "" {
		req.ContentReference = strPtr(contentRef)
	}
	doc, err := f.documents.Create(context.Background(), actor(owner), req)
	require.NoError(t, err)
	return doc
}

func (f *governanceFixture) submit(t *testing.T, by, documentID string) *dto.SubmissionResult {
	t.Helper()
	f.expectTx(1)
	result, err := f.documents.Submit(context.Background(), actor(by), documentID)
	require.NoError(t, err)
	return result
}

func (f *governanceFixture) decide(t *testing.T, by, documentID, decision string) *dto.DecisionResult {
	t.Helper()
	f.expectTx(1)
	result, err := f.approvals.RecordDecision(context.Background(), actor(by), documentID, dto.DecisionRequest{Decision: decision})
	require.NoError(t, err)
	return result
}

func metadataOf(t *testing.T, entry models.AuditLog) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Metadata, &out))
	return out
}

func requireErrorCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want.Code, appErrors.FromError(err).Code, err.Error())
}
