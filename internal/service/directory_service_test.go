package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
)

func TestDirectoryServiceResolveNarrowsByClaims(t *testing.T) {
	f := newGovernanceFixture(t, fixtureOptions{})
	f.store.grant("head-hr", models.RoleQualityManager, "")
	ctx := context.Background()

	subject, err := f.directory.Resolve(ctx, actor("head-hr"))
	require.NoError(t, err)
	assert.Len(t, subject.Assignments, 2)

	subject, err = f.directory.Resolve(ctx, models.Actor{UserID: "head-hr", Roles: []models.Role{models.RoleDepartmentHead}})
	require.NoError(t, err)
	require.Len(t, subject.Assignments, 1)
	assert.Equal(t, models.RoleDepartmentHead, subject.Assignments[0].Role)

	subject, err = f.directory.Resolve(ctx, models.Actor{UserID: "owner", Roles: []models.Role{models.RoleAdmin}})
	require.NoError(t, err)
	assert.Empty(t, subject.Assignments)

	_, err = f.directory.Resolve(ctx, models.Actor{})
	requireErrorCode(t, err, appErrors.ErrUnauthorized)
}

func TestDirectoryServiceDepartments(t *testing.T) {
	f := newGovernanceFixture(t, fixtureOptions{})
	ctx := context.Background()

	departments, err := f.directory.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, departments, 2)
	assert.Equal(t, "HR", departments[0].Code)

	f.expectTx(1)
	created, err := f.directory.CreateDepartment(ctx, actor("admin"), dto.CreateDepartmentRequest{Code: "qa", Name: " Quality Assurance "})
	require.NoError(t, err)
	assert.Equal(t, "QA", created.Code)
	assert.Equal(t, "Quality Assurance", created.Name)

	entries := f.store.auditActions(models.AuditActionDepartmentCreate)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].ActorUserID)
	assert.Nil(t, entries[0].DocumentID)
	assert.Equal(t, created.ID, metadataOf(t, entries[0])["departmentId"])
	assert.Equal(t, "QA", metadataOf(t, entries[0])["code"])

	found, err := f.directory.GetDepartment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "QA", found.Code)

	f.expectRollback()
	_, err = f.directory.CreateDepartment(ctx, actor("admin"), dto.CreateDepartmentRequest{Code: "QA", Name: "Duplicate"})
	requireErrorCode(t, err, appErrors.ErrConflict)
	assert.Equal(t, "code", appErrors.FromError(err).Field)
	assert.Len(t, f.store.auditActions(models.AuditActionDepartmentCreate), 1)

	_, err = f.directory.CreateDepartment(ctx, actor("qm"), dto.CreateDepartmentRequest{Code: "OPS", Name: "Operations"})
	requireErrorCode(t, err, appErrors.ErrNotAuthorized)

	_, err = f.directory.CreateDepartment(ctx, actor("admin"), dto.CreateDepartmentRequest{Code: "O-PS", Name: "Operations"})
	requireErrorCode(t, err, appErrors.ErrValidation)

	_, err = f.directory.GetDepartment(ctx, "8b3e4d6a-0c3f-4e5d-9a4b-2c3d4e5f6071")
	requireErrorCode(t, err, appErrors.ErrNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDirectoryServiceAssignAndRevoke(t *testing.T) {
	f := newGovernanceFixture(t, fixtureOptions{})
	ctx := context.Background()
	dept := deptIT

	f.expectTx(1)
	assignment, err := f.directory.AssignRole(ctx, actor("admin"), dto.AssignRoleRequest{UserID: "new-head", Role: "department_head", DepartmentID: &dept})
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)

	subject, err := f.directory.Resolve(ctx, actor("new-head"))
	require.NoError(t, err)
	require.Len(t, subject.Assignments, 1)
	assert.True(t, subject.Assignments[0].InDepartment(deptIT))

	f.expectRollback()
	_, err = f.directory.AssignRole(ctx, actor("admin"), dto.AssignRoleRequest{UserID: "new-head", Role: "department_head", DepartmentID: &dept})
	requireErrorCode(t, err, appErrors.ErrDuplicateAssignment)

	_, err = f.directory.AssignRole(ctx, actor("admin"), dto.AssignRoleRequest{UserID: "new-head", Role: "janitor"})
	requireErrorCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "role", appErrors.FromError(err).Field)

	missing := "8b3e4d6a-0c3f-4e5d-9a4b-2c3d4e5f6071"
	_, err = f.directory.AssignRole(ctx, actor("admin"), dto.AssignRoleRequest{UserID: "new-head", Role: "instructor", DepartmentID: &missing})
	requireErrorCode(t, err, appErrors.ErrNotFound)

	_, err = f.directory.AssignRole(ctx, actor("head-hr"), dto.AssignRoleRequest{UserID: "head-hr", Role: "admin"})
	requireErrorCode(t, err, appErrors.ErrNotAuthorized)

	f.expectTx(1)
	require.NoError(t, f.directory.RevokeRole(ctx, actor("admin"), assignment.ID))

	f.expectRollback()
	err = f.directory.RevokeRole(ctx, actor("admin"), assignment.ID)
	requireErrorCode(t, err, appErrors.ErrNotFound)

	assigned := f.store.auditActions(models.AuditActionRoleAssign)
	require.Len(t, assigned, 1)
	assert.Equal(t, "new-head", metadataOf(t, assigned[0])["userId"])
	assert.Len(t, f.store.auditActions(models.AuditActionRoleRevoke), 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDirectoryServiceListAssignments(t *testing.T) {
	f := newGovernanceFixture(t, fixtureOptions{})
	ctx := context.Background()

	own, err := f.directory.ListAssignments(ctx, actor("owner"), "owner")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, models.RoleInstructor, own[0].Role)

	_, err = f.directory.ListAssignments(ctx, actor("owner"), "qm")
	requireErrorCode(t, err, appErrors.ErrNotAuthorized)

	other, err := f.directory.ListAssignments(ctx, actor("admin"), "qm")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestDirectoryServiceBootstrapAdmin(t *testing.T) {
	f := newGovernanceFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.directory.CreateDepartment(ctx, actor("root"), dto.CreateDepartmentRequest{Code: "OPS", Name: "Operations"})
	requireErrorCode(t, err, appErrors.ErrNotAuthorized)

	f.expectTx(1)
	require.NoError(t, f.directory.BootstrapAdmin(ctx, " root "))
	require.NoError(t, f.directory.BootstrapAdmin(ctx, "root"))
	require.NoError(t, f.directory.BootstrapAdmin(ctx, "admin"))

	assignments, err := f.directory.ListAssignments(ctx, actor("root"), "root")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, models.RoleAdmin, assignments[0].Role)
	assert.Nil(t, assignments[0].DepartmentID)

	granted := f.store.auditActions(models.AuditActionRoleAssign)
	require.Len(t, granted, 1)
	assert.Equal(t, models.SystemActorID, granted[0].ActorUserID)
	meta := metadataOf(t, granted[0])
	assert.Equal(t, "root", meta["userId"])
	assert.Equal(t, true, meta["bootstrap"])

	f.expectTx(1)
	_, err = f.directory.CreateDepartment(ctx, actor("root"), dto.CreateDepartmentRequest{Code: "OPS", Name: "Operations"})
	require.NoError(t, err)

	err = f.directory.BootstrapAdmin(ctx, "  ")
	requireErrorCode(t, err, appErrors.ErrValidation)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDirectoryServiceRoleChangesDropScopedStatistics(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client, "arc", nil), nil, time.Minute, nil, true)

	f := newGovernanceFixture(t, fixtureOptions{cache: cache})
	ctx := context.Background()
	f.createDraft(t, "it-staff", deptIT, models.LevelForm, "")

	stats, _, err := f.documents.Statistics(ctx, actor("owner"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDocuments)
	_, _, err = f.documents.Statistics(ctx, actor("it-staff"))
	require.NoError(t, err)
	require.True(t, srv.Exists("arc:stats:user:owner"))
	require.True(t, srv.Exists("arc:stats:user:it-staff"))

	dept := deptIT
	f.expectTx(1)
	assignment, err := f.directory.AssignRole(ctx, actor("admin"), dto.AssignRoleRequest{UserID: "owner", Role: "instructor", DepartmentID: &dept})
	require.NoError(t, err)
	assert.False(t, srv.Exists("arc:stats:user:owner"))
	assert.True(t, srv.Exists("arc:stats:user:it-staff"))

	stats, cached, err := f.documents.Statistics(ctx, actor("owner"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, stats.TotalDocuments)

	f.expectTx(1)
	require.NoError(t, f.directory.RevokeRole(ctx, actor("admin"), assignment.ID))
	assert.False(t, srv.Exists("arc:stats:user:owner"))

	stats, cached, err = f.documents.Statistics(ctx, actor("owner"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0, stats.TotalDocuments)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
