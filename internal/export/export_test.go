package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/models"
)

type stubSource struct {
	records  []*models.AttendanceRecord
	from, to string
}

func (s *stubSource) All(_ context.Context, from, to string) ([]*models.AttendanceRecord, error) {
	s.from, s.to = from, to
	return s.records, nil
}

type MockPutter struct {
	mock.Mock
}

func (m *MockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecords() []*models.AttendanceRecord {
	created := time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC)
	return []*models.AttendanceRecord{
		{ID: "r1", Username: "alice", Date: "2025-06-15", Attended: true, Level: 1, Device: "Pixel, 8", CreatedAt: created},
		{ID: "r2", Username: "bob", Date: "2025-06-15", Attended: false, Level: 2, CreatedAt: created},
	}
}

func TestExportCSV(t *testing.T) {
	src := &stubSource{records: sampleRecords()}
	e := NewExporter(src, nil, discard())

	var buf bytes.Buffer
	n, err := e.Export(context.Background(), &buf, "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2025-06-01", src.from)
	assert.Equal(t, "2025-06-30", src.to)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"r1", "alice", "2025-06-15", "true", "1", "Pixel, 8", "2025-06-15T07:00:00Z"}, rows[1])
	assert.Equal(t, "false", rows[2][3])
}

func TestArchiveDisabled(t *testing.T) {
	e := NewExporter(&stubSource{}, nil, discard())
	_, err := e.Archive(context.Background(), "2025-06-15")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestArchiveUploadsDay(t *testing.T) {
	putter := new(MockPutter)
	putter.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "yoga-archive" &&
			aws.ToString(in.Key) == "attendance/2025/06/15.csv" &&
			aws.ToString(in.ContentType) == "text/csv"
	})).Return(nil)

	src := &stubSource{records: sampleRecords()}
	e := NewExporter(src, NewS3ArchiverWithClient(putter, "yoga-archive"), discard())

	key, err := e.Archive(context.Background(), "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, "attendance/2025/06/15.csv", key)
	assert.Equal(t, "2025-06-15", src.from)
	assert.Equal(t, "2025-06-15", src.to)
	putter.AssertExpectations(t)
}

func TestArchiveRejectsBadDate(t *testing.T) {
	e := NewExporter(&stubSource{}, NewS3ArchiverWithClient(new(MockPutter), "b"), discard())
	_, err := e.Archive(context.Background(), "15-06-2025")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
