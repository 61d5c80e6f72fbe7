package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/models"
	"github.com/ekaya-inc/resource-engine/pkg/serializer"
	sqlgen "github.com/ekaya-inc/resource-engine/pkg/sql"
	"github.com/ekaya-inc/resource-engine/pkg/testhelpers"
	"github.com/ekaya-inc/resource-engine/pkg/triggers"
)

// stubResources serves prebuilt resources by name.
type stubResources map[string]*models.Resource

func (s stubResources) Get(name string) (*models.Resource, error) {
	if res, ok := s[name]; ok {
		return res, nil
	}
	return nil, &apperrors.DefinitionNotFoundError{Name: name, Path: name + ".xml"}
}

// mockProvider hands out connections from a sqlmock database and remembers
// them so tests can check they were released. A non-nil closeErr is reported
// by Close after the connection has been returned to the pool.
type mockProvider struct {
	db       *sql.DB
	err      error
	closeErr error
	acquired []*sql.Conn
}

func (p *mockProvider) Acquire(ctx context.Context, _ string) (datasource.Conn, error) {
	if p.err != nil {
		return nil, p.err
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	p.acquired = append(p.acquired, conn)
	if p.closeErr != nil {
		return &failingCloseConn{Conn: conn, err: p.closeErr}, nil
	}
	return conn, nil
}

type failingCloseConn struct {
	*sql.Conn
	err error
}

func (c *failingCloseConn) Close() error {
	_ = c.Conn.Close()
	return c.err
}

func (p *mockProvider) assertReleased(t *testing.T) {
	t.Helper()
	for _, conn := range p.acquired {
		assert.ErrorIs(t, conn.PingContext(context.Background()), sql.ErrConnDone)
	}
}

type testEngine struct {
	svc      ResourceService
	mock     sqlmock.Sqlmock
	provider *mockProvider
	triggers *triggers.Manager
	logs     *observer.ObservedLogs
}

func newTestEngine(t *testing.T, opts ResourceServiceOptions) *testEngine {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	resources := stubResources{
		"Film":          testhelpers.MustResource(t, "Film", testhelpers.FilmDefinition()),
		"LanguageFilms": testhelpers.MustResource(t, "LanguageFilms", testhelpers.LanguageFilmsDefinition()),
	}
	core, logs := observer.New(zap.DebugLevel)
	provider := &mockProvider{db: db}
	mgr := triggers.NewManager(zaptest.NewLogger(t))

	svc := NewResourceService(resources, sqlgen.NewBuilder(nil, sqlgen.BuilderOptions{}), mgr,
		serializer.JSON{}, provider, opts, zap.New(core))
	return &testEngine{svc: svc, mock: mock, provider: provider, triggers: mgr, logs: logs}
}

func statements(req *models.Request) []string {
	return req.Log.(*models.StatementLog).Statements()
}

func TestReadCollection_Flat(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}).
			AddRow(int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)).
			AddRow(int64(2), "ACE GOLDFINGER", int64(2006), nil).
			AddRow(int64(3), "ADAPTATION HOLES", int64(2006), nil))

	req := models.NewRequest(models.RequestTypeSelect, "Film", nil, nil)
	records, err := e.svc.ReadCollection(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, records, 3)
	for _, rec := range records {
		assert.ElementsMatch(t, []string{"film_id", "title", "year", "stars"}, keys(rec))
	}
	assert.Equal(t, "ACE GOLDFINGER", records[1]["title"])
	assert.Equal(t, []string{testhelpers.FilmQuery}, statements(req))
	assert.NoError(t, e.mock.ExpectationsWereMet())
	e.provider.assertReleased(t)
}

func TestReadCollection_Hierarchical(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.LanguageFilmsQuery).WillReturnRows(
		sqlmock.NewRows(languageFilmColumns).
			AddRow(int64(1), "English", int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)).
			AddRow(int64(1), "English", int64(2), "ACE GOLDFINGER", int64(2006), nil).
			AddRow(int64(2), "Italian", int64(3), "ADAPTATION HOLES", int64(2006), nil).
			AddRow(int64(3), "Japanese", nil, nil, nil, nil))

	req := models.NewRequest(models.RequestTypeSelect, "LanguageFilms", nil, nil)
	records, err := e.svc.ReadCollection(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []any{"English", "Italian", "Japanese"},
		[]any{records[0]["lang_name"], records[1]["lang_name"], records[2]["lang_name"]})
	assert.Len(t, records[0]["films"], 2)
	assert.Len(t, records[1]["films"], 1)
	assert.Empty(t, records[2]["films"])
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReadCollection_Filtered(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	expected := "SELECT film.film_id, film.title, film.release_year AS year, film_rating.stars " +
		"FROM film LEFT OUTER JOIN film_rating ON film_rating.film_id = film.film_id " +
		"WHERE film.film_id = 7 ORDER BY film.film_id"
	e.mock.ExpectQuery(expected).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}).
			AddRow(int64(7), "AIRPORT POLLOCK", int64(2006), nil))

	req := models.NewRequest(models.RequestTypeSelect, "Film",
		[]models.NameValuePair{{Name: "film_id", Value: 7}}, nil)
	records, err := e.svc.ReadCollection(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0]["film_id"])
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReadCollection_UnknownResource(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Actor", nil, nil))
	assert.ErrorIs(t, err, apperrors.ErrDefinitionNotFound)
	assert.Empty(t, e.provider.acquired)
}

func TestReadCollection_RejectsWriteType(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeDelete, "Film", nil, nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Empty(t, e.provider.acquired)
}

func TestReadCollection_InvalidParameter(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})

	_, err := e.svc.ReadCollection(context.Background(), models.NewRequest(models.RequestTypeSelect, "Film", nil,
		[]models.NameValuePair{{Name: "no_such_column", Value: 1}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "failed to build select for Film")
	assert.Empty(t, e.provider.acquired)
}

func TestReadCollection_StatementFailure(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	cause := errors.New(`relation "film_rating" does not exist`)
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnError(cause)

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.Error(t, err)

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, testhelpers.FilmQuery, execErr.Statement)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperrors.ErrExecution)
	e.provider.assertReleased(t)
}

func TestReadCollection_ReleaseFailureIsLogged(t *testing.T) {
	t.Run("successful read keeps its records", func(t *testing.T) {
		e := newTestEngine(t, ResourceServiceOptions{})
		e.provider.closeErr = errors.New("driver: bad connection")
		e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
			sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}).
				AddRow(int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)))

		records, err := e.svc.ReadCollection(context.Background(),
			models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ACADEMY DINOSAUR", records[0]["title"])

		entries := e.logs.FilterMessage("Failed to release connection").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "sakila", entries[0].ContextMap()["database"])
		e.provider.assertReleased(t)
	})

	t.Run("failed read keeps the statement error", func(t *testing.T) {
		e := newTestEngine(t, ResourceServiceOptions{})
		e.provider.closeErr = errors.New("driver: bad connection")
		cause := errors.New("canceling statement due to statement timeout")
		e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnError(cause)

		_, err := e.svc.ReadCollection(context.Background(),
			models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
		var execErr *apperrors.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.ErrorIs(t, err, cause)
		assert.NotContains(t, err.Error(), "bad connection")
		assert.Equal(t, 1, e.logs.FilterMessage("Failed to release connection").Len())
	})
}

func TestReadCollection_AssemblyFailure(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title"}).AddRow(int64(1), "ACADEMY DINOSAUR"))

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, testhelpers.FilmQuery, execErr.Statement)
	e.provider.assertReleased(t)
}

func TestReadCollection_AcquireFailure(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	cause := errors.New("database \"sakila\" is not configured")
	e.provider.err = cause

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Empty(t, execErr.Statement)
	assert.ErrorIs(t, err, cause)
}

func TestReadCollection_Triggers(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}))

	var seen []int
	e.triggers.Register("Film", triggers.TriggerFunc("count", func(_ context.Context, ev triggers.Event) error {
		seen = append(seen, len(statements(ev.Request)))
		if !ev.Before {
			// The read connection is back in the pool before after-triggers run.
			e.provider.assertReleased(t)
		}
		return nil
	}))

	records, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestReadCollection_BeforeTriggerVeto(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.triggers.Register("Film", triggers.TriggerFunc("deny", func(_ context.Context, ev triggers.Event) error {
		return errors.New("access denied")
	}))

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	assert.ErrorIs(t, err, apperrors.ErrTrigger)
	assert.Empty(t, e.provider.acquired)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReadCollection_AfterTriggerDiscardsResults(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}).
			AddRow(int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)))
	e.triggers.Register("Film", triggers.TriggerFunc("audit", func(_ context.Context, ev triggers.Event) error {
		if ev.Before {
			return nil
		}
		return errors.New("audit sink unavailable")
	}))

	records, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.Error(t, err)
	assert.Nil(t, records)

	var trigErr *apperrors.TriggerError
	require.ErrorAs(t, err, &trigErr)
	assert.False(t, trigErr.Before)
	assert.Equal(t, "audit", trigErr.Trigger)
}

func TestReadCollection_LogsStatement(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}))

	_, err := e.svc.ReadCollection(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.NoError(t, err)

	entries := e.logs.FilterMessage("Executing statement").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Film", entries[0].ContextMap()["resource"])
	assert.Equal(t, "engine", entries[0].LoggerName)
}

func TestReadDocument_JSON(t *testing.T) {
	e := newTestEngine(t, ResourceServiceOptions{})
	e.mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}).
			AddRow(int64(1), "ACADEMY DINOSAUR", int64(2006), int64(4)))

	doc, err := e.svc.ReadDocument(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.NoError(t, err)

	assert.Equal(t, serializer.FormatJSON, doc.Format)
	assert.Equal(t, "application/json", doc.ContentType)
	assert.Empty(t, doc.ContentEncoding)
	assert.JSONEq(t, `{"films":[{"film_id":1,"title":"ACADEMY DINOSAUR","year":2006,"stars":4}]}`, string(doc.Body))
}

func TestReadDocument_Compressed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	compressed, err := serializer.NewCompressed(serializer.JSON{})
	require.NoError(t, err)
	defer compressed.Close()

	resources := stubResources{"Film": testhelpers.MustResource(t, "Film", testhelpers.FilmDefinition())}
	svc := NewResourceService(resources, sqlgen.NewBuilder(nil, sqlgen.BuilderOptions{}), nil,
		compressed, &mockProvider{db: db}, ResourceServiceOptions{}, zaptest.NewLogger(t))

	mock.ExpectQuery(testhelpers.FilmQuery).WillReturnRows(
		sqlmock.NewRows([]string{"film_id", "title", "year", "stars"}))

	doc, err := svc.ReadDocument(context.Background(),
		models.NewRequest(models.RequestTypeSelect, "Film", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "zstd", doc.ContentEncoding)

	body, err := serializer.Decompress(doc.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"films":[]}`, string(body))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
