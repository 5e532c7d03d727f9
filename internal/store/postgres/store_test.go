package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(db *mockDB) *Store {
	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s
}

func routeScan(hostname string, port int) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = hostname
		*(dest[1].(*string)) = "app"
		*(dest[2].(*string)) = "localhost"
		*(dest[3].(*int)) = port
		*(dest[4].(*string)) = "http"
		*(dest[5].(*string)) = model.ServiceURL("http", "localhost", port)
		*(dest[8].(*string)) = model.RouteStatusActive
		*(dest[17].(*time.Time)) = fixedNow
		*(dest[18].(*time.Time)) = fixedNow
		return nil
	}
}

func TestGetRoute(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"app.example.com"}).
		Return(&mockRow{scanFunc: routeScan("app.example.com", 3000)})

	r, err := s.GetRoute(ctx, "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, 3000, r.LocalPort)
	assert.Equal(t, "http://localhost:3000", r.Service)
	assert.Equal(t, model.RouteStatusActive, r.Status)
	db.AssertExpectations(t)
}

func TestGetRoute_NotFound(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"gone.example.com"}).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	_, err := s.GetRoute(ctx, "gone.example.com")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))

	r, err := s.FindRoute(ctx, "gone.example.com")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestListRoutes_Filter(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Query", ctx,
		mock.MatchedBy(func(q string) bool {
			return assert.Contains(t, q, "project_id = $1 AND status = $2")
		}),
		[]any{"p-shop", model.RouteStatusActive},
	).Return(newMockRows(routeScan("a.example.com", 3000), routeScan("b.example.com", 3001)), nil)

	routes, err := s.ListRoutes(ctx, model.RouteFilter{ProjectID: "p-shop", Status: model.RouteStatusActive})
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "b.example.com", routes[1].Hostname)
}

func TestListRoutes_EmptyIsNotNil(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any(nil)).Return(newEmptyMockRows(), nil)

	routes, err := s.ListRoutes(ctx, model.RouteFilter{})
	require.NoError(t, err)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)
}

func TestListRoutes_QueryError(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any(nil)).Return(nil, errors.New("connection refused"))

	_, err := s.ListRoutes(ctx, model.RouteFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list routes")
}

func TestCreateRoute_Duplicate(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := s.CreateRoute(ctx, &model.Route{Hostname: "app.example.com", LocalPort: 3000})
	require.Error(t, err)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Conflict)
}

func TestCreateRoute_SetsTimestamps(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	r := &model.Route{Hostname: "app.example.com", LocalPort: 3000}
	require.NoError(t, s.CreateRoute(ctx, r))
	assert.Equal(t, fixedNow, r.CreatedAt)
	assert.Equal(t, fixedNow, r.UpdatedAt)
}

func TestUpdateRoute_NotFound(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 18 && args[0] == "gone.example.com"
	})).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := s.UpdateRoute(ctx, &model.Route{Hostname: "gone.example.com"})
	assert.True(t, model.IsNotFound(err))
}

func TestDeleteRoute(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, "DELETE FROM routes WHERE hostname = $1", []any{"app.example.com"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)
	db.On("Exec", ctx, "DELETE FROM routes WHERE hostname = $1", []any{"gone.example.com"}).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	require.NoError(t, s.DeleteRoute(ctx, "app.example.com"))
	assert.True(t, model.IsNotFound(s.DeleteRoute(ctx, "gone.example.com")))
}

func TestLoadSettings_None(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any(nil)).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	settings, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestSaveSettings(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return args[0] == "acct" && args[4] == "sealed-token"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	settings := &model.TunnelSettings{AccountID: "acct", APIToken: "sealed-token"}
	require.NoError(t, s.SaveSettings(ctx, settings))
	assert.Equal(t, fixedNow, settings.UpdatedAt)
	db.AssertExpectations(t)
}

func TestGetProject_NotFound(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"p-x"}).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	_, err := s.GetProject(ctx, "p-x")
	assert.True(t, model.IsNotFound(err))
}

func TestListProjects(t *testing.T) {
	db := new(mockDB)
	s := newTestStore(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any(nil)).Return(newMockRows(
		func(dest ...any) error {
			*(dest[0].(*string)) = "p-shop"
			*(dest[1].(*string)) = "shop"
			*(dest[2].(*string)) = "/home/dev/projects/shop"
			*(dest[3].(*time.Time)) = fixedNow
			return nil
		},
	), nil)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, model.ProjectSourceDatabase, projects[0].Source)
}
