package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/permset"
)

func newTestSessions(t *testing.T) *SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "test_session", time.Hour, false)
}

func TestSessionIssueAndLoad(t *testing.T) {
	sessions := newTestSessions(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	issued, err := sessions.Issue(ctx, rec, 42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	loaded, err := sessions.Load(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, issued.ID, loaded.ID)
	assert.Equal(t, int64(42), loaded.User())

	require.NoError(t, sessions.Destroy(ctx, httptest.NewRecorder(), loaded))
	loaded, err = sessions.Load(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionAnonymousRequest(t *testing.T) {
	sessions := newTestSessions(t)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, int64(0), sess.User())
}

func TestActorCan(t *testing.T) {
	actor := Actor{UserID: 1, Permissions: permset.New(PermUsersView)}
	assert.True(t, actor.Can(PermUsersManage, PermUsersView))
	assert.False(t, actor.Can(PermUsersManage))
	assert.True(t, Actor{SuperAdmin: true}.Can(PermRolesManage))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(ErrConflict))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	assert.Equal(t, "", KindOf(nil))
}
