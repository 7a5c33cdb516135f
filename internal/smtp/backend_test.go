package smtp

import (
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage/memory"
)

func newTestSession(t *testing.T, store *memory.Store) gosmtp.Session {
	t.Helper()
	backend := NewBackend(store, []string{"temp.box"}, zap.NewNop())
	session, err := backend.NewSession(nil)
	require.NoError(t, err)
	return session
}

func TestSession_Rcpt(t *testing.T) {
	t.Run("已存在的邮箱被接受", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveMailbox(&domain.Mailbox{ID: "m1", Address: "a@temp.box"}))
		session := newTestSession(t, store)

		assert.NoError(t, session.Rcpt("<A@TEMP.BOX>", nil))
	})

	t.Run("未知邮箱返回550", func(t *testing.T) {
		session := newTestSession(t, memory.NewStore())

		err := session.Rcpt("nobody@temp.box", nil)
		require.Error(t, err)
		smtpErr, ok := err.(*gosmtp.SMTPError)
		require.True(t, ok)
		assert.Equal(t, 550, smtpErr.Code)
	})

	t.Run("外部域名拒绝中继", func(t *testing.T) {
		session := newTestSession(t, memory.NewStore())

		err := session.Rcpt("victim@example.com", nil)
		require.Error(t, err)
		smtpErr, ok := err.(*gosmtp.SMTPError)
		require.True(t, ok)
		assert.Equal(t, 550, smtpErr.Code)
		assert.Contains(t, smtpErr.Message, "Relay")
	})

	t.Run("过期邮箱拒收", func(t *testing.T) {
		store := memory.NewStore()
		expired := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, store.SaveMailbox(&domain.Mailbox{
			ID: "m1", Address: "old@temp.box", ExpiresAt: &expired,
		}))
		session := newTestSession(t, store)

		err := session.Rcpt("old@temp.box", nil)
		require.Error(t, err)
	})

	t.Run("畸形地址返回501", func(t *testing.T) {
		session := newTestSession(t, memory.NewStore())

		err := session.Rcpt("not-an-address", nil)
		require.Error(t, err)
		smtpErr, ok := err.(*gosmtp.SMTPError)
		require.True(t, ok)
		assert.Equal(t, 501, smtpErr.Code)
	})
}

func TestSession_Data(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.SaveMailbox(&domain.Mailbox{ID: "m1", Address: "a@temp.box"}))
	session := newTestSession(t, store)

	require.NoError(t, session.Mail("sender@example.com", nil))
	require.NoError(t, session.Rcpt("a@temp.box", nil))
	assert.NoError(t, session.Data(strings.NewReader("Subject: hi\r\n\r\nbody")))

	session.Reset()
	assert.NoError(t, session.Logout())
}
